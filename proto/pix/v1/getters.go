package pixv1

// Getters безопасны для nil, как у сгенерированных protobuf-сообщений.

func (x *ConsentResponse) GetData() *Consent {
	if x != nil {
		return x.Data
	}
	return nil
}

func (x *Consent) GetConsentId() string {
	if x != nil {
		return x.ConsentId
	}
	return ""
}

func (x *Consent) GetStatus() string {
	if x != nil {
		return x.Status
	}
	return ""
}

func (x *PaymentsResponse) GetData() []*Payment {
	if x != nil {
		return x.Data
	}
	return nil
}

func (x *PaymentResponse) GetData() *Payment {
	if x != nil {
		return x.Data
	}
	return nil
}

func (x *Payment) GetPaymentId() string {
	if x != nil {
		return x.PaymentId
	}
	return ""
}

func (x *Payment) GetStatus() string {
	if x != nil {
		return x.Status
	}
	return ""
}

func (x *Payment) GetConsentId() string {
	if x != nil {
		return x.ConsentId
	}
	return ""
}
