package pixv1

// Document — документ пользователя или юрлица.
type Document struct {
	Identification string `json:"identification"`
	Rel            string `json:"rel"`
}

// Creditor — получатель платежа.
type Creditor struct {
	PersonType string `json:"personType"`
	CpfCnpj    string `json:"cpfCnpj"`
	Name       string `json:"name"`
}

// Account — реквизиты счёта.
type Account struct {
	Ispb        string `json:"ispb"`
	Issuer      string `json:"issuer,omitempty"`
	Number      string `json:"number"`
	AccountType string `json:"accountType"`
}

// PaymentDetails — детали Pix в намерении согласия.
type PaymentDetails struct {
	LocalInstrument string   `json:"localInstrument"`
	QrCode          string   `json:"qrCode,omitempty"`
	Proxy           string   `json:"proxy,omitempty"`
	CreditorAccount *Account `json:"creditorAccount"`
}

// PaymentIntent — параметры платежа, на которые даётся согласие.
type PaymentIntent struct {
	Type     string          `json:"type"`
	Date     string          `json:"date,omitempty"`
	Amount   string          `json:"amount"`
	Currency string          `json:"currency"`
	Details  *PaymentDetails `json:"details"`
}

// RejectionReason — причина отклонения согласия или платежа.
type RejectionReason struct {
	Code   string `json:"code"`
	Detail string `json:"detail,omitempty"`
}

// TimelineEvent — запись истории статусов.
type TimelineEvent struct {
	Status     string `json:"status"`
	Reason     string `json:"reason,omitempty"`
	OccurredAt string `json:"occurredAt"`
}

// Links — ссылки на ресурс.
type Links struct {
	Self string `json:"self"`
}

// Meta — метаданные ответа.
type Meta struct {
	TotalRecords    int32  `json:"totalRecords"`
	RequestDateTime string `json:"requestDateTime"`
}

// Consent — представление согласия.
type Consent struct {
	ConsentId            string           `json:"consentId"`
	Status               string           `json:"status"`
	CreationDateTime     string           `json:"creationDateTime"`
	ExpirationDateTime   string           `json:"expirationDateTime"`
	StatusUpdateDateTime string           `json:"statusUpdateDateTime"`
	LoggedUser           *Document        `json:"loggedUser"`
	BusinessEntity       *Document        `json:"businessEntity,omitempty"`
	Creditor             *Creditor        `json:"creditor"`
	Payment              *PaymentIntent   `json:"payment"`
	DebtorAccount        *Account         `json:"debtorAccount,omitempty"`
	RejectionReason      *RejectionReason `json:"rejectionReason,omitempty"`
	Version              int64            `json:"version"`
	Timeline             []*TimelineEvent `json:"timeline,omitempty"`
}

// ConsentResponse — ответ с одним согласием.
type ConsentResponse struct {
	Data  *Consent `json:"data"`
	Links *Links   `json:"links,omitempty"`
	Meta  *Meta    `json:"meta,omitempty"`
}

// CreateConsentRequest создаёт согласие; ключ идемпотентности передаётся в metadata.
type CreateConsentRequest struct {
	LoggedUser     *Document      `json:"loggedUser"`
	BusinessEntity *Document      `json:"businessEntity,omitempty"`
	Creditor       *Creditor      `json:"creditor"`
	Payment        *PaymentIntent `json:"payment"`
	DebtorAccount  *Account       `json:"debtorAccount,omitempty"`
}

// GetConsentRequest запрашивает согласие.
type GetConsentRequest struct {
	ConsentId string `json:"consentId"`
}

// AuthorizeConsentRequest авторизует согласие. Partial=true фиксирует согласие части подписантов.
type AuthorizeConsentRequest struct {
	ConsentId string `json:"consentId"`
	Partial   bool   `json:"partial,omitempty"`
}

// RejectConsentRequest отклоняет согласие.
type RejectConsentRequest struct {
	ConsentId string `json:"consentId"`
	Code      string `json:"code,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

// ConsumeConsentRequest потребляет согласие (раздельная топология).
type ConsumeConsentRequest struct {
	ConsentId string `json:"consentId"`
}

// Cancellation — сведения об отмене платежа.
type Cancellation struct {
	Reason        string    `json:"reason"`
	CancelledFrom string    `json:"cancelledFrom,omitempty"`
	CancelledAt   string    `json:"cancelledAt"`
	CancelledBy   *Document `json:"cancelledBy"`
}

// Payment — представление платежа Pix.
type Payment struct {
	PaymentId                 string           `json:"paymentId"`
	EndToEndId                string           `json:"endToEndId"`
	ConsentId                 string           `json:"consentId"`
	Status                    string           `json:"status"`
	CreationDateTime          string           `json:"creationDateTime"`
	StatusUpdateDateTime      string           `json:"statusUpdateDateTime"`
	Amount                    string           `json:"amount"`
	Currency                  string           `json:"currency"`
	LocalInstrument           string           `json:"localInstrument"`
	Proxy                     string           `json:"proxy,omitempty"`
	QrCode                    string           `json:"qrCode,omitempty"`
	CnpjInitiator             string           `json:"cnpjInitiator"`
	TransactionIdentification string           `json:"transactionIdentification,omitempty"`
	RemittanceInformation     string           `json:"remittanceInformation,omitempty"`
	CreditorAccount           *Account         `json:"creditorAccount"`
	DebtorAccount             *Account         `json:"debtorAccount,omitempty"`
	AuthorisationFlow         string           `json:"authorisationFlow,omitempty"`
	RejectionReason           *RejectionReason `json:"rejectionReason,omitempty"`
	Cancellation              *Cancellation    `json:"cancellation,omitempty"`
	Version                   int64            `json:"version"`
	Timeline                  []*TimelineEvent `json:"timeline,omitempty"`
}

// CreatePaymentItem — один платёж в запросе на создание.
type CreatePaymentItem struct {
	ConsentId                 string   `json:"consentId"`
	EndToEndId                string   `json:"endToEndId,omitempty"`
	Amount                    string   `json:"amount"`
	Currency                  string   `json:"currency"`
	LocalInstrument           string   `json:"localInstrument"`
	Proxy                     string   `json:"proxy,omitempty"`
	QrCode                    string   `json:"qrCode,omitempty"`
	CnpjInitiator             string   `json:"cnpjInitiator"`
	TransactionIdentification string   `json:"transactionIdentification,omitempty"`
	RemittanceInformation     string   `json:"remittanceInformation,omitempty"`
	CreditorAccount           *Account `json:"creditorAccount"`
	AuthorisationFlow         string   `json:"authorisationFlow,omitempty"`
}

// CreatePaymentsRequest создаёт один или несколько платежей; ключ идемпотентности — в metadata.
type CreatePaymentsRequest struct {
	Payments []*CreatePaymentItem `json:"payments"`
}

// PaymentsResponse — ответ со списком платежей.
type PaymentsResponse struct {
	Data  []*Payment `json:"data"`
	Links *Links     `json:"links,omitempty"`
	Meta  *Meta      `json:"meta,omitempty"`
}

// GetPaymentRequest запрашивает платёж.
type GetPaymentRequest struct {
	PaymentId string `json:"paymentId"`
}

// PaymentResponse — ответ с одним платежом.
type PaymentResponse struct {
	Data  *Payment `json:"data"`
	Links *Links   `json:"links,omitempty"`
	Meta  *Meta    `json:"meta,omitempty"`
}

// CancelPaymentRequest отменяет платёж.
type CancelPaymentRequest struct {
	PaymentId     string    `json:"paymentId"`
	CancelledBy   *Document `json:"cancelledBy"`
	CancelledFrom string    `json:"cancelledFrom"`
}

// ListPaymentsByConsentRequest запрашивает платежи согласия; даты в формате YYYY-MM-DD.
type ListPaymentsByConsentRequest struct {
	ConsentId string `json:"consentId"`
	StartDate string `json:"startDate,omitempty"`
	EndDate   string `json:"endDate,omitempty"`
}
