package domain

import "time"

// CancellationReason — код причины отмены платежа.
type CancellationReason string

const (
	// CancellationReasonPending — платёж отменён в статусе PDNG.
	CancellationReasonPending CancellationReason = "CANCELADO_PENDENCIA"
	// CancellationReasonScheduled — платёж отменён в статусе SCHD.
	CancellationReasonScheduled CancellationReason = "CANCELADO_AGENDAMENTO"
)

// Description возвращает человекочитаемое описание причины.
func (r CancellationReason) Description() string {
	switch r {
	case CancellationReasonPending:
		return "cancelled while pending"
	case CancellationReasonScheduled:
		return "cancelled while scheduled"
	default:
		return ""
	}
}

// CancellationChannel — сторона, инициировавшая отмену.
type CancellationChannel string

const (
	CancellationChannelInitiator CancellationChannel = "INICIADORA"
	CancellationChannelHolder    CancellationChannel = "DETENTORA"
)

// Valid проверяет канал отмены.
func (c CancellationChannel) Valid() bool {
	return c == CancellationChannelInitiator || c == CancellationChannelHolder
}

// Cancellation фиксирует факт отмены платежа.
type Cancellation struct {
	Reason      CancellationReason
	Channel     CancellationChannel
	CancelledAt time.Time
	CancelledBy Document
}

// CanBeCancelled сообщает, допускает ли статус отмену.
func CanBeCancelled(status PaymentStatus) bool {
	return status == PaymentStatusPending || status == PaymentStatusScheduled
}

// CancellationReasonFor возвращает код причины для статуса; false, если отмена недопустима.
func CancellationReasonFor(status PaymentStatus) (CancellationReason, bool) {
	switch status {
	case PaymentStatusPending:
		return CancellationReasonPending, true
	case PaymentStatusScheduled:
		return CancellationReasonScheduled, true
	default:
		return "", false
	}
}

// CancelPayment применяет политику отмены. При отказе платёж не меняется.
func CancelPayment(p *PixPayment, by Document, channel CancellationChannel, now time.Time) error {
	reason, ok := CancellationReasonFor(p.Status)
	if !ok {
		return &CancellationNotAllowedError{PaymentID: p.ID, Status: p.Status}
	}
	if !channel.Valid() {
		return NewValidationError("cancellation.cancelledFrom", "unsupported value")
	}
	if err := p.Transition(PaymentStatusCancelled, now); err != nil {
		return err
	}
	p.Cancellation = &Cancellation{
		Reason:      reason,
		Channel:     channel,
		CancelledAt: now,
		CancelledBy: by,
	}
	return nil
}
