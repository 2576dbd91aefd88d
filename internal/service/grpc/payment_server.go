package grpcsvc

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pix-initiation/internal/domain"
	"github.com/vladislavdragonenkov/pix-initiation/internal/service/payment"
	"github.com/vladislavdragonenkov/pix-initiation/internal/versioning"
	pixv1 "github.com/vladislavdragonenkov/pix-initiation/proto/pix/v1"
)

// PaymentService — операции жизненного цикла платежа, нужные серверу.
type PaymentService interface {
	Create(ctx context.Context, items []payment.CreateItem, idempotencyKey string) ([]domain.PixPayment, error)
	Get(ctx context.Context, id string) (domain.PixPayment, error)
	History(ctx context.Context, id string) ([]domain.TimelineEvent, error)
	ListByConsent(ctx context.Context, consentID string, period domain.Period) ([]domain.PixPayment, error)
	Cancel(ctx context.Context, id string, by domain.Document, channel domain.CancellationChannel) (domain.PixPayment, error)
}

// PaymentServer реализует pix.v1.PaymentService.
type PaymentServer struct {
	pixv1.UnimplementedPaymentServiceServer

	payments PaymentService
	versions *versioning.Registry
	logger   *log.Entry
	now      func() time.Time
}

// NewPaymentServer конструирует платёжный сервер.
func NewPaymentServer(payments PaymentService, versions *versioning.Registry, logger *log.Entry) *PaymentServer {
	if logger == nil {
		logger = log.WithField("component", "payment-server")
	}
	return &PaymentServer{
		payments: payments,
		versions: versions,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CreatePayments создаёт пакет платежей под одним idempotency-key.
func (s *PaymentServer) CreatePayments(ctx context.Context, req *pixv1.CreatePaymentsRequest) (*pixv1.PaymentsResponse, error) {
	strategy, err := resolveStrategy(ctx, s.versions)
	if err != nil {
		return nil, toStatus(err)
	}
	key, err := readIdempotencyKey(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	items, err := createPaymentItems(req)
	if err != nil {
		return nil, toStatus(err)
	}

	created, err := s.payments.Create(ctx, items, key)
	if err != nil {
		return nil, toStatus(err)
	}
	return strategy.PresentPayments(created, "", s.now()), nil
}

// GetPayment возвращает платёж с историей статусов.
func (s *PaymentServer) GetPayment(ctx context.Context, req *pixv1.GetPaymentRequest) (*pixv1.PaymentResponse, error) {
	strategy, err := resolveStrategy(ctx, s.versions)
	if err != nil {
		return nil, toStatus(err)
	}
	if req == nil || req.PaymentId == "" {
		return nil, toStatus(domain.NewValidationError("paymentId", "is required"))
	}
	p, err := s.payments.Get(ctx, req.PaymentId)
	if err != nil {
		return nil, toStatus(err)
	}
	return s.present(ctx, strategy, p), nil
}

// CancelPayment отменяет платёж в PDNG или SCHD.
func (s *PaymentServer) CancelPayment(ctx context.Context, req *pixv1.CancelPaymentRequest) (*pixv1.PaymentResponse, error) {
	strategy, err := resolveStrategy(ctx, s.versions)
	if err != nil {
		return nil, toStatus(err)
	}
	if req == nil || req.PaymentId == "" {
		return nil, toStatus(domain.NewValidationError("paymentId", "is required"))
	}
	if req.CancelledBy == nil {
		return nil, toStatus(domain.NewValidationError("cancellation.cancelledBy", "is required"))
	}

	channel := domain.CancellationChannel(req.CancelledFrom)
	if channel == "" {
		channel = domain.CancellationChannelInitiator
	}
	p, err := s.payments.Cancel(ctx, req.PaymentId, versioning.DocumentFromProto(req.CancelledBy), channel)
	if err != nil {
		return nil, toStatus(err)
	}
	return s.present(ctx, strategy, p), nil
}

// ListPaymentsByConsent возвращает платежи согласия за период.
func (s *PaymentServer) ListPaymentsByConsent(ctx context.Context, req *pixv1.ListPaymentsByConsentRequest) (*pixv1.PaymentsResponse, error) {
	strategy, err := resolveStrategy(ctx, s.versions)
	if err != nil {
		return nil, toStatus(err)
	}
	if req == nil || req.ConsentId == "" {
		return nil, toStatus(domain.NewValidationError("consentId", "is required"))
	}
	period, err := domain.NewPeriod(req.StartDate, req.EndDate)
	if err != nil {
		return nil, toStatus(err)
	}
	payments, err := s.payments.ListByConsent(ctx, req.ConsentId, period)
	if err != nil {
		return nil, toStatus(err)
	}
	return strategy.PresentPayments(payments, strategy.ConsentLink(req.ConsentId)+"/payments", s.now()), nil
}

func (s *PaymentServer) present(ctx context.Context, strategy *versioning.Strategy, p domain.PixPayment) *pixv1.PaymentResponse {
	timeline, err := s.payments.History(ctx, p.ID)
	if err != nil {
		s.logger.WithError(err).WithField("payment_id", p.ID).Warn("failed to load payment timeline")
		timeline = nil
	}
	return strategy.PresentPayment(p, timeline, s.now())
}

var _ pixv1.PaymentServiceServer = (*PaymentServer)(nil)
