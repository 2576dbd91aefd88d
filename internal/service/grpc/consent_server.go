// Package grpcsvc реализует gRPC API инициации Pix поверх сервисов согласий и
// платежей: разбор запросов, выбор версии API и перевод доменных ошибок в коды.
package grpcsvc

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pix-initiation/internal/domain"
	"github.com/vladislavdragonenkov/pix-initiation/internal/service/consent"
	"github.com/vladislavdragonenkov/pix-initiation/internal/versioning"
	pixv1 "github.com/vladislavdragonenkov/pix-initiation/proto/pix/v1"
)

// ConsentService — операции жизненного цикла согласия, нужные серверу.
type ConsentService interface {
	Create(ctx context.Context, cmd consent.CreateCommand, idempotencyKey string) (domain.Consent, error)
	Get(ctx context.Context, id string) (domain.Consent, error)
	Authorize(ctx context.Context, id string) (domain.Consent, error)
	PartiallyAccept(ctx context.Context, id string) (domain.Consent, error)
	Reject(ctx context.Context, id string, reason domain.ConsentRejection) (domain.Consent, error)
	EnsureConsumed(ctx context.Context, id string) error
	History(ctx context.Context, id string) ([]domain.TimelineEvent, error)
}

// ConsentServer реализует pix.v1.ConsentService.
type ConsentServer struct {
	pixv1.UnimplementedConsentServiceServer

	consents ConsentService
	versions *versioning.Registry
	logger   *log.Entry
	now      func() time.Time
}

// NewConsentServer конструирует сервер согласий.
func NewConsentServer(consents ConsentService, versions *versioning.Registry, logger *log.Entry) *ConsentServer {
	if logger == nil {
		logger = log.WithField("component", "consent-server")
	}
	return &ConsentServer{
		consents: consents,
		versions: versions,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CreateConsent создаёт согласие; повтор с тем же idempotency-key возвращает
// исходное согласие.
func (s *ConsentServer) CreateConsent(ctx context.Context, req *pixv1.CreateConsentRequest) (*pixv1.ConsentResponse, error) {
	strategy, err := resolveStrategy(ctx, s.versions)
	if err != nil {
		return nil, toStatus(err)
	}
	key, err := readIdempotencyKey(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	cmd, err := createConsentCommand(req)
	if err != nil {
		return nil, toStatus(err)
	}
	created, err := s.consents.Create(ctx, cmd, key)
	if err != nil {
		return nil, toStatus(err)
	}
	return s.present(ctx, strategy, created), nil
}

// GetConsent возвращает согласие с историей статусов.
func (s *ConsentServer) GetConsent(ctx context.Context, req *pixv1.GetConsentRequest) (*pixv1.ConsentResponse, error) {
	return s.apply(ctx, consentIDOf(req), s.consents.Get)
}

// AuthorizeConsent фиксирует авторизацию; partial=true — согласие части подписантов.
func (s *ConsentServer) AuthorizeConsent(ctx context.Context, req *pixv1.AuthorizeConsentRequest) (*pixv1.ConsentResponse, error) {
	if req == nil {
		return nil, toStatus(domain.NewValidationError("consentId", "is required"))
	}
	if req.Partial {
		return s.apply(ctx, req.ConsentId, s.consents.PartiallyAccept)
	}
	return s.apply(ctx, req.ConsentId, s.consents.Authorize)
}

// RejectConsent отклоняет согласие.
func (s *ConsentServer) RejectConsent(ctx context.Context, req *pixv1.RejectConsentRequest) (*pixv1.ConsentResponse, error) {
	if req == nil {
		return nil, toStatus(domain.NewValidationError("consentId", "is required"))
	}
	reason := domain.ConsentRejection{Code: domain.ConsentRejectionCode(req.Code), Detail: req.Detail}
	return s.apply(ctx, req.ConsentId, func(ctx context.Context, id string) (domain.Consent, error) {
		return s.consents.Reject(ctx, id, reason)
	})
}

// ConsumeConsent потребляет согласие по запросу платёжного сервиса. Уже
// потреблённое согласие возвращается без ошибки.
func (s *ConsentServer) ConsumeConsent(ctx context.Context, req *pixv1.ConsumeConsentRequest) (*pixv1.ConsentResponse, error) {
	id := ""
	if req != nil {
		id = req.ConsentId
	}
	return s.apply(ctx, id, func(ctx context.Context, id string) (domain.Consent, error) {
		if err := s.consents.EnsureConsumed(ctx, id); err != nil {
			return domain.Consent{}, err
		}
		return s.consents.Get(ctx, id)
	})
}

func (s *ConsentServer) apply(
	ctx context.Context,
	id string,
	fn func(ctx context.Context, id string) (domain.Consent, error),
) (*pixv1.ConsentResponse, error) {
	strategy, err := resolveStrategy(ctx, s.versions)
	if err != nil {
		return nil, toStatus(err)
	}
	if id == "" {
		return nil, toStatus(domain.NewValidationError("consentId", "is required"))
	}
	result, err := fn(ctx, id)
	if err != nil {
		return nil, toStatus(err)
	}
	return s.present(ctx, strategy, result), nil
}

func (s *ConsentServer) present(ctx context.Context, strategy *versioning.Strategy, c domain.Consent) *pixv1.ConsentResponse {
	timeline, err := s.consents.History(ctx, c.ID)
	if err != nil {
		s.logger.WithError(err).WithField("consent_id", c.ID).Warn("failed to load consent timeline")
		timeline = nil
	}
	return strategy.PresentConsent(c, timeline, s.now())
}

func consentIDOf(req *pixv1.GetConsentRequest) string {
	if req == nil {
		return ""
	}
	return req.ConsentId
}

var _ pixv1.ConsentServiceServer = (*ConsentServer)(nil)
