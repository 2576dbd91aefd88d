package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/vladislavdragonenkov/pix-initiation/internal/domain"
	"github.com/vladislavdragonenkov/pix-initiation/internal/service/resilience"
	"github.com/vladislavdragonenkov/pix-initiation/internal/versioning"
	pixv1 "github.com/vladislavdragonenkov/pix-initiation/proto/pix/v1"
)

const (
	portName = string(domain.ExternalPortConsentGateway)

	// DefaultTimeout — тайм-аут одного вызова сервиса согласий.
	DefaultTimeout = 2 * time.Second
)

// Metrics — учёт вызовов внешнего порта.
type Metrics interface {
	RecordExternalCall(port, result string, duration time.Duration)
}

// RemoteConfig задаёт параметры вызова сервиса согласий.
type RemoteConfig struct {
	Timeout    time.Duration
	APIVersion string
}

// Remote запрашивает согласие у отдельного сервиса согласий по gRPC.
// Любой сбой запроса трактуется как отсутствие согласия.
type Remote struct {
	client  pixv1.ConsentServiceClient
	tokens  *TokenSource
	cfg     RemoteConfig
	metrics Metrics
	logger  *log.Entry
	now     func() time.Time
}

// NewRemote создаёт удалённый шлюз. metrics может быть nil.
func NewRemote(client pixv1.ConsentServiceClient, tokens *TokenSource, cfg RemoteConfig, metrics Metrics, logger *log.Entry) *Remote {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = log.WithField("component", "consent-gateway")
	}
	return &Remote{
		client:  client,
		tokens:  tokens,
		cfg:     cfg,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// Validate запрашивает согласие и проверяет, что по нему можно платить.
// Повторов нет: ошибка сразу возвращается вызывающему.
func (r *Remote) Validate(ctx context.Context, consentID string) (domain.Consent, error) {
	started := time.Now()
	var resp *pixv1.ConsentResponse
	err := r.call(ctx, func(ctx context.Context) error {
		var callErr error
		resp, callErr = r.client.GetConsent(ctx, &pixv1.GetConsentRequest{ConsentId: consentID})
		return callErr
	})
	r.record(err, started)

	logger := r.logger.WithField("consent_id", consentID)
	if err != nil {
		logger.WithError(err).Warn("consent lookup failed, treating as not found")
		return domain.Consent{}, domain.ErrConsentNotFound
	}
	consent, err := versioning.ConsentFromProto(resp.GetData())
	if err != nil {
		logger.WithError(err).Warn("consent payload is malformed, treating as not found")
		return domain.Consent{}, domain.ErrConsentNotFound
	}
	if consent.ID != consentID {
		logger.WithField("returned_id", consent.ID).Warn("consent service returned another consent")
		return domain.Consent{}, domain.ErrConsentNotFound
	}
	if !consent.CanBeConsumed(r.now()) {
		return domain.Consent{}, &domain.ConsentInvalidError{
			ConsentID: consent.ID,
			Status:    consent.Status,
			Detail:    "consent is not authorised",
		}
	}
	return consent, nil
}

// Consume переводит согласие в CONSUMED на стороне сервиса согласий.
// Сбой транспорта возвращается как временная ошибка, чтобы relay повторил попытку.
func (r *Remote) Consume(ctx context.Context, consentID string) error {
	started := time.Now()
	err := r.call(ctx, func(ctx context.Context) error {
		_, callErr := r.client.ConsumeConsent(ctx, &pixv1.ConsumeConsentRequest{ConsentId: consentID})
		return callErr
	})
	r.record(err, started)
	if err == nil {
		return nil
	}

	switch status.Code(err) {
	case codes.NotFound:
		return domain.ErrConsentNotFound
	case codes.FailedPrecondition:
		return &domain.ConsentInvalidError{
			ConsentID: consentID,
			Detail:    status.Convert(err).Message(),
		}
	default:
		return &domain.ExternalValidationError{
			Port:      domain.ExternalPortConsentGateway,
			Message:   "consent service unavailable",
			Transient: true,
			Err:       err,
		}
	}
}

func (r *Remote) call(ctx context.Context, fn func(ctx context.Context) error) error {
	md, err := r.outgoingMetadata()
	if err != nil {
		return err
	}
	ctx = metadata.NewOutgoingContext(ctx, md)
	return resilience.CallWithTimeout(ctx, r.cfg.Timeout, nil, nil, fn)
}

func (r *Remote) outgoingMetadata() (metadata.MD, error) {
	md := metadata.Pairs(pixv1.MetadataInteractionID, uuid.NewString())
	if r.tokens != nil {
		token, err := r.tokens.Token()
		if err != nil {
			return nil, fmt.Errorf("sign service token: %w", err)
		}
		md.Set(pixv1.MetadataAuthorization, "Bearer "+token)
	}
	if r.cfg.APIVersion != "" {
		md.Set(pixv1.MetadataAPIVersion, r.cfg.APIVersion)
	}
	return md, nil
}

func (r *Remote) record(err error, started time.Time) {
	if r.metrics != nil {
		r.metrics.RecordExternalCall(portName, resilience.Outcome(err), time.Since(started))
	}
}

var (
	_ domain.ConsentGateway  = (*Remote)(nil)
	_ domain.ConsentConsumer = (*Remote)(nil)
)
