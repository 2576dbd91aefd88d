package consent

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pix-initiation/internal/domain"
	"github.com/vladislavdragonenkov/pix-initiation/internal/service/idempotency"
	"github.com/vladislavdragonenkov/pix-initiation/internal/service/resilience"
)

// Metrics — метрики, которые пишет жизненный цикл согласия. nil отключает запись.
type Metrics interface {
	RecordConsentCreated()
	RecordConsentTransition(status string)
	RecordOutboxEvent()
	RecordTimelineEvent()
}

// Dependencies — порты, нужные жизненному циклу согласия.
type Dependencies struct {
	Consents domain.ConsentRepository
	Outbox   domain.OutboxRepository
	Timeline domain.TimelineRepository
	Guard    *idempotency.Guard
	Metrics  Metrics
}

// Config — параметры жизненного цикла.
type Config struct {
	// Expiration — окно на авторизацию после создания.
	Expiration time.Duration
	// Retry — повторы при конфликте версий.
	Retry resilience.RetryConfig
}

// Option настраивает Lifecycle.
type Option func(*Lifecycle)

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(l *Lifecycle) {
		if now != nil {
			l.now = now
		}
	}
}

// CreateCommand — данные для создания согласия.
type CreateCommand struct {
	LoggedUser     domain.Document      `json:"loggedUser"`
	BusinessEntity *domain.Document     `json:"businessEntity,omitempty"`
	Creditor       domain.Creditor      `json:"creditor"`
	Payment        domain.PaymentIntent `json:"payment"`
	DebtorAccount  *domain.Account      `json:"debtorAccount,omitempty"`
}

// Lifecycle управляет машиной состояний согласия.
type Lifecycle struct {
	consents domain.ConsentRepository
	outbox   domain.OutboxRepository
	timeline domain.TimelineRepository
	guard    *idempotency.Guard
	metrics  Metrics
	cfg      Config
	logger   *log.Entry
	now      func() time.Time
}

// NewLifecycle создаёт жизненный цикл согласия.
func NewLifecycle(deps Dependencies, cfg Config, logger *log.Entry, opts ...Option) *Lifecycle {
	if logger == nil {
		logger = log.WithField("component", "consent-lifecycle")
	}
	if cfg.Expiration <= 0 {
		cfg.Expiration = domain.DefaultConsentExpiration
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = resilience.DefaultRetryConfig()
	}
	l := &Lifecycle{
		consents: deps.Consents,
		outbox:   deps.Outbox,
		timeline: deps.Timeline,
		guard:    deps.Guard,
		metrics:  deps.Metrics,
		cfg:      cfg,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Create создаёт согласие в AWAITING_AUTHORISATION. Повтор с тем же ключом
// возвращает ранее созданное согласие без записи.
func (l *Lifecycle) Create(ctx context.Context, cmd CreateCommand, idempotencyKey string) (domain.Consent, error) {
	now := l.now()
	consent := domain.NewConsent(domain.NewConsentID(), idempotencyKey, now, l.cfg.Expiration)
	consent.LoggedUser = cmd.LoggedUser
	consent.BusinessEntity = cmd.BusinessEntity
	consent.Creditor = cmd.Creditor
	consent.Payment = cmd.Payment
	if consent.Payment.Type == "" {
		consent.Payment.Type = "PIX"
	}
	consent.DebtorAccount = cmd.DebtorAccount
	if err := consent.ValidateInvariants(); err != nil {
		return domain.Consent{}, err
	}

	hash, err := idempotency.HashRequest(cmd)
	if err != nil {
		return domain.Consent{}, err
	}

	logger := l.logger.WithField("idempotency_key", idempotencyKey)
	res, err := l.guard.RecordAndCreate(ctx, idempotency.Request{
		Scope:       domain.IdempotencyScopeConsent,
		Key:         idempotencyKey,
		RequestHash: hash,
		Lookup:      l.lookupByKey(idempotencyKey),
	}, func(ctx context.Context, _ idempotency.Reservation) ([]string, error) {
		if err := l.consents.Create(ctx, consent); err != nil {
			if errors.Is(err, domain.ErrConsentAlreadyExists) {
				existing, getErr := l.consents.GetByIdempotencyKey(ctx, idempotencyKey)
				if getErr == nil {
					return []string{existing.ID}, nil
				}
			}
			return nil, fmt.Errorf("create consent: %w", err)
		}
		if l.metrics != nil {
			l.metrics.RecordConsentCreated()
		}
		l.emit(ctx, consent, "", domain.EventConsentCreated)
		return []string{consent.ID}, nil
	})
	if err != nil {
		return domain.Consent{}, err
	}
	if len(res.ResourceIDs) == 0 {
		return domain.Consent{}, fmt.Errorf("idempotency record for %q has no consent", idempotencyKey)
	}
	if res.Replayed {
		logger.WithField("consent_id", res.ResourceIDs[0]).Debug("consent create replayed")
		return l.consents.Get(ctx, res.ResourceIDs[0])
	}
	logger.WithField("consent_id", consent.ID).Info("consent created")
	return consent, nil
}

func (l *Lifecycle) lookupByKey(key string) idempotency.LookupFunc {
	return func(ctx context.Context) ([]string, bool, error) {
		existing, err := l.consents.GetByIdempotencyKey(ctx, key)
		switch {
		case errors.Is(err, domain.ErrConsentNotFound):
			return nil, false, nil
		case err != nil:
			return nil, false, err
		}
		return []string{existing.ID}, true, nil
	}
}

// Get возвращает согласие, применяя ленивое истечение.
func (l *Lifecycle) Get(ctx context.Context, id string) (domain.Consent, error) {
	return l.transition(ctx, id, "get", nil)
}

// Authorize переводит согласие в AUTHORISED.
func (l *Lifecycle) Authorize(ctx context.Context, id string) (domain.Consent, error) {
	return l.transition(ctx, id, "authorize", func(c *domain.Consent, now time.Time) (bool, error) {
		return true, c.Authorize(now)
	})
}

// PartiallyAccept фиксирует согласие части подписантов.
func (l *Lifecycle) PartiallyAccept(ctx context.Context, id string) (domain.Consent, error) {
	return l.transition(ctx, id, "partially_accept", func(c *domain.Consent, now time.Time) (bool, error) {
		return true, c.PartiallyAccept(now)
	})
}

// Reject отклоняет согласие. Повторный reject ничего не меняет.
func (l *Lifecycle) Reject(ctx context.Context, id string, reason domain.ConsentRejection) (domain.Consent, error) {
	if reason.Code == "" {
		reason.Code = domain.ConsentRejectedByUser
	}
	return l.transition(ctx, id, "reject", func(c *domain.Consent, now time.Time) (bool, error) {
		return c.Reject(reason, now)
	})
}

// Consume переводит действующее AUTHORISED согласие в CONSUMED.
func (l *Lifecycle) Consume(ctx context.Context, id string) (domain.Consent, error) {
	return l.transition(ctx, id, "consume", func(c *domain.Consent, now time.Time) (bool, error) {
		if err := c.Consume(now); err != nil {
			return false, &domain.ConsentInvalidError{ConsentID: c.ID, Status: c.Status, Detail: "consent is not consumable"}
		}
		return true, nil
	})
}

// EnsureConsumed потребляет согласие, считая уже потреблённое успехом.
// Используется ретранслятором потребления в раздельной топологии.
func (l *Lifecycle) EnsureConsumed(ctx context.Context, id string) error {
	_, err := l.transition(ctx, id, "consume", func(c *domain.Consent, now time.Time) (bool, error) {
		if c.Status == domain.ConsentStatusConsumed {
			return false, nil
		}
		if err := c.Consume(now); err != nil {
			return false, &domain.ConsentInvalidError{ConsentID: c.ID, Status: c.Status, Detail: "consent is not consumable"}
		}
		return true, nil
	})
	return err
}

// ValidateForPayment возвращает согласие, по которому можно создать платёж.
func (l *Lifecycle) ValidateForPayment(ctx context.Context, id string) (domain.Consent, error) {
	consent, err := l.Get(ctx, id)
	if err != nil {
		return domain.Consent{}, err
	}
	if !consent.CanBeConsumed(l.now()) {
		return domain.Consent{}, &domain.ConsentInvalidError{
			ConsentID: consent.ID,
			Status:    consent.Status,
			Detail:    "consent is not authorised",
		}
	}
	return consent, nil
}

// History возвращает хронологию статусов согласия.
func (l *Lifecycle) History(ctx context.Context, id string) ([]domain.TimelineEvent, error) {
	if _, err := l.consents.Get(ctx, id); err != nil {
		return nil, err
	}
	if l.timeline == nil {
		return nil, nil
	}
	return l.timeline.List(ctx, domain.ResourceTypeConsent, id)
}

// transition загружает согласие, применяет ленивое истечение и apply, сохраняет
// изменения с повтором при конфликте версий. Истечение сохраняется, даже если apply
// вернул ошибку.
func (l *Lifecycle) transition(
	ctx context.Context,
	id, operation string,
	apply func(c *domain.Consent, now time.Time) (bool, error),
) (domain.Consent, error) {
	var (
		result   domain.Consent
		applyErr error
	)
	err := resilience.Retry(ctx, l.cfg.Retry, l.logger, "consent."+operation, domain.IsVersionConflict, func(int) error {
		consent, err := l.consents.Get(ctx, id)
		if err != nil {
			return err
		}
		now := l.now()
		previous := consent.Status
		changed := consent.ExpireIfDue(now)

		applyErr = nil
		if apply != nil {
			applied, err := apply(&consent, now)
			if err != nil {
				applyErr = err
			} else {
				changed = changed || applied
			}
		}

		if changed {
			if err := l.consents.Save(ctx, consent); err != nil {
				return err
			}
			consent.Version++
			if l.metrics != nil {
				l.metrics.RecordConsentTransition(string(consent.Status))
			}
			l.emit(ctx, consent, previous, domain.EventConsentStatusChanged)
			l.logger.WithFields(log.Fields{
				"consent_id": consent.ID,
				"from":       previous,
				"to":         consent.Status,
			}).Info("consent status changed")
		}
		result = consent
		return nil
	})
	if err != nil {
		return domain.Consent{}, err
	}
	if applyErr != nil {
		return domain.Consent{}, applyErr
	}
	return result, nil
}

func (l *Lifecycle) emit(ctx context.Context, consent domain.Consent, previous domain.ConsentStatus, eventType string) {
	at := consent.StatusUpdatedAt
	logger := l.logger.WithFields(log.Fields{
		"consent_id": consent.ID,
		"event":      eventType,
	})

	if l.outbox != nil {
		msg, err := domain.NewOutboxMessage(domain.AggregateTypeConsent, consent.ID, eventType,
			domain.NewConsentEvent(consent, previous, at), at)
		if err != nil {
			logger.WithError(err).Error("marshal event failed")
		} else if _, err := l.outbox.Enqueue(ctx, msg); err != nil {
			logger.WithError(err).Error("enqueue event failed")
		} else if l.metrics != nil {
			l.metrics.RecordOutboxEvent()
		}
	}

	if l.timeline != nil {
		var reason string
		if consent.Rejection != nil {
			reason = string(consent.Rejection.Code)
		}
		event := domain.NewStatusTimelineEvent(domain.ResourceTypeConsent, consent.ID, string(consent.Status), reason, at)
		if err := l.timeline.Append(ctx, event); err != nil {
			logger.WithError(err).Warn("append timeline event failed")
		} else if l.metrics != nil {
			l.metrics.RecordTimelineEvent()
		}
	}
}
