// Package payment реализует жизненный цикл Pix-платежей: проверку согласий,
// передачу на расчёт, атомарное сохранение с потреблением согласий и отмену.
package payment

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pix-initiation/internal/domain"
	"github.com/vladislavdragonenkov/pix-initiation/internal/service/idempotency"
	"github.com/vladislavdragonenkov/pix-initiation/internal/service/resilience"
)

// DefaultISPB — ISPB инициатора для сгенерированных EndToEndID.
const DefaultISPB = "99999999"

// ConsumptionMode определяет, как платёж потребляет согласие.
type ConsumptionMode string

const (
	// ConsumeInTransaction — согласие потребляется в той же записи, что и платежи (монолит).
	ConsumeInTransaction ConsumptionMode = "transaction"
	// ConsumeViaOutbox — платёжный контур пишет consent.consumption_requested, а сервис
	// согласий применяет его асинхронно (раздельная топология).
	ConsumeViaOutbox ConsumptionMode = "outbox"
)

// Metrics — метрики платёжного контура. nil отключает запись.
type Metrics interface {
	RecordPaymentCreated(status string)
	RecordPaymentBatch(size int, duration time.Duration)
	RecordBatchInFlightStarted()
	RecordBatchInFlightFinished()
	RecordCancellation(reason string)
	RecordOutboxEvent()
	RecordTimelineEvent()
}

// Dependencies — порты платёжного контура. Keys может быть nil: проверка ключей отключена.
type Dependencies struct {
	Payments   domain.PaymentRepository
	Consents   domain.ConsentGateway
	Keys       domain.KeyValidator
	Settlement domain.SettlementGateway
	Outbox     domain.OutboxRepository
	Timeline   domain.TimelineRepository
	Guard      *idempotency.Guard
	Metrics    Metrics
}

// Config — параметры платёжного контура.
type Config struct {
	ISPB        string
	Consumption ConsumptionMode
	Retry       resilience.RetryConfig
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

// CreateItem — один платёж в запросе на создание.
type CreateItem struct {
	ConsentID                 string                   `json:"consentId"`
	EndToEndID                string                   `json:"endToEndId,omitempty"`
	Amount                    domain.Amount            `json:"amount"`
	Currency                  string                   `json:"currency"`
	LocalInstrument           domain.LocalInstrument   `json:"localInstrument"`
	Proxy                     string                   `json:"proxy,omitempty"`
	QRCode                    string                   `json:"qrCode,omitempty"`
	CNPJInitiator             string                   `json:"cnpjInitiator"`
	TransactionIdentification string                   `json:"transactionIdentification,omitempty"`
	RemittanceInformation     string                   `json:"remittanceInformation,omitempty"`
	CreditorAccount           domain.Account           `json:"creditorAccount"`
	AuthorisationFlow         domain.AuthorisationFlow `json:"authorisationFlow,omitempty"`
}

// Lifecycle управляет платежами.
type Lifecycle struct {
	payments   domain.PaymentRepository
	consents   domain.ConsentGateway
	keys       domain.KeyValidator
	settlement domain.SettlementGateway
	outbox     domain.OutboxRepository
	timeline   domain.TimelineRepository
	guard      *idempotency.Guard
	metrics    Metrics
	cfg        Config
	locks      stripedLock
	logger     *log.Entry
	now        func() time.Time
}

// NewLifecycle создаёт платёжный контур.
func NewLifecycle(deps Dependencies, cfg Config, logger *log.Entry, opts ...Option) *Lifecycle {
	if logger == nil {
		logger = log.WithField("component", "payment-lifecycle")
	}
	if cfg.ISPB == "" {
		cfg.ISPB = DefaultISPB
	}
	if cfg.Consumption == "" {
		cfg.Consumption = ConsumeInTransaction
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = resilience.DefaultRetryConfig()
	}
	l := &Lifecycle{
		payments:   deps.Payments,
		consents:   deps.Consents,
		keys:       deps.Keys,
		settlement: deps.Settlement,
		outbox:     deps.Outbox,
		timeline:   deps.Timeline,
		guard:      deps.Guard,
		metrics:    deps.Metrics,
		cfg:        cfg,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Create создаёт пакет платежей. Повтор с тем же ключом возвращает сохранённые
// платежи без расчёта и без потребления согласий.
func (l *Lifecycle) Create(ctx context.Context, items []CreateItem, idempotencyKey string) ([]domain.PixPayment, error) {
	if len(items) == 0 {
		return nil, domain.NewValidationError("data", "at least one payment is required")
	}
	hash, err := idempotency.HashRequest(items)
	if err != nil {
		return nil, err
	}

	now := l.now()
	batch := make([]domain.PixPayment, 0, len(items))
	for i, item := range items {
		p := l.newPayment(item, idempotencyKey, i, now)
		if err := p.ValidateInvariants(); err != nil {
			return nil, err
		}
		batch = append(batch, p)
	}

	logger := l.logger.WithField("idempotency_key", idempotencyKey)
	res, err := l.guard.RecordAndCreate(ctx, idempotency.Request{
		Scope:       domain.IdempotencyScopePayment,
		Key:         idempotencyKey,
		RequestHash: hash,
		Lookup:      l.lookupByKey(idempotencyKey),
	}, func(ctx context.Context, res idempotency.Reservation) ([]string, error) {
		l.anchorEndToEndIDs(batch, items, idempotencyKey, res.FirstReservedAt)
		return l.process(ctx, batch, idempotencyKey, logger)
	})
	if err != nil {
		return nil, err
	}

	if res.Replayed {
		logger.WithField("payments", len(res.ResourceIDs)).Debug("payment create replayed")
		return l.load(ctx, res.ResourceIDs)
	}
	return batch, nil
}

func (l *Lifecycle) newPayment(item CreateItem, key string, index int, now time.Time) domain.PixPayment {
	e2e := item.EndToEndID
	if e2e == "" {
		e2e = domain.DeriveEndToEndID(l.cfg.ISPB, now, key, index)
	}
	return domain.PixPayment{
		ID:                        domain.NewPaymentID(),
		IdempotencyKey:            key,
		BatchIndex:                index,
		EndToEndID:                e2e,
		ConsentID:                 item.ConsentID,
		Status:                    domain.PaymentStatusReceived,
		Amount:                    item.Amount,
		Currency:                  item.Currency,
		LocalInstrument:           item.LocalInstrument,
		Proxy:                     item.Proxy,
		QRCode:                    item.QRCode,
		CNPJInitiator:             item.CNPJInitiator,
		TransactionIdentification: item.TransactionIdentification,
		RemittanceInformation:     item.RemittanceInformation,
		CreditorAccount:           item.CreditorAccount,
		AuthorisationFlow:         item.AuthorisationFlow,
		CreatedAt:                 now,
		StatusUpdatedAt:           now,
	}
}

// anchorEndToEndIDs привязывает сгенерированные EndToEndID к первой резервации
// ключа: повтор после сбоя отправляет в SPI те же идентификаторы, и SPI
// узнаёт уже проведённые платежи.
func (l *Lifecycle) anchorEndToEndIDs(batch []domain.PixPayment, items []CreateItem, key string, firstReservedAt time.Time) {
	if firstReservedAt.IsZero() {
		return
	}
	for i := range batch {
		if items[i].EndToEndID == "" {
			batch[i].EndToEndID = domain.DeriveEndToEndID(l.cfg.ISPB, firstReservedAt, key, i)
		}
	}
}

// process выполняет проверки всех платежей, затем расчёт и атомарную запись.
// batch изменяется на месте.
//
// Согласия захватываются ключом до обращения к SPI, поэтому платёж по другому
// ключу не пройдёт расчёт, даже если потребление согласия применяется асинхронно.
// После того как SPI принял хотя бы один платёж, пакет сохраняется всегда:
// неподтверждённые и не потребившие согласие платежи помечаются для сверки.
func (l *Lifecycle) process(ctx context.Context, batch []domain.PixPayment, key string, logger *log.Entry) (ids []string, err error) {
	started := time.Now()
	if l.metrics != nil {
		l.metrics.RecordBatchInFlightStarted()
		defer l.metrics.RecordBatchInFlightFinished()
	}

	consentIDs := distinctConsents(batch)
	unlock := l.locks.lock(consentIDs)
	defer unlock()

	consents, err := l.validateConsents(ctx, batch, consentIDs)
	if err != nil {
		return nil, err
	}
	if err := l.validateKeys(ctx, batch); err != nil {
		return nil, err
	}
	validatedAt := l.now()

	claimed, err := l.claimConsents(ctx, consents, consentIDs, key, validatedAt)
	defer func() {
		if err != nil {
			l.releaseClaims(ctx, claimed, key, logger)
		}
	}()
	if err != nil {
		return nil, err
	}

	timeline, submitted, err := l.settleBatch(ctx, batch, consents, logger)
	if err != nil {
		return nil, err
	}

	// Деньги уже ушли: запись не должна прерываться отменой клиентского запроса.
	writeCtx := ctx
	if submitted > 0 {
		writeCtx = context.WithoutCancel(ctx)
	}

	consumed := consumedConsents(batch)
	write, err := l.buildWrite(batch, consents, consumed, timeline, validatedAt)
	if err != nil {
		return nil, err
	}

	err = l.payments.CreateBatch(writeCtx, write)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrPaymentAlreadyExists):
		existing, lookupErr := l.payments.ListByIdempotencyKey(writeCtx, key)
		if lookupErr == nil && len(existing) > 0 {
			return paymentIDs(existing), nil
		}
		return nil, fmt.Errorf("store payments: %w", err)
	case errors.Is(err, domain.ErrConsentNotConsumable), errors.Is(err, domain.ErrConsentInvalid):
		if submitted == 0 {
			logger.WithError(err).Warn("consent changed before settlement reached SPI, payments not stored")
			return nil, l.consentConflict(writeCtx, firstConsent(consumed), "consent is no longer consumable")
		}
		logger.WithError(err).Error("consent changed after settlement, storing payments for reconciliation")
		l.flagUnconsumed(batch, consumed)
		if write, err = l.buildWrite(batch, consents, nil, timeline, validatedAt); err != nil {
			return nil, err
		}
		if err = l.payments.CreateBatch(writeCtx, write); err != nil {
			return nil, fmt.Errorf("store payments: %w", err)
		}
	default:
		return nil, fmt.Errorf("store payments: %w", err)
	}

	// Согласия, все платежи которых отклонены, остаются доступными другим ключам.
	l.releaseClaims(writeCtx, unconsumed(consentIDs, consumed), key, logger)

	l.observeBatch(write, started)
	for _, p := range batch {
		entry := logger.WithFields(log.Fields{
			"payment_id":    p.ID,
			"consent_id":    p.ConsentID,
			"end_to_end_id": p.EndToEndID,
			"status":        p.Status,
		})
		if p.Reconciliation != nil {
			entry.WithField("reconciliation", p.Reconciliation.Reason).Warn("payment created, reconciliation required")
			continue
		}
		entry.Info("payment created")
	}
	return paymentIDs(batch), nil
}

// claimConsents закрепляет согласия за ключом. Возвращает уже захваченные
// согласия и при ошибке, чтобы вызывающий мог их освободить.
func (l *Lifecycle) claimConsents(ctx context.Context, consents map[string]domain.Consent, ids []string, key string, at time.Time) ([]string, error) {
	claimed := make([]string, 0, len(ids))
	for _, id := range ids {
		if err := l.payments.ClaimConsent(ctx, id, key, at); err != nil {
			if errors.Is(err, domain.ErrConsentAlreadyClaimed) {
				return claimed, &domain.ConsentInvalidError{
					ConsentID: id,
					Status:    consents[id].Status,
					Detail:    "consent already used by another payment",
				}
			}
			return claimed, fmt.Errorf("claim consent %s: %w", id, err)
		}
		claimed = append(claimed, id)
	}
	return claimed, nil
}

func (l *Lifecycle) releaseClaims(ctx context.Context, ids []string, key string, logger *log.Entry) {
	ctx = context.WithoutCancel(ctx)
	for _, id := range ids {
		if err := l.payments.ReleaseConsentClaim(ctx, id, key); err != nil {
			logger.WithError(err).WithField("consent_id", id).Warn("release consent claim failed")
		}
	}
}

// settleBatch проводит платежи по очереди и возвращает число платежей, которые
// SPI мог принять. Сбой транспорта до первой такой отправки прерывает пакет;
// после неё платёж остаётся в PDNG с пометкой для сверки.
func (l *Lifecycle) settleBatch(ctx context.Context, batch []domain.PixPayment, consents map[string]domain.Consent, logger *log.Entry) ([]domain.TimelineEvent, int, error) {
	var (
		timeline  []domain.TimelineEvent
		submitted int
	)
	for i := range batch {
		p := &batch[i]
		p.DebtorAccount = consents[p.ConsentID].DebtorAccount
		timeline = append(timeline, statusEvent(*p))

		consent := consents[p.ConsentID]
		if consent.IsScheduled(p.CreatedAt) {
			if err := l.advance(p, domain.PaymentStatusScheduled, &timeline); err != nil {
				return nil, 0, err
			}
			continue
		}

		err := l.settle(ctx, p, &timeline)
		switch {
		case err == nil:
			if p.Succeeded() {
				submitted++
			}
		case submitted > 0 && p.Status == domain.PaymentStatusAccepted:
			if advErr := l.advance(p, domain.PaymentStatusPending, &timeline); advErr != nil {
				return nil, 0, advErr
			}
			p.FlagForReconciliation(domain.ReconciliationSettlementUnconfirmed, l.now())
			submitted++
			logger.WithError(err).WithField("end_to_end_id", p.EndToEndID).
				Warn("settlement unconfirmed, payment kept pending for reconciliation")
		default:
			logger.WithError(err).WithField("end_to_end_id", p.EndToEndID).Warn("settlement failed, batch aborted")
			return nil, 0, err
		}
	}
	return timeline, submitted, nil
}

// buildWrite собирает атомарную запись пакета с событиями и потреблением согласий.
func (l *Lifecycle) buildWrite(batch []domain.PixPayment, consents map[string]domain.Consent, consumed []string, timeline []domain.TimelineEvent, validatedAt time.Time) (domain.PaymentBatch, error) {
	now := l.now()
	write := domain.PaymentBatch{
		Payments:    batch,
		ValidatedAt: validatedAt,
		ConsumedAt:  now,
		Timeline:    timeline,
	}
	for _, p := range batch {
		msg, err := domain.NewOutboxMessage(domain.AggregateTypePayment, p.ID, domain.EventPaymentCreated,
			domain.NewPaymentEvent(p, "", p.StatusUpdatedAt), p.StatusUpdatedAt)
		if err != nil {
			return domain.PaymentBatch{}, err
		}
		write.Events = append(write.Events, msg)
	}

	switch l.cfg.Consumption {
	case ConsumeViaOutbox:
		for _, consentID := range consumed {
			msg, err := domain.NewOutboxMessage(domain.AggregateTypeConsent, consentID, domain.EventConsentConsumptionRequested,
				domain.ConsentConsumptionRequested{
					ConsentID:   consentID,
					PaymentIDs:  paymentIDsFor(batch, consentID),
					RequestedAt: now,
				}, now)
			if err != nil {
				return domain.PaymentBatch{}, err
			}
			write.Events = append(write.Events, msg)
		}
	default:
		write.ConsumeConsents = consumed
		for _, consentID := range consumed {
			consent := consents[consentID]
			previous := consent.Status
			consent.Status = domain.ConsentStatusConsumed
			consent.StatusUpdatedAt = now
			msg, err := domain.NewOutboxMessage(domain.AggregateTypeConsent, consentID, domain.EventConsentStatusChanged,
				domain.NewConsentEvent(consent, previous, now), now)
			if err != nil {
				return domain.PaymentBatch{}, err
			}
			write.Events = append(write.Events, msg)
			write.Timeline = append(write.Timeline, domain.NewStatusTimelineEvent(
				domain.ResourceTypeConsent, consentID, string(domain.ConsentStatusConsumed), "", now))
		}
	}
	return write, nil
}

// flagUnconsumed помечает для сверки успешные платежи согласий, которые не
// удалось потребить.
func (l *Lifecycle) flagUnconsumed(batch []domain.PixPayment, consumed []string) {
	now := l.now()
	affected := make(map[string]bool, len(consumed))
	for _, id := range consumed {
		affected[id] = true
	}
	for i := range batch {
		if affected[batch[i].ConsentID] && batch[i].Succeeded() {
			batch[i].FlagForReconciliation(domain.ReconciliationConsentNotConsumed, now)
		}
	}
}

// consentConflict перечитывает согласие, чтобы вернуть его текущий статус.
func (l *Lifecycle) consentConflict(ctx context.Context, consentID, detail string) error {
	status := domain.ConsentStatusAuthorised
	current, err := l.consents.Validate(ctx, consentID)
	var invalid *domain.ConsentInvalidError
	switch {
	case err == nil:
		status = current.Status
	case errors.As(err, &invalid):
		status = invalid.Status
	}
	return &domain.ConsentInvalidError{ConsentID: consentID, Status: status, Detail: detail}
}

// validateConsents проверяет каждое согласие один раз и сверяет с ним платежи.
func (l *Lifecycle) validateConsents(ctx context.Context, batch []domain.PixPayment, ids []string) (map[string]domain.Consent, error) {
	consents := make(map[string]domain.Consent, len(ids))
	for _, id := range ids {
		consent, err := l.consents.Validate(ctx, id)
		if err != nil {
			return nil, err
		}
		consents[id] = consent
	}
	for i := range batch {
		consent := consents[batch[i].ConsentID]
		if err := batch[i].MatchesConsent(&consent); err != nil {
			return nil, err
		}
	}
	return consents, nil
}

// validateKeys проверяет ключи Pix получателей. Любой отказ прерывает весь пакет.
func (l *Lifecycle) validateKeys(ctx context.Context, batch []domain.PixPayment) error {
	if l.keys == nil {
		return nil
	}
	for _, p := range batch {
		if p.Proxy == "" {
			continue
		}
		result, err := l.keys.ValidateKey(ctx, p.Proxy)
		if err != nil {
			var extErr *domain.ExternalValidationError
			if errors.As(err, &extErr) {
				return err
			}
			return &domain.ExternalValidationError{
				Port:      domain.ExternalPortKeyValidation,
				Message:   "key validation unavailable",
				Transient: true,
				Err:       err,
			}
		}
		if !result.Valid {
			return &domain.ExternalValidationError{
				Port:    domain.ExternalPortKeyValidation,
				Code:    result.Reason,
				Message: "pix key rejected",
			}
		}
		if result.ISPB != "" && result.ISPB != p.CreditorAccount.ISPB {
			return &domain.ExternalValidationError{
				Port:    domain.ExternalPortKeyValidation,
				Code:    "DIVERGENCIA_CHAVE_CONTA",
				Message: "pix key belongs to another account",
			}
		}
	}
	return nil
}

// settle проводит платёж через расчётную систему. Ошибка транспорта возвращается как
// есть, а отказ SPI становится RJCT.
func (l *Lifecycle) settle(ctx context.Context, p *domain.PixPayment, timeline *[]domain.TimelineEvent) error {
	if err := l.advance(p, domain.PaymentStatusAccepted, timeline); err != nil {
		return err
	}
	result, err := l.settlement.Submit(ctx, *p)
	if err != nil {
		var extErr *domain.ExternalValidationError
		if errors.As(err, &extErr) {
			return err
		}
		return &domain.ExternalValidationError{
			Port:      domain.ExternalPortSettlement,
			Message:   "settlement unavailable",
			Transient: true,
			Err:       err,
		}
	}

	switch result.Outcome {
	case domain.SettlementAccepted:
		if err := l.advance(p, domain.PaymentStatusAcceptedProcessing, timeline); err != nil {
			return err
		}
		return l.advance(p, domain.PaymentStatusSettled, timeline)
	case domain.SettlementPending:
		return l.advance(p, domain.PaymentStatusPending, timeline)
	case domain.SettlementRejected:
		if err := p.Reject(result.ErrorCode, result.ErrorMessage, l.now()); err != nil {
			return err
		}
		*timeline = append(*timeline, statusEvent(*p))
		return nil
	default:
		return &domain.ExternalValidationError{
			Port:      domain.ExternalPortSettlement,
			Message:   fmt.Sprintf("unknown settlement outcome %q", result.Outcome),
			Transient: true,
		}
	}
}

func (l *Lifecycle) advance(p *domain.PixPayment, to domain.PaymentStatus, timeline *[]domain.TimelineEvent) error {
	if err := p.Transition(to, l.now()); err != nil {
		return err
	}
	*timeline = append(*timeline, statusEvent(*p))
	return nil
}

func (l *Lifecycle) observeBatch(write domain.PaymentBatch, started time.Time) {
	if l.metrics == nil {
		return
	}
	for _, p := range write.Payments {
		l.metrics.RecordPaymentCreated(string(p.Status))
	}
	for range write.Events {
		l.metrics.RecordOutboxEvent()
	}
	for range write.Timeline {
		l.metrics.RecordTimelineEvent()
	}
	l.metrics.RecordPaymentBatch(len(write.Payments), time.Since(started))
}

func (l *Lifecycle) lookupByKey(key string) idempotency.LookupFunc {
	return func(ctx context.Context) ([]string, bool, error) {
		existing, err := l.payments.ListByIdempotencyKey(ctx, key)
		if err != nil {
			return nil, false, err
		}
		if len(existing) == 0 {
			return nil, false, nil
		}
		return paymentIDs(existing), true, nil
	}
}

func (l *Lifecycle) load(ctx context.Context, ids []string) ([]domain.PixPayment, error) {
	out := make([]domain.PixPayment, 0, len(ids))
	for _, id := range ids {
		p, err := l.payments.Get(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load payment %s: %w", id, err)
		}
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].BatchIndex < out[j].BatchIndex })
	return out, nil
}

// Get возвращает платёж.
func (l *Lifecycle) Get(ctx context.Context, id string) (domain.PixPayment, error) {
	return l.payments.Get(ctx, id)
}

// History возвращает хронологию статусов платежа.
func (l *Lifecycle) History(ctx context.Context, id string) ([]domain.TimelineEvent, error) {
	if _, err := l.payments.Get(ctx, id); err != nil {
		return nil, err
	}
	if l.timeline == nil {
		return nil, nil
	}
	return l.timeline.List(ctx, domain.ResourceTypePayment, id)
}

// ListByConsent возвращает платежи согласия за период. Несуществующее согласие даёт
// ErrConsentNotFound; согласие в любом статусе считается существующим.
func (l *Lifecycle) ListByConsent(ctx context.Context, consentID string, period domain.Period) ([]domain.PixPayment, error) {
	payments, err := l.payments.ListByConsent(ctx, consentID, period)
	if err != nil {
		return nil, err
	}
	if len(payments) > 0 {
		return payments, nil
	}
	if _, err := l.consents.Validate(ctx, consentID); err != nil && !errors.Is(err, domain.ErrConsentInvalid) {
		return nil, err
	}
	return payments, nil
}

// Cancel отменяет платёж в PDNG или SCHD. При отказе платёж не меняется.
func (l *Lifecycle) Cancel(ctx context.Context, id string, by domain.Document, channel domain.CancellationChannel) (domain.PixPayment, error) {
	if err := by.Validate("cancellation.cancelledBy.document"); err != nil {
		return domain.PixPayment{}, err
	}

	var result domain.PixPayment
	err := resilience.Retry(ctx, l.cfg.Retry, l.logger, "payment.cancel", domain.IsVersionConflict, func(int) error {
		p, err := l.payments.Get(ctx, id)
		if err != nil {
			return err
		}
		previous := p.Status
		if err := domain.CancelPayment(&p, by, channel, l.now()); err != nil {
			return err
		}
		if err := l.payments.Save(ctx, p); err != nil {
			return err
		}
		p.Version++
		if l.metrics != nil {
			l.metrics.RecordCancellation(string(p.Cancellation.Reason))
		}
		l.emit(ctx, p, previous)
		l.logger.WithFields(log.Fields{
			"payment_id": p.ID,
			"from":       previous,
			"reason":     p.Cancellation.Reason,
			"channel":    p.Cancellation.Channel,
		}).Info("payment cancelled")
		result = p
		return nil
	})
	if err != nil {
		return domain.PixPayment{}, err
	}
	return result, nil
}

func (l *Lifecycle) emit(ctx context.Context, p domain.PixPayment, previous domain.PaymentStatus) {
	at := p.StatusUpdatedAt
	logger := l.logger.WithField("payment_id", p.ID)

	if l.outbox != nil {
		msg, err := domain.NewOutboxMessage(domain.AggregateTypePayment, p.ID, domain.EventPaymentStatusChanged,
			domain.NewPaymentEvent(p, previous, at), at)
		if err != nil {
			logger.WithError(err).Error("marshal event failed")
		} else if _, err := l.outbox.Enqueue(ctx, msg); err != nil {
			logger.WithError(err).Error("enqueue event failed")
		} else if l.metrics != nil {
			l.metrics.RecordOutboxEvent()
		}
	}

	if l.timeline != nil {
		if err := l.timeline.Append(ctx, statusEvent(p)); err != nil {
			logger.WithError(err).Warn("append timeline event failed")
		} else if l.metrics != nil {
			l.metrics.RecordTimelineEvent()
		}
	}
}

func statusEvent(p domain.PixPayment) domain.TimelineEvent {
	var reason string
	switch {
	case p.Rejection != nil:
		reason = p.Rejection.Code
	case p.Cancellation != nil:
		reason = string(p.Cancellation.Reason)
	}
	return domain.NewStatusTimelineEvent(domain.ResourceTypePayment, p.ID, string(p.Status), reason, p.StatusUpdatedAt)
}

func distinctConsents(batch []domain.PixPayment) []string {
	seen := make(map[string]struct{}, len(batch))
	ids := make([]string, 0, len(batch))
	for _, p := range batch {
		if _, ok := seen[p.ConsentID]; ok {
			continue
		}
		seen[p.ConsentID] = struct{}{}
		ids = append(ids, p.ConsentID)
	}
	return ids
}

// consumedConsents возвращает согласия, по которым есть хотя бы один неотклонённый платёж.
func consumedConsents(batch []domain.PixPayment) []string {
	seen := make(map[string]struct{})
	var ids []string
	for _, p := range batch {
		if !p.Succeeded() {
			continue
		}
		if _, ok := seen[p.ConsentID]; ok {
			continue
		}
		seen[p.ConsentID] = struct{}{}
		ids = append(ids, p.ConsentID)
	}
	return ids
}

func paymentIDsFor(batch []domain.PixPayment, consentID string) []string {
	var ids []string
	for _, p := range batch {
		if p.ConsentID == consentID && p.Succeeded() {
			ids = append(ids, p.ID)
		}
	}
	return ids
}

func paymentIDs(payments []domain.PixPayment) []string {
	ids := make([]string, len(payments))
	for i, p := range payments {
		ids[i] = p.ID
	}
	return ids
}

// unconsumed возвращает согласия из all, которых нет в consumed.
func unconsumed(all, consumed []string) []string {
	skip := make(map[string]bool, len(consumed))
	for _, id := range consumed {
		skip[id] = true
	}
	var out []string
	for _, id := range all {
		if !skip[id] {
			out = append(out, id)
		}
	}
	return out
}

func firstConsent(ids []string) string {
	if len(ids) == 0 {
		return ""
	}
	return ids[0]
}
