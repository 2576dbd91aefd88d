package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pix-initiation/internal/domain"
)

const (
	defaultLeaseTTL     = 30 * time.Second
	defaultRetention    = 24 * time.Hour
	defaultWaitTimeout  = 5 * time.Second
	defaultPollInterval = 50 * time.Millisecond
)

var idempotencyRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "pix_idempotency_requests_total",
	Help: "Total number of guarded create requests grouped by scope and result.",
}, []string{"scope", "result"})

// GuardConfig задаёт тайминги резервации ключей.
type GuardConfig struct {
	// LeaseTTL — сколько живёт processing-резервация без продления.
	LeaseTTL time.Duration
	// Retention — срок хранения завершённой записи.
	Retention time.Duration
	// WaitTimeout — сколько повторный запрос ждёт завершения первого.
	WaitTimeout time.Duration
	// PollInterval — период опроса записи во время ожидания.
	PollInterval time.Duration
}

func (c GuardConfig) withDefaults() GuardConfig {
	if c.LeaseTTL <= 0 {
		c.LeaseTTL = defaultLeaseTTL
	}
	if c.Retention <= 0 {
		c.Retention = defaultRetention
	}
	if c.WaitTimeout <= 0 {
		c.WaitTimeout = defaultWaitTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	return c
}

// Reservation описывает аренду ключа, под которой выполняется create.
// FirstReservedAt не меняется между повторами одного ключа, на нём строятся
// детерминированные идентификаторы ресурсов.
type Reservation struct {
	Owner           string
	FirstReservedAt time.Time
}

// CreateFunc создаёт ресурсы и возвращает их идентификаторы.
type CreateFunc func(ctx context.Context, res Reservation) ([]string, error)

// LookupFunc ищет ресурсы, уже записанные по ключу.
type LookupFunc func(ctx context.Context) ([]string, bool, error)

// Request описывает защищаемую операцию создания.
type Request struct {
	Scope       domain.IdempotencyScope
	Key         string
	RequestHash string
	// Lookup вызывается после успешной резервации: ресурс мог быть записан
	// предыдущим обработчиком, который упал до Complete.
	Lookup LookupFunc
}

// Result — идентификаторы ресурсов и признак повтора.
type Result struct {
	ResourceIDs []string
	Replayed    bool
}

// Guard гарантирует, что один ключ создаёт ресурсы не более одного раза.
type Guard struct {
	repo   domain.IdempotencyRepository
	cfg    GuardConfig
	logger *log.Entry
}

// NewGuard создаёт Guard поверх репозитория ключей.
func NewGuard(repo domain.IdempotencyRepository, cfg GuardConfig, logger *log.Entry) *Guard {
	if logger == nil {
		logger = log.WithField("component", "idempotency-guard")
	}
	return &Guard{repo: repo, cfg: cfg.withDefaults(), logger: logger}
}

// Existing возвращает ресурсы завершённой записи.
func (g *Guard) Existing(ctx context.Context, scope domain.IdempotencyScope, key string) ([]string, bool, error) {
	rec, err := g.repo.Get(ctx, scope, key)
	switch {
	case errors.Is(err, domain.ErrIdempotencyKeyNotFound):
		return nil, false, nil
	case err != nil:
		return nil, false, fmt.Errorf("get idempotency record: %w", err)
	case rec.Status != domain.IdempotencyStatusDone:
		return nil, false, nil
	}
	return rec.ResourceIDs, true, nil
}

// RecordAndCreate резервирует ключ и выполняет create ровно один раз.
// Повтор с завершённым ключом возвращает сохранённые идентификаторы, повтор во время
// обработки ждёт её завершения не дольше WaitTimeout.
func (g *Guard) RecordAndCreate(ctx context.Context, req Request, create CreateFunc) (Result, error) {
	if strings.TrimSpace(req.Key) == "" {
		return Result{}, domain.ErrIdempotencyKeyRequired
	}
	if req.RequestHash == "" {
		return Result{}, domain.ErrIdempotencyRequestHashRequired
	}

	logger := g.logger.WithFields(log.Fields{
		"scope":           req.Scope,
		"idempotency_key": req.Key,
	})
	deadline := time.Now().Add(g.cfg.WaitTimeout)
	warned := false

	for {
		now := time.Now().UTC()
		lease := domain.IdempotencyLease{Owner: uuid.NewString(), Until: now.Add(g.cfg.LeaseTTL)}
		rec, err := g.repo.Reserve(ctx, req.Scope, req.Key, req.RequestHash, lease)
		if err == nil {
			return g.execute(ctx, req, Reservation{Owner: lease.Owner, FirstReservedAt: rec.CreatedAt}, create, logger)
		}
		if !errors.Is(err, domain.ErrIdempotencyKeyAlreadyExists) {
			g.observe(req.Scope, "error")
			return Result{}, fmt.Errorf("reserve idempotency key: %w", err)
		}
		if rec.RequestHash != req.RequestHash && !warned {
			logger.Warn("idempotency key reused with a different request, returning original result")
			warned = true
		}

		result, taken, err := g.await(ctx, req, rec, deadline)
		switch {
		case err != nil:
			if errors.Is(err, domain.ErrIdempotencyInFlight) {
				g.observe(req.Scope, "in_flight")
			}
			return Result{}, err
		case taken != nil:
			logger.WithField("lease_owner", taken.LeaseOwner).Warn("idempotency lease expired, taking over")
			return g.execute(ctx, req, Reservation{Owner: taken.LeaseOwner, FirstReservedAt: taken.CreatedAt}, create, logger)
		case result != nil:
			g.observe(req.Scope, "replayed")
			return *result, nil
		}
		// Запись удалена очисткой: резервируем заново.
	}
}

func (g *Guard) execute(ctx context.Context, req Request, res Reservation, create CreateFunc, logger *log.Entry) (Result, error) {
	if req.Lookup != nil {
		ids, found, err := req.Lookup(ctx)
		if err != nil {
			g.release(ctx, req, res, logger)
			g.observe(req.Scope, "error")
			return Result{}, fmt.Errorf("lookup resources by idempotency key: %w", err)
		}
		if found {
			g.complete(ctx, req, res, ids, logger)
			g.observe(req.Scope, "recovered")
			return Result{ResourceIDs: ids, Replayed: true}, nil
		}
	}

	ids, err := create(ctx, res)
	if err != nil {
		g.release(ctx, req, res, logger)
		g.observe(req.Scope, "error")
		return Result{}, err
	}

	g.complete(ctx, req, res, ids, logger)
	g.observe(req.Scope, "created")
	return Result{ResourceIDs: ids}, nil
}

// await ждёт завершения чужой обработки. Возвращает результат завершённой записи
// либо перехваченную запись, если аренда предыдущего обработчика истекла.
func (g *Guard) await(ctx context.Context, req Request, rec domain.IdempotencyRecord, deadline time.Time) (*Result, *domain.IdempotencyRecord, error) {
	for {
		if rec.Status == domain.IdempotencyStatusDone {
			return &Result{ResourceIDs: rec.ResourceIDs, Replayed: true}, nil, nil
		}

		now := time.Now().UTC()
		if rec.LeaseExpired(now) {
			lease := domain.IdempotencyLease{Owner: uuid.NewString(), Until: now.Add(g.cfg.LeaseTTL)}
			taken, err := g.repo.Takeover(ctx, req.Scope, req.Key, now, lease)
			switch {
			case err == nil:
				return nil, &taken, nil
			case errors.Is(err, domain.ErrIdempotencyKeyNotFound):
				return nil, nil, nil
			case !errors.Is(err, domain.ErrIdempotencyLeaseLost):
				return nil, nil, fmt.Errorf("takeover idempotency key: %w", err)
			}
		}

		if !now.Before(deadline) {
			return nil, nil, fmt.Errorf("%w: scope=%s key=%s", domain.ErrIdempotencyInFlight, req.Scope, req.Key)
		}

		timer := time.NewTimer(g.cfg.PollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, nil, ctx.Err()
		case <-timer.C:
		}

		next, err := g.repo.Get(ctx, req.Scope, req.Key)
		if errors.Is(err, domain.ErrIdempotencyKeyNotFound) {
			return nil, nil, nil
		}
		if err != nil {
			return nil, nil, fmt.Errorf("get idempotency record: %w", err)
		}
		rec = next
	}
}

func (g *Guard) complete(ctx context.Context, req Request, res Reservation, ids []string, logger *log.Entry) {
	retainUntil := time.Now().UTC().Add(g.cfg.Retention)
	if err := g.repo.Complete(context.WithoutCancel(ctx), req.Scope, req.Key, res.Owner, ids, retainUntil); err != nil {
		// Ресурсы уже записаны; повтор найдёт их через Lookup после истечения аренды.
		logger.WithError(err).Error("failed to complete idempotency record")
	}
}

// release снимает аренду, но сохраняет запись: повтор перехватит её вместе с
// исходным временем резервации.
func (g *Guard) release(ctx context.Context, req Request, res Reservation, logger *log.Entry) {
	if err := g.repo.Release(context.WithoutCancel(ctx), req.Scope, req.Key, res.Owner, time.Now().UTC()); err != nil {
		logger.WithError(err).Warn("failed to release idempotency key")
	}
}

func (g *Guard) observe(scope domain.IdempotencyScope, result string) {
	idempotencyRequestsTotal.WithLabelValues(string(scope), result).Inc()
}

// HashRequest вычисляет sha256 канонического JSON-представления запроса.
func HashRequest(v any) (string, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal request for hashing: %w", err)
	}
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:]), nil
}
