// Package gateway реализует запрос согласия из платёжного контура: напрямую в
// процессе (монолит) или по gRPC к сервису согласий (раздельная топология).
package gateway

import (
	"context"

	"github.com/vladislavdragonenkov/pix-initiation/internal/domain"
)

// ConsentValidator — часть жизненного цикла согласий, нужная платёжному контуру.
type ConsentValidator interface {
	ValidateForPayment(ctx context.Context, id string) (domain.Consent, error)
}

// Local обращается к жизненному циклу согласий в том же процессе.
type Local struct {
	consents ConsentValidator
}

// NewLocal создаёт локальный шлюз.
func NewLocal(consents ConsentValidator) *Local {
	return &Local{consents: consents}
}

// Validate возвращает согласие, пригодное для платежа.
func (l *Local) Validate(ctx context.Context, consentID string) (domain.Consent, error) {
	return l.consents.ValidateForPayment(ctx, consentID)
}

var _ domain.ConsentGateway = (*Local)(nil)
