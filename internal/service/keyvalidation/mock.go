package keyvalidation

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/pix-initiation/internal/domain"
)

// MockValidator — конфигурируемая заглушка справочника ключей Pix (DICT).
// По умолчанию любой непустой ключ считается действующим.
type MockValidator struct {
	mu sync.Mutex

	// Keys — ответы для конкретных ключей; имеют приоритет над остальными настройками.
	Keys map[string]domain.KeyValidationResult
	// Invalid — ключи, по которым справочник отвечает отказом, с причиной.
	Invalid map[string]string
	// Err имитирует сбой транспорта.
	Err error
	// Delay задерживает ответ; отмена ctx прерывает ожидание.
	Delay time.Duration

	calls int
}

// NewMockValidator возвращает mock с успешным сценарием по умолчанию.
func NewMockValidator() *MockValidator {
	return &MockValidator{
		Keys:    make(map[string]domain.KeyValidationResult),
		Invalid: make(map[string]string),
	}
}

// ValidateKey возвращает заранее настроенный результат и считает вызовы.
func (m *MockValidator) ValidateKey(ctx context.Context, proxy string) (domain.KeyValidationResult, error) {
	m.mu.Lock()
	m.calls++
	delay, err := m.Delay, m.Err
	result, known := m.Keys[proxy]
	reason, invalid := m.Invalid[proxy]
	m.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return domain.KeyValidationResult{}, ctx.Err()
		case <-timer.C:
		}
	}
	if err != nil {
		return domain.KeyValidationResult{}, err
	}

	switch {
	case known:
		return result, nil
	case invalid:
		return domain.KeyValidationResult{Valid: false, Reason: reason}, nil
	case strings.TrimSpace(proxy) == "":
		return domain.KeyValidationResult{Valid: false, Reason: "empty key"}, nil
	}
	return domain.KeyValidationResult{
		Valid:         true,
		HolderName:    "Mock Holder",
		ISPB:          "12345678",
		Issuer:        "0001",
		AccountNumber: "1234567890",
		AccountType:   domain.AccountTypeCurrent,
	}, nil
}

// Calls возвращает количество вызовов.
func (m *MockValidator) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// SetErr меняет имитируемую ошибку транспорта.
func (m *MockValidator) SetErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Err = err
}

var _ domain.KeyValidator = (*MockValidator)(nil)
