package settlement

import (
	"context"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/pix-initiation/internal/domain"
)

// MockGateway — конфигурируемая заглушка расчётной системы (SPI).
// Повторная отправка с тем же EndToEndID возвращает первый ответ без повторного расчёта.
type MockGateway struct {
	mu sync.Mutex

	// Outcome — результат по умолчанию.
	Outcome      domain.SettlementOutcome
	ErrorCode    string
	ErrorMessage string
	// ByConsent переопределяет ответ для платежей конкретного согласия.
	ByConsent map[string]domain.SettlementResult
	// Err имитирует сбой транспорта; ответ не запоминается.
	Err error
	// ErrByConsent имитирует сбой транспорта только для платежей согласия.
	ErrByConsent map[string]error
	// Delay задерживает ответ; отмена ctx прерывает ожидание.
	Delay time.Duration
	// OnSubmit вызывается при каждой отправке до ответа.
	OnSubmit func(domain.PixPayment)

	settled   map[string]domain.SettlementResult
	submitted []string
	calls     int
}

// NewMockGateway возвращает mock, принимающий все платежи.
func NewMockGateway() *MockGateway {
	return &MockGateway{
		Outcome:      domain.SettlementAccepted,
		ByConsent:    make(map[string]domain.SettlementResult),
		ErrByConsent: make(map[string]error),
		settled:      make(map[string]domain.SettlementResult),
	}
}

// Submit возвращает настроенный результат и считает вызовы.
func (m *MockGateway) Submit(ctx context.Context, payment domain.PixPayment) (domain.SettlementResult, error) {
	m.mu.Lock()
	m.calls++
	m.submitted = append(m.submitted, payment.EndToEndID)
	delay, err, hook := m.Delay, m.Err, m.OnSubmit
	if consentErr, ok := m.ErrByConsent[payment.ConsentID]; ok && err == nil {
		err = consentErr
	}
	m.mu.Unlock()

	if hook != nil {
		hook(payment)
	}

	if delay > 0 {
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return domain.SettlementResult{}, ctx.Err()
		case <-timer.C:
		}
	}
	if err != nil {
		return domain.SettlementResult{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if previous, ok := m.settled[payment.EndToEndID]; ok {
		return previous, nil
	}
	result, ok := m.ByConsent[payment.ConsentID]
	if !ok {
		result = domain.SettlementResult{Outcome: m.Outcome}
		if m.Outcome == domain.SettlementRejected {
			result.ErrorCode = m.ErrorCode
			result.ErrorMessage = m.ErrorMessage
		}
	}
	result.EndToEndID = payment.EndToEndID
	m.settled[payment.EndToEndID] = result
	return result, nil
}

// Calls возвращает количество вызовов Submit.
func (m *MockGateway) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Settled возвращает количество уникальных EndToEndID, дошедших до расчёта.
func (m *MockGateway) Settled() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.settled)
}

// Submitted возвращает EndToEndID всех отправок по порядку, включая неудачные.
func (m *MockGateway) Submitted() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.submitted...)
}

// SetConsentErr задаёт сбой транспорта для платежей согласия; nil снимает его.
func (m *MockGateway) SetConsentErr(consentID string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.ErrByConsent, consentID)
		return
	}
	m.ErrByConsent[consentID] = err
}

// SetErr меняет имитируемую ошибку транспорта.
func (m *MockGateway) SetErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Err = err
}

// SetOutcome меняет результат по умолчанию.
func (m *MockGateway) SetOutcome(outcome domain.SettlementOutcome, code, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Outcome = outcome
	m.ErrorCode = code
	m.ErrorMessage = message
}

var _ domain.SettlementGateway = (*MockGateway)(nil)
