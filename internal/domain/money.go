package domain

import (
	"encoding/json"
	"regexp"

	"github.com/shopspring/decimal"
)

var amountPattern = regexp.MustCompile(`^\d{1,16}\.\d{2}$`)

// Amount — денежная сумма с двумя знаками после запятой.
type Amount struct {
	value decimal.Decimal
}

// ParseAmount разбирает сумму в формате "1234.56".
func ParseAmount(s string) (Amount, error) {
	if !amountPattern.MatchString(s) {
		return Amount{}, NewValidationError("amount", "must match ^\\d{1,16}\\.\\d{2}$")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, NewValidationError("amount", err.Error())
	}
	if !d.IsPositive() {
		return Amount{}, NewValidationError("amount", "must be greater than zero")
	}
	return Amount{value: d}, nil
}

// MustParseAmount используется для констант и тестов.
func MustParseAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

// AmountFromDecimal округляет значение до центов.
func AmountFromDecimal(d decimal.Decimal) Amount {
	return Amount{value: d.Round(2)}
}

func (a Amount) String() string { return a.value.StringFixed(2) }

// Decimal возвращает значение для арифметики.
func (a Amount) Decimal() decimal.Decimal { return a.value }

func (a Amount) IsZero() bool { return a.value.IsZero() }

func (a Amount) Equal(other Amount) bool { return a.value.Equal(other.value) }

// Add складывает суммы (используется для итогов по пакету).
func (a Amount) Add(other Amount) Amount { return Amount{value: a.value.Add(other.value)} }

func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseAmount(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
