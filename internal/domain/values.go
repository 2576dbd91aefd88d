package domain

import (
	"crypto/rand"
	"crypto/sha256"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

var (
	documentPattern      = regexp.MustCompile(`^\d{11}$|^[0-9A-Z]{12}\d{2}$`)
	cpfPattern           = regexp.MustCompile(`^\d{11}$`)
	cnpjPattern          = regexp.MustCompile(`^[0-9A-Z]{12}\d{2}$`)
	relPattern           = regexp.MustCompile(`^[A-Z]{3,4}$`)
	ispbPattern          = regexp.MustCompile(`^[0-9A-Z]{8}$`)
	issuerPattern        = regexp.MustCompile(`^\d{1,4}$`)
	accountNumberPattern = regexp.MustCompile(`^\d{1,20}$`)
	currencyPattern      = regexp.MustCompile(`^[A-Z]{3}$`)
	endToEndIDPattern    = regexp.MustCompile(`^E[0-9A-Z]{8}\d{4}(0[1-9]|1[0-2])(0[1-9]|[12]\d|3[01])(2[0-3]|[01]\d)[0-5]\d[a-zA-Z0-9]{11}$`)
	transactionIDPattern = regexp.MustCompile(`^[a-zA-Z0-9]{1,35}$`)
)

const (
	maxProxyLength       = 77
	maxQRCodeLength      = 512
	maxRemittanceLength  = 140
	maxCreditorNameLen   = 140
	endToEndSuffixLength = 11
	scheduleDateLayout   = "2006-01-02"
)

// Document — документ пользователя (CPF или CNPJ) с типом.
type Document struct {
	Identification string
	Rel            string
}

// Validate проверяет формат документа.
func (d Document) Validate(field string) error {
	if !documentPattern.MatchString(d.Identification) {
		return NewValidationError(field+".identification", "must be a CPF or CNPJ")
	}
	if !relPattern.MatchString(d.Rel) {
		return NewValidationError(field+".rel", "must be 3-4 upper-case letters")
	}
	return nil
}

// PersonType — тип получателя платежа.
type PersonType string

const (
	PersonTypeNatural PersonType = "PESSOA_NATURAL"
	PersonTypeLegal   PersonType = "PESSOA_JURIDICA"
)

// Creditor — получатель платежа.
type Creditor struct {
	PersonType PersonType
	CPFCNPJ    string
	Name       string
}

// Validate проверяет согласованность типа лица и документа.
func (c Creditor) Validate() error {
	switch c.PersonType {
	case PersonTypeNatural:
		if !cpfPattern.MatchString(c.CPFCNPJ) {
			return NewValidationError("creditor.cpfCnpj", "must be a CPF for PESSOA_NATURAL")
		}
	case PersonTypeLegal:
		if !cnpjPattern.MatchString(c.CPFCNPJ) {
			return NewValidationError("creditor.cpfCnpj", "must be a CNPJ for PESSOA_JURIDICA")
		}
	default:
		return NewValidationError("creditor.personType", "unsupported value")
	}
	if strings.TrimSpace(c.Name) == "" || utf8.RuneCountInString(c.Name) > maxCreditorNameLen {
		return NewValidationError("creditor.name", "must be 1-140 characters")
	}
	return nil
}

// AccountType — тип счёта.
type AccountType string

const (
	AccountTypeCurrent AccountType = "CACC"
	AccountTypeSavings AccountType = "SVGS"
	AccountTypePayment AccountType = "TRAN"
)

// Valid проверяет, что тип счёта поддерживается.
func (t AccountType) Valid() bool {
	switch t {
	case AccountTypeCurrent, AccountTypeSavings, AccountTypePayment:
		return true
	default:
		return false
	}
}

// Account — реквизиты счёта.
type Account struct {
	ISPB        string
	Issuer      string
	Number      string
	AccountType AccountType
}

// Validate проверяет реквизиты счёта. Issuer не нужен для платёжных счетов (TRAN).
func (a Account) Validate(field string) error {
	if !ispbPattern.MatchString(a.ISPB) {
		return NewValidationError(field+".ispb", "must match ^[0-9A-Z]{8}$")
	}
	if a.AccountType != AccountTypePayment && !issuerPattern.MatchString(a.Issuer) {
		return NewValidationError(field+".issuer", "must match ^\\d{1,4}$")
	}
	if !accountNumberPattern.MatchString(a.Number) {
		return NewValidationError(field+".number", "must match ^\\d{1,20}$")
	}
	if !a.AccountType.Valid() {
		return NewValidationError(field+".accountType", "unsupported value")
	}
	return nil
}

// LocalInstrument — способ инициации Pix.
type LocalInstrument string

const (
	LocalInstrumentManual      LocalInstrument = "MANU"
	LocalInstrumentDICT        LocalInstrument = "DICT"
	LocalInstrumentDynamicQR   LocalInstrument = "QRDN"
	LocalInstrumentStaticQR    LocalInstrument = "QRES"
	LocalInstrumentInitiator   LocalInstrument = "INIC"
	LocalInstrumentAutoStatic  LocalInstrument = "APES"
	LocalInstrumentAutoDynamic LocalInstrument = "APDN"
)

// Valid проверяет, что способ инициации поддерживается.
func (l LocalInstrument) Valid() bool {
	switch l {
	case LocalInstrumentManual, LocalInstrumentDICT, LocalInstrumentDynamicQR, LocalInstrumentStaticQR,
		LocalInstrumentInitiator, LocalInstrumentAutoStatic, LocalInstrumentAutoDynamic:
		return true
	default:
		return false
	}
}

// RequiresQRCode сообщает, что для способа нужен QR-код.
func (l LocalInstrument) RequiresQRCode() bool {
	return l == LocalInstrumentDynamicQR || l == LocalInstrumentStaticQR
}

// ValidateInitiation проверяет связку способа инициации, ключа и QR-кода.
func ValidateInitiation(instrument LocalInstrument, proxy, qrCode string) error {
	if !instrument.Valid() {
		return NewValidationError("localInstrument", "unsupported value")
	}
	if instrument == LocalInstrumentManual {
		if proxy != "" {
			return NewValidationError("proxy", "must be empty for MANU")
		}
		if qrCode != "" {
			return NewValidationError("qrCode", "must be empty for MANU")
		}
		return nil
	}
	if proxy == "" {
		return NewValidationError("proxy", "is required for "+string(instrument))
	}
	if utf8.RuneCountInString(proxy) > maxProxyLength {
		return NewValidationError("proxy", "must be at most 77 characters")
	}
	if instrument.RequiresQRCode() && qrCode == "" {
		return NewValidationError("qrCode", "is required for "+string(instrument))
	}
	if utf8.RuneCountInString(qrCode) > maxQRCodeLength {
		return NewValidationError("qrCode", "must be at most 512 characters")
	}
	return nil
}

// ValidateCurrency проверяет код валюты ISO-4217.
func ValidateCurrency(currency string) error {
	if !currencyPattern.MatchString(currency) {
		return NewValidationError("currency", "must match ^[A-Z]{3}$")
	}
	return nil
}

// ValidateEndToEndID проверяет формат идентификатора Pix-транзакции.
func ValidateEndToEndID(id string) error {
	if !endToEndIDPattern.MatchString(id) {
		return NewValidationError("endToEndId", "invalid format")
	}
	return nil
}

// ValidateCNPJ проверяет CNPJ инициатора.
func ValidateCNPJ(field, cnpj string) error {
	if !cnpjPattern.MatchString(cnpj) {
		return NewValidationError(field, "must be a CNPJ")
	}
	return nil
}

// ValidateRemittance проверяет необязательные текстовые поля платежа.
func ValidateRemittance(remittance, transactionID string) error {
	if utf8.RuneCountInString(remittance) > maxRemittanceLength {
		return NewValidationError("remittanceInformation", "must be at most 140 characters")
	}
	if transactionID != "" && !transactionIDPattern.MatchString(transactionID) {
		return NewValidationError("transactionIdentification", "must match ^[a-zA-Z0-9]{1,35}$")
	}
	return nil
}

// ParseScheduleDate разбирает дату YYYY-MM-DD в UTC.
func ParseScheduleDate(value string) (time.Time, error) {
	t, err := time.ParseInLocation(scheduleDateLayout, value, time.UTC)
	if err != nil {
		return time.Time{}, NewValidationError("date", "must be YYYY-MM-DD")
	}
	return t, nil
}

const endToEndAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// NewEndToEndID формирует идентификатор вида E + ISPB + yyyyMMddHHmm + 11 символов.
func NewEndToEndID(ispb string, at time.Time) string {
	buf := make([]byte, endToEndSuffixLength)
	_, _ = rand.Read(buf)
	return formatEndToEndID(ispb, at, buf)
}

// DeriveEndToEndID строит EndToEndID из ключа идемпотентности и позиции платежа в
// пакете. При одинаковых ispb, at, key и index результат совпадает, поэтому SPI
// распознаёт повторную отправку того же платежа.
func DeriveEndToEndID(ispb string, at time.Time, key string, index int) string {
	sum := sha256.Sum256([]byte(key + "|" + strconv.Itoa(index)))
	return formatEndToEndID(ispb, at, sum[:endToEndSuffixLength])
}

func formatEndToEndID(ispb string, at time.Time, seed []byte) string {
	suffix := make([]byte, endToEndSuffixLength)
	for i := range suffix {
		suffix[i] = endToEndAlphabet[int(seed[i])%len(endToEndAlphabet)]
	}
	return "E" + ispb + at.UTC().Format("200601021504") + string(suffix)
}

// AuthorisationFlow — сценарий авторизации согласия.
type AuthorisationFlow string

const (
	AuthorisationFlowHybrid AuthorisationFlow = "HYBRID_FLOW"
	AuthorisationFlowCIBA   AuthorisationFlow = "CIBA_FLOW"
	AuthorisationFlowFIDO   AuthorisationFlow = "FIDO_FLOW"
)

// Valid проверяет сценарий; пустое значение допустимо.
func (f AuthorisationFlow) Valid() bool {
	switch f {
	case "", AuthorisationFlowHybrid, AuthorisationFlowCIBA, AuthorisationFlowFIDO:
		return true
	default:
		return false
	}
}
