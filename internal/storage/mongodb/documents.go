package mongodb

import (
	"encoding/json"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/vladislavdragonenkov/pix-initiation/internal/domain"
)

// consentDocument — индексируемые поля плюс полное согласие в body.
type consentDocument struct {
	ID             string    `bson:"_id"`
	IdempotencyKey *string   `bson:"idempotency_key,omitempty"`
	Status         string    `bson:"status"`
	ExpiresAt      time.Time `bson:"expires_at"`
	Version        int64     `bson:"version"`
	CreatedAt      time.Time `bson:"created_at"`
	UpdatedAt      time.Time `bson:"updated_at"`
	Body           bson.Raw  `bson:"body"`
}

type paymentDocument struct {
	ID             string    `bson:"_id"`
	IdempotencyKey *string   `bson:"idempotency_key,omitempty"`
	BatchIndex     int       `bson:"batch_index"`
	ConsentID      string    `bson:"consent_id"`
	EndToEndID     string    `bson:"end_to_end_id"`
	Status         string    `bson:"status"`
	Version        int64     `bson:"version"`
	CreatedAt      time.Time `bson:"created_at"`
	UpdatedAt      time.Time `bson:"updated_at"`
	Body           bson.Raw  `bson:"body"`
}

func newConsentDocument(c domain.Consent, now time.Time) (consentDocument, error) {
	body, err := encodeBody(c)
	if err != nil {
		return consentDocument{}, fmt.Errorf("encode consent %s: %w", c.ID, err)
	}
	return consentDocument{
		ID:             c.ID,
		IdempotencyKey: optionalKey(c.IdempotencyKey),
		Status:         string(c.Status),
		ExpiresAt:      c.ExpiresAt,
		Version:        c.Version,
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      now,
		Body:           body,
	}, nil
}

func (d consentDocument) toDomain() (domain.Consent, error) {
	var c domain.Consent
	if err := decodeBody(d.Body, &c); err != nil {
		return domain.Consent{}, fmt.Errorf("decode consent %s: %w", d.ID, err)
	}
	c.Version = d.Version
	return c, nil
}

func newPaymentDocument(p domain.PixPayment, now time.Time) (paymentDocument, error) {
	body, err := encodeBody(p)
	if err != nil {
		return paymentDocument{}, fmt.Errorf("encode payment %s: %w", p.ID, err)
	}
	return paymentDocument{
		ID:             p.ID,
		IdempotencyKey: optionalKey(p.IdempotencyKey),
		BatchIndex:     p.BatchIndex,
		ConsentID:      p.ConsentID,
		EndToEndID:     p.EndToEndID,
		Status:         string(p.Status),
		Version:        p.Version,
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      now,
		Body:           body,
	}, nil
}

func (d paymentDocument) toDomain() (domain.PixPayment, error) {
	var p domain.PixPayment
	if err := decodeBody(d.Body, &p); err != nil {
		return domain.PixPayment{}, fmt.Errorf("decode payment %s: %w", d.ID, err)
	}
	p.Version = d.Version
	return p, nil
}

// encodeBody переводит доменную структуру в BSON через её JSON-форму, чтобы
// суммы и вложенные значения хранились так же, как в PostgreSQL.
func encodeBody(v any) (bson.Raw, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var doc bson.D
	if err := bson.UnmarshalExtJSON(data, false, &doc); err != nil {
		return nil, err
	}
	return bson.Marshal(doc)
}

func decodeBody(raw bson.Raw, v any) error {
	data, err := bson.MarshalExtJSON(raw, false, false)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
