package domain

import "time"

const (
	ResourceTypeConsent = "consent"
	ResourceTypePayment = "payment"
)

// TimelineEvent описывает событие в жизненном цикле согласия или платежа.
type TimelineEvent struct {
	ResourceType string
	ResourceID   string
	Type         string
	Reason       string
	Occurred     time.Time
}

// NewStatusTimelineEvent фиксирует смену статуса ресурса.
func NewStatusTimelineEvent(resourceType, resourceID, status, reason string, at time.Time) TimelineEvent {
	return TimelineEvent{
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Type:         status,
		Reason:       reason,
		Occurred:     at,
	}
}
