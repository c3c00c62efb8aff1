// Package events publishes clinical notifications for downstream consumers
// such as reminder services. It is a feed, not an edit history.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	TypePatientCreated      Type = "patient.created"
	TypePatientDeleted      Type = "patient.deleted"
	TypeConsultationCreated Type = "consultation.created"
	TypeFollowUpRecorded    Type = "followup.recorded"
)

// Event carries identifiers and remedy names only; no free-text clinical
// notes leave the service.
type Event struct {
	ID             string     `json:"id"`
	Type           Type       `json:"type"`
	OccurredAt     time.Time  `json:"occurredAt"`
	DoctorID       string     `json:"doctorId"`
	PatientID      string     `json:"patientId"`
	ConsultationID string     `json:"consultationId,omitempty"`
	Remedy         string     `json:"remedy,omitempty"`
	PreviousRemedy string     `json:"previousRemedy,omitempty"`
	Decision       string     `json:"decision,omitempty"`
	FollowUpDate   *time.Time `json:"followUpDate,omitempty"`
}

func New(t Type, doctorID, patientID string, at time.Time) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       t,
		OccurredAt: at.UTC(),
		DoctorID:   doctorID,
		PatientID:  patientID,
	}
}

type Publisher interface {
	Publish(ctx context.Context, evs ...Event) error
	Close() error
}

// NopPublisher discards every event. Used when the feed is disabled.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, ...Event) error { return nil }

func (NopPublisher) Close() error { return nil }
