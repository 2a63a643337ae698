package model

import (
	"time"

	"racereg/pkg/bib"
)

const (
	EventPaymentConfirmed = "payment.confirmed"
	EventBibAssigned      = "bib.assigned"
	EventBibRepaired      = "bib.repaired"

	EventSchemaVersion = "1"
)

// PaymentConfirmedEvent arrives from the payment side once a registration is paid.
type PaymentConfirmedEvent struct {
	ParticipantID    string `json:"participant_id" validate:"required,mongodb"`
	PaymentReference string `json:"payment_reference,omitempty" validate:"omitempty,max=200"`
}

type BibAssignedEvent struct {
	ParticipantID string       `json:"participant_id"`
	Category      bib.Category `json:"category"`
	Bib           string       `json:"bib"`
	PreviousBib   string       `json:"previous_bib,omitempty"`
	AssignedAt    time.Time    `json:"assigned_at"`
}

type BibRepairedEvent struct {
	ParticipantID string       `json:"participant_id"`
	Category      bib.Category `json:"category"`
	OldBib        string       `json:"old_bib"`
	NewBib        string       `json:"new_bib"`
	RepairedAt    time.Time    `json:"repaired_at"`
}
