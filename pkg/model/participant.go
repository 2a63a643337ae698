package model

import (
	"time"

	"racereg/pkg/bib"
)

const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
)

// Participant is one registration. Bib is empty until the registration is confirmed,
// and the (category, bib) pair is unique across the collection.
type Participant struct {
	ID               string       `json:"id,omitempty" bson:"_id,omitempty" validate:"omitempty,mongodb"`
	FirstName        string       `json:"first_name" bson:"first_name" validate:"required,min=1,max=100"`
	LastName         string       `json:"last_name" bson:"last_name" validate:"required,min=1,max=100"`
	Phone            string       `json:"phone" bson:"phone" validate:"required,e164"`
	Email            string       `json:"email,omitempty" bson:"email,omitempty" validate:"omitempty,email"`
	Category         bib.Category `json:"category" bson:"category" validate:"required,bib_category"`
	Bib              string       `json:"bib,omitempty" bson:"bib,omitempty"`
	Status           string       `json:"status" bson:"status" validate:"omitempty,oneof=pending confirmed"`
	PaymentReference string       `json:"payment_reference,omitempty" bson:"payment_reference,omitempty" validate:"omitempty,max=200"`
	CreatedAt        time.Time    `json:"created_at" bson:"created_at"`
	ConfirmedAt      *time.Time   `json:"confirmed_at,omitempty" bson:"confirmed_at,omitempty"`
}

// BibAssignment is the projection the repair job and allocator snapshots work on.
type BibAssignment struct {
	ParticipantID string       `json:"participant_id" bson:"_id"`
	Category      bib.Category `json:"category" bson:"category"`
	Bib           string       `json:"bib" bson:"bib"`
	CreatedAt     time.Time    `json:"created_at" bson:"created_at"`
}

type PickupToken struct {
	ParticipantID string `json:"participant_id"`
	Bib           string `json:"bib"`
	Token         string `json:"token"`
}

type PickupVerification struct {
	Token string `json:"token" validate:"required,max=512"`
}

type PickupVerificationResult struct {
	Valid         bool         `json:"valid"`
	ParticipantID string       `json:"participant_id,omitempty"`
	Category      bib.Category `json:"category,omitempty"`
	Bib           string       `json:"bib,omitempty"`
	FirstName     string       `json:"first_name,omitempty"`
	LastName      string       `json:"last_name,omitempty"`
	Reason        string       `json:"reason,omitempty"`
}

type BibValidation struct {
	Category bib.Category `json:"category"`
	Value    string       `json:"value"`
	Valid    bool         `json:"valid"`
	Range    string       `json:"range,omitempty"`
}
