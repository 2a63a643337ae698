package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	participantserrors "racereg/internal/participants/errors"
	"racereg/internal/participants/repository"
	"racereg/internal/participants/validator"
	"racereg/pkg/bib"
	"racereg/pkg/config"
	apperrors "racereg/pkg/errors"
	"racereg/pkg/model"
	"racereg/pkg/sanitizer"
	"racereg/pkg/sealer"

	"go.mongodb.org/mongo-driver/mongo"
)

type ParticipantService interface {
	Register(ctx context.Context, participant *model.Participant) error
	GetByID(ctx context.Context, id string) (*model.Participant, error)
	GetAll(ctx context.Context, limit int, offset int64) ([]*model.Participant, int64, error)
	Delete(ctx context.Context, id string) error
	// Confirm assigns a bib to the participant. Calling it again returns the same bib.
	Confirm(ctx context.Context, id string, paymentReference string) (*model.Participant, error)
	PickupToken(ctx context.Context, id string) (*model.PickupToken, error)
	VerifyPickup(ctx context.Context, token string) (*model.PickupVerificationResult, error)
	ValidateBib(category string, value string) (*model.BibValidation, error)
}

// EventPublisher announces bib assignments. Publishing is best effort: the
// assignment is already committed when it is called.
type EventPublisher interface {
	BibAssigned(ctx context.Context, event model.BibAssignedEvent) error
}

type participantService struct {
	repo      repository.ParticipantRepository
	validator *validator.ParticipantValidator
	publisher EventPublisher
	sealer    *sealer.Sealer
	cfg       *config.Config
	now       func() time.Time
}

func NewParticipantService(
	repo repository.ParticipantRepository,
	validator *validator.ParticipantValidator,
	publisher EventPublisher,
	sealer *sealer.Sealer,
	cfg *config.Config,
) ParticipantService {
	return &participantService{
		repo:      repo,
		validator: validator,
		publisher: publisher,
		sealer:    sealer,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *participantService) Register(ctx context.Context, participant *model.Participant) error {
	s.sanitize(participant)
	participant.ID = ""
	participant.Bib = ""
	participant.Status = model.StatusPending
	participant.ConfirmedAt = nil
	participant.PaymentReference = ""

	if err := s.validate(participant); err != nil {
		return err
	}

	if err := s.repo.Create(ctx, participant); err != nil {
		s.cfg.Log.Error("Failed to register participant", "error", err)
		return apperrors.Internal("Failed to register participant", err)
	}

	s.cfg.Log.Info("Participant registered",
		"id", participant.ID,
		"category", participant.Category,
	)
	return nil
}

func (s *participantService) GetByID(ctx context.Context, id string) (*model.Participant, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Participant ID cannot be empty")
	}

	participant, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, mapLookupError(err, id)
	}
	return participant, nil
}

func (s *participantService) GetAll(ctx context.Context, limit int, offset int64) ([]*model.Participant, int64, error) {
	limit = config.NormalizePaginationLimit(limit)
	offset = config.NormalizeOffset(offset)

	var count int64
	var participants []*model.Participant
	var errCount, errFind error
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		count, errCount = s.repo.Count(ctx)
		if errCount != nil {
			s.cfg.Log.Error("Failed to count participants", "error", errCount)
			errCount = apperrors.Internal("Failed to count participants", errCount)
		}
	}()

	go func() {
		defer wg.Done()
		participants, errFind = s.repo.FindAll(ctx, limit, offset)
		if errFind != nil {
			s.cfg.Log.Error("Failed to list participants", "error", errFind)
			errFind = apperrors.Internal("Failed to retrieve participants", errFind)
		}
	}()

	wg.Wait()
	if errCount != nil {
		return nil, 0, errCount
	}
	if errFind != nil {
		return nil, 0, errFind
	}
	return participants, count, nil
}

// Delete removes the registration, which frees its bib for later allocation.
func (s *participantService) Delete(ctx context.Context, id string) error {
	if id == "" {
		return apperrors.InvalidInput("Participant ID cannot be empty")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return mapLookupError(err, id)
	}

	s.cfg.Log.Info("Participant deleted", "id", id)
	return nil
}

type confirmation struct {
	participant *model.Participant
	previousBib string
	assigned    bool
}

// Confirm runs read-snapshot, allocate and conditional write as one unit and
// repeats the whole unit when the write loses a race on the unique index.
func (s *participantService) Confirm(ctx context.Context, id string, paymentReference string) (*model.Participant, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Participant ID cannot be empty")
	}

	maxAttempts := max(s.cfg.BibMaxAttempts, 1)
	var lastErr error
	var category bib.Category

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, err := s.confirmOnce(ctx, id, paymentReference, &category)
		if err == nil {
			s.afterConfirm(ctx, result, attempt)
			return result.participant, nil
		}

		if !errors.Is(err, participantserrors.ErrBibConflict) && !errors.Is(err, participantserrors.ErrStaleAssignment) {
			return nil, s.mapConfirmError(err, id, category)
		}

		lastErr = err
		s.cfg.Log.Warn("Bib assignment lost a race, retrying",
			"id", id,
			"attempt", attempt,
			"max_attempts", maxAttempts,
			"error", err,
		)

		if attempt < maxAttempts {
			if err := sleep(ctx, s.cfg.BibRetryBackoff*time.Duration(attempt)); err != nil {
				return nil, apperrors.Unavailable("Bib assignment")
			}
		}
	}

	s.cfg.Log.Error("Bib assignment gave up after repeated conflicts",
		"id", id,
		"category", category,
		"attempts", maxAttempts,
		"error", lastErr,
	)
	return nil, apperrors.Contention(string(category), maxAttempts, lastErr)
}

// confirmOnce records the participant's category in category as soon as it is read.
func (s *participantService) confirmOnce(ctx context.Context, id string, paymentReference string, category *bib.Category) (*confirmation, error) {
	var result *confirmation

	err := s.repo.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		participant, err := s.repo.FindByID(sessCtx, id)
		if err != nil {
			return err
		}
		*category = participant.Category

		if _, err := s.cfg.BibRanges.Lookup(participant.Category); err != nil {
			return err
		}

		if participant.Bib != "" && s.cfg.BibRanges.IsValid(participant.Bib, participant.Category) {
			result = &confirmation{participant: participant}
			return nil
		}

		raw, err := s.repo.FindBibsByCategory(sessCtx, participant.Category)
		if err != nil {
			return err
		}
		existing, malformed, err := s.cfg.BibRanges.Snapshot(participant.Category, raw)
		if err != nil {
			return err
		}
		if len(malformed) > 0 {
			s.cfg.Log.Debug("Ignoring malformed bibs in snapshot",
				"category", participant.Category,
				"count", len(malformed),
			)
		}

		identifier, err := s.cfg.BibRanges.Allocate(participant.Category, existing)
		if err != nil {
			return err
		}

		confirmedAt := s.now()
		previous := participant.Bib
		if err := s.repo.AssignBib(sessCtx, participant.ID, participant.Category, previous, identifier.String(), confirmedAt, paymentReference); err != nil {
			return err
		}

		participant.Bib = identifier.String()
		participant.Status = model.StatusConfirmed
		participant.ConfirmedAt = &confirmedAt
		if paymentReference != "" {
			participant.PaymentReference = paymentReference
		}
		result = &confirmation{participant: participant, previousBib: previous, assigned: true}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *participantService) afterConfirm(ctx context.Context, result *confirmation, attempt int) {
	p := result.participant
	if !result.assigned {
		s.cfg.Log.Info("Participant already holds a valid bib",
			"id", p.ID,
			"category", p.Category,
			"bib", p.Bib,
		)
		return
	}

	s.cfg.Log.Info("Bib assigned",
		"id", p.ID,
		"category", p.Category,
		"bib", p.Bib,
		"previous_bib", result.previousBib,
		"attempt", attempt,
	)

	if s.publisher == nil {
		return
	}
	event := model.BibAssignedEvent{
		ParticipantID: p.ID,
		Category:      p.Category,
		Bib:           p.Bib,
		PreviousBib:   result.previousBib,
		AssignedAt:    *p.ConfirmedAt,
	}
	if err := s.publisher.BibAssigned(ctx, event); err != nil {
		s.cfg.Log.Error("Failed to publish bib assigned event", "id", p.ID, "bib", p.Bib, "error", err)
	}
}

func (s *participantService) mapConfirmError(err error, id string, category bib.Category) error {
	var appErr *apperrors.AppError
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, bib.ErrRangeExhausted):
		s.cfg.Log.Error("Bib range exhausted", "id", id, "category", category, "error", err)
		return apperrors.RangeExhausted(string(category), err)
	case errors.Is(err, bib.ErrInvalidCategory):
		return apperrors.Validation("Participant category is not configured", map[string]any{"error": err.Error()})
	case errors.Is(err, participantserrors.ErrNotFound), errors.Is(err, participantserrors.ErrInvalidID):
		return mapLookupError(err, id)
	default:
		s.cfg.Log.Error("Failed to confirm participant", "id", id, "error", err)
		return apperrors.Internal("Failed to confirm participant", err)
	}
}

func (s *participantService) PickupToken(ctx context.Context, id string) (*model.PickupToken, error) {
	if s.sealer == nil {
		return nil, apperrors.Unavailable("Race-pack pickup")
	}

	participant, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if participant.Status != model.StatusConfirmed || !s.cfg.BibRanges.IsValid(participant.Bib, participant.Category) {
		return nil, apperrors.Conflict("Participant has no confirmed bib yet")
	}

	token, err := s.sealer.Seal(sealer.PickupClaim{
		ParticipantID: participant.ID,
		Category:      string(participant.Category),
		Bib:           participant.Bib,
	})
	if err != nil {
		return nil, apperrors.Internal("Failed to create pickup token", err)
	}

	return &model.PickupToken{ParticipantID: participant.ID, Bib: participant.Bib, Token: token}, nil
}

// VerifyPickup accepts a token only while the participant still holds the sealed bib.
func (s *participantService) VerifyPickup(ctx context.Context, token string) (*model.PickupVerificationResult, error) {
	if s.sealer == nil {
		return nil, apperrors.Unavailable("Race-pack pickup")
	}
	if err := s.validator.ValidatePickup(&model.PickupVerification{Token: token}); err != nil {
		return nil, validationError("Pickup verification failed", err)
	}

	claim, err := s.sealer.Open(token)
	if err != nil {
		s.cfg.Log.Warn("Rejected pickup token", "error", err)
		return &model.PickupVerificationResult{Valid: false, Reason: "token is not valid"}, nil
	}

	participant, err := s.repo.FindByID(ctx, claim.ParticipantID)
	if err != nil {
		if errors.Is(err, participantserrors.ErrNotFound) || errors.Is(err, participantserrors.ErrInvalidID) {
			return &model.PickupVerificationResult{Valid: false, ParticipantID: claim.ParticipantID, Reason: "participant no longer registered"}, nil
		}
		return nil, apperrors.Internal("Failed to verify pickup token", err)
	}

	if participant.Bib != claim.Bib || string(participant.Category) != claim.Category {
		return &model.PickupVerificationResult{
			Valid:         false,
			ParticipantID: participant.ID,
			Reason:        "bib has been reassigned since the token was issued",
		}, nil
	}

	return &model.PickupVerificationResult{
		Valid:         true,
		ParticipantID: participant.ID,
		Category:      participant.Category,
		Bib:           participant.Bib,
		FirstName:     participant.FirstName,
		LastName:      participant.LastName,
	}, nil
}

func (s *participantService) ValidateBib(category string, value string) (*model.BibValidation, error) {
	c := bib.ParseCategory(category)
	r, err := s.cfg.BibRanges.Lookup(c)
	if err != nil {
		return nil, apperrors.InvalidInput(fmt.Sprintf("Unknown category %q", category))
	}

	return &model.BibValidation{
		Category: c,
		Value:    value,
		Valid:    s.cfg.BibRanges.IsValid(value, c),
		Range:    r.String(),
	}, nil
}

func (s *participantService) sanitize(p *model.Participant) {
	p.FirstName = sanitizer.NormalizeName(p.FirstName)
	p.LastName = sanitizer.NormalizeName(p.LastName)
	p.Phone = sanitizer.NormalizePhone(p.Phone)
	p.Email = sanitizer.NormalizeEmail(p.Email)
	p.Category = bib.ParseCategory(string(p.Category))
}

func (s *participantService) validate(participant *model.Participant) error {
	if err := s.validator.Validate(participant); err != nil {
		s.cfg.Log.Warn("Participant validation failed", "error", err)
		return validationError("Participant validation failed", err)
	}
	return nil
}

func validationError(message string, err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return apperrors.Validation(message, verrs.Details())
	}
	return apperrors.Validation(message, map[string]any{"error": err.Error()})
}

func mapLookupError(err error, id string) error {
	switch {
	case errors.Is(err, participantserrors.ErrNotFound):
		return apperrors.NotFoundWithID("Participant", id)
	case errors.Is(err, participantserrors.ErrInvalidID):
		return apperrors.InvalidInput("Invalid participant ID format")
	default:
		return apperrors.Internal("Failed to retrieve participant", err)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
