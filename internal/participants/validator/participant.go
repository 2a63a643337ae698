package validator

import (
	"errors"
	"fmt"
	"strings"

	"racereg/pkg/bib"
	"racereg/pkg/logger"
	"racereg/pkg/model"

	"github.com/go-playground/validator/v10"
)

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (v ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", v.Field, v.Message)
}

type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return ""
	}
	var messages []string
	for _, err := range v {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %d error(s): [%s]", len(v), strings.Join(messages, "; "))
}

// Details flattens the errors into the map carried by an AppError.
func (v ValidationErrors) Details() map[string]any {
	fields := make(map[string]any, len(v))
	for _, err := range v {
		fields[err.Field] = err.Message
	}
	return map[string]any{"fields": fields}
}

type ParticipantValidator struct {
	validate *validator.Validate
	ranges   bib.Ranges
	logger   *logger.Logger
}

func NewParticipantValidator(ranges bib.Ranges, log *logger.Logger) *ParticipantValidator {
	v := validator.New()
	pv := &ParticipantValidator{
		validate: v,
		ranges:   ranges,
		logger:   log,
	}

	if err := v.RegisterValidation("bib_category", pv.validateBibCategory); err != nil {
		log.Fatal("Failed to register 'bib_category' validator",
			"error", err,
		)
	}

	log.Info("Participant validator initialized successfully", "categories", ranges.Categories())

	return pv
}

func (pv *ParticipantValidator) validateBibCategory(fl validator.FieldLevel) bool {
	return pv.ranges.Has(bib.Category(fl.Field().String()))
}

func (pv *ParticipantValidator) Validate(participant *model.Participant) error {
	return pv.check(participant)
}

func (pv *ParticipantValidator) ValidatePaymentConfirmed(event *model.PaymentConfirmedEvent) error {
	return pv.check(event)
}

func (pv *ParticipantValidator) ValidatePickup(req *model.PickupVerification) error {
	return pv.check(req)
}

func (pv *ParticipantValidator) check(s any) error {
	if err := pv.validate.Struct(s); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return pv.translateValidationErrors(validationErrs)
		}
		return err
	}
	return nil
}

func (pv *ParticipantValidator) translateValidationErrors(errs validator.ValidationErrors) ValidationErrors {
	var validationErrors ValidationErrors

	for _, err := range errs {
		message := err.Error()

		switch err.Tag() {
		case "required":
			message = fmt.Sprintf("%s is required", err.Field())
		case "min":
			message = fmt.Sprintf("%s must be at least %s", err.Field(), err.Param())
		case "max":
			message = fmt.Sprintf("%s must be at most %s", err.Field(), err.Param())
		case "mongodb":
			message = fmt.Sprintf("%s must be a valid MongoDB ObjectID", err.Field())
		case "e164":
			message = fmt.Sprintf("%s must be in E.164 format (e.g., +972501234567)", err.Field())
		case "email":
			message = fmt.Sprintf("%s must be a valid email address", err.Field())
		case "oneof":
			message = fmt.Sprintf("%s must be one of: %s", err.Field(), err.Param())
		case "bib_category":
			message = fmt.Sprintf("%s must be one of the configured categories: %s", err.Field(), categoryList(pv.ranges))
		}

		validationErrors = append(validationErrors, ValidationError{
			Field:   err.Field(),
			Message: message,
		})
	}

	return validationErrors
}

func categoryList(ranges bib.Ranges) string {
	names := make([]string, 0, len(ranges))
	for _, c := range ranges.Categories() {
		names = append(names, string(c))
	}
	return strings.Join(names, ", ")
}
