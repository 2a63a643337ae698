package events

import (
	"context"
	"errors"
	"net/http"

	"racereg/internal/participants/service"
	"racereg/internal/participants/validator"
	apperrors "racereg/pkg/errors"
	"racereg/pkg/kafka"
	"racereg/pkg/logger"
	"racereg/pkg/middleware"
	"racereg/pkg/model"
)

// PaymentConfirmedHandler confirms the participant named in a payment.confirmed
// event. Contention and outages are retried by the consumer; anything else goes
// to the DLQ.
func PaymentConfirmedHandler(svc service.ParticipantService, v *validator.ParticipantValidator, log *logger.Logger) kafka.MessageHandler {
	return func(ctx context.Context, msg kafka.Message) error {
		if eventType := msg.GetEventType(); eventType != "" && eventType != model.EventPaymentConfirmed {
			log.Debug("skipping unrelated event", "event_type", eventType, "key", msg.Key)
			return nil
		}

		var event model.PaymentConfirmedEvent
		if err := msg.DecodeValue(&event); err != nil {
			return err
		}
		if event.ParticipantID == "" {
			event.ParticipantID = msg.Key
		}
		if err := v.ValidatePaymentConfirmed(&event); err != nil {
			return kafka.NewPermanentError("invalid payment confirmed event", err)
		}

		if id := msg.GetCorrelationID(); id != "" {
			ctx = context.WithValue(ctx, middleware.RequestIDKey, id)
		}

		participant, err := svc.Confirm(ctx, event.ParticipantID, event.PaymentReference)
		if err != nil {
			return classify(err)
		}

		log.Info("participant confirmed from payment event",
			"participant_id", participant.ID,
			"category", participant.Category,
			"bib", participant.Bib,
			"event_id", msg.GetEventID(),
		)
		return nil
	}
}

func classify(err error) error {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		return kafka.NewTransientError("confirm participant", err)
	}

	switch {
	case appErr.Code == apperrors.CodeContention,
		appErr.HTTPStatus == http.StatusServiceUnavailable,
		appErr.HTTPStatus == http.StatusInternalServerError:
		return kafka.NewTransientError("confirm participant", err)
	default:
		return kafka.NewPermanentError("confirm participant", err)
	}
}
