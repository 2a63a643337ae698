package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/julienschmidt/httprouter"

	"racereg/internal/participants/service"
	httputil "racereg/pkg/http"
	"racereg/pkg/logger"
	"racereg/pkg/model"
)

type ParticipantHandler struct {
	service service.ParticipantService
	log     *logger.Logger
}

type confirmRequest struct {
	PaymentReference string `json:"payment_reference"`
}

func NewParticipantHandler(service service.ParticipantService, log *logger.Logger) *ParticipantHandler {
	return &ParticipantHandler{
		service: service,
		log:     log,
	}
}

func (h *ParticipantHandler) Register(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var p model.Participant
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		if writeErr := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "Invalid request body",
		}); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", "Register", "operation", "WriteJSON", "error", writeErr)
		}
		return
	}

	if err := h.service.Register(r.Context(), &p); err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Register", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteCreated(w, p); err != nil {
		h.log.Error("failed to write created response", "handler", "Register", "operation", "WriteCreated", "error", err)
	}
}

func (h *ParticipantHandler) GetByID(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")
	if id == "" {
		h.missingID(w, "GetByID")
		return
	}

	p, err := h.service.GetByID(r.Context(), id)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "GetByID", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, p); err != nil {
		h.log.Error("failed to write success response", "handler", "GetByID", "operation", "WriteSuccess", "error", err)
	}
}

func (h *ParticipantHandler) GetAll(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	limit, offset, err := httputil.ExtractLimitOffset(r)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "GetAll", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	participants, totalCount, err := h.service.GetAll(r.Context(), limit, offset)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "GetAll", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WritePaginated(w, participants, totalCount, limit, offset); err != nil {
		h.log.Error("failed to write paginated response", "handler", "GetAll", "operation", "WritePaginated", "error", err)
	}
}

func (h *ParticipantHandler) Delete(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")
	if id == "" {
		h.missingID(w, "Delete")
		return
	}

	if err := h.service.Delete(r.Context(), id); err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Delete", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	httputil.WriteNoContent(w)
}

// Confirm assigns a bib manually. The body is optional and may carry a payment reference.
func (h *ParticipantHandler) Confirm(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")
	if id == "" {
		h.missingID(w, "Confirm")
		return
	}

	var req confirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		if writeErr := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "Invalid request body",
		}); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", "Confirm", "operation", "WriteJSON", "error", writeErr)
		}
		return
	}

	p, err := h.service.Confirm(r.Context(), id, req.PaymentReference)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "Confirm", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, p); err != nil {
		h.log.Error("failed to write success response", "handler", "Confirm", "operation", "WriteSuccess", "error", err)
	}
}

func (h *ParticipantHandler) PickupToken(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")
	if id == "" {
		h.missingID(w, "PickupToken")
		return
	}

	token, err := h.service.PickupToken(r.Context(), id)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "PickupToken", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, token); err != nil {
		h.log.Error("failed to write success response", "handler", "PickupToken", "operation", "WriteSuccess", "error", err)
	}
}

func (h *ParticipantHandler) VerifyPickup(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req model.PickupVerification
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if writeErr := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
			Error: "Invalid request body",
		}); writeErr != nil {
			h.log.Error("failed to write JSON response", "handler", "VerifyPickup", "operation", "WriteJSON", "error", writeErr)
		}
		return
	}

	result, err := h.service.VerifyPickup(r.Context(), req.Token)
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "VerifyPickup", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, result); err != nil {
		h.log.Error("failed to write success response", "handler", "VerifyPickup", "operation", "WriteSuccess", "error", err)
	}
}

func (h *ParticipantHandler) ValidateBib(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	query := r.URL.Query()

	result, err := h.service.ValidateBib(query.Get("category"), query.Get("value"))
	if err != nil {
		if writeErr := httputil.WriteError(w, err); writeErr != nil {
			h.log.Error("failed to write error response", "handler", "ValidateBib", "operation", "WriteError", "error", writeErr)
		}
		return
	}

	if err := httputil.WriteSuccess(w, result); err != nil {
		h.log.Error("failed to write success response", "handler", "ValidateBib", "operation", "WriteSuccess", "error", err)
	}
}

func (h *ParticipantHandler) missingID(w http.ResponseWriter, handler string) {
	if err := httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{
		Error: "ID parameter is required",
	}); err != nil {
		h.log.Error("failed to write bad request response", "handler", handler, "operation", "WriteJSON", "error", err)
	}
}

func (h *ParticipantHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/v1/participants", h.Register)
	router.GET("/api/v1/participants", h.GetAll)
	router.GET("/api/v1/participants/id/:id", h.GetByID)
	router.DELETE("/api/v1/participants/id/:id", h.Delete)
	router.POST("/api/v1/participants/id/:id/confirm", h.Confirm)
	router.GET("/api/v1/participants/id/:id/pickup-token", h.PickupToken)
	router.POST("/api/v1/pickup/verify", h.VerifyPickup)
	router.GET("/api/v1/bibs/validate", h.ValidateBib)
}
