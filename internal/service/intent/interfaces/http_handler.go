// internal/service/intent/interfaces/http_handler.go
package interfaces

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"tiffin/internal/pkg/auth"
	"tiffin/internal/pkg/bootstrap"
	"tiffin/internal/pkg/logger"
	"tiffin/internal/service/intent/application"
	"tiffin/internal/service/intent/domain"
)

type createPaymentOrderRequest struct {
	Cart []domain.CartLine `json:"cart"`
}

// IntentHandler 暴露 create-payment-order 函数。
type IntentHandler struct {
	service  *application.IntentApplicationService
	verifier *auth.Verifier
}

func NewIntentHandler(service *application.IntentApplicationService, verifier *auth.Verifier) *IntentHandler {
	return &IntentHandler{service: service, verifier: verifier}
}

func (h *IntentHandler) RegisterRoutes(r chi.Router) {
	r.With(h.verifier.Middleware).Post("/create-payment-order", h.createPaymentOrder)
}

func (h *IntentHandler) createPaymentOrder(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.FromContext(r.Context())

	var req createPaymentOrderRequest
	if err := bootstrap.DecodeJSON(r, &req); err != nil {
		bootstrap.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	order, err := h.service.CreateIntent(r.Context(), caller.UserID, req.Cart)
	switch {
	case err == nil:
		bootstrap.WriteJSON(w, http.StatusOK, order)
	case errors.Is(err, domain.ErrInvalidCart), errors.Is(err, domain.ErrProductNotFound):
		bootstrap.WriteError(w, http.StatusBadRequest, err.Error())
	default:
		logger.Ctx(r.Context()).Error().Err(err).Msg("create-payment-order failed")
		bootstrap.WriteError(w, http.StatusInternalServerError, "failed to create payment order")
	}
}
