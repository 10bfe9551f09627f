// internal/service/order/interfaces/http_handler.go
package interfaces

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"tiffin/internal/pkg/auth"
	"tiffin/internal/pkg/bootstrap"
	"tiffin/internal/pkg/logger"
	"tiffin/internal/service/order/application"
	"tiffin/internal/service/order/domain"
	"tiffin/internal/service/order/port"
)

// OrderHandler 暴露订单记录相关的函数端点。
type OrderHandler struct {
	service  *application.OrderApplicationService
	verifier *auth.Verifier
}

func NewOrderHandler(service *application.OrderApplicationService, verifier *auth.Verifier) *OrderHandler {
	return &OrderHandler{service: service, verifier: verifier}
}

// RegisterRoutes 注册路由，全部需要会话令牌。
func (h *OrderHandler) RegisterRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.verifier.Middleware)
		r.Post("/record-paid-order", h.recordPaidOrder)
		r.Post("/update-order-status", h.updateOrderStatus)
		r.Get("/orders/{id}", h.getOrder)
	})
}

func (h *OrderHandler) recordPaidOrder(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.FromContext(r.Context())
	var req application.RecordPaidOrderRequest
	if err := bootstrap.DecodeJSON(r, &req); err != nil || req.ProviderOrderID == "" {
		bootstrap.WriteError(w, http.StatusBadRequest, "providerOrderId, providerPaymentId and providerSignature are required")
		return
	}
	order, err := h.service.RecordPaidOrder(r.Context(), caller, &req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	bootstrap.WriteJSON(w, http.StatusOK, order)
}

func (h *OrderHandler) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.FromContext(r.Context())
	var req application.UpdateStatusRequest
	if err := bootstrap.DecodeJSON(r, &req); err != nil || req.OrderID == "" {
		bootstrap.WriteError(w, http.StatusBadRequest, "orderId and status are required")
		return
	}
	order, err := h.service.AdvanceStatus(r.Context(), caller, &req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	bootstrap.WriteJSON(w, http.StatusOK, order)
}

func (h *OrderHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.FromContext(r.Context())
	order, err := h.service.GetOrder(r.Context(), caller, chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	bootstrap.WriteJSON(w, http.StatusOK, order)
}

func (h *OrderHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, port.ErrInvalidSignature):
		bootstrap.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, port.ErrIntentNotFound), errors.Is(err, domain.ErrOrderNotFound):
		bootstrap.WriteError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, port.ErrIntentNotOwned), errors.Is(err, application.ErrForbidden):
		bootstrap.WriteError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrIllegalTransition), errors.Is(err, application.ErrConflict):
		bootstrap.WriteError(w, http.StatusConflict, err.Error())
	default:
		logger.Ctx(r.Context()).Error().Err(err).Msg("order function failed")
		bootstrap.WriteError(w, http.StatusInternalServerError, "internal error")
	}
}
