// internal/service/assignment/interfaces/http_handler.go
package interfaces

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"tiffin/internal/pkg/auth"
	"tiffin/internal/pkg/bootstrap"
	"tiffin/internal/pkg/logger"
	"tiffin/internal/service/assignment/application"
	"tiffin/internal/service/assignment/domain"
	orderdomain "tiffin/internal/service/order/domain"
)

type assignRequest struct {
	OrderID    string   `json:"orderId"`
	ProductIDs []string `json:"productIds"`
}

type assignResponse struct {
	Success        bool               `json:"success"`
	AssignedVendor domain.Vendor      `json:"assignedVendor"`
	UpdatedOrder   *orderdomain.Order `json:"updatedOrder"`
}

// AssignmentHandler 暴露 assign-order-to-vendor 函数。除鉴权外的所有失败都以 500 {error} 返回。
type AssignmentHandler struct {
	service  *application.AssignmentApplicationService
	verifier *auth.Verifier
}

func NewAssignmentHandler(service *application.AssignmentApplicationService, verifier *auth.Verifier) *AssignmentHandler {
	return &AssignmentHandler{service: service, verifier: verifier}
}

func (h *AssignmentHandler) RegisterRoutes(r chi.Router) {
	r.With(h.verifier.Middleware).Post("/assign-order-to-vendor", h.assign)
}

func (h *AssignmentHandler) assign(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.FromContext(r.Context())

	var req assignRequest
	if err := bootstrap.DecodeJSON(r, &req); err != nil {
		bootstrap.WriteError(w, http.StatusInternalServerError, "invalid request body")
		return
	}

	assignment, err := h.service.AssignAs(r.Context(), caller, req.OrderID, req.ProductIDs)
	if err != nil {
		logger.Ctx(r.Context()).Warn().Err(err).Str("order_id", req.OrderID).Msg("assign-order-to-vendor failed")
		bootstrap.WriteError(w, http.StatusInternalServerError, publicMessage(err))
		return
	}
	bootstrap.WriteJSON(w, http.StatusOK, assignResponse{
		Success:        true,
		AssignedVendor: assignment.Vendor,
		UpdatedOrder:   assignment.Order,
	})
}

func publicMessage(err error) string {
	for _, known := range []error{
		domain.ErrNoEligibleVendor,
		domain.ErrAssignmentClosed,
		domain.ErrInvalidAssignment,
		orderdomain.ErrOrderNotFound,
		application.ErrForbidden,
	} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return "failed to assign vendor"
}
