package handler

import (
	"encoding/json"
	"net/http"

	"github.com/altairlabs/gatekeep/internal/domain"
	"github.com/altairlabs/gatekeep/internal/http/response"
	"github.com/altairlabs/gatekeep/internal/observability"
	"github.com/altairlabs/gatekeep/internal/service"
)

// BillingHandler serves the internal billing surface. The router mounts it
// behind admin auth; it is never exposed to end-user traffic directly.
type BillingHandler struct {
	quota *service.QuotaService
}

func NewBillingHandler(quota *service.QuotaService) *BillingHandler {
	return &BillingHandler{quota: quota}
}

type upgradeRequest struct {
	UserID    string `json:"user_id"`
	Plan      string `json:"plan"`
	PaymentID string `json:"payment_id"`
}

func (h *BillingHandler) CompleteUpgrade(w http.ResponseWriter, r *http.Request) {
	var req upgradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, http.StatusBadRequest, "VALIDATION_FAILED", "invalid request body", nil)
		return
	}
	if req.UserID == "" || req.PaymentID == "" {
		response.Error(w, r, http.StatusBadRequest, "VALIDATION_FAILED", "user_id and payment_id are required", nil)
		return
	}
	plan := domain.PlanType(req.Plan)
	if err := h.quota.CompleteUpgrade(r.Context(), req.UserID, plan, req.PaymentID); err != nil {
		response.ServiceError(w, r, err)
		return
	}
	observability.Audit(r, "billing.plan_upgraded", "user_id", req.UserID, "plan", req.Plan, "payment_id", req.PaymentID)
	response.JSON(w, r, http.StatusOK, map[string]string{"status": "upgraded", "plan": req.Plan})
}
