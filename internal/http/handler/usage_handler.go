package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/altairlabs/gatekeep/internal/domain"
	"github.com/altairlabs/gatekeep/internal/http/middleware"
	"github.com/altairlabs/gatekeep/internal/http/response"
	"github.com/altairlabs/gatekeep/internal/service"
)

type UsageHandler struct {
	meter             *service.UsageMeter
	quota             *service.QuotaService
	overagePriceCents int64
}

func NewUsageHandler(meter *service.UsageMeter, quota *service.QuotaService, overagePriceCents int64) *UsageHandler {
	return &UsageHandler{meter: meter, quota: quota, overagePriceCents: overagePriceCents}
}

type recordUsageRequest struct {
	Requests     int64  `json:"requests"`
	ComputeUnits int64  `json:"compute_units"`
	Operation    string `json:"operation"`
}

func (h *UsageHandler) Record(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing credentials", nil)
		return
	}
	var req recordUsageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, http.StatusBadRequest, "VALIDATION_FAILED", "invalid request body", nil)
		return
	}
	period := domain.PeriodKey(time.Now())
	err := h.meter.Record(r.Context(), claims.Subject, period, service.UsageDelta{
		Requests:     req.Requests,
		ComputeUnits: req.ComputeUnits,
		Operation:    req.Operation,
	})
	if err != nil {
		response.ServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusAccepted, map[string]string{"status": "recorded", "period": period})
}

// Current reports display totals for the running period plus the overage the
// user would be billed at the current plan limit.
func (h *UsageHandler) Current(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing credentials", nil)
		return
	}
	period := domain.PeriodKey(time.Now())
	totals, err := h.meter.Current(r.Context(), claims.Subject, period)
	if err != nil {
		response.ServiceError(w, r, err)
		return
	}
	sub, err := h.quota.PlanFor(r.Context(), claims.Subject)
	if err != nil {
		response.ServiceError(w, r, err)
		return
	}
	overage := service.ComputeOverage(totals.Requests, sub.RequestLimit, h.overagePriceCents)
	response.JSON(w, r, http.StatusOK, map[string]any{
		"period":        period,
		"usage":         totals,
		"plan":          sub.Plan,
		"request_limit": sub.RequestLimit,
		"overage":       overage,
	})
}

func (h *UsageHandler) CheckRequestQuota(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing credentials", nil)
		return
	}
	incoming := int64(1)
	if raw := r.URL.Query().Get("requests"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 0 {
			response.Error(w, r, http.StatusBadRequest, "VALIDATION_FAILED", "requests must be a non-negative integer", nil)
			return
		}
		incoming = n
	}
	allowed, err := h.quota.CanAcceptRequests(r.Context(), claims.Subject, incoming)
	if err != nil {
		response.ServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]any{"allowed": allowed, "requests": incoming})
}

func (h *UsageHandler) CheckAPIKeyQuota(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing credentials", nil)
		return
	}
	allowed, err := h.quota.CanCreateAPIKey(r.Context(), claims.Subject)
	if err != nil {
		response.ServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]any{"allowed": allowed})
}
