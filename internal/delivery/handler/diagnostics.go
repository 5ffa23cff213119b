package handler

import (
	"net/http"
	"time"

	"classifieds/internal/infrastructure/metrics"
	"classifieds/internal/service"
	"classifieds/pkg/logger"
	"classifieds/pkg/utils"

	"go.opentelemetry.io/otel/attribute"
)

// DiagnosticsHandler exposes the operator tooling under /admin/diagnostics.
type DiagnosticsHandler struct {
	base
	service service.DiagnosticsService
}

func NewDiagnosticsHandler(service service.DiagnosticsService, logger *logger.Loggers, metrics *metrics.HandlerMetrics) *DiagnosticsHandler {
	return &DiagnosticsHandler{base: newBase(logger, metrics), service: service}
}

func (h *DiagnosticsHandler) DuplicateAccounts(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "DiagnoseDuplicateAccounts")
	defer span.End()

	status := "success"
	defer h.metrics.Observe("GET", "/admin/diagnostics/duplicate-accounts", &status, time.Now())

	groups, err := h.service.DuplicateAccounts(ctx)
	if err != nil {
		h.fail(w, span, &status, "duplicate accounts", err)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{"groups": groups})
}

func (h *DiagnosticsHandler) AdVisibility(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "DiagnoseAdVisibility")
	defer span.End()

	status := "success"
	defer h.metrics.Observe("GET", "/admin/diagnostics/ads/{id}/visibility", &status, time.Now())

	id, err := idParam(r, "id")
	if err != nil {
		h.fail(w, span, &status, "ad visibility", err)
		return
	}
	span.SetAttributes(attribute.Int64("ad.id", id))

	report, err := h.service.AdVisibility(ctx, id)
	if err != nil {
		h.fail(w, span, &status, "ad visibility", err)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, report)
}

func (h *DiagnosticsHandler) ResyncAdCache(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "ResyncAdCache")
	defer span.End()

	status := "success"
	defer h.metrics.Observe("POST", "/admin/diagnostics/ads/{id}/resync", &status, time.Now())

	id, err := idParam(r, "id")
	if err != nil {
		h.fail(w, span, &status, "resync ad cache", err)
		return
	}
	span.SetAttributes(attribute.Int64("ad.id", id))

	report, err := h.service.ResyncAdCache(ctx, id)
	if err != nil {
		h.fail(w, span, &status, "resync ad cache", err)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, report)
}

func (h *DiagnosticsHandler) AdminCheck(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "DiagnoseAdminAccess")
	defer span.End()

	status := "success"
	defer h.metrics.Observe("GET", "/admin/diagnostics/users/{id}/admin-check", &status, time.Now())

	id, err := idParam(r, "id")
	if err != nil {
		h.fail(w, span, &status, "admin check", err)
		return
	}

	report, err := h.service.AdminCheck(ctx, id)
	if err != nil {
		h.fail(w, span, &status, "admin check", err)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, report)
}

func (h *DiagnosticsHandler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "DiagnosePayment")
	defer span.End()

	status := "success"
	defer h.metrics.Observe("POST", "/admin/diagnostics/payments/{id}/verify", &status, time.Now())

	id, err := idParam(r, "id")
	if err != nil {
		h.fail(w, span, &status, "verify payment", err)
		return
	}
	span.SetAttributes(attribute.Int64("payment.id", id))

	report, err := h.service.VerifyPayment(ctx, id)
	if err != nil {
		h.fail(w, span, &status, "verify payment", err)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, report)
}
