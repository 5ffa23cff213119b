package handler

import (
	"net/http"
	"time"

	"classifieds/internal/delivery/handler/request"
	"classifieds/internal/delivery/middleware"
	"classifieds/internal/domain"
	"classifieds/internal/infrastructure/metrics"
	"classifieds/internal/service"
	"classifieds/pkg/logger"
	"classifieds/pkg/utils"
)

type AdminHandler struct {
	base
	service service.AdminService
}

func NewAdminHandler(service service.AdminService, logger *logger.Loggers, metrics *metrics.HandlerMetrics) *AdminHandler {
	return &AdminHandler{base: newBase(logger, metrics), service: service}
}

func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "AdminStats")
	defer span.End()

	status := "success"
	defer h.metrics.Observe("GET", "/admin/stats", &status, time.Now())

	stats, err := h.service.Stats(ctx)
	if err != nil {
		h.fail(w, span, &status, "admin stats", err)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, stats)
}

func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "AdminListUsers")
	defer span.End()

	status := "success"
	defer h.metrics.Observe("GET", "/admin/users", &status, time.Now())

	page, err := h.service.ListUsers(ctx, r.URL.Query().Get("q"), intQuery(r, "page", 1), intQuery(r, "limit", domain.DefaultPageSize))
	if err != nil {
		h.fail(w, span, &status, "list users", err)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, page)
}

func (h *AdminHandler) SetUserStatus(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "AdminSetUserStatus")
	defer span.End()

	status := "success"
	defer h.metrics.Observe("PATCH", "/admin/users/{id}/status", &status, time.Now())

	id, err := idParam(r, "id")
	if err != nil {
		h.fail(w, span, &status, "set user status", err)
		return
	}

	var req request.UserStatusRequest
	if !h.decode(w, r, &status, &req) {
		return
	}

	user, err := h.service.SetUserStatus(ctx, middleware.Viewer(ctx).UserID, id, domain.UserStatus(req.Status))
	if err != nil {
		h.fail(w, span, &status, "set user status", err)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, user)
}

func (h *AdminHandler) SetUserRole(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "AdminSetUserRole")
	defer span.End()

	status := "success"
	defer h.metrics.Observe("PATCH", "/admin/users/{id}/role", &status, time.Now())

	id, err := idParam(r, "id")
	if err != nil {
		h.fail(w, span, &status, "set user role", err)
		return
	}

	var req request.UserRoleRequest
	if !h.decode(w, r, &status, &req) {
		return
	}

	user, err := h.service.SetUserRole(ctx, middleware.Viewer(ctx).UserID, id, domain.Role(req.Role))
	if err != nil {
		h.fail(w, span, &status, "set user role", err)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, user)
}

func (h *AdminHandler) ListAds(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "AdminListAds")
	defer span.End()

	status := "success"
	defer h.metrics.Observe("GET", "/admin/ads", &status, time.Now())

	result, err := h.service.ListAds(ctx, adFilter(r))
	if err != nil {
		h.fail(w, span, &status, "admin list ads", err)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, result)
}

func (h *AdminHandler) Moderate(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "AdminModerateAd")
	defer span.End()

	status := "success"
	defer h.metrics.Observe("POST", "/admin/ads/{id}/moderate", &status, time.Now())

	id, err := idParam(r, "id")
	if err != nil {
		h.fail(w, span, &status, "moderate ad", err)
		return
	}

	var req request.ModerateRequest
	if !h.decode(w, r, &status, &req) {
		return
	}

	ad, err := h.service.ModerateAd(ctx, id, req.Target(), req.Reason)
	if err != nil {
		h.fail(w, span, &status, "moderate ad", err)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, ad)
}

func (h *AdminHandler) DeleteAd(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "AdminDeleteAd")
	defer span.End()

	status := "success"
	defer h.metrics.Observe("DELETE", "/admin/ads/{id}", &status, time.Now())

	id, err := idParam(r, "id")
	if err != nil {
		h.fail(w, span, &status, "admin delete ad", err)
		return
	}

	if err := h.service.DeleteAd(ctx, id); err != nil {
		h.fail(w, span, &status, "admin delete ad", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) ListPayments(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "AdminListPayments")
	defer span.End()

	status := "success"
	defer h.metrics.Observe("GET", "/admin/payments", &status, time.Now())

	page, err := h.service.ListPayments(ctx,
		domain.PaymentStatus(r.URL.Query().Get("status")),
		intQuery(r, "page", 1),
		intQuery(r, "limit", domain.DefaultPageSize),
	)
	if err != nil {
		h.fail(w, span, &status, "admin list payments", err)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, page)
}
