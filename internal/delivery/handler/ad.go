package handler

import (
	"net/http"
	"strconv"
	"time"

	"classifieds/internal/delivery/handler/request"
	"classifieds/internal/delivery/middleware"
	"classifieds/internal/domain"
	"classifieds/internal/infrastructure/metrics"
	"classifieds/internal/service"
	"classifieds/pkg/logger"
	"classifieds/pkg/utils"

	"go.opentelemetry.io/otel/attribute"
)

type AdHandler struct {
	base
	service service.AdService
}

func NewAdHandler(service service.AdService, logger *logger.Loggers, metrics *metrics.HandlerMetrics) *AdHandler {
	return &AdHandler{base: newBase(logger, metrics), service: service}
}

func floatQuery(r *http.Request, name string) *float64 {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil
	}
	return &v
}

// adFilter reads listing parameters. Paging is 1-based; sortBy is accepted
// as an alias of sort_by for older clients.
func adFilter(r *http.Request) domain.AdFilter {
	q := r.URL.Query()

	sortBy := q.Get("sort_by")
	if sortBy == "" {
		sortBy = q.Get("sortBy")
	}

	limit, offset := service.PageBounds(intQuery(r, "page", 1), intQuery(r, "limit", domain.DefaultPageSize))

	return domain.AdFilter{
		Status:   domain.AdStatus(q.Get("status")),
		Category: q.Get("category"),
		Query:    q.Get("q"),
		Location: q.Get("location"),
		MinPrice: floatQuery(r, "min_price"),
		MaxPrice: floatQuery(r, "max_price"),
		SortBy:   sortBy,
		Order:    q.Get("order"),
		Limit:    limit,
		Offset:   offset,
	}
}

func (h *AdHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "ListAds")
	defer span.End()

	status := "success"
	defer h.metrics.Observe("GET", "/ads", &status, time.Now())

	filter := adFilter(r)
	span.SetAttributes(
		attribute.Int("ads.limit", filter.Limit),
		attribute.Int("ads.offset", filter.Offset),
		attribute.String("ads.sort_by", filter.SortBy),
		attribute.String("ads.order", filter.Order),
	)

	result, err := h.service.List(ctx, filter)
	if err != nil {
		h.fail(w, span, &status, "list ads", err)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, result)
}

func (h *AdHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "ListMyAds")
	defer span.End()

	status := "success"
	defer h.metrics.Observe("GET", "/me/ads", &status, time.Now())

	result, err := h.service.ListByOwner(ctx, middleware.Viewer(ctx).UserID, adFilter(r))
	if err != nil {
		h.fail(w, span, &status, "list my ads", err)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, result)
}

func (h *AdHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "GetAd")
	defer span.End()

	status := "success"
	defer h.metrics.Observe("GET", "/ads/{id}", &status, time.Now())

	id, err := idParam(r, "id")
	if err != nil {
		h.fail(w, span, &status, "get ad", err)
		return
	}
	span.SetAttributes(attribute.Int64("ad.id", id))

	ad, err := h.service.Get(ctx, id, middleware.Viewer(ctx))
	if err != nil {
		h.fail(w, span, &status, "get ad", err)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, ad)
}

func (h *AdHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "CreateAd")
	defer span.End()

	status := "success"
	defer h.metrics.Observe("POST", "/ads", &status, time.Now())

	var req request.AdRequest
	if !h.decode(w, r, &status, &req) {
		return
	}

	ad, err := h.service.Create(ctx, middleware.Viewer(ctx).UserID, req.Input())
	if err != nil {
		h.fail(w, span, &status, "create ad", err)
		return
	}

	utils.RespondWithJSON(w, http.StatusCreated, ad)
}

func (h *AdHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "UpdateAd")
	defer span.End()

	status := "success"
	defer h.metrics.Observe("PUT", "/ads/{id}", &status, time.Now())

	id, err := idParam(r, "id")
	if err != nil {
		h.fail(w, span, &status, "update ad", err)
		return
	}

	var req request.AdRequest
	if !h.decode(w, r, &status, &req) {
		return
	}

	ad, err := h.service.Update(ctx, middleware.Viewer(ctx).UserID, id, req.Input())
	if err != nil {
		h.fail(w, span, &status, "update ad", err)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, ad)
}

func (h *AdHandler) ChangeStatus(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "ChangeAdStatus")
	defer span.End()

	status := "success"
	defer h.metrics.Observe("PATCH", "/ads/{id}/status", &status, time.Now())

	id, err := idParam(r, "id")
	if err != nil {
		h.fail(w, span, &status, "change ad status", err)
		return
	}

	var req request.AdStatusRequest
	if !h.decode(w, r, &status, &req) {
		return
	}

	ad, err := h.service.ChangeStatus(ctx, middleware.Viewer(ctx).UserID, id, domain.AdStatus(req.Status))
	if err != nil {
		h.fail(w, span, &status, "change ad status", err)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, ad)
}

func (h *AdHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "DeleteAd")
	defer span.End()

	status := "success"
	defer h.metrics.Observe("DELETE", "/ads/{id}", &status, time.Now())

	id, err := idParam(r, "id")
	if err != nil {
		h.fail(w, span, &status, "delete ad", err)
		return
	}

	if err := h.service.Delete(ctx, middleware.Viewer(ctx), id); err != nil {
		h.fail(w, span, &status, "delete ad", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
