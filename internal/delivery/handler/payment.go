package handler

import (
	"io"
	"net/http"
	"time"

	"classifieds/internal/delivery/handler/request"
	"classifieds/internal/delivery/middleware"
	"classifieds/internal/infrastructure/metrics"
	"classifieds/internal/service"
	"classifieds/pkg/logger"
	"classifieds/pkg/utils"

	"go.opentelemetry.io/otel/attribute"
)

const (
	maxWebhookBytes = 64 << 10
	signatureHeader = "Stripe-Signature"
)

type PaymentHandler struct {
	base
	service service.PaymentService
}

func NewPaymentHandler(service service.PaymentService, logger *logger.Loggers, metrics *metrics.HandlerMetrics) *PaymentHandler {
	return &PaymentHandler{base: newBase(logger, metrics), service: service}
}

func (h *PaymentHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "CreateFeatureCheckout")
	defer span.End()

	status := "success"
	defer h.metrics.Observe("POST", "/payments/checkout", &status, time.Now())

	var req request.CheckoutRequest
	if !h.decode(w, r, &status, &req) {
		return
	}
	span.SetAttributes(attribute.Int64("ad.id", req.AdID))

	p, err := h.service.CreateFeatureCheckout(ctx, middleware.Viewer(ctx).UserID, req.AdID)
	if err != nil {
		h.fail(w, span, &status, "create checkout", err)
		return
	}

	utils.RespondWithJSON(w, http.StatusCreated, p)
}

func (h *PaymentHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "ListMyPayments")
	defer span.End()

	status := "success"
	defer h.metrics.Observe("GET", "/payments", &status, time.Now())

	payments, err := h.service.ListMine(ctx, middleware.Viewer(ctx).UserID)
	if err != nil {
		h.fail(w, span, &status, "list payments", err)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{"payments": payments})
}

func (h *PaymentHandler) Verify(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "VerifyPayment")
	defer span.End()

	status := "success"
	defer h.metrics.Observe("POST", "/payments/{id}/verify", &status, time.Now())

	id, err := idParam(r, "id")
	if err != nil {
		h.fail(w, span, &status, "verify payment", err)
		return
	}
	span.SetAttributes(attribute.Int64("payment.id", id))

	p, err := h.service.Verify(ctx, middleware.Viewer(ctx), id)
	if err != nil {
		h.fail(w, span, &status, "verify payment", err)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, p)
}

// Webhook receives processor callbacks. The raw body is needed for the
// signature check, so it is read before any decoding.
func (h *PaymentHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "PaymentWebhook")
	defer span.End()

	status := "success"
	defer h.metrics.Observe("POST", "/payments/webhook", &status, time.Now())

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes))
	if err != nil {
		status = "bad_request"
		utils.RespondWithErrorJSON(w, http.StatusBadRequest, errInvalidBody.Error())
		return
	}

	if err := h.service.HandleWebhook(ctx, payload, r.Header.Get(signatureHeader)); err != nil {
		h.fail(w, span, &status, "payment webhook", err)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]bool{"received": true})
}
