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

type ChatHandler struct {
	base
	service service.ChatService
}

func NewChatHandler(service service.ChatService, logger *logger.Loggers, metrics *metrics.HandlerMetrics) *ChatHandler {
	return &ChatHandler{base: newBase(logger, metrics), service: service}
}

func (h *ChatHandler) Start(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "StartChat")
	defer span.End()

	status := "success"
	defer h.metrics.Observe("POST", "/chats", &status, time.Now())

	var req request.StartChatRequest
	if !h.decode(w, r, &status, &req) {
		return
	}

	chat, err := h.service.StartChat(ctx, middleware.Viewer(ctx).UserID, req.AdID)
	if err != nil {
		h.fail(w, span, &status, "start chat", err)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, chat)
}

func (h *ChatHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "ListChats")
	defer span.End()

	status := "success"
	defer h.metrics.Observe("GET", "/chats", &status, time.Now())

	chats, err := h.service.ListChats(ctx, middleware.Viewer(ctx).UserID)
	if err != nil {
		h.fail(w, span, &status, "list chats", err)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{"chats": chats})
}

func (h *ChatHandler) Unread(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "UnreadCount")
	defer span.End()

	status := "success"
	defer h.metrics.Observe("GET", "/chats/unread", &status, time.Now())

	n, err := h.service.UnreadCount(ctx, middleware.Viewer(ctx).UserID)
	if err != nil {
		h.fail(w, span, &status, "unread count", err)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]int{"unread": n})
}

func (h *ChatHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "GetChat")
	defer span.End()

	status := "success"
	defer h.metrics.Observe("GET", "/chats/{id}", &status, time.Now())

	id, err := idParam(r, "id")
	if err != nil {
		h.fail(w, span, &status, "get chat", err)
		return
	}
	span.SetAttributes(attribute.Int64("chat.id", id))

	chat, err := h.service.GetChat(ctx, middleware.Viewer(ctx).UserID, id)
	if err != nil {
		h.fail(w, span, &status, "get chat", err)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, chat)
}

func (h *ChatHandler) Messages(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "ListMessages")
	defer span.End()

	status := "success"
	defer h.metrics.Observe("GET", "/chats/{id}/messages", &status, time.Now())

	id, err := idParam(r, "id")
	if err != nil {
		h.fail(w, span, &status, "list messages", err)
		return
	}

	var cursor domain.MessageCursor
	if raw := r.URL.Query().Get("since"); raw != "" {
		cursor.Since, err = time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			status = "bad_request"
			utils.RespondWithErrorJSON(w, http.StatusBadRequest, "since must be an RFC 3339 timestamp")
			return
		}
	}
	if raw := r.URL.Query().Get("after_id"); raw != "" {
		cursor.AfterID, err = strconv.ParseInt(raw, 10, 64)
		if err != nil || cursor.AfterID < 0 {
			status = "bad_request"
			utils.RespondWithErrorJSON(w, http.StatusBadRequest, "after_id must be a non-negative integer")
			return
		}
	}

	msgs, err := h.service.ListMessages(ctx, middleware.Viewer(ctx).UserID, id, cursor, intQuery(r, "limit", 0))
	if err != nil {
		h.fail(w, span, &status, "list messages", err)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]interface{}{"messages": msgs})
}

func (h *ChatHandler) Send(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "SendMessage")
	defer span.End()

	status := "success"
	defer h.metrics.Observe("POST", "/chats/{id}/messages", &status, time.Now())

	id, err := idParam(r, "id")
	if err != nil {
		h.fail(w, span, &status, "send message", err)
		return
	}

	var req request.MessageRequest
	if !h.decode(w, r, &status, &req) {
		return
	}

	msg, err := h.service.SendMessage(ctx, middleware.Viewer(ctx).UserID, id, req.Body)
	if err != nil {
		h.fail(w, span, &status, "send message", err)
		return
	}

	utils.RespondWithJSON(w, http.StatusCreated, msg)
}

func (h *ChatHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "MarkRead")
	defer span.End()

	status := "success"
	defer h.metrics.Observe("POST", "/chats/{id}/read", &status, time.Now())

	id, err := idParam(r, "id")
	if err != nil {
		h.fail(w, span, &status, "mark read", err)
		return
	}

	n, err := h.service.MarkRead(ctx, middleware.Viewer(ctx).UserID, id)
	if err != nil {
		h.fail(w, span, &status, "mark read", err)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]int64{"marked": n})
}
