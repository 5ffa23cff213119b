package handler

import (
	"net/http"
	"strings"
	"time"

	"classifieds/internal/delivery/middleware"
	"classifieds/internal/infrastructure/metrics"
	"classifieds/pkg/logger"
	"classifieds/pkg/utils"

	"github.com/gorilla/websocket"
)

// ConnServer owns an upgraded connection until the peer goes away.
type ConnServer interface {
	Serve(conn *websocket.Conn, userID int64)
}

type RealtimeHandler struct {
	base
	hub      ConnServer
	parser   middleware.TokenParser
	upgrader websocket.Upgrader
}

func NewRealtimeHandler(hub ConnServer, parser middleware.TokenParser, allowedOrigins []string, logger *logger.Loggers, metrics *metrics.HandlerMetrics) *RealtimeHandler {
	h := &RealtimeHandler{base: newBase(logger, metrics), hub: hub, parser: parser}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

// originChecker accepts requests without an Origin header (non-browser
// clients) and browser requests from the configured origins.
func originChecker(allowedOrigins []string) func(r *http.Request) bool {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[strings.TrimRight(o, "/")] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || allowed["*"] || allowed[origin]
	}
}

// Connect authenticates with ?token= (browsers cannot set headers on a
// websocket handshake) or a bearer header, then hands the socket to the hub.
func (h *RealtimeHandler) Connect(w http.ResponseWriter, r *http.Request) {
	conn, userID, ok := h.handshake(w, r)
	if !ok {
		return
	}
	h.hub.Serve(conn, userID)
}

func (h *RealtimeHandler) handshake(w http.ResponseWriter, r *http.Request) (*websocket.Conn, int64, bool) {
	_, span := h.tracer.Start(r.Context(), "RealtimeConnect")
	defer span.End()

	status := "success"
	defer h.metrics.Observe("GET", "/ws", &status, time.Now())

	token := r.URL.Query().Get("token")
	if token == "" {
		token = middleware.BearerToken(r)
	}
	if token == "" {
		status = "unauthorized"
		utils.RespondWithErrorJSON(w, http.StatusUnauthorized, "missing token")
		return nil, 0, false
	}

	id, err := h.parser.ParseToken(token)
	if err != nil {
		h.fail(w, span, &status, "realtime connect", err)
		return nil, 0, false
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		status = "upgrade_failed"
		span.RecordError(err)
		return nil, 0, false
	}
	return conn, id.UserID, true
}
