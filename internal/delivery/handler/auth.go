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

type AuthHandler struct {
	base
	service service.AuthService
}

func NewAuthHandler(service service.AuthService, logger *logger.Loggers, metrics *metrics.HandlerMetrics) *AuthHandler {
	return &AuthHandler{base: newBase(logger, metrics), service: service}
}

type loginResponse struct {
	Token string       `json:"token"`
	User  *domain.User `json:"user"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "Register")
	defer span.End()

	status := "success"
	defer h.metrics.Observe("POST", "/auth/register", &status, time.Now())

	var req request.RegisterRequest
	if !h.decode(w, r, &status, &req) {
		return
	}

	user, err := h.service.Register(ctx, service.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
		Phone:    req.Phone,
	})
	if err != nil {
		h.fail(w, span, &status, "register", err)
		return
	}

	utils.RespondWithJSON(w, http.StatusCreated, user)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "Login")
	defer span.End()

	status := "success"
	defer h.metrics.Observe("POST", "/auth/login", &status, time.Now())

	var req request.LoginRequest
	if !h.decode(w, r, &status, &req) {
		return
	}

	token, user, err := h.service.Login(ctx, req.Email, req.Password)
	if err != nil {
		h.fail(w, span, &status, "login", err)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, loginResponse{Token: token, User: user})
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "Me")
	defer span.End()

	status := "success"
	defer h.metrics.Observe("GET", "/auth/me", &status, time.Now())

	user, err := h.service.Me(ctx, middleware.Viewer(ctx).UserID)
	if err != nil {
		h.fail(w, span, &status, "me", err)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, user)
}
