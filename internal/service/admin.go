package service

import (
	"context"
	"strings"
	"time"

	"classifieds/internal/domain"
	"classifieds/internal/infrastructure/metrics"
	"classifieds/internal/repository"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type Stats struct {
	Users       int                     `json:"users"`
	BannedUsers int                     `json:"banned_users"`
	Ads         map[domain.AdStatus]int `json:"ads"`
	Payments    *domain.PaymentTotals   `json:"payments"`
}

type UserPage struct {
	Users []*domain.User `json:"users"`
	Pagination
}

type PaymentPage struct {
	Payments []*domain.Payment `json:"payments"`
	Pagination
}

type AdminService interface {
	Stats(ctx context.Context) (*Stats, error)
	ListUsers(ctx context.Context, query string, page, limit int) (*UserPage, error)
	SetUserStatus(ctx context.Context, actorID, userID int64, status domain.UserStatus) (*domain.User, error)
	SetUserRole(ctx context.Context, actorID, userID int64, role domain.Role) (*domain.User, error)
	ListAds(ctx context.Context, filter domain.AdFilter) (*PaginationResult, error)
	ModerateAd(ctx context.Context, adID int64, to domain.AdStatus, reason string) (*domain.Ad, error)
	DeleteAd(ctx context.Context, adID int64) error
	ListPayments(ctx context.Context, status domain.PaymentStatus, page, limit int) (*PaymentPage, error)
}

type adminService struct {
	users    repository.UserRepository
	ads      repository.AdRepository
	payments repository.PaymentRepository
	events   EventPublisher
	metrics  *metrics.ServiceMetrics
	tracer   trace.Tracer
}

func NewAdminService(users repository.UserRepository, ads repository.AdRepository, payments repository.PaymentRepository, events EventPublisher, metrics *metrics.ServiceMetrics) AdminService {
	if events == nil {
		events = NopPublisher{}
	}
	return &adminService{
		users:    users,
		ads:      ads,
		payments: payments,
		events:   events,
		metrics:  metrics,
		tracer:   otel.Tracer("classifieds/service"),
	}
}

func (s *adminService) Stats(ctx context.Context) (*Stats, error) {
	ctx, span := s.tracer.Start(ctx, "AdminStats")
	defer span.End()

	status := "success"
	defer s.metrics.Observe("AdminStats", &status, time.Now())

	users, err := s.users.CountByStatus(ctx)
	if err != nil {
		return nil, fail(span, &status, err)
	}

	ads, err := s.ads.CountByStatus(ctx)
	if err != nil {
		return nil, fail(span, &status, err)
	}

	totals, err := s.payments.Totals(ctx)
	if err != nil {
		return nil, fail(span, &status, err)
	}

	stats := &Stats{
		BannedUsers: users[domain.UserStatusBanned],
		Ads:         ads,
		Payments:    totals,
	}
	for _, n := range users {
		stats.Users += n
	}
	return stats, nil
}

func (s *adminService) ListUsers(ctx context.Context, query string, page, limit int) (*UserPage, error) {
	ctx, span := s.tracer.Start(ctx, "AdminListUsers")
	defer span.End()

	status := "success"
	defer s.metrics.Observe("AdminListUsers", &status, time.Now())

	query = strings.TrimSpace(query)
	limit, offset := PageBounds(page, limit)

	users, err := s.users.List(ctx, query, limit, offset)
	if err != nil {
		return nil, fail(span, &status, err)
	}

	total, err := s.users.Count(ctx, query)
	if err != nil {
		return nil, fail(span, &status, err)
	}

	return &UserPage{Users: users, Pagination: paginate(total, limit, offset)}, nil
}

func (s *adminService) SetUserStatus(ctx context.Context, actorID, userID int64, us domain.UserStatus) (*domain.User, error) {
	ctx, span := s.tracer.Start(ctx, "AdminSetUserStatus")
	defer span.End()

	status := "success"
	defer s.metrics.Observe("AdminSetUserStatus", &status, time.Now())

	if userID <= 0 {
		status = "invalid_id"
		return nil, ErrInvalidID
	}
	if !domain.ValidUserStatus(us) {
		status = "invalid_input"
		return nil, ErrInvalidStatus
	}
	if userID == actorID && us == domain.UserStatusBanned {
		status = "forbidden"
		return nil, ErrSelfModification
	}

	if err := s.users.UpdateStatus(ctx, userID, us); err != nil {
		span.SetAttributes(attribute.Int64("user_id", userID))
		return nil, notFound(span, &status, err, ErrUserNotFound)
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, notFound(span, &status, err, ErrUserNotFound)
	}
	return user, nil
}

func (s *adminService) SetUserRole(ctx context.Context, actorID, userID int64, role domain.Role) (*domain.User, error) {
	ctx, span := s.tracer.Start(ctx, "AdminSetUserRole")
	defer span.End()

	status := "success"
	defer s.metrics.Observe("AdminSetUserRole", &status, time.Now())

	if userID <= 0 {
		status = "invalid_id"
		return nil, ErrInvalidID
	}
	if !domain.ValidRole(role) {
		status = "invalid_input"
		return nil, ErrInvalidRole
	}
	if userID == actorID && role != domain.RoleAdmin {
		status = "forbidden"
		return nil, ErrSelfModification
	}

	if err := s.users.UpdateRole(ctx, userID, role); err != nil {
		return nil, notFound(span, &status, err, ErrUserNotFound)
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, notFound(span, &status, err, ErrUserNotFound)
	}
	return user, nil
}

func (s *adminService) ListAds(ctx context.Context, filter domain.AdFilter) (*PaginationResult, error) {
	ctx, span := s.tracer.Start(ctx, "AdminListAds")
	defer span.End()

	status := "success"
	defer s.metrics.Observe("AdminListAds", &status, time.Now())

	if filter.Status != "" && !domain.ValidAdStatus(filter.Status) {
		status = "invalid_input"
		return nil, ErrInvalidStatus
	}
	filter.Normalize()

	ads, err := s.ads.List(ctx, filter)
	if err != nil {
		return nil, fail(span, &status, err)
	}

	total, err := s.ads.Count(ctx, filter)
	if err != nil {
		return nil, fail(span, &status, err)
	}

	return &PaginationResult{Ads: ads, Pagination: paginate(total, filter.Limit, filter.Offset)}, nil
}

// ModerateAd approves, rejects or archives an ad. The reason is kept as the
// moderation note except on approval, which clears it.
func (s *adminService) ModerateAd(ctx context.Context, adID int64, to domain.AdStatus, reason string) (*domain.Ad, error) {
	ctx, span := s.tracer.Start(ctx, "AdminModerateAd")
	defer span.End()

	status := "success"
	defer s.metrics.Observe("AdminModerateAd", &status, time.Now())

	if adID <= 0 {
		status = "invalid_id"
		return nil, ErrInvalidID
	}

	ad, err := s.ads.GetByIDUncached(ctx, adID)
	if err != nil {
		return nil, notFound(span, &status, err, ErrAdNotFound)
	}

	note := strings.TrimSpace(reason)
	if to == domain.AdStatusActive {
		note = ""
	}
	if !domain.CanTransition(domain.ActorAdmin, ad.Status, to) {
		status = "invalid_transition"
		return nil, ErrInvalidStatus
	}

	if err := s.ads.UpdateStatus(ctx, adID, to, note); err != nil {
		return nil, notFound(span, &status, err, ErrAdNotFound)
	}
	ad.Status = to
	ad.ModerationNote = note

	publishAdStatus(ctx, span, s.events, ad)
	return ad, nil
}

func (s *adminService) DeleteAd(ctx context.Context, adID int64) error {
	ctx, span := s.tracer.Start(ctx, "AdminDeleteAd")
	defer span.End()

	status := "success"
	defer s.metrics.Observe("AdminDeleteAd", &status, time.Now())

	if adID <= 0 {
		status = "invalid_id"
		return ErrInvalidID
	}

	if err := s.ads.Delete(ctx, adID); err != nil {
		return notFound(span, &status, err, ErrAdNotFound)
	}
	return nil
}

func (s *adminService) ListPayments(ctx context.Context, ps domain.PaymentStatus, page, limit int) (*PaymentPage, error) {
	ctx, span := s.tracer.Start(ctx, "AdminListPayments")
	defer span.End()

	status := "success"
	defer s.metrics.Observe("AdminListPayments", &status, time.Now())

	if ps != "" && !domain.ValidPaymentStatus(ps) {
		status = "invalid_input"
		return nil, ErrInvalidStatus
	}
	limit, offset := PageBounds(page, limit)

	payments, err := s.payments.List(ctx, ps, limit, offset)
	if err != nil {
		return nil, fail(span, &status, err)
	}

	total, err := s.payments.Count(ctx, ps)
	if err != nil {
		return nil, fail(span, &status, err)
	}

	return &PaymentPage{Payments: payments, Pagination: paginate(total, limit, offset)}, nil
}
