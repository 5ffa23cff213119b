package service

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strings"
	"time"

	"classifieds/internal/domain"
	"classifieds/internal/infrastructure/cache"
	"classifieds/internal/infrastructure/metrics"
	"classifieds/internal/infrastructure/payment"
	"classifieds/internal/repository"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

type DuplicateGroup struct {
	Key   string         `json:"key"`
	Field string         `json:"field"`
	Users []*domain.User `json:"users"`
}

type AdVisibilityReport struct {
	AdID         int64             `json:"ad_id"`
	Visible      bool              `json:"visible"`
	Status       domain.AdStatus   `json:"status"`
	OwnerID      int64             `json:"owner_id"`
	OwnerStatus  domain.UserStatus `json:"owner_status,omitempty"`
	Cached       bool              `json:"cached"`
	CachedStatus domain.AdStatus   `json:"cached_status,omitempty"`
	CacheStale   bool              `json:"cache_stale"`
	Reasons      []string          `json:"reasons"`
}

type CacheResyncReport struct {
	AdID      int64      `json:"ad_id"`
	WasCached bool       `json:"was_cached"`
	Differed  bool       `json:"differed"`
	Ad        *domain.Ad `json:"ad"`
}

type AdminCheckReport struct {
	UserID      int64             `json:"user_id"`
	Exists      bool              `json:"exists"`
	Role        domain.Role       `json:"role,omitempty"`
	Status      domain.UserStatus `json:"status,omitempty"`
	AdminAccess bool              `json:"admin_access"`
	Reasons     []string          `json:"reasons"`
}

type PaymentCheckReport struct {
	Reconciliation
	ProviderStatus string `json:"provider_status,omitempty"`
	Consistent     bool   `json:"consistent"`
}

// DiagnosticsService answers operator questions about data that looks wrong
// from the outside and repairs the few things that can be repaired safely.
type DiagnosticsService interface {
	DuplicateAccounts(ctx context.Context) ([]DuplicateGroup, error)
	AdVisibility(ctx context.Context, adID int64) (*AdVisibilityReport, error)
	ResyncAdCache(ctx context.Context, adID int64) (*CacheResyncReport, error)
	AdminCheck(ctx context.Context, userID int64) (*AdminCheckReport, error)
	VerifyPayment(ctx context.Context, paymentID int64) (*PaymentCheckReport, error)
}

type diagnosticsService struct {
	users    repository.UserRepository
	ads      repository.AdRepository
	payments PaymentService
	metrics  *metrics.ServiceMetrics
	tracer   trace.Tracer
}

func NewDiagnosticsService(users repository.UserRepository, ads repository.AdRepository, payments PaymentService, metrics *metrics.ServiceMetrics) DiagnosticsService {
	return &diagnosticsService{
		users:    users,
		ads:      ads,
		payments: payments,
		metrics:  metrics,
		tracer:   otel.Tracer("classifieds/service"),
	}
}

func (s *diagnosticsService) DuplicateAccounts(ctx context.Context) ([]DuplicateGroup, error) {
	ctx, span := s.tracer.Start(ctx, "DuplicateAccounts")
	defer span.End()

	status := "success"
	defer s.metrics.Observe("DuplicateAccounts", &status, time.Now())

	users, err := s.users.ListAll(ctx)
	if err != nil {
		return nil, fail(span, &status, err)
	}

	byEmail := map[string][]*domain.User{}
	byPhone := map[string][]*domain.User{}
	for _, u := range users {
		key := domain.CanonicalEmail(u.Email)
		byEmail[key] = append(byEmail[key], u)
		if phone := normalizePhone(u.Phone); phone != "" {
			byPhone[phone] = append(byPhone[phone], u)
		}
	}

	groups := []DuplicateGroup{}
	collect := func(field string, index map[string][]*domain.User) {
		for key, members := range index {
			if len(members) > 1 {
				groups = append(groups, DuplicateGroup{Key: key, Field: field, Users: members})
			}
		}
	}
	collect("email", byEmail)
	collect("phone", byPhone)

	sort.Slice(groups, func(i, j int) bool {
		if groups[i].Field != groups[j].Field {
			return groups[i].Field < groups[j].Field
		}
		return groups[i].Key < groups[j].Key
	})
	return groups, nil
}

// normalizePhone keeps digits and a leading plus sign.
func normalizePhone(phone string) string {
	var b strings.Builder
	for i, r := range strings.TrimSpace(phone) {
		if (r >= '0' && r <= '9') || (r == '+' && i == 0) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func (s *diagnosticsService) AdVisibility(ctx context.Context, adID int64) (*AdVisibilityReport, error) {
	ctx, span := s.tracer.Start(ctx, "AdVisibility")
	defer span.End()

	status := "success"
	defer s.metrics.Observe("AdVisibility", &status, time.Now())

	if adID <= 0 {
		status = "invalid_id"
		return nil, ErrInvalidID
	}

	ad, err := s.ads.GetByIDUncached(ctx, adID)
	if err != nil {
		return nil, notFound(span, &status, err, ErrAdNotFound)
	}

	report := &AdVisibilityReport{
		AdID:    ad.ID,
		Status:  ad.Status,
		OwnerID: ad.UserID,
		Visible: ad.IsVisible(),
		Reasons: []string{},
	}

	switch ad.Status {
	case domain.AdStatusActive:
	case domain.AdStatusPending:
		report.Reasons = append(report.Reasons, "ad is waiting for moderation")
	case domain.AdStatusRejected:
		reason := "ad was rejected by a moderator"
		if ad.ModerationNote != "" {
			reason += ": " + ad.ModerationNote
		}
		report.Reasons = append(report.Reasons, reason)
	default:
		report.Reasons = append(report.Reasons, "ad is "+string(ad.Status))
	}

	owner, err := s.users.GetByID(ctx, ad.UserID)
	switch {
	case err == nil:
		report.OwnerStatus = owner.Status
		if owner.IsBanned() {
			report.Reasons = append(report.Reasons, "owner is banned")
		}
	case errors.Is(err, sql.ErrNoRows):
		report.Reasons = append(report.Reasons, "owner account no longer exists")
	default:
		return nil, fail(span, &status, err)
	}

	cached, err := s.ads.GetCached(ctx, adID)
	switch {
	case err == nil:
		report.Cached = true
		report.CachedStatus = cached.Status
		report.CacheStale = adDiffers(cached, ad)
		if report.CacheStale {
			report.Reasons = append(report.Reasons, "cached copy differs from the database")
		}
	case errors.Is(err, cache.ErrCacheMiss):
	default:
		return nil, fail(span, &status, err)
	}

	return report, nil
}

func (s *diagnosticsService) ResyncAdCache(ctx context.Context, adID int64) (*CacheResyncReport, error) {
	ctx, span := s.tracer.Start(ctx, "ResyncAdCache")
	defer span.End()

	status := "success"
	defer s.metrics.Observe("ResyncAdCache", &status, time.Now())

	if adID <= 0 {
		status = "invalid_id"
		return nil, ErrInvalidID
	}

	report := &CacheResyncReport{AdID: adID}

	cached, err := s.ads.GetCached(ctx, adID)
	switch {
	case err == nil:
		report.WasCached = true
	case errors.Is(err, cache.ErrCacheMiss):
	default:
		return nil, fail(span, &status, err)
	}

	if err := s.ads.InvalidateCache(ctx, adID); err != nil {
		return nil, fail(span, &status, err)
	}

	// GetByID repopulates the cache from MySQL.
	fresh, err := s.ads.GetByID(ctx, adID)
	if err != nil {
		return nil, notFound(span, &status, err, ErrAdNotFound)
	}

	report.Ad = fresh
	report.Differed = cached != nil && adDiffers(cached, fresh)
	return report, nil
}

func adDiffers(a, b *domain.Ad) bool {
	if a.Status != b.Status || a.Title != b.Title || a.Price != b.Price ||
		a.Description != b.Description || a.Category != b.Category || a.Location != b.Location {
		return true
	}
	if !a.UpdatedAt.Equal(b.UpdatedAt) {
		return true
	}
	if (a.FeaturedUntil == nil) != (b.FeaturedUntil == nil) {
		return true
	}
	return a.FeaturedUntil != nil && !a.FeaturedUntil.Equal(*b.FeaturedUntil)
}

func (s *diagnosticsService) AdminCheck(ctx context.Context, userID int64) (*AdminCheckReport, error) {
	ctx, span := s.tracer.Start(ctx, "AdminCheck")
	defer span.End()

	status := "success"
	defer s.metrics.Observe("AdminCheck", &status, time.Now())

	if userID <= 0 {
		status = "invalid_id"
		return nil, ErrInvalidID
	}

	report := &AdminCheckReport{UserID: userID, Reasons: []string{}}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			report.Reasons = append(report.Reasons, "user does not exist")
			return report, nil
		}
		return nil, fail(span, &status, err)
	}

	report.Exists = true
	report.Role = user.Role
	report.Status = user.Status
	report.AdminAccess = user.IsAdmin()

	if user.Role != domain.RoleAdmin {
		report.Reasons = append(report.Reasons, "role is "+string(user.Role))
	}
	if user.IsBanned() {
		report.Reasons = append(report.Reasons, "user is banned")
	}
	return report, nil
}

func (s *diagnosticsService) VerifyPayment(ctx context.Context, paymentID int64) (*PaymentCheckReport, error) {
	ctx, span := s.tracer.Start(ctx, "DiagnoseVerifyPayment")
	defer span.End()

	status := "success"
	defer s.metrics.Observe("DiagnoseVerifyPayment", &status, time.Now())

	rec, err := s.payments.Reconcile(ctx, paymentID)
	if err != nil {
		return nil, fail(span, &status, err)
	}

	report := &PaymentCheckReport{Reconciliation: *rec}
	if rec.Session == nil {
		report.Consistent = rec.Payment.Status == domain.PaymentStatusPending
		return report, nil
	}

	report.ProviderStatus = string(rec.Session.Status)
	report.Consistent = paymentMatchesSession(rec.Payment.Status, rec.Session)
	return report, nil
}

func paymentMatchesSession(ps domain.PaymentStatus, session *payment.Session) bool {
	switch {
	case session.Paid:
		return ps == domain.PaymentStatusPaid
	case session.Status == payment.SessionExpired:
		return ps == domain.PaymentStatusCancelled || ps == domain.PaymentStatusFailed
	default:
		return ps == domain.PaymentStatusPending
	}
}
