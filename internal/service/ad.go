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

type PaginationResult struct {
	Ads []*domain.Ad `json:"ads"`
	Pagination
}

// AdInput carries the user-editable fields of an ad.
type AdInput struct {
	Title       string
	Description string
	Price       float64
	Currency    string
	Category    string
	Location    string
	Images      []string
}

type AdService interface {
	List(ctx context.Context, filter domain.AdFilter) (*PaginationResult, error)
	Get(ctx context.Context, id int64, viewer Viewer) (*domain.Ad, error)
	Create(ctx context.Context, userID int64, in AdInput) (*domain.Ad, error)
	Update(ctx context.Context, userID, id int64, in AdInput) (*domain.Ad, error)
	ChangeStatus(ctx context.Context, userID, id int64, to domain.AdStatus) (*domain.Ad, error)
	Delete(ctx context.Context, viewer Viewer, id int64) error
	ListByOwner(ctx context.Context, userID int64, filter domain.AdFilter) (*PaginationResult, error)
}

type adService struct {
	ads         repository.AdRepository
	users       repository.UserRepository
	events      EventPublisher
	autoApprove bool
	metrics     *metrics.ServiceMetrics
	tracer      trace.Tracer
}

func NewAdService(ads repository.AdRepository, users repository.UserRepository, events EventPublisher, autoApprove bool, metrics *metrics.ServiceMetrics) AdService {
	if events == nil {
		events = NopPublisher{}
	}
	return &adService{
		ads:         ads,
		users:       users,
		events:      events,
		autoApprove: autoApprove,
		metrics:     metrics,
		tracer:      otel.Tracer("classifieds/service"),
	}
}

func (s *adService) page(ctx context.Context, span trace.Span, status *string, filter domain.AdFilter) (*PaginationResult, error) {
	filter.Normalize()

	ads, err := s.ads.List(ctx, filter)
	if err != nil {
		return nil, fail(span, status, err)
	}

	total, err := s.ads.Count(ctx, filter)
	if err != nil {
		return nil, fail(span, status, err)
	}

	return &PaginationResult{
		Ads:        ads,
		Pagination: paginate(total, filter.Limit, filter.Offset),
	}, nil
}

func (s *adService) List(ctx context.Context, filter domain.AdFilter) (*PaginationResult, error) {
	ctx, span := s.tracer.Start(ctx, "ListAds")
	defer span.End()

	status := "success"
	defer s.metrics.Observe("ListAds", &status, time.Now())

	filter.Status = domain.AdStatusActive
	filter.OwnerID = 0

	return s.page(ctx, span, &status, filter)
}

func (s *adService) ListByOwner(ctx context.Context, userID int64, filter domain.AdFilter) (*PaginationResult, error) {
	ctx, span := s.tracer.Start(ctx, "ListAdsByOwner")
	defer span.End()

	status := "success"
	defer s.metrics.Observe("ListAdsByOwner", &status, time.Now())

	if userID <= 0 {
		status = "invalid_id"
		return nil, ErrInvalidID
	}
	if filter.Status != "" && !domain.ValidAdStatus(filter.Status) {
		status = "invalid_status"
		return nil, ErrInvalidStatus
	}
	filter.OwnerID = userID

	return s.page(ctx, span, &status, filter)
}

func (s *adService) Get(ctx context.Context, id int64, viewer Viewer) (*domain.Ad, error) {
	ctx, span := s.tracer.Start(ctx, "GetAd")
	defer span.End()

	status := "success"
	defer s.metrics.Observe("GetAd", &status, time.Now())

	if id <= 0 {
		status = "invalid_id"
		return nil, ErrInvalidID
	}

	ad, err := s.ads.GetByID(ctx, id)
	if err != nil {
		span.SetAttributes(attribute.Int64("ad_id", id))
		return nil, notFound(span, &status, err, ErrAdNotFound)
	}

	isOwner := viewer.UserID != 0 && viewer.UserID == ad.UserID
	if !ad.IsVisible() && !isOwner && !viewer.IsAdmin() {
		status = "not_found"
		return nil, ErrAdNotFound
	}

	if !isOwner && ad.IsVisible() {
		// A failed counter update must not hide the ad.
		if err := s.ads.IncrementViews(ctx, id); err != nil {
			span.RecordError(err)
		} else {
			ad.Views++
		}
	}

	return ad, nil
}

func (s *adService) Create(ctx context.Context, userID int64, in AdInput) (*domain.Ad, error) {
	ctx, span := s.tracer.Start(ctx, "CreateAd")
	defer span.End()

	status := "success"
	defer s.metrics.Observe("CreateAd", &status, time.Now())

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, notFound(span, &status, err, ErrUserNotFound)
	}
	if user.IsBanned() {
		status = "forbidden"
		return nil, ErrUserBanned
	}

	ad := &domain.Ad{
		UserID: userID,
		Status: domain.AdStatusPending,
	}
	if s.autoApprove {
		ad.Status = domain.AdStatusActive
	}
	applyInput(ad, in)

	created, err := s.ads.Create(ctx, ad)
	if err != nil {
		return nil, fail(span, &status, err)
	}
	return created, nil
}

func (s *adService) Update(ctx context.Context, userID, id int64, in AdInput) (*domain.Ad, error) {
	ctx, span := s.tracer.Start(ctx, "UpdateAd")
	defer span.End()

	status := "success"
	defer s.metrics.Observe("UpdateAd", &status, time.Now())

	if id <= 0 {
		status = "invalid_id"
		return nil, ErrInvalidID
	}

	ad, err := s.ads.GetByIDUncached(ctx, id)
	if err != nil {
		return nil, notFound(span, &status, err, ErrAdNotFound)
	}
	if ad.UserID != userID {
		status = "forbidden"
		return nil, ErrForbidden
	}
	if !ad.IsEditable() {
		status = "not_editable"
		return nil, ErrAdNotEditable
	}

	previous := ad.Status
	if ad.Status == domain.AdStatusRejected {
		ad.Status = domain.AdStatusPending
		ad.ModerationNote = ""
	}
	applyInput(ad, in)

	updated, err := s.ads.Update(ctx, ad)
	if err != nil {
		return nil, notFound(span, &status, err, ErrAdNotFound)
	}

	if previous != updated.Status {
		publishAdStatus(ctx, span, s.events, updated)
	}
	return updated, nil
}

func (s *adService) ChangeStatus(ctx context.Context, userID, id int64, to domain.AdStatus) (*domain.Ad, error) {
	ctx, span := s.tracer.Start(ctx, "ChangeAdStatus")
	defer span.End()

	status := "success"
	defer s.metrics.Observe("ChangeAdStatus", &status, time.Now())

	if id <= 0 {
		status = "invalid_id"
		return nil, ErrInvalidID
	}

	ad, err := s.ads.GetByIDUncached(ctx, id)
	if err != nil {
		return nil, notFound(span, &status, err, ErrAdNotFound)
	}
	if ad.UserID != userID {
		status = "forbidden"
		return nil, ErrForbidden
	}
	if !domain.CanTransition(domain.ActorOwner, ad.Status, to) {
		status = "invalid_transition"
		return nil, ErrInvalidStatus
	}

	// A resubmitted ad skips the queue when moderation is off.
	if to == domain.AdStatusPending && s.autoApprove {
		to = domain.AdStatusActive
	}

	if err := s.ads.UpdateStatus(ctx, id, to, ""); err != nil {
		return nil, notFound(span, &status, err, ErrAdNotFound)
	}
	ad.Status = to
	ad.ModerationNote = ""

	publishAdStatus(ctx, span, s.events, ad)
	return ad, nil
}

func (s *adService) Delete(ctx context.Context, viewer Viewer, id int64) error {
	ctx, span := s.tracer.Start(ctx, "DeleteAd")
	defer span.End()

	status := "success"
	defer s.metrics.Observe("DeleteAd", &status, time.Now())

	if id <= 0 {
		status = "invalid_id"
		return ErrInvalidID
	}

	ad, err := s.ads.GetByIDUncached(ctx, id)
	if err != nil {
		return notFound(span, &status, err, ErrAdNotFound)
	}
	if ad.UserID != viewer.UserID && !viewer.IsAdmin() {
		status = "forbidden"
		return ErrForbidden
	}

	if err := s.ads.Delete(ctx, id); err != nil {
		return notFound(span, &status, err, ErrAdNotFound)
	}
	return nil
}

func publishAdStatus(ctx context.Context, span trace.Span, events EventPublisher, ad *domain.Ad) {
	err := events.Publish(ctx, domain.Event{
		Type:       domain.EventAdStatusChanged,
		Recipients: []int64{ad.UserID},
		Payload: map[string]interface{}{
			"ad_id":           ad.ID,
			"status":          ad.Status,
			"moderation_note": ad.ModerationNote,
		},
	})
	if err != nil {
		span.RecordError(err)
	}
}

func applyInput(ad *domain.Ad, in AdInput) {
	ad.Title = strings.TrimSpace(in.Title)
	ad.Description = strings.TrimSpace(in.Description)
	ad.Price = in.Price
	ad.Currency = strings.ToUpper(strings.TrimSpace(in.Currency))
	ad.Category = strings.TrimSpace(in.Category)
	ad.Location = strings.TrimSpace(in.Location)
	ad.Images = in.Images
	if ad.Images == nil {
		ad.Images = []string{}
	}
}
