package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"classifieds/internal/domain"
	"classifieds/internal/infrastructure/cache"
	"classifieds/internal/infrastructure/metrics"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	adCacheTTL          = 10 * time.Minute
	defaultPageCacheTTL = time.Minute
	defaultPageCacheKey = "ads:default_page"
)

const adColumns = `id, user_id, title, description, price, currency, category, location, images,
	status, moderation_note, featured_until, views, created_at, updated_at`

type AdRepository interface {
	List(ctx context.Context, filter domain.AdFilter) ([]*domain.Ad, error)
	Count(ctx context.Context, filter domain.AdFilter) (int, error)
	GetByID(ctx context.Context, id int64) (*domain.Ad, error)
	GetByIDUncached(ctx context.Context, id int64) (*domain.Ad, error)
	GetCached(ctx context.Context, id int64) (*domain.Ad, error)
	InvalidateCache(ctx context.Context, id int64) error
	Create(ctx context.Context, ad *domain.Ad) (*domain.Ad, error)
	Update(ctx context.Context, ad *domain.Ad) (*domain.Ad, error)
	UpdateStatus(ctx context.Context, id int64, status domain.AdStatus, note string) error
	IncrementViews(ctx context.Context, id int64) error
	Delete(ctx context.Context, id int64) error
	CountByStatus(ctx context.Context) (map[domain.AdStatus]int, error)
}

type mysqlAdRepository struct {
	db      *sql.DB
	cache   cache.Cache
	metrics *metrics.RepositoryMetrics
	tracer  trace.Tracer
	now     func() time.Time
}

func NewMysqlAdRepository(db *sql.DB, cache cache.Cache, metrics *metrics.RepositoryMetrics) AdRepository {
	tracer := otel.Tracer("classifieds/repository")
	return &mysqlAdRepository{
		db:      db,
		cache:   cache,
		metrics: metrics,
		tracer:  tracer,
		now:     time.Now,
	}
}

func adCacheKey(id int64) string {
	return fmt.Sprintf("ad:%d", id)
}

func scanAd(row rowScanner) (*domain.Ad, error) {
	var (
		ad            domain.Ad
		images        []byte
		status        string
		featuredUntil sql.NullTime
	)

	err := row.Scan(
		&ad.ID,
		&ad.UserID,
		&ad.Title,
		&ad.Description,
		&ad.Price,
		&ad.Currency,
		&ad.Category,
		&ad.Location,
		&images,
		&status,
		&ad.ModerationNote,
		&featuredUntil,
		&ad.Views,
		&ad.CreatedAt,
		&ad.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	ad.Status = domain.AdStatus(status)
	ad.Images = []string{}
	if len(images) > 0 {
		if err := json.Unmarshal(images, &ad.Images); err != nil {
			return nil, fmt.Errorf("failed to decode images of ad %d: %w", ad.ID, err)
		}
	}
	if featuredUntil.Valid {
		t := featuredUntil.Time
		ad.FeaturedUntil = &t
		ad.Featured = ad.IsFeaturedAt(time.Now())
	}

	return &ad, nil
}

// markFeatured recomputes Featured, which goes stale while an ad sits in the cache.
func (r *mysqlAdRepository) markFeatured(ads ...*domain.Ad) {
	now := r.now()
	for _, ad := range ads {
		ad.Featured = ad.IsFeaturedAt(now)
	}
}

// Backslash is MySQL's default LIKE escape character.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func containsPattern(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}

func encodeImages(images []string) (string, error) {
	if images == nil {
		images = []string{}
	}
	b, err := json.Marshal(images)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func adWhere(f domain.AdFilter) (string, []interface{}) {
	var (
		conds []string
		args  []interface{}
	)

	if f.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.OwnerID != 0 {
		conds = append(conds, "user_id = ?")
		args = append(args, f.OwnerID)
	}
	if f.Category != "" {
		conds = append(conds, "category = ?")
		args = append(args, f.Category)
	}
	if f.Query != "" {
		like := containsPattern(f.Query)
		conds = append(conds, "(title LIKE ? OR description LIKE ?)")
		args = append(args, like, like)
	}
	if f.Location != "" {
		conds = append(conds, "location LIKE ?")
		args = append(args, containsPattern(f.Location))
	}
	if f.MinPrice != nil {
		conds = append(conds, "price >= ?")
		args = append(args, *f.MinPrice)
	}
	if f.MaxPrice != nil {
		conds = append(conds, "price <= ?")
		args = append(args, *f.MaxPrice)
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (r *mysqlAdRepository) List(ctx context.Context, f domain.AdFilter) ([]*domain.Ad, error) {
	ctx, span := r.tracer.Start(ctx, "Repository ListAds")
	defer span.End()

	status := "success"
	defer r.metrics.Observe("ListAds", &status, time.Now())

	f.Normalize()
	cacheable := f.IsDefaultPublicPage()

	if cacheable {
		cacheSpanCtx, cacheSpan := r.tracer.Start(ctx, "Redis Get")
		cachedAds, err := r.cache.Get(cacheSpanCtx, defaultPageCacheKey)
		cacheSpan.End()

		if err == nil {
			var ads []*domain.Ad
			if err := json.Unmarshal([]byte(cachedAds), &ads); err == nil {
				r.markFeatured(ads...)
				status = "cache_hit"
				return ads, nil
			}
		}
	}

	where, args := adWhere(f)
	// SortBy and Order are whitelisted by Normalize. featured_until is stored
	// in UTC, so it is compared against a bound UTC time rather than NOW(),
	// which follows the session time zone.
	query := fmt.Sprintf(`
		SELECT %s
		FROM ads%s
		ORDER BY (featured_until IS NOT NULL AND featured_until > ?) DESC, %s %s, id DESC
		LIMIT ? OFFSET ?`, adColumns, where, f.SortBy, f.Order)
	args = append(args, r.now().UTC(), f.Limit, f.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		recordError(span, &status, err)
		span.SetAttributes(
			attribute.Int("limit", f.Limit),
			attribute.Int("offset", f.Offset),
			attribute.String("sort_by", f.SortBy),
			attribute.String("order", f.Order),
		)
		return nil, fmt.Errorf("failed to retrieve ads: %w", err)
	}
	defer rows.Close()

	ads := []*domain.Ad{}
	for rows.Next() {
		ad, err := scanAd(rows)
		if err != nil {
			recordError(span, &status, err)
			return nil, fmt.Errorf("failed to scan ad: %w", err)
		}
		ads = append(ads, ad)
	}

	if err := rows.Err(); err != nil {
		recordError(span, &status, err)
		return nil, fmt.Errorf("rows error: %w", err)
	}

	if cacheable {
		adsJSON, err := json.Marshal(ads)
		if err == nil {
			cacheSpanCtx, cacheSpan := r.tracer.Start(ctx, "Redis Set")
			r.cache.Set(cacheSpanCtx, defaultPageCacheKey, string(adsJSON), defaultPageCacheTTL)
			cacheSpan.End()
		}
	}

	return ads, nil
}

func (r *mysqlAdRepository) Count(ctx context.Context, f domain.AdFilter) (int, error) {
	ctx, span := r.tracer.Start(ctx, "Repository CountAds")
	defer span.End()

	status := "success"
	defer r.metrics.Observe("CountAds", &status, time.Now())

	where, args := adWhere(f)

	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM ads"+where, args...).Scan(&count)
	if err != nil {
		recordError(span, &status, err)
		return 0, fmt.Errorf("failed to count ads: %w", err)
	}
	return count, nil
}

func (r *mysqlAdRepository) GetByID(ctx context.Context, id int64) (*domain.Ad, error) {
	ctx, span := r.tracer.Start(ctx, "Repository GetAdByID")
	defer span.End()

	span.SetAttributes(attribute.Int64("ad.id", id))

	if ad, err := r.GetCached(ctx, id); err == nil {
		return ad, nil
	}

	ad, err := r.GetByIDUncached(ctx, id)
	if err != nil {
		return nil, err
	}

	r.storeCached(ctx, ad)
	return ad, nil
}

func (r *mysqlAdRepository) GetByIDUncached(ctx context.Context, id int64) (*domain.Ad, error) {
	ctx, span := r.tracer.Start(ctx, "Repository GetAdByIDUncached")
	defer span.End()

	status := "success"
	defer r.metrics.Observe("GetAdByID", &status, time.Now())

	query := fmt.Sprintf(`SELECT %s FROM ads WHERE id = ?`, adColumns)

	ad, err := scanAd(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			status = "not_found"
			return nil, err
		}
		recordError(span, &status, err)
		return nil, err
	}
	return ad, nil
}

// GetCached returns the cached copy of an ad, or cache.ErrCacheMiss.
func (r *mysqlAdRepository) GetCached(ctx context.Context, id int64) (*domain.Ad, error) {
	cacheSpanCtx, cacheSpan := r.tracer.Start(ctx, "Redis Get")
	defer cacheSpan.End()

	cachedAd, err := r.cache.Get(cacheSpanCtx, adCacheKey(id))
	if err != nil {
		return nil, err
	}

	var ad domain.Ad
	if err := json.Unmarshal([]byte(cachedAd), &ad); err != nil {
		return nil, cache.ErrCacheMiss
	}
	r.markFeatured(&ad)
	return &ad, nil
}

func (r *mysqlAdRepository) storeCached(ctx context.Context, ad *domain.Ad) {
	adJSON, err := json.Marshal(ad)
	if err != nil {
		return
	}
	cacheSpanCtx, cacheSpan := r.tracer.Start(ctx, "Redis Set")
	r.cache.Set(cacheSpanCtx, adCacheKey(ad.ID), string(adJSON), adCacheTTL)
	cacheSpan.End()
}

func (r *mysqlAdRepository) InvalidateCache(ctx context.Context, id int64) error {
	cacheSpanCtx, cacheSpan := r.tracer.Start(ctx, "Redis Delete")
	defer cacheSpan.End()

	if err := r.cache.Delete(cacheSpanCtx, adCacheKey(id)); err != nil {
		return err
	}
	return r.cache.Delete(cacheSpanCtx, defaultPageCacheKey)
}

func (r *mysqlAdRepository) Create(ctx context.Context, ad *domain.Ad) (*domain.Ad, error) {
	ctx, span := r.tracer.Start(ctx, "Repository CreateAd")
	defer span.End()

	span.SetAttributes(
		attribute.String("ad.title", ad.Title),
		attribute.Float64("ad.price", ad.Price),
	)

	status := "success"
	defer r.metrics.Observe("CreateAd", &status, time.Now())

	images, err := encodeImages(ad.Images)
	if err != nil {
		recordError(span, &status, err)
		return nil, fmt.Errorf("failed to encode images: %w", err)
	}

	result, err := r.db.ExecContext(ctx,
		`INSERT INTO ads (user_id, title, description, price, currency, category, location, images, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ad.UserID, ad.Title, ad.Description, ad.Price, ad.Currency, ad.Category, ad.Location, images, string(ad.Status))
	if err != nil {
		recordError(span, &status, err)
		return nil, fmt.Errorf("failed to insert ad: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		recordError(span, &status, err)
		return nil, fmt.Errorf("failed to get last insert id: %w", err)
	}

	r.cache.Delete(ctx, defaultPageCacheKey)

	insertedAd, err := r.GetByIDUncached(ctx, id)
	if err != nil {
		recordError(span, &status, err)
		return nil, fmt.Errorf("failed to fetch inserted ad: %w", err)
	}

	return insertedAd, nil
}

func (r *mysqlAdRepository) Update(ctx context.Context, ad *domain.Ad) (*domain.Ad, error) {
	ctx, span := r.tracer.Start(ctx, "Repository UpdateAd")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("ad.id", ad.ID),
		attribute.String("ad.title", ad.Title),
		attribute.Float64("ad.price", ad.Price),
	)

	status := "success"
	defer r.metrics.Observe("UpdateAd", &status, time.Now())

	images, err := encodeImages(ad.Images)
	if err != nil {
		recordError(span, &status, err)
		return nil, fmt.Errorf("failed to encode images: %w", err)
	}

	query := `
		UPDATE ads
		SET title = ?, description = ?, price = ?, currency = ?, category = ?, location = ?, images = ?,
			status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		ad.Title, ad.Description, ad.Price, ad.Currency, ad.Category, ad.Location, images, string(ad.Status), ad.ID)
	if err != nil {
		recordError(span, &status, err)
		return nil, fmt.Errorf("failed to update ad: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		recordError(span, &status, err)
		return nil, fmt.Errorf("failed to retrieve rows affected: %w", err)
	}

	if rowsAffected == 0 {
		status = "not_found"
		return nil, sql.ErrNoRows
	}

	r.InvalidateCache(ctx, ad.ID)

	updatedAd, err := r.GetByIDUncached(ctx, ad.ID)
	if err != nil {
		recordError(span, &status, err)
		return nil, fmt.Errorf("failed to fetch updated ad: %w", err)
	}

	r.storeCached(ctx, updatedAd)
	return updatedAd, nil
}

func (r *mysqlAdRepository) exec(ctx context.Context, name, query string, args ...interface{}) error {
	ctx, span := r.tracer.Start(ctx, "Repository "+name)
	defer span.End()

	status := "success"
	defer r.metrics.Observe(name, &status, time.Now())

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		recordError(span, &status, err)
		return fmt.Errorf("failed to %s: %w", strings.ToLower(name), err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		recordError(span, &status, err)
		return fmt.Errorf("failed to retrieve rows affected: %w", err)
	}

	if rowsAffected == 0 {
		status = "not_found"
		return sql.ErrNoRows
	}
	return nil
}

func (r *mysqlAdRepository) UpdateStatus(ctx context.Context, id int64, status domain.AdStatus, note string) error {
	err := r.exec(ctx, "UpdateAdStatus",
		`UPDATE ads SET status = ?, moderation_note = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		string(status), note, id)
	if err != nil {
		return err
	}
	return r.InvalidateCache(ctx, id)
}

// IncrementViews leaves the cached copy alone; view counts there may lag.
func (r *mysqlAdRepository) IncrementViews(ctx context.Context, id int64) error {
	return r.exec(ctx, "IncrementAdViews", `UPDATE ads SET views = views + 1 WHERE id = ?`, id)
}

func (r *mysqlAdRepository) Delete(ctx context.Context, id int64) error {
	if err := r.exec(ctx, "DeleteAd", `DELETE FROM ads WHERE id = ?`, id); err != nil {
		return err
	}
	return r.InvalidateCache(ctx, id)
}

func (r *mysqlAdRepository) CountByStatus(ctx context.Context) (map[domain.AdStatus]int, error) {
	ctx, span := r.tracer.Start(ctx, "Repository CountAdsByStatus")
	defer span.End()

	status := "success"
	defer r.metrics.Observe("CountAdsByStatus", &status, time.Now())

	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM ads GROUP BY status`)
	if err != nil {
		recordError(span, &status, err)
		return nil, fmt.Errorf("failed to count ads by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.AdStatus]int)
	for rows.Next() {
		var (
			s string
			n int
		)
		if err := rows.Scan(&s, &n); err != nil {
			recordError(span, &status, err)
			return nil, fmt.Errorf("failed to scan ad count: %w", err)
		}
		counts[domain.AdStatus(s)] = n
	}
	if err := rows.Err(); err != nil {
		recordError(span, &status, err)
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return counts, nil
}
