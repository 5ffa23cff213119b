package domain

import (
	"strings"
	"time"
)

type AdStatus string

const (
	AdStatusPending  AdStatus = "pending"
	AdStatusActive   AdStatus = "active"
	AdStatusSold     AdStatus = "sold"
	AdStatusRejected AdStatus = "rejected"
	AdStatusArchived AdStatus = "archived"
)

const MaxAdImages = 10

// Actor identifies who is asking for an ad status change.
type Actor int

const (
	ActorOwner Actor = iota
	ActorAdmin
)

type Ad struct {
	ID             int64      `json:"id"`
	UserID         int64      `json:"user_id"`
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	Price          float64    `json:"price"`
	Currency       string     `json:"currency"`
	Category       string     `json:"category"`
	Location       string     `json:"location"`
	Images         []string   `json:"images"`
	Status         AdStatus   `json:"status"`
	ModerationNote string     `json:"moderation_note,omitempty"`
	Featured       bool       `json:"featured"`
	FeaturedUntil  *time.Time `json:"featured_until,omitempty"`
	Views          int64      `json:"views"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func ValidAdStatus(s AdStatus) bool {
	switch s {
	case AdStatusPending, AdStatusActive, AdStatusSold, AdStatusRejected, AdStatusArchived:
		return true
	}
	return false
}

func (a *Ad) IsVisible() bool {
	return a.Status == AdStatusActive
}

func (a *Ad) IsFeaturedAt(now time.Time) bool {
	return a.FeaturedUntil != nil && a.FeaturedUntil.After(now)
}

// IsEditable reports whether the owner may still change the ad's content.
func (a *Ad) IsEditable() bool {
	return a.Status != AdStatusSold && a.Status != AdStatusArchived
}

var ownerTransitions = map[AdStatus][]AdStatus{
	AdStatusPending:  {AdStatusArchived},
	AdStatusActive:   {AdStatusSold, AdStatusArchived},
	AdStatusArchived: {AdStatusPending},
	AdStatusRejected: {AdStatusPending},
}

var adminTransitions = map[AdStatus][]AdStatus{
	AdStatusPending: {AdStatusActive, AdStatusRejected},
	AdStatusActive:  {AdStatusRejected},
}

// CanTransition reports whether actor may move an ad from one status to another.
// Admins may additionally archive an ad from any status.
func CanTransition(actor Actor, from, to AdStatus) bool {
	if !ValidAdStatus(to) || from == to {
		return false
	}

	table := ownerTransitions
	if actor == ActorAdmin {
		if to == AdStatusArchived {
			return true
		}
		table = adminTransitions
	}

	for _, allowed := range table[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// AdFilter describes a listing query. Zero values mean "no constraint".
type AdFilter struct {
	Status   AdStatus
	OwnerID  int64
	Category string
	Query    string
	Location string
	MinPrice *float64
	MaxPrice *float64
	SortBy   string
	Order    string
	Limit    int
	Offset   int
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
	DefaultSortBy   = "created_at"
	DefaultOrder    = "DESC"
)

var sortColumns = map[string]string{
	"created_at": "created_at",
	"price":      "price",
	"views":      "views",
}

// Normalize clamps paging and replaces unknown sort options with defaults so
// that SortBy and Order are always safe to interpolate into SQL.
func (f *AdFilter) Normalize() {
	if f.Limit <= 0 {
		f.Limit = DefaultPageSize
	}
	if f.Limit > MaxPageSize {
		f.Limit = MaxPageSize
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	col, ok := sortColumns[strings.ToLower(f.SortBy)]
	if !ok {
		col = DefaultSortBy
	}
	f.SortBy = col

	order := strings.ToUpper(f.Order)
	if order != "ASC" && order != "DESC" {
		order = DefaultOrder
	}
	f.Order = order

	f.Category = strings.TrimSpace(f.Category)
	f.Query = strings.TrimSpace(f.Query)
	f.Location = strings.TrimSpace(f.Location)
}

// IsDefaultPublicPage reports whether the filter is the unfiltered first page
// of active ads, which is the only listing worth caching.
func (f *AdFilter) IsDefaultPublicPage() bool {
	return f.Status == AdStatusActive &&
		f.OwnerID == 0 &&
		f.Category == "" &&
		f.Query == "" &&
		f.Location == "" &&
		f.MinPrice == nil &&
		f.MaxPrice == nil &&
		f.SortBy == DefaultSortBy &&
		f.Order == DefaultOrder &&
		f.Limit == DefaultPageSize &&
		f.Offset == 0
}
