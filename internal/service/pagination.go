package service

import "classifieds/internal/domain"

// Viewer is the caller of an operation. The zero value is an anonymous visitor.
type Viewer struct {
	UserID int64
	Role   domain.Role
}

func (v Viewer) IsAdmin() bool {
	return v.Role == domain.RoleAdmin
}

type Pagination struct {
	CurrentPage int `json:"current_page"`
	NextPage    int `json:"next_page,omitempty"`
	PrevPage    int `json:"prev_page,omitempty"`
	TotalPages  int `json:"total_pages"`
	Total       int `json:"total"`
}

func paginate(total, limit, offset int) Pagination {
	if limit <= 0 {
		limit = domain.DefaultPageSize
	}

	totalPages := (total + limit - 1) / limit
	currentPage := (offset / limit) + 1

	p := Pagination{
		CurrentPage: currentPage,
		TotalPages:  totalPages,
		Total:       total,
	}
	if currentPage < totalPages {
		p.NextPage = currentPage + 1
	}
	if currentPage > 1 {
		p.PrevPage = currentPage - 1
	}
	return p
}

// PageBounds converts a 1-based page number into limit and offset.
func PageBounds(page, limit int) (int, int) {
	if limit <= 0 {
		limit = domain.DefaultPageSize
	}
	if limit > domain.MaxPageSize {
		limit = domain.MaxPageSize
	}
	if page <= 0 {
		page = 1
	}
	return limit, (page - 1) * limit
}
