package api

import (
	"math"
	"net/http"
	"strconv"
)

// PaginationParams holds parsed pagination values from query params.
type PaginationParams struct {
	Page     int
	PageSize int
	Offset   int
}

// PaginatedResponse wraps any list data with pagination metadata.
type PaginatedResponse struct {
	Items      interface{}    `json:"items"`
	Pagination PaginationMeta `json:"pagination"`
}

// PaginationMeta contains pagination metadata for the response.
type PaginationMeta struct {
	Page       int  `json:"page"`
	PageSize   int  `json:"page_size"`
	Total      int  `json:"total"`
	TotalPages int  `json:"total_pages"`
	HasMore    bool `json:"has_more"`
}

// ParsePagination extracts page and pageSize from query params with defaults.
// defaultSize is used when no pageSize param is provided; maxSize caps the
// maximum allowed page size.
func ParsePagination(r *http.Request, defaultSize, maxSize int) PaginationParams {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	size, _ := strconv.Atoi(r.URL.Query().Get("pageSize"))

	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = defaultSize
	}
	if size > maxSize {
		size = maxSize
	}

	return PaginationParams{
		Page:     page,
		PageSize: size,
		Offset:   (page - 1) * size,
	}
}

// NewPaginatedResponse builds a PaginatedResponse from items, params, and
// the total row count.
func NewPaginatedResponse(items interface{}, params PaginationParams, total int) PaginatedResponse {
	totalPages := int(math.Ceil(float64(total) / float64(params.PageSize)))
	if totalPages < 1 {
		totalPages = 1
	}

	return PaginatedResponse{
		Items: items,
		Pagination: PaginationMeta{
			Page:       params.Page,
			PageSize:   params.PageSize,
			Total:      total,
			TotalPages: totalPages,
			HasMore:    params.Page < totalPages,
		},
	}
}
