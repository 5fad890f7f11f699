package qcconfig

import (
	"context"

	"github.com/opinari/fieldqc/internal/domain"
)

// Repository is the persistence contract for configuration rows.
type Repository interface {
	// FindActive returns the active configuration for the given scope.
	// A nil surveyID selects the tenant default (rows with no survey id).
	// Returns ErrNotFound when no active row matches.
	FindActive(ctx context.Context, tenantID string, surveyID *string) (*domain.QCConfig, error)

	// Create inserts cfg and deactivates any previously active configuration
	// for the same (tenant, survey) scope in the same transaction.
	Create(ctx context.Context, cfg *domain.QCConfig) error

	// List returns configuration history for a tenant, newest first, with
	// the total row count for pagination. A non-nil surveyID narrows the
	// listing to that survey's configs.
	List(ctx context.Context, tenantID string, surveyID *string, limit, offset int) ([]domain.QCConfig, int, error)
}
