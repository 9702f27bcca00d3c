package history

import (
	"context"

	"gorm.io/gorm"

	domain "loanflow-server/internal/domain/history"
	"loanflow-server/utils/platformerrors"
)

// Store persists processed loan applications for reporting.
type Store interface {
	Record(app *domain.Application) error
	List(ctx context.Context, status string, limit int) ([]domain.Application, error)
	ByID(ctx context.Context, id string) (*domain.Application, error)
	BySession(ctx context.Context, sessionID string) (*domain.Application, error)
	Summary(ctx context.Context) (domain.Summary, error)
}

// Repository is the PostgreSQL-backed application history store.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Record(app *domain.Application) error {
	err := r.db.Create(app).Error
	if err != nil {
		return platformerrors.NewError(
			context.Background(),
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to record loan application",
			err,
			"3f1c9a7e-2d4b-4e6f-8a0c-5b7d9e1f3a2c",
		)
	}
	return nil
}

func (r *Repository) List(ctx context.Context, status string, limit int) ([]domain.Application, error) {
	query := r.db.WithContext(ctx).Order("created_at DESC")
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	var apps []domain.Application
	if err := query.Find(&apps).Error; err != nil {
		return nil, platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to list loan applications",
			err,
			"8c2e5f7a-1b3d-4c6e-9f0a-2d4b6e8f0a1c",
		)
	}
	return apps, nil
}

func (r *Repository) ByID(ctx context.Context, id string) (*domain.Application, error) {
	var app domain.Application
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&app).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, platformerrors.NewError(
				ctx,
				platformerrors.LayerRepository,
				platformerrors.ErrorTypeNotFound,
				"loan application not found",
				err,
				"5a7c9e1f-3b2d-4f6a-8c0e-7d9f1a3b5c7e",
			)
		}
		return nil, platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to get loan application",
			err,
			"6b8d0f2a-4c3e-4a7b-9d1f-8e0a2c4d6e8f",
		)
	}
	return &app, nil
}

func (r *Repository) BySession(ctx context.Context, sessionID string) (*domain.Application, error) {
	var app domain.Application
	err := r.db.WithContext(ctx).Where("session_id = ?", sessionID).Order("created_at DESC").First(&app).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, platformerrors.NewError(
				ctx,
				platformerrors.LayerRepository,
				platformerrors.ErrorTypeNotFound,
				"no loan application for session",
				err,
				"9e1f3a5b-7c6d-4e8f-0a2b-3c5d7e9f1a3b",
			)
		}
		return nil, platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to get loan application by session",
			err,
			"0a2c4e6f-8b1d-4c3e-5f7a-9d0b2e4f6a8c",
		)
	}
	return &app, nil
}

func (r *Repository) Summary(ctx context.Context) (domain.Summary, error) {
	apps, err := r.List(ctx, "", 0)
	if err != nil {
		return domain.Summary{}, err
	}
	return summarize(apps), nil
}

// summarize aggregates counters and amounts over a set of applications.
func summarize(apps []domain.Application) domain.Summary {
	summary := domain.Summary{TotalApplications: len(apps)}

	var amountSum float64
	for _, app := range apps {
		amountSum += app.RequestedAmount
		switch app.Status {
		case domain.StatusApproved:
			summary.Approved++
			summary.TotalApprovedSum += app.ApprovedAmount
		case domain.StatusRejected:
			summary.Rejected++
		default:
			summary.Pending++
		}
	}
	if len(apps) > 0 {
		summary.AverageAmount = amountSum / float64(len(apps))
		summary.ApprovalRate = float64(summary.Approved) / float64(len(apps)) * 100
	}
	return summary
}
