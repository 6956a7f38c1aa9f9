package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-exam-engine/internal/models"
)

// ActivityLogFilter narrows activity log queries. A zero PageSize returns every match.
type ActivityLogFilter struct {
	Page         int
	PageSize     int
	ActorID      string
	Action       string
	ActionPrefix string
	EntityID     string
}

// ActivityCount is one (action, severity) bucket of an activity summary.
type ActivityCount struct {
	Action   string
	Severity string
	Count    int64
}

// ActivityLogRepository persists the exam audit trail.
type ActivityLogRepository interface {
	Create(ctx context.Context, entry *models.ActivityLog) error
	List(ctx context.Context, filter ActivityLogFilter) ([]models.ActivityLog, int64, error)
	CountBy(ctx context.Context, filter ActivityLogFilter) ([]ActivityCount, error)
}

type activityLogRepository struct {
	db *gorm.DB
}

// NewActivityLogRepository constructs the activity log repository.
func NewActivityLogRepository(db *gorm.DB) ActivityLogRepository {
	return &activityLogRepository{db: db}
}

func (r *activityLogRepository) Create(ctx context.Context, entry *models.ActivityLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *activityLogRepository) List(ctx context.Context, filter ActivityLogFilter) ([]models.ActivityLog, int64, error) {
	query := r.filtered(ctx, filter)

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if filter.PageSize > 0 {
		page := filter.Page
		if page <= 0 {
			page = 1
		}
		query = query.Offset((page - 1) * filter.PageSize).Limit(filter.PageSize)
	}

	var entries []models.ActivityLog
	if err := query.Order("created_at DESC, id DESC").Find(&entries).Error; err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

// CountBy groups the matching entries by action and severity. Pagination is ignored.
func (r *activityLogRepository) CountBy(ctx context.Context, filter ActivityLogFilter) ([]ActivityCount, error) {
	var counts []ActivityCount
	err := r.filtered(ctx, filter).
		Select("action, severity, COUNT(*) AS count").
		Group("action, severity").
		Order("action, severity").
		Scan(&counts).Error
	if err != nil {
		return nil, err
	}
	return counts, nil
}

func (r *activityLogRepository) filtered(ctx context.Context, filter ActivityLogFilter) *gorm.DB {
	query := r.db.WithContext(ctx).Model(&models.ActivityLog{})
	if filter.ActorID != "" {
		query = query.Where("actor_id = ?", filter.ActorID)
	}
	if filter.Action != "" {
		query = query.Where("action = ?", filter.Action)
	}
	if filter.ActionPrefix != "" {
		query = query.Where("action LIKE ?", filter.ActionPrefix+"%")
	}
	if filter.EntityID != "" {
		query = query.Where("entity_id = ?", filter.EntityID)
	}
	return query
}
