package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/skolara/skolara/internal/notification/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertNotification(ctx context.Context, db *gorm.DB, n *domain.Notification) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO notifications (id, school_id, user_id, category, type, title, body, request_id, data, priority, is_read, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID,
		n.SchoolID,
		n.UserID,
		n.Category,
		n.Type,
		n.Title,
		n.Body,
		n.RequestID,
		n.Data,
		n.Priority,
		n.IsRead,
		n.CreatedAt,
	).Error
}

func (r *repo) ListNotifications(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]*domain.Notification, error) {
	var notifications []*domain.Notification
	stmt := db.WithContext(ctx).
		Model(&domain.Notification{}).
		Where("user_id = ?", filter.UserID)
	if filter.SchoolID != nil {
		stmt = stmt.Where("school_id = ?", *filter.SchoolID)
	}
	if filter.Category != "" {
		stmt = stmt.Where("category = ?", filter.Category)
	}
	if filter.UnreadOnly {
		stmt = stmt.Where("is_read = ?", false)
	}
	if filter.Cursor != nil {
		stmt = stmt.Where(
			"(created_at < ?) OR (created_at = ? AND id < ?)",
			filter.Cursor.CreatedAt, filter.Cursor.CreatedAt, filter.Cursor.ID,
		)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	err := stmt.
		Order("created_at desc, id desc").
		Limit(limit + 1).
		Find(&notifications).Error
	if err != nil {
		return nil, err
	}
	return notifications, nil
}

func (r *repo) CountUnread(ctx context.Context, db *gorm.DB, userID int64, schoolID *int64) (int64, error) {
	var count int64
	stmt := db.WithContext(ctx).
		Model(&domain.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false)
	if schoolID != nil {
		stmt = stmt.Where("school_id = ?", *schoolID)
	}
	if err := stmt.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *repo) MarkRead(ctx context.Context, db *gorm.DB, userID int64, id snowflake.ID, at time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE notifications SET is_read = ?, read_at = ? WHERE id = ? AND user_id = ? AND is_read = ?`,
		true, at, id, userID, false,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) MarkAllRead(ctx context.Context, db *gorm.DB, userID int64, schoolID *int64, at time.Time) (int64, error) {
	stmt := db.WithContext(ctx).
		Model(&domain.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false)
	if schoolID != nil {
		stmt = stmt.Where("school_id = ?", *schoolID)
	}
	result := stmt.Updates(map[string]any{
		"is_read": true,
		"read_at": at,
	})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *repo) ListPreferences(ctx context.Context, db *gorm.DB, userID int64) ([]*domain.NotificationPreference, error) {
	var prefs []*domain.NotificationPreference
	err := db.WithContext(ctx).
		Model(&domain.NotificationPreference{}).
		Where("user_id = ?", userID).
		Order("channel asc").
		Find(&prefs).Error
	if err != nil {
		return nil, err
	}
	return prefs, nil
}

// UpsertPreference keeps the one-row-per-(user, channel) invariant. The
// conflict clause goes through gorm so each dialect gets its own upsert
// syntax.
func (r *repo) UpsertPreference(ctx context.Context, db *gorm.DB, pref *domain.NotificationPreference) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "channel"}},
			DoUpdates: clause.AssignmentColumns([]string{"enabled", "min_priority", "config", "updated_at"}),
		}).
		Create(pref).Error
}

// key is a reserved word on mysql, so template lookups use map conditions
// and quoted order clauses instead of raw fragments.
func (r *repo) FindActiveTemplate(ctx context.Context, db *gorm.DB, key string, schoolID *int64) (*domain.NotificationTemplate, error) {
	stmt := db.WithContext(ctx).
		Model(&domain.NotificationTemplate{}).
		Where(map[string]any{"key": key, "is_active": true})
	return findOneTemplate(stmt, schoolID)
}

func (r *repo) FindTemplateByKey(ctx context.Context, db *gorm.DB, key string, schoolID *int64) (*domain.NotificationTemplate, error) {
	stmt := db.WithContext(ctx).
		Model(&domain.NotificationTemplate{}).
		Where(map[string]any{"key": key})
	return findOneTemplate(stmt, schoolID)
}

func findOneTemplate(stmt *gorm.DB, schoolID *int64) (*domain.NotificationTemplate, error) {
	if schoolID != nil {
		stmt = stmt.Where("school_id = ?", *schoolID)
	} else {
		stmt = stmt.Where("school_id IS NULL")
	}

	var tmpl domain.NotificationTemplate
	err := stmt.Limit(1).Scan(&tmpl).Error
	if err != nil {
		return nil, err
	}
	if tmpl.ID == 0 {
		return nil, nil
	}
	return &tmpl, nil
}

func (r *repo) InsertTemplate(ctx context.Context, db *gorm.DB, tmpl *domain.NotificationTemplate) error {
	return db.WithContext(ctx).Create(tmpl).Error
}

func (r *repo) UpdateTemplate(ctx context.Context, db *gorm.DB, tmpl *domain.NotificationTemplate) error {
	return db.WithContext(ctx).Exec(
		`UPDATE notification_templates SET default_channel = ?, title_template = ?, body_template = ?, is_active = ?, updated_at = ?
		 WHERE id = ?`,
		tmpl.DefaultChannel,
		tmpl.TitleTemplate,
		tmpl.BodyTemplate,
		tmpl.IsActive,
		tmpl.UpdatedAt,
		tmpl.ID,
	).Error
}

func (r *repo) ListTemplates(ctx context.Context, db *gorm.DB, schoolID *int64) ([]*domain.NotificationTemplate, error) {
	var templates []*domain.NotificationTemplate
	stmt := db.WithContext(ctx).Model(&domain.NotificationTemplate{})
	if schoolID != nil {
		stmt = stmt.Where("school_id = ? OR school_id IS NULL", *schoolID)
	} else {
		stmt = stmt.Where("school_id IS NULL")
	}
	err := stmt.Order(clause.OrderByColumn{Column: clause.Column{Name: "key"}}).Find(&templates).Error
	if err != nil {
		return nil, err
	}
	return templates, nil
}
