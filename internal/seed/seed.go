package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	notificationdomain "github.com/skolara/skolara/internal/notification/domain"
	"gorm.io/gorm"
)

type templateSeed struct {
	key   string
	title string
	body  string
}

// defaultTemplates are the global fallbacks shipped with a fresh install.
// Schools override them per tenant through the admin API.
var defaultTemplates = []templateSeed{
	{
		key:   "finance.invoice.issued",
		title: "Invoice {{invoice_no}} issued",
		body:  "Invoice {{invoice_no}} of {{amount}} is due {{due_date}}.",
	},
	{
		key:   "finance.invoice.overdue",
		title: "Invoice {{invoice_no}} overdue",
		body:  "Invoice {{invoice_no}} of {{amount}} was due {{due_date}}. Please settle it as soon as possible.",
	},
	{
		key:   "finance.payment.received",
		title: "Payment received",
		body:  "We received your payment of {{amount}} for invoice {{invoice_no}}. Thank you.",
	},
	{
		key:   "academics.grade.published",
		title: "New grade published",
		body:  "A new grade for {{subject}} has been published.",
	},
	{
		key:   "attendance.absence.recorded",
		title: "Absence recorded",
		body:  "An absence was recorded for {{student_name}} on {{date}}.",
	},
	{
		key:   "enrollment.request.approved",
		title: "Enrollment approved",
		body:  "The enrollment request for {{student_name}} has been approved.",
	},
	{
		key:   "enrollment.request.rejected",
		title: "Enrollment rejected",
		body:  "The enrollment request for {{student_name}} has been rejected.",
	},
}

// EnsureDefaultTemplates inserts the global template set where missing. It
// never touches existing rows, so operator edits survive restarts.
func EnsureDefaultTemplates(db *gorm.DB, node *snowflake.Node) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}
	if node == nil {
		return errors.New("seed id generator is required")
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, seed := range defaultTemplates {
			if err := ensureTemplateTx(ctx, tx, node, seed); err != nil {
				return err
			}
		}
		return nil
	})
}

func ensureTemplateTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, seed templateSeed) error {
	var count int64
	err := tx.WithContext(ctx).
		Model(&notificationdomain.NotificationTemplate{}).
		Where(map[string]any{"key": seed.key}).
		Where("school_id IS NULL").
		Count(&count).Error
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	body := seed.body
	now := time.Now().UTC()
	tmpl := notificationdomain.NotificationTemplate{
		ID:            node.Generate(),
		Key:           seed.key,
		TitleTemplate: seed.title,
		BodyTemplate:  &body,
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	return tx.WithContext(ctx).Create(&tmpl).Error
}
