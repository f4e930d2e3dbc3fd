package domain

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

type Repository interface {
	ListParentIDsByClassroom(ctx context.Context, db *gorm.DB, schoolID, classroomID int64) ([]int64, error)
	ListStudentIDsByClassroom(ctx context.Context, db *gorm.DB, schoolID, classroomID int64) ([]int64, error)
	ListUserIDsByRole(ctx context.Context, db *gorm.DB, schoolID int64, role string) ([]int64, error)
	FindContact(ctx context.Context, db *gorm.DB, userID int64) (*Contact, error)
}

// Service resolves audience selectors into recipient user IDs and looks up
// delivery addresses. Selector grammar:
//
//	classroom_parents:<classroom_id>
//	classroom_students:<classroom_id>
//	role:<role>
//	users:<id>,<id>,...
type Service interface {
	ResolveAudience(ctx context.Context, schoolID int64, audience string) ([]int64, error)
	Contact(ctx context.Context, userID int64) (Contact, error)
}

var (
	ErrInvalidAudience = errors.New("invalid_audience")
	ErrUserNotFound    = errors.New("user_not_found")
)
