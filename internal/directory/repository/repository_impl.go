package repository

import (
	"context"

	"github.com/skolara/skolara/internal/directory/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) ListParentIDsByClassroom(ctx context.Context, db *gorm.DB, schoolID, classroomID int64) ([]int64, error) {
	var ids []int64
	err := db.WithContext(ctx).Raw(
		`SELECT DISTINCT g.parent_user_id
		 FROM guardianships g
		 JOIN users s ON s.id = g.student_user_id
		 WHERE s.school_id = ? AND s.classroom_id = ?`,
		schoolID,
		classroomID,
	).Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *repo) ListStudentIDsByClassroom(ctx context.Context, db *gorm.DB, schoolID, classroomID int64) ([]int64, error) {
	var ids []int64
	err := db.WithContext(ctx).Raw(
		`SELECT id FROM users
		 WHERE school_id = ? AND classroom_id = ? AND role = 'student'`,
		schoolID,
		classroomID,
	).Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *repo) ListUserIDsByRole(ctx context.Context, db *gorm.DB, schoolID int64, role string) ([]int64, error) {
	var ids []int64
	err := db.WithContext(ctx).Raw(
		`SELECT id FROM users WHERE school_id = ? AND role = ?`,
		schoolID,
		role,
	).Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *repo) FindContact(ctx context.Context, db *gorm.DB, userID int64) (*domain.Contact, error) {
	var user domain.User
	err := db.WithContext(ctx).Raw(
		`SELECT id, full_name, email, phone, push_token FROM users WHERE id = ?`,
		userID,
	).Scan(&user).Error
	if err != nil {
		return nil, err
	}
	if user.ID == 0 {
		return nil, nil
	}
	return &domain.Contact{
		UserID:    user.ID,
		FullName:  user.FullName,
		Email:     user.Email,
		Phone:     user.Phone,
		PushToken: user.PushToken,
	}, nil
}
