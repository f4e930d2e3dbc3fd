package service

import (
	"context"
	"strconv"
	"strings"

	"github.com/skolara/skolara/internal/directory/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB   *gorm.DB
	Log  *zap.Logger
	Repo domain.Repository
}

type Service struct {
	db   *gorm.DB
	log  *zap.Logger
	repo domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:   p.DB,
		log:  p.Log.Named("directory.service"),
		repo: p.Repo,
	}
}

func (s *Service) ResolveAudience(ctx context.Context, schoolID int64, audience string) ([]int64, error) {
	selector, arg, ok := strings.Cut(strings.TrimSpace(audience), ":")
	if !ok || arg == "" {
		return nil, domain.ErrInvalidAudience
	}

	switch selector {
	case "classroom_parents":
		classroomID, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			return nil, domain.ErrInvalidAudience
		}
		return s.repo.ListParentIDsByClassroom(ctx, s.db, schoolID, classroomID)
	case "classroom_students":
		classroomID, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			return nil, domain.ErrInvalidAudience
		}
		return s.repo.ListStudentIDsByClassroom(ctx, s.db, schoolID, classroomID)
	case "role":
		role := strings.TrimSpace(arg)
		if role == "" {
			return nil, domain.ErrInvalidAudience
		}
		return s.repo.ListUserIDsByRole(ctx, s.db, schoolID, role)
	case "users":
		parts := strings.Split(arg, ",")
		ids := make([]int64, 0, len(parts))
		for _, part := range parts {
			id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
			if err != nil || id <= 0 {
				return nil, domain.ErrInvalidAudience
			}
			ids = append(ids, id)
		}
		return ids, nil
	default:
		return nil, domain.ErrInvalidAudience
	}
}

func (s *Service) Contact(ctx context.Context, userID int64) (domain.Contact, error) {
	contact, err := s.repo.FindContact(ctx, s.db, userID)
	if err != nil {
		return domain.Contact{}, err
	}
	if contact == nil {
		return domain.Contact{}, domain.ErrUserNotFound
	}
	return *contact, nil
}
