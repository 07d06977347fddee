package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/sma-print-api/internal/models"
	"github.com/noah-isme/sma-print-api/pkg/catalog"
)

type seedUserStore interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User, load *models.TeacherLoad) error
}

type seedRuleStore interface {
	SaveRules(ctx context.Context, rules *models.QuotaRules) error
}

type seedResourceStore interface {
	List(ctx context.Context, activeOnly bool) ([]models.Resource, error)
	Create(ctx context.Context, resource *models.Resource) error
}

// SeedService applies the bootstrap catalog. Users and resources that already exist are left
// alone, so applying the same seed twice changes nothing.
type SeedService struct {
	users     seedUserStore
	rules     seedRuleStore
	resources seedResourceStore
	logger    *zap.Logger
}

// NewSeedService constructs a SeedService.
func NewSeedService(users seedUserStore, rules seedRuleStore, resources seedResourceStore, logger *zap.Logger) *SeedService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SeedService{users: users, rules: rules, resources: resources, logger: logger}
}

// Apply writes the seed. A rule set in the seed replaces the stored one.
func (s *SeedService) Apply(ctx context.Context, seed *catalog.Seed) error {
	if seed == nil {
		return nil
	}

	if r := seed.QuotaRules; r != nil {
		if err := s.rules.SaveRules(ctx, &models.QuotaRules{
			BasePages:          r.BasePages,
			PagesPerLesson:     r.PagesPerLesson,
			PagesPerClass:      r.PagesPerClass,
			SchoolMonthlyTotal: r.SchoolMonthlyTotal,
		}); err != nil {
			return err
		}
	}

	if len(seed.Resources) > 0 {
		existing, err := s.resources.List(ctx, false)
		if err != nil {
			return err
		}
		names := make(map[string]struct{}, len(existing))
		for _, res := range existing {
			names[strings.ToLower(res.Name)] = struct{}{}
		}
		for _, res := range seed.Resources {
			name := strings.TrimSpace(res.Name)
			if _, ok := names[strings.ToLower(name)]; ok {
				continue
			}
			if err := s.resources.Create(ctx, &models.Resource{
				Name:        name,
				Type:        strings.TrimSpace(res.Type),
				Description: strings.TrimSpace(res.Description),
				Active:      true,
			}); err != nil {
				return err
			}
			names[strings.ToLower(name)] = struct{}{}
			s.logger.Info("seeded resource", zap.String("name", name))
		}
	}

	for _, u := range seed.Users {
		email := strings.ToLower(strings.TrimSpace(u.Email))
		if _, err := s.users.FindByEmail(ctx, email); err == nil {
			continue
		} else if !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(u.Password), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		user := &models.User{
			Email:        email,
			PasswordHash: string(hash),
			FullName:     strings.TrimSpace(u.FullName),
			Role:         models.UserRole(strings.ToUpper(strings.TrimSpace(u.Role))),
			Active:       true,
		}
		var load *models.TeacherLoad
		if user.Role == models.RoleTeacher {
			load = &models.TeacherLoad{
				WeeklyLessons: u.WeeklyLessons,
				Classes:       cleanList(u.Classes),
				Subjects:      cleanList(u.Subjects),
			}
		}
		if err := s.users.Create(ctx, user, load); err != nil {
			return err
		}
		s.logger.Info("seeded user", zap.String("email", email), zap.String("role", string(user.Role)))
	}
	return nil
}
