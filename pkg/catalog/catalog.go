// Package catalog loads the operator-maintained catalog files: the shift table (YAML)
// and the bootstrap seed (TOML).
package catalog

import (
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/noah-isme/sma-print-api/internal/models"
)

type shiftFile struct {
	Shifts []models.Shift `yaml:"shifts"`
}

// LoadShifts reads the shift table from path. An empty path yields the defaults.
func LoadShifts(path string) ([]models.Shift, error) {
	if strings.TrimSpace(path) == "" {
		return models.DefaultShifts(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read shift file: %w", err)
	}
	return ParseShifts(data)
}

// ParseShifts decodes and validates a YAML shift table.
func ParseShifts(data []byte) ([]models.Shift, error) {
	var file shiftFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse shift file: %w", err)
	}
	if len(file.Shifts) == 0 {
		return nil, fmt.Errorf("shift file defines no shifts")
	}

	seen := make(map[string]struct{}, len(file.Shifts))
	for i := range file.Shifts {
		s := &file.Shifts[i]
		s.Code = strings.ToUpper(strings.TrimSpace(s.Code))
		if s.Code == "" {
			return nil, fmt.Errorf("shift %d has no code", i+1)
		}
		if _, dup := seen[s.Code]; dup {
			return nil, fmt.Errorf("shift %s defined twice", s.Code)
		}
		seen[s.Code] = struct{}{}
		if s.Slots <= 0 {
			return nil, fmt.Errorf("shift %s must have at least one slot", s.Code)
		}
		if s.Name == "" {
			s.Name = s.Code
		}
		if s.Order == 0 {
			s.Order = i + 1
		}
	}
	return file.Shifts, nil
}

// Seed is the bootstrap data applied at startup.
type Seed struct {
	QuotaRules *SeedQuotaRules `toml:"quota_rules"`
	Resources  []SeedResource  `toml:"resources"`
	Users      []SeedUser      `toml:"users"`
}

type SeedQuotaRules struct {
	BasePages          int `toml:"base_pages"`
	PagesPerLesson     int `toml:"pages_per_lesson"`
	PagesPerClass      int `toml:"pages_per_class"`
	SchoolMonthlyTotal int `toml:"school_monthly_total"`
}

type SeedResource struct {
	Name        string `toml:"name"`
	Type        string `toml:"type"`
	Description string `toml:"description"`
}

type SeedUser struct {
	FullName      string   `toml:"full_name"`
	Email         string   `toml:"email"`
	Password      string   `toml:"password"`
	Role          string   `toml:"role"`
	WeeklyLessons int      `toml:"weekly_lessons"`
	Classes       []string `toml:"classes"`
	Subjects      []string `toml:"subjects"`
}

// LoadSeed reads the TOML seed file. An empty path yields an empty seed.
func LoadSeed(path string) (*Seed, error) {
	if strings.TrimSpace(path) == "" {
		return &Seed{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	return ParseSeed(data)
}

// ParseSeed decodes and validates a TOML seed.
func ParseSeed(data []byte) (*Seed, error) {
	var seed Seed
	if err := toml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}

	if r := seed.QuotaRules; r != nil {
		if r.BasePages < 0 || r.PagesPerLesson < 0 || r.PagesPerClass < 0 || r.SchoolMonthlyTotal < 0 {
			return nil, fmt.Errorf("seed quota rules must not be negative")
		}
		if r.BasePages > models.MaxBasePages || r.PagesPerLesson > models.MaxPagesPerUnit ||
			r.PagesPerClass > models.MaxPagesPerUnit || r.SchoolMonthlyTotal > models.MaxSchoolMonthlyTotal {
			return nil, fmt.Errorf("seed quota rules exceed the allowed maximum")
		}
	}
	for i, res := range seed.Resources {
		if strings.TrimSpace(res.Name) == "" || strings.TrimSpace(res.Type) == "" {
			return nil, fmt.Errorf("seed resource %d needs a name and a type", i+1)
		}
	}
	for i, u := range seed.Users {
		if strings.TrimSpace(u.Email) == "" || u.Password == "" {
			return nil, fmt.Errorf("seed user %d needs an email and a password", i+1)
		}
		if !models.UserRole(strings.ToUpper(u.Role)).Valid() {
			return nil, fmt.Errorf("seed user %s has unknown role %q", u.Email, u.Role)
		}
	}
	return &seed, nil
}
