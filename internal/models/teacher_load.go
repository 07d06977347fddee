package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// StringList is a list of names persisted as a JSON array.
type StringList []string

// Value implements driver.Valuer.
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (l *StringList) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*l = StringList{}
		return nil
	case []byte:
		return l.unmarshal(v)
	case string:
		return l.unmarshal([]byte(v))
	default:
		return fmt.Errorf("unsupported type %T for StringList", value)
	}
}

func (l *StringList) unmarshal(data []byte) error {
	if len(data) == 0 {
		*l = StringList{}
		return nil
	}
	var items []string
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	*l = items
	return nil
}

// TeacherLoad is the teaching workload an admin records for a teacher.
type TeacherLoad struct {
	UserID        string     `db:"user_id" json:"user_id"`
	WeeklyLessons int        `db:"weekly_lessons" json:"weekly_lessons"`
	Classes       StringList `db:"classes" json:"classes"`
	Subjects      StringList `db:"subjects" json:"subjects"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

// ClassCount is the number of assigned classes used by the quota formula.
func (l TeacherLoad) ClassCount() int {
	return len(l.Classes)
}

// TeacherWorkload joins a teacher with their load; teachers without a load row report zeros.
type TeacherWorkload struct {
	UserID        string     `db:"user_id" json:"user_id"`
	FullName      string     `db:"full_name" json:"full_name"`
	Email         string     `db:"email" json:"email"`
	WeeklyLessons int        `db:"weekly_lessons" json:"weekly_lessons"`
	Classes       StringList `db:"classes" json:"classes"`
	Subjects      StringList `db:"subjects" json:"subjects"`
}
