package models

import (
	"sort"
	"strings"
)

// Shift is a named block of the school day with a fixed number of lesson slots.
type Shift struct {
	Code  string `yaml:"code" json:"code"`
	Name  string `yaml:"name" json:"name"`
	Slots int    `yaml:"slots" json:"slots"`
	Order int    `yaml:"order" json:"order"`
}

// ShiftCatalog is the configured set of shifts.
type ShiftCatalog struct {
	shifts []Shift
	byCode map[string]Shift
}

// DefaultShifts is the catalog used when no shift file is configured.
func DefaultShifts() []Shift {
	return []Shift{
		{Code: "MATUTINO", Name: "Matutino", Slots: 5, Order: 1},
		{Code: "VESPERTINO", Name: "Vespertino", Slots: 5, Order: 2},
		{Code: "VESPERTINO_EM", Name: "Vespertino Ensino Médio", Slots: 6, Order: 3},
		{Code: "INTEGRAL", Name: "Período integral", Slots: 8, Order: 4},
	}
}

// NewShiftCatalog indexes shifts by upper-cased code.
func NewShiftCatalog(shifts []Shift) *ShiftCatalog {
	c := &ShiftCatalog{byCode: make(map[string]Shift, len(shifts))}
	for _, s := range shifts {
		s.Code = strings.ToUpper(strings.TrimSpace(s.Code))
		if s.Code == "" {
			continue
		}
		c.byCode[s.Code] = s
	}
	for _, s := range c.byCode {
		c.shifts = append(c.shifts, s)
	}
	sort.SliceStable(c.shifts, func(i, j int) bool {
		if c.shifts[i].Order != c.shifts[j].Order {
			return c.shifts[i].Order < c.shifts[j].Order
		}
		return c.shifts[i].Code < c.shifts[j].Code
	})
	return c
}

// Lookup finds a shift by code, case-insensitively.
func (c *ShiftCatalog) Lookup(code string) (Shift, bool) {
	s, ok := c.byCode[strings.ToUpper(strings.TrimSpace(code))]
	return s, ok
}

// Rank is the display position of a shift; unknown shifts sort after every known one.
func (c *ShiftCatalog) Rank(code string) int {
	if s, ok := c.Lookup(code); ok {
		return s.Order
	}
	max := 0
	for _, s := range c.shifts {
		if s.Order > max {
			max = s.Order
		}
	}
	return max + 1
}

// All returns the shifts in display order.
func (c *ShiftCatalog) All() []Shift {
	out := make([]Shift, len(c.shifts))
	copy(out, c.shifts)
	return out
}
