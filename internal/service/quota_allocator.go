package service

import (
	"math/bits"
	"sort"

	"github.com/noah-isme/sma-print-api/internal/models"
)

// AllocationInput is the workload of one teacher as seen by the allocator.
type AllocationInput struct {
	UserID        string
	WeeklyLessons int
	ClassCount    int
}

// WorkloadWeight is base + lessons*per_lesson + classes*per_class, floored at zero.
func WorkloadWeight(rules models.QuotaRules, lessons, classes int) int64 {
	w := int64(rules.BasePages) + int64(lessons)*int64(rules.PagesPerLesson) + int64(classes)*int64(rules.PagesPerClass)
	if w < 0 {
		return 0
	}
	return w
}

// AllocateQuotas splits the school monthly total across teachers in proportion to their
// workload weight using the largest-remainder method. The result always sums to the total
// when at least one teacher is given. Ties go to the lower user id.
func AllocateQuotas(rules models.QuotaRules, teachers []AllocationInput) map[string]int {
	result := make(map[string]int, len(teachers))
	if len(teachers) == 0 {
		return result
	}
	total := int64(rules.SchoolMonthlyTotal)
	if total < 0 {
		total = 0
	}

	ordered := make([]AllocationInput, len(teachers))
	copy(ordered, teachers)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].UserID < ordered[j].UserID })

	weights := make([]int64, len(ordered))
	var totalWeight int64
	for i, t := range ordered {
		weights[i] = WorkloadWeight(rules, t.WeeklyLessons, t.ClassCount)
		totalWeight += weights[i]
	}

	if totalWeight == 0 {
		n := int64(len(ordered))
		share, extra := total/n, total%n
		for i, t := range ordered {
			limit := share
			if int64(i) < extra {
				limit++
			}
			result[t.UserID] = int(limit)
		}
		return result
	}

	// Shares are total*weight/totalWeight, computed on 128-bit products. Every remainder has
	// the same denominator, so comparing numerators is exact.
	type share struct {
		index     int
		remainder int64
	}
	shares := make([]share, len(ordered))
	floors := make([]int64, len(ordered))
	var assigned int64
	for i, w := range weights {
		floor, remainder := mulDiv(total, w, totalWeight)
		floors[i] = floor
		shares[i] = share{index: i, remainder: remainder}
		assigned += floor
	}

	sort.SliceStable(shares, func(a, b int) bool {
		if shares[a].remainder != shares[b].remainder {
			return shares[a].remainder > shares[b].remainder
		}
		return shares[a].index < shares[b].index
	})
	for k := int64(0); k < total-assigned; k++ {
		floors[shares[k].index]++
	}

	for i, t := range ordered {
		result[t.UserID] = int(floors[i])
	}
	return result
}

// mulDiv returns a*b/d and a*b%d for non-negative a, b and 0 <= b <= d. The quotient is at
// most a, so it fits.
func mulDiv(a, b, d int64) (int64, int64) {
	hi, lo := bits.Mul64(uint64(a), uint64(b))
	q, r := bits.Div64(hi, lo, uint64(d))
	return int64(q), int64(r)
}

// AllocationInputs converts stored workloads to allocator inputs.
func AllocationInputs(workloads []models.TeacherWorkload) []AllocationInput {
	inputs := make([]AllocationInput, 0, len(workloads))
	for _, w := range workloads {
		inputs = append(inputs, AllocationInput{
			UserID:        w.UserID,
			WeeklyLessons: w.WeeklyLessons,
			ClassCount:    len(w.Classes),
		})
	}
	return inputs
}
