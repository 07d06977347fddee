package service

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-print-api/internal/models"
)

func sumLimits(limits map[string]int) int {
	total := 0
	for _, v := range limits {
		total += v
	}
	return total
}

func TestAllocateQuotasWorkedExample(t *testing.T) {
	rules := models.QuotaRules{BasePages: 80, PagesPerLesson: 6, PagesPerClass: 12, SchoolMonthlyTotal: 4000}
	teachers := []AllocationInput{
		{UserID: "t1", WeeklyLessons: 10, ClassCount: 2},
		{UserID: "t2"},
	}

	assert.Equal(t, int64(164), WorkloadWeight(rules, 10, 2))
	assert.Equal(t, int64(80), WorkloadWeight(rules, 0, 0))

	limits := AllocateQuotas(rules, teachers)
	assert.Equal(t, 2689, limits["t1"])
	assert.Equal(t, 1311, limits["t2"])
	assert.Equal(t, 4000, sumLimits(limits))
}

func TestAllocateQuotasConservesTotal(t *testing.T) {
	rules := models.QuotaRules{BasePages: 7, PagesPerLesson: 3, PagesPerClass: 5}
	totals := []int{0, 1, 2, 97, 1000, 4001, 12345}

	for _, total := range totals {
		rules.SchoolMonthlyTotal = total
		for n := 1; n <= 9; n++ {
			teachers := make([]AllocationInput, n)
			for i := range teachers {
				teachers[i] = AllocationInput{
					UserID:        fmt.Sprintf("user-%02d", i),
					WeeklyLessons: (i * 7) % 23,
					ClassCount:    i % 4,
				}
			}
			limits := AllocateQuotas(rules, teachers)
			require.Len(t, limits, n)
			assert.Equal(t, total, sumLimits(limits), "total=%d teachers=%d", total, n)
			for id, limit := range limits {
				assert.GreaterOrEqual(t, limit, 0, id)
			}
		}
	}
}

func TestAllocateQuotasZeroWeightSplitsEvenly(t *testing.T) {
	rules := models.QuotaRules{SchoolMonthlyTotal: 10}
	teachers := []AllocationInput{{UserID: "c"}, {UserID: "a"}, {UserID: "b"}}

	limits := AllocateQuotas(rules, teachers)

	assert.Equal(t, 10, sumLimits(limits))
	assert.Equal(t, 4, limits["a"])
	assert.Equal(t, 3, limits["b"])
	assert.Equal(t, 3, limits["c"])

	min, max := limits["a"], limits["a"]
	for _, v := range limits {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	assert.LessOrEqual(t, max-min, 1)
}

func TestAllocateQuotasIsDeterministic(t *testing.T) {
	rules := models.QuotaRules{BasePages: 1, SchoolMonthlyTotal: 5}
	forward := []AllocationInput{{UserID: "a"}, {UserID: "b"}, {UserID: "c"}}
	reversed := []AllocationInput{{UserID: "c"}, {UserID: "b"}, {UserID: "a"}}

	first := AllocateQuotas(rules, forward)
	second := AllocateQuotas(rules, reversed)

	assert.Equal(t, first, second)
	// Equal remainders: the extra pages go to the lower ids.
	assert.Equal(t, 2, first["a"])
	assert.Equal(t, 2, first["b"])
	assert.Equal(t, 1, first["c"])
}

func TestAllocateQuotasEmpty(t *testing.T) {
	limits := AllocateQuotas(models.QuotaRules{SchoolMonthlyTotal: 100}, nil)
	assert.Empty(t, limits)
}

func TestAllocationInputsCountsClasses(t *testing.T) {
	inputs := AllocationInputs([]models.TeacherWorkload{
		{UserID: "t1", WeeklyLessons: 12, Classes: models.StringList{"1A", "2B"}},
		{UserID: "t2"},
	})

	require.Len(t, inputs, 2)
	assert.Equal(t, AllocationInput{UserID: "t1", WeeklyLessons: 12, ClassCount: 2}, inputs[0])
	assert.Equal(t, AllocationInput{UserID: "t2"}, inputs[1])
}

func TestAllocateQuotasLargeValuesStayExact(t *testing.T) {
	// total*weight is far beyond int64 here.
	rules := models.QuotaRules{BasePages: 1 << 40, SchoolMonthlyTotal: 1<<40 + 1}
	limits := AllocateQuotas(rules, []AllocationInput{{UserID: "a"}, {UserID: "b"}})

	assert.Equal(t, 1<<39+1, limits["a"])
	assert.Equal(t, 1<<39, limits["b"])
	assert.Equal(t, rules.SchoolMonthlyTotal, sumLimits(limits))
}
