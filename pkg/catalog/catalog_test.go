package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-print-api/internal/models"
)

func TestLoadShiftsDefaults(t *testing.T) {
	shifts, err := LoadShifts("")
	require.NoError(t, err)
	assert.Equal(t, models.DefaultShifts(), shifts)
}

func TestParseShifts(t *testing.T) {
	shifts, err := ParseShifts([]byte(`
shifts:
  - code: matutino
    name: Manhã
    slots: 5
  - code: NOTURNO
    slots: 4
    order: 9
`))
	require.NoError(t, err)
	require.Len(t, shifts, 2)
	assert.Equal(t, "MATUTINO", shifts[0].Code)
	assert.Equal(t, 1, shifts[0].Order)
	assert.Equal(t, "NOTURNO", shifts[1].Name)
	assert.Equal(t, 9, shifts[1].Order)
}

func TestParseShiftsRejectsInvalid(t *testing.T) {
	for _, doc := range []string{
		`shifts: []`,
		"shifts:\n  - code: A\n    slots: 0\n",
		"shifts:\n  - code: A\n    slots: 1\n  - code: a\n    slots: 2\n",
		"shifts:\n  - slots: 1\n",
		`shifts: [`,
	} {
		_, err := ParseShifts([]byte(doc))
		assert.Error(t, err, doc)
	}
}

func TestLoadSeedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[quota_rules]
base_pages = 80
pages_per_lesson = 6
pages_per_class = 12
school_monthly_total = 4000

[[resources]]
name = "Projetor Sala Multiuso"
type = "projetor"

[[users]]
full_name = "Administrador"
email = "admin@escola"
password = "troque-esta-senha"
role = "admin"
`), 0o600))

	seed, err := LoadSeed(path)
	require.NoError(t, err)
	require.NotNil(t, seed.QuotaRules)
	assert.Equal(t, 4000, seed.QuotaRules.SchoolMonthlyTotal)
	require.Len(t, seed.Resources, 1)
	assert.Equal(t, "projetor", seed.Resources[0].Type)
	require.Len(t, seed.Users, 1)
	assert.Equal(t, "admin@escola", seed.Users[0].Email)
}

func TestParseSeedRejectsUnknownRole(t *testing.T) {
	_, err := ParseSeed([]byte(`
[[users]]
email = "x@escola"
password = "p"
role = "student"
`))
	require.Error(t, err)
}

func TestLoadSeedEmptyPath(t *testing.T) {
	seed, err := LoadSeed("")
	require.NoError(t, err)
	assert.Nil(t, seed.QuotaRules)
	assert.Empty(t, seed.Users)
}

func TestParseSeedRejectsOversizedRules(t *testing.T) {
	_, err := ParseSeed([]byte(`
[quota_rules]
base_pages = 50
pages_per_lesson = 5
pages_per_class = 10
school_monthly_total = 1000000000000
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceed")
}
