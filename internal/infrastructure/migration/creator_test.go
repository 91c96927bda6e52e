package migration

import (
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	"github.com/escrowhub/backend/migrations"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlugify(t *testing.T) {
	tests := map[string]string{
		"add payout index":   "add_payout_index",
		"Add-Payout-Index":   "add_payout_index",
		"ADD__PAYOUT  INDEX": "add_payout_index",
		"Escrow Holds 2":     "escrow_holds_2",
		"   spaces   ":       "spaces",
		"split!@#$words":     "split_words",
		"_leading_":          "leading",
		"":                   "",
	}
	for input, want := range tests {
		assert.Equal(t, want, slugify(input), "input %q", input)
	}
}

func TestCreate(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 10, 17, 9, 30, 0, 0, time.UTC)

	c, err := Create(dir, "add payout index", "Index payouts by party", now)
	require.NoError(t, err)

	assert.Equal(t, uint(20261017093000), c.Version)
	assert.Equal(t, filepath.Join(dir, "20261017093000_add_payout_index.up.sql"), c.UpPath)
	assert.Equal(t, filepath.Join(dir, "20261017093000_add_payout_index.down.sql"), c.DownPath)

	up, err := os.ReadFile(c.UpPath)
	require.NoError(t, err)
	assert.Contains(t, string(up), "-- add payout index")
	assert.Contains(t, string(up), "-- Index payouts by party")

	down, err := os.ReadFile(c.DownPath)
	require.NoError(t, err)
	assert.Contains(t, string(down), "Reverts the up script")

	scripts, err := Scan(os.DirFS(dir))
	require.NoError(t, err)
	assert.Equal(t, []Script{c.Script}, scripts)
}

func TestCreate_RefusesOverwrite(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 10, 17, 9, 30, 0, 0, time.UTC)

	_, err := Create(dir, "same", "", now)
	require.NoError(t, err)
	_, err = Create(dir, "same", "", now)
	assert.ErrorIs(t, err, os.ErrExist)
}

func TestCreate_NameWithoutWords(t *testing.T) {
	_, err := Create(t.TempDir(), "!!!", "", time.Now())
	assert.Error(t, err)
}

func TestScan(t *testing.T) {
	scripts, err := Scan(fstest.MapFS{
		"20261017100000_b.up.sql":   {},
		"20261017100000_b.down.sql": {},
		"3_a.up.sql":                {},
		"README.md":                 {},
		"nested/4_x.up.sql":         {},
	})
	require.NoError(t, err)

	assert.Equal(t, []Script{
		{Version: 3, Name: "a", HasUp: true},
		{Version: 20261017100000, Name: "b", HasUp: true, HasDown: true},
	}, scripts)
	assert.Equal(t, "3_a", scripts[0].String())
}

func TestScan_VersionReused(t *testing.T) {
	_, err := Scan(fstest.MapFS{
		"1_a.up.sql": {},
		"1_b.up.sql": {},
	})
	assert.ErrorContains(t, err, "version 1")
}

func TestScan_MissingDir(t *testing.T) {
	scripts, err := Scan(os.DirFS(filepath.Join(t.TempDir(), "absent")))
	require.NoError(t, err)
	assert.Empty(t, scripts)
}

func TestCheckPairs(t *testing.T) {
	scripts, err := Scan(fstest.MapFS{
		"1_a.up.sql":   {},
		"1_a.down.sql": {},
		"2_b.up.sql":   {},
		"3_c.down.sql": {},
	})
	require.NoError(t, err)

	err = CheckPairs(scripts)
	require.Error(t, err)
	assert.ErrorContains(t, err, "2_b has no down script")
	assert.ErrorContains(t, err, "3_c has no up script")
	assert.NotContains(t, err.Error(), "1_a")
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	scripts, err := Scan(migrations.FS)
	require.NoError(t, err)
	require.NotEmpty(t, scripts)
	assert.NoError(t, CheckPairs(scripts))
}
