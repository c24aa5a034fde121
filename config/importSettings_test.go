package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadImportSettings_Defaults(t *testing.T) {
	for _, k := range []string{
		"IMPORT_AUTO_LINK_THRESHOLD", "IMPORT_PENDING_THRESHOLD", "IMPORT_CANDIDATE_LIMIT",
		"IMPORT_MAX_UPLOAD_MB", "IMPORT_NAME_MATCHER", "IMPORT_TIMEZONE", "IMPORT_LOCK_TTL_SECONDS",
		"IMPORT_QUANTITY_RANGE_CHECKS",
	} {
		t.Setenv(k, "")
	}
	s := LoadImportSettings()
	assert.Equal(t, 90, s.AutoLinkThreshold)
	assert.Equal(t, 70, s.PendingThreshold)
	assert.Equal(t, 100, s.CandidateLimit)
	assert.Equal(t, int64(20<<20), s.MaxUploadBytes)
	assert.Equal(t, NameMatcherContainment, s.NameMatcher)
	assert.Equal(t, time.UTC, s.Location)
	assert.Equal(t, 5*time.Minute, s.LockTTL)
	assert.False(t, s.QuantityRangeChecks)
}

func TestLoadImportSettings_FromEnv(t *testing.T) {
	t.Setenv("IMPORT_AUTO_LINK_THRESHOLD", "85")
	t.Setenv("IMPORT_PENDING_THRESHOLD", "60")
	t.Setenv("IMPORT_CANDIDATE_LIMIT", "25")
	t.Setenv("IMPORT_MAX_UPLOAD_MB", "5")
	t.Setenv("IMPORT_NAME_MATCHER", "Levenshtein")
	t.Setenv("IMPORT_TIMEZONE", "Asia/Yangon")
	t.Setenv("IMPORT_LOCK_TTL_SECONDS", "30")
	t.Setenv("IMPORT_QUANTITY_RANGE_CHECKS", "TRUE")

	s := LoadImportSettings()
	assert.Equal(t, 85, s.AutoLinkThreshold)
	assert.Equal(t, 60, s.PendingThreshold)
	assert.Equal(t, 25, s.CandidateLimit)
	assert.Equal(t, int64(5<<20), s.MaxUploadBytes)
	assert.Equal(t, NameMatcherLevenshtein, s.NameMatcher)
	assert.Equal(t, "Asia/Yangon", s.Location.String())
	assert.Equal(t, 30*time.Second, s.LockTTL)
	assert.True(t, s.QuantityRangeChecks)
}

func TestLoadImportSettings_RejectsInvertedThresholds(t *testing.T) {
	t.Setenv("IMPORT_AUTO_LINK_THRESHOLD", "60")
	t.Setenv("IMPORT_PENDING_THRESHOLD", "80")
	t.Setenv("IMPORT_TIMEZONE", "Not/AZone")

	s := LoadImportSettings()
	assert.Equal(t, 90, s.AutoLinkThreshold, "inverted thresholds fall back to defaults")
	assert.Equal(t, 70, s.PendingThreshold)
	assert.Equal(t, time.UTC, s.Location, "unknown zone falls back to UTC")
}
