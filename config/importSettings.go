package config

import (
	"os"
	"strings"
	"sync"
	"time"
)

const (
	NameMatcherContainment = "containment"
	NameMatcherLevenshtein = "levenshtein"
)

// ImportSettings tunes the batch reconciliation engine.
//
// Set via env:
// - IMPORT_AUTO_LINK_THRESHOLD (default 90)
// - IMPORT_PENDING_THRESHOLD (default 70)
// - IMPORT_CANDIDATE_LIMIT (default 100)
// - IMPORT_MAX_UPLOAD_MB (default 20)
// - IMPORT_NAME_MATCHER ("containment" | "levenshtein")
// - IMPORT_TIMEZONE (default UTC)
// - IMPORT_LOCK_TTL_SECONDS (default 300)
// - IMPORT_QUANTITY_RANGE_CHECKS ("true" rejects negative quantities and a non-positive volume)
type ImportSettings struct {
	AutoLinkThreshold   int
	PendingThreshold    int
	CandidateLimit      int
	MaxUploadBytes      int64
	NameMatcher         string
	Location            *time.Location
	LockTTL             time.Duration
	QuantityRangeChecks bool
}

func DefaultImportSettings() ImportSettings {
	return ImportSettings{
		AutoLinkThreshold: 90,
		PendingThreshold:  70,
		CandidateLimit:    100,
		MaxUploadBytes:    20 << 20,
		NameMatcher:       NameMatcherContainment,
		Location:          time.UTC,
		LockTTL:           5 * time.Minute,
	}
}

var (
	importSettings     ImportSettings
	importSettingsOnce sync.Once
)

func GetImportSettings() ImportSettings {
	importSettingsOnce.Do(func() {
		importSettings = LoadImportSettings()
	})
	return importSettings
}

// LoadImportSettings reads the environment; invalid values fall back to defaults.
func LoadImportSettings() ImportSettings {
	s := DefaultImportSettings()

	auto := intFromEnv("IMPORT_AUTO_LINK_THRESHOLD", s.AutoLinkThreshold)
	pending := intFromEnv("IMPORT_PENDING_THRESHOLD", s.PendingThreshold)
	if 0 <= pending && pending <= auto && auto <= 100 {
		s.AutoLinkThreshold = auto
		s.PendingThreshold = pending
	}
	if n := intFromEnv("IMPORT_CANDIDATE_LIMIT", s.CandidateLimit); n > 0 {
		s.CandidateLimit = n
	}
	if mb := intFromEnv("IMPORT_MAX_UPLOAD_MB", 0); mb > 0 {
		s.MaxUploadBytes = int64(mb) << 20
	}
	switch strings.ToLower(strings.TrimSpace(os.Getenv("IMPORT_NAME_MATCHER"))) {
	case NameMatcherLevenshtein:
		s.NameMatcher = NameMatcherLevenshtein
	}
	if tz := strings.TrimSpace(os.Getenv("IMPORT_TIMEZONE")); tz != "" {
		if loc, err := time.LoadLocation(tz); err == nil {
			s.Location = loc
		}
	}
	if sec := intFromEnv("IMPORT_LOCK_TTL_SECONDS", 0); sec > 0 {
		s.LockTTL = time.Duration(sec) * time.Second
	}
	s.QuantityRangeChecks = strings.EqualFold(strings.TrimSpace(os.Getenv("IMPORT_QUANTITY_RANGE_CHECKS")), "true")
	return s
}

// IsProduction reports GO_ENV=production.
func IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production")
}
