// ABOUTME: Builds Gmail search queries with a recency bound
// ABOUTME: Supports rolling day windows for discovery and after-timestamps for incremental syncs
package sync

import (
	"fmt"
	"strings"
	"time"

	"github.com/harperreed/subzero/models"
)

const (
	// DefaultWindowDays is the discovery window when no recency is given.
	DefaultWindowDays = 30
	// DefaultStaleness is how old the latest sync may get before an auto-sync.
	DefaultStaleness = 24 * time.Hour
)

// Recency bounds a query either by a rolling window or an explicit instant.
// After takes precedence when set.
type Recency struct {
	WindowDays int
	After      time.Time
}

// BuildQuery appends the recency bound to base.
func BuildQuery(base string, r Recency) string {
	var bound string
	switch {
	case !r.After.IsZero():
		bound = fmt.Sprintf("after:%d", r.After.Unix())
	case r.WindowDays > 0:
		bound = fmt.Sprintf("newer_than:%dd", r.WindowDays)
	default:
		bound = fmt.Sprintf("newer_than:%dd", DefaultWindowDays)
	}

	base = strings.TrimSpace(base)
	if base == "" {
		return bound
	}
	return base + " " + bound
}

// AfterLastSync derives an incremental recency from the most recent sync of
// any account. Accounts that never synced fall back to the default window.
func AfterLastSync(accounts []models.ConnectedMailAccount) Recency {
	latest := latestSync(accounts)
	if latest == nil {
		return Recency{WindowDays: DefaultWindowDays}
	}
	return Recency{After: *latest}
}

func latestSync(accounts []models.ConnectedMailAccount) *time.Time {
	var latest *time.Time
	for i := range accounts {
		at := accounts[i].LastSyncedAt
		if at == nil {
			continue
		}
		if latest == nil || at.After(*latest) {
			latest = at
		}
	}
	return latest
}

// ShouldAutoSync reports whether a user's accounts are stale: accounts exist
// and the most recent sync is missing or older than staleness.
func ShouldAutoSync(accounts []models.ConnectedMailAccount, now time.Time, staleness time.Duration) bool {
	if len(accounts) == 0 {
		return false
	}
	latest := latestSync(accounts)
	if latest == nil {
		return true
	}
	return now.Sub(*latest) > staleness
}
