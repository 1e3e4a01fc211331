package metrics

import (
	"sort"
	"sync"
	"time"
)

// Feed status values
const (
	FeedFresh   = "fresh"
	FeedStale   = "stale"
	FeedExpired = "expired"
	FeedUnknown = "unknown"
)

// Default feed age bounds. Listings are pulled on demand, so a feed is only
// stale once it has not succeeded for several scan intervals.
const (
	DefaultFreshAge = 10 * time.Minute
	DefaultMaxAge   = time.Hour
)

// FeedFreshness is the age of one provider's last successful listing.
type FeedFreshness struct {
	Source      string        `json:"source"`
	LastSuccess time.Time     `json:"last_success"`
	Age         time.Duration `json:"age"`
	Status      string        `json:"status"`
}

// FreshnessReport aggregates every provider; the stalest feed decides the
// overall status.
type FreshnessReport struct {
	Feeds       []FeedFreshness `json:"feeds"`
	WorstSource string          `json:"worst_source,omitempty"`
	WorstAge    time.Duration   `json:"worst_age"`
	Status      string          `json:"status"`
}

// Freshness remembers when each provider last returned a listing.
type Freshness struct {
	freshAge time.Duration
	maxAge   time.Duration
	now      func() time.Time

	mu   sync.RWMutex
	last map[string]time.Time
}

func NewFreshness(freshAge, maxAge time.Duration) *Freshness {
	if freshAge <= 0 {
		freshAge = DefaultFreshAge
	}
	if maxAge < freshAge {
		maxAge = freshAge
	}
	return &Freshness{
		freshAge: freshAge,
		maxAge:   maxAge,
		now:      time.Now,
		last:     make(map[string]time.Time),
	}
}

// Mark records a successful fetch for source.
func (f *Freshness) Mark(source string, at time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if at.After(f.last[source]) {
		f.last[source] = at
	}
}

// Report evaluates every known feed, sorted by source name.
func (f *Freshness) Report() FreshnessReport {
	now := f.now()

	f.mu.RLock()
	feeds := make([]FeedFreshness, 0, len(f.last))
	for source, at := range f.last {
		age := now.Sub(at)
		feeds = append(feeds, FeedFreshness{
			Source:      source,
			LastSuccess: at,
			Age:         age,
			Status:      f.status(age),
		})
	}
	f.mu.RUnlock()

	sort.Slice(feeds, func(i, j int) bool { return feeds[i].Source < feeds[j].Source })

	rep := FreshnessReport{Feeds: feeds, Status: FeedUnknown}
	for _, feed := range feeds {
		if rep.WorstSource == "" || feed.Age > rep.WorstAge {
			rep.WorstSource = feed.Source
			rep.WorstAge = feed.Age
		}
	}
	if rep.WorstSource != "" {
		rep.Status = f.status(rep.WorstAge)
	}
	return rep
}

func (f *Freshness) status(age time.Duration) string {
	switch {
	case age <= f.freshAge:
		return FeedFresh
	case age <= f.maxAge:
		return FeedStale
	default:
		return FeedExpired
	}
}
