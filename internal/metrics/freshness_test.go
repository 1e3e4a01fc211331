package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFreshness_WorstFeedWins(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	f := NewFreshness(10*time.Minute, time.Hour)
	f.now = func() time.Time { return now }

	f.Mark("CG", now.Add(-time.Minute))
	f.Mark("CMC", now.Add(-30*time.Minute))

	rep := f.Report()
	require.Len(t, rep.Feeds, 2)
	assert.Equal(t, "CG", rep.Feeds[0].Source)
	assert.Equal(t, FeedFresh, rep.Feeds[0].Status)
	assert.Equal(t, FeedStale, rep.Feeds[1].Status)
	assert.Equal(t, "CMC", rep.WorstSource)
	assert.Equal(t, 30*time.Minute, rep.WorstAge)
	assert.Equal(t, FeedStale, rep.Status)

	f.Mark("LCW", now.Add(-2*time.Hour))
	assert.Equal(t, FeedExpired, f.Report().Status)
}

func TestFreshness_MarkKeepsLatest(t *testing.T) {
	now := time.Now()
	f := NewFreshness(0, 0)
	f.Mark("CG", now)
	f.Mark("CG", now.Add(-time.Hour))

	rep := f.Report()
	require.Len(t, rep.Feeds, 1)
	assert.Equal(t, now, rep.Feeds[0].LastSuccess)
}

func TestFreshness_Empty(t *testing.T) {
	rep := NewFreshness(time.Minute, time.Hour).Report()
	assert.Empty(t, rep.Feeds)
	assert.Equal(t, FeedUnknown, rep.Status)
}
