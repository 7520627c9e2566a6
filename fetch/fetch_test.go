package fetch

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"ewintr.nl/vidfeed/model"
	"ewintr.nl/vidfeed/source"
	"ewintr.nl/vidfeed/sponsorblock"
	"ewintr.nl/vidfeed/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard))

type fakeNotifier struct {
	infos []string
	warns []string
}

func (n *fakeNotifier) Info(msg string) { n.infos = append(n.infos, msg) }
func (n *fakeNotifier) Warn(msg string) { n.warns = append(n.warns, msg) }

type fakeDetail struct {
	detail *source.Detail
	skip   source.SkipReason
	err    error
}

type fakeSource struct {
	platform        model.Platform
	scheme          string
	listing         *source.Listing
	listErr         error
	details         map[string]fakeDetail
	classify        bool
	updateErr       error
	updateCalled    bool
	cleanupSubs     []string
	cleanupShorts   []string
	cleanupCalled   bool
	defaultPublish  time.Time
	detailCalls     []string
}

func (s *fakeSource) Platform() model.Platform { return s.platform }

func (s *fakeSource) IdentifyURI(uri string) bool { return strings.HasPrefix(uri, s.scheme) }

func (s *fakeSource) FetchListing(_ context.Context, _ string, _ bool) (*source.Listing, error) {
	return s.listing, s.listErr
}

func (s *fakeSource) FetchDetail(_ context.Context, item source.ListedItem) (*source.Detail, source.SkipReason, error) {
	s.detailCalls = append(s.detailCalls, item.NativeID)
	if d, ok := s.details[item.NativeID]; ok {
		return d.detail, d.skip, d.err
	}

	return &source.Detail{
		Description: item.Description,
		Duration:    item.Duration,
		PublishedAt: s.defaultPublish,
	}, source.SkipNone, nil
}

func (s *fakeSource) SupportsClassification() bool { return s.classify }

func (s *fakeSource) PostRunCleanup(_ context.Context, subscriptions, shortsWhitelist []string) error {
	s.cleanupCalled = true
	s.cleanupSubs = subscriptions
	s.cleanupShorts = shortsWhitelist

	return nil
}

type fakeUpdatingSource struct {
	fakeSource
}

func (s *fakeUpdatingSource) Update(_ context.Context) error {
	s.updateCalled = true

	return s.updateErr
}

type fakeSubs struct {
	subscriptions []string
	whitelist     []string
	calls         int
}

func (s *fakeSubs) Subscriptions() ([]string, error) {
	s.calls++

	return s.subscriptions, nil
}

func (s *fakeSubs) ShortsWhitelist() ([]string, error) { return s.whitelist, nil }

func newTestFetcher(repo storage.VideoRepository, subs SubscriptionSource, sbClient *sponsorblock.Client, sources ...source.Source) (*Fetcher, *fakeNotifier) {
	notifier := &fakeNotifier{}
	f := NewFetcher(repo, source.NewRegistry(sources...), subs, sbClient, notifier, testLogger)
	f.now = func() time.Time { return time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC) }

	return f, notifier
}

func TestRunOnceSingleFlight(t *testing.T) {
	subs := &fakeSubs{subscriptions: []string{"test://c1"}}
	f, _ := newTestFetcher(storage.NewMemory(), subs, nil)

	f.running.Store(true)
	require.NoError(t, f.RunOnce(context.Background()))
	assert.Equal(t, 0, subs.calls, "a dropped trigger must not touch anything")

	f.running.Store(false)
}

func TestRunOnceUpdaterFailureAborts(t *testing.T) {
	src := &fakeUpdatingSource{fakeSource: fakeSource{
		platform: model.PlatformYouTube,
		scheme:   "test://",
		updateErr: errors.New("self-update broke"),
	}}
	subs := &fakeSubs{subscriptions: []string{"test://c1"}}
	f, _ := newTestFetcher(storage.NewMemory(), subs, nil, src)

	err := f.RunOnce(context.Background())
	require.Error(t, err)
	assert.True(t, src.updateCalled)
	assert.False(t, src.cleanupCalled, "cleanup must not run after an aborted run")
}

func TestRunOnceChannelFailureKeepsEarlierCommits(t *testing.T) {
	// the listing succeeds and reconciliation commits the removal of a
	// broken video, then enrichment fails on a detail fetch. The committed
	// removal must survive the aborted run.
	mem := storage.NewMemory()
	require.NoError(t, mem.Create(&model.Video{
		VideoID:         "gone1",
		Platform:        model.PlatformYouTube,
		ChannelID:       "c1",
		Type:            model.TypeStream,
		IsCurrentlyLive: true,
	}))

	src := &fakeSource{
		platform: model.PlatformYouTube,
		scheme:   "test://",
		listing: &source.Listing{
			ChannelID: "c1",
			Items: []source.ListedItem{
				{NativeID: "gone1", Broken: true},
				{NativeID: "new1", Title: "New"},
			},
		},
		details: map[string]fakeDetail{
			"new1": {err: errors.New("scrape failed")},
		},
	}
	subs := &fakeSubs{subscriptions: []string{"test://c1"}}
	f, _ := newTestFetcher(mem, subs, nil, src)

	err := f.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "test://c1")

	_, err = mem.Find("gone1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = mem.Find("new1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.False(t, src.cleanupCalled)
}

func TestRunOnceResolvedLiveIsNotEnriched(t *testing.T) {
	mem := storage.NewMemory()
	require.NoError(t, mem.Create(&model.Video{
		VideoID:         "v1",
		Platform:        model.PlatformYouTube,
		ChannelID:       "c1",
		Title:           "T1",
		Type:            model.TypeStream,
		IsCurrentlyLive: true,
	}))

	src := &fakeSource{
		platform:       model.PlatformYouTube,
		scheme:         "test://",
		defaultPublish: time.Date(2024, 3, 14, 9, 0, 0, 0, time.UTC),
		listing: &source.Listing{
			ChannelID: "c1",
			Items: []source.ListedItem{
				{NativeID: "v1", Title: "T2", Duration: intPtr(600)},
				{NativeID: "v2", Title: "Brand new"},
			},
		},
	}
	subs := &fakeSubs{subscriptions: []string{"test://c1"}}
	f, _ := newTestFetcher(mem, subs, nil, src)

	require.NoError(t, f.RunOnce(context.Background()))

	resolved, err := mem.Find("v1")
	require.NoError(t, err)
	assert.False(t, resolved.IsCurrentlyLive)
	assert.Equal(t, "T2", resolved.Title)
	require.NotNil(t, resolved.Duration)
	assert.Equal(t, 600, *resolved.Duration)

	assert.Equal(t, []string{"v2"}, src.detailCalls, "only the new item gets a detail fetch")
}

func TestRunOnceProcessingVideoCreatedNextRun(t *testing.T) {
	mem := storage.NewMemory()
	src := &fakeSource{
		platform:       model.PlatformYouTube,
		scheme:         "test://",
		defaultPublish: time.Date(2024, 3, 14, 9, 0, 0, 0, time.UTC),
		listing: &source.Listing{
			ChannelID: "c1",
			Items:     []source.ListedItem{{NativeID: "v1", Title: "Fresh upload"}},
		},
		details: map[string]fakeDetail{
			"v1": {skip: source.SkipProcessing},
		},
	}
	subs := &fakeSubs{subscriptions: []string{"test://c1"}}
	f, _ := newTestFetcher(mem, subs, nil, src)

	require.NoError(t, f.RunOnce(context.Background()))
	_, err := mem.Find("v1")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// the platform finished processing before the next run
	delete(src.details, "v1")
	require.NoError(t, f.RunOnce(context.Background()))

	videos, err := mem.FindByChannel("c1")
	require.NoError(t, err)
	require.Len(t, videos, 1)
	assert.Equal(t, "v1", videos[0].VideoID)
}

func TestRunOnceCleanupRunsPerSource(t *testing.T) {
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	src := &fakeSource{
		platform:       model.PlatformYouTube,
		scheme:         "test://",
		listing:        &source.Listing{ChannelID: "c1"},
		defaultPublish: now.Add(-time.Hour),
	}
	subs := &fakeSubs{
		subscriptions: []string{"test://c1"},
		whitelist:     []string{"test://c1"},
	}
	f, _ := newTestFetcher(storage.NewMemory(), subs, nil, src)

	require.NoError(t, f.RunOnce(context.Background()))
	require.True(t, src.cleanupCalled)
	assert.Equal(t, []string{"test://c1"}, src.cleanupSubs)
	assert.Equal(t, []string{"test://c1"}, src.cleanupShorts)
}
