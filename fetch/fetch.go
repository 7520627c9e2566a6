// Package fetch runs the periodic feed update: it walks all subscribed
// channels, reconciles the stored catalog against each channel's current
// listing, enriches newly discovered videos and cleans up after itself.
package fetch

import (
	"context"
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"ewintr.nl/vidfeed/notify"
	"ewintr.nl/vidfeed/source"
	"ewintr.nl/vidfeed/sponsorblock"
	"ewintr.nl/vidfeed/storage"
	"golang.org/x/exp/slog"
)

const (
	defaultMinInterval = 15 * time.Minute
	defaultMaxInterval = 20 * time.Minute
)

type Fetcher struct {
	minInterval time.Duration
	maxInterval time.Duration
	videoRepo   storage.VideoRepository
	registry    *source.Registry
	subs        SubscriptionSource
	sbClient    *sponsorblock.Client
	notifier    notify.Notifier
	logger      *slog.Logger
	running     atomic.Bool
	now         func() time.Time
}

func NewFetcher(videoRepo storage.VideoRepository, registry *source.Registry, subs SubscriptionSource, sbClient *sponsorblock.Client, notifier notify.Notifier, logger *slog.Logger) *Fetcher {
	return &Fetcher{
		minInterval: defaultMinInterval,
		maxInterval: defaultMaxInterval,
		videoRepo:   videoRepo,
		registry:    registry,
		subs:        subs,
		sbClient:    sbClient,
		notifier:    notifier,
		logger:      logger,
		now:         time.Now,
	}
}

// Run triggers an update immediately and then on a jittered interval. Each
// trigger is fired detached; RunOnce itself drops overlapping runs.
func (f *Fetcher) Run(ctx context.Context) {
	for {
		go func() {
			if err := f.RunOnce(ctx); err != nil {
				f.logger.Error("feed update failed", err)
				f.notifier.Warn(fmt.Sprintf("Feed update failed: %v", err))
			}
		}()

		wait := f.minInterval + time.Duration(rand.Int63n(int64(f.maxInterval-f.minInterval)))
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// RunOnce performs one full update. It is single-flight: a trigger that fires
// while a run is still going is dropped, not queued.
func (f *Fetcher) RunOnce(ctx context.Context) error {
	if !f.running.CompareAndSwap(false, true) {
		f.logger.Debug("not fetching, a run is already in progress")
		return nil
	}
	defer f.running.Store(false)

	subscriptions, err := f.subs.Subscriptions()
	if err != nil {
		return fmt.Errorf("read subscriptions: %w", err)
	}
	shortsWhitelist, err := f.subs.ShortsWhitelist()
	if err != nil {
		return fmt.Errorf("read shorts whitelist: %w", err)
	}

	for _, src := range f.registry.All() {
		if updater, ok := src.(source.Updater); ok {
			if err := updater.Update(ctx); err != nil {
				return err
			}
		}
	}

	shuffle(subscriptions)
	whitelisted := map[string]bool{}
	for _, uri := range shortsWhitelist {
		whitelisted[uri] = true
	}

	start := f.now()
	for i, channelURI := range subscriptions {
		f.logger.Info("fetching channel", slog.String("channel", channelURI),
			slog.Int("current", i+1), slog.Int("total", len(subscriptions)))
		if err := f.scrapeChannel(ctx, channelURI, whitelisted[channelURI]); err != nil {
			return fmt.Errorf("channel %s: %w", channelURI, err)
		}
	}
	f.logger.Info("fetched all channels", slog.Int("count", len(subscriptions)),
		slog.Duration("took", f.now().Sub(start)))

	for _, src := range f.registry.All() {
		if err := src.PostRunCleanup(ctx, subscriptions, shortsWhitelist); err != nil {
			f.logger.Error("post-run cleanup failed", err, slog.String("platform", string(src.Platform())))
		}
	}

	f.RecheckClassifications(ctx)

	return nil
}

func (f *Fetcher) scrapeChannel(ctx context.Context, channelURI string, shortsWhitelisted bool) error {
	src, err := f.registry.Resolve(channelURI)
	if err != nil {
		return err
	}
	listing, err := src.FetchListing(ctx, channelURI, shortsWhitelisted)
	if err != nil {
		return err
	}

	newItems, err := f.reconcile(listing)
	if err != nil {
		return err
	}

	return f.enrich(ctx, src, listing, newItems)
}

func shuffle(uris []string) {
	rand.Shuffle(len(uris), func(i, j int) {
		uris[i], uris[j] = uris[j], uris[i]
	})
}
