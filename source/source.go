// Package source contains the platform adapters. Each adapter knows how to
// recognize its channel URIs, fetch a channel's current listing in a
// normalized shape, fetch one video's extended attributes, and clean up after
// a full run.
package source

import (
	"context"
	"fmt"
	"time"

	"ewintr.nl/vidfeed/model"
)

// SkipReason marks an expected per-video condition that abandons that video
// for the current run without failing the channel.
type SkipReason string

const (
	SkipNone       SkipReason = ""
	SkipProcessing SkipReason = "still processing"
	SkipPaywalled  SkipReason = "requires payment or membership"
	SkipUpcoming   SkipReason = "livestream has not started yet"
)

// ListedItem is one video as it appears in a channel listing, normalized
// across platforms. Items the platform marks as not yet fetchable never show
// up here at all.
type ListedItem struct {
	NativeID    string
	Title       string
	Description string
	URL         string
	Type        model.VideoType
	Duration    *int // seconds, nil while live or unknown
	IsLive      bool
	// Broken marks a formerly live video whose duration never resolved. A
	// stored record for it must be deleted.
	Broken bool
	// PublishedAt is zero when only the detail fetch can resolve it.
	PublishedAt time.Time
	// DetailRef is whatever the platform needs to fetch this item's detail.
	DetailRef string
}

type Listing struct {
	ChannelID   string
	DisplayName string
	Username    string
	Items       []ListedItem
}

// Detail holds the extended attributes only available via a second fetch.
type Detail struct {
	Description string
	Duration    *int
	PublishedAt time.Time
}

type Source interface {
	Platform() model.Platform
	IdentifyURI(uri string) bool
	// FetchListing resolves the channel and returns its most recent videos.
	// Recoverable platform conditions (a terminated channel) produce an empty
	// listing and an operator notification, not an error.
	FetchListing(ctx context.Context, channelURI string, shortsWhitelisted bool) (*Listing, error)
	// FetchDetail fetches one video's extended attributes. A non-empty
	// SkipReason means the video should be left alone this run.
	FetchDetail(ctx context.Context, item ListedItem) (*Detail, SkipReason, error)
	// SupportsClassification reports whether this platform's native IDs can
	// be looked up on the segment-classification service.
	SupportsClassification() bool
	// PostRunCleanup purges stored videos this platform no longer has a
	// subscription for.
	PostRunCleanup(ctx context.Context, subscriptions, shortsWhitelist []string) error
}

// Updater is implemented by sources whose scraper tooling can update itself
// before a run.
type Updater interface {
	Update(ctx context.Context) error
}

// Registry resolves channel URIs to the adapter that owns their scheme.
type Registry struct {
	sources []Source
}

func NewRegistry(sources ...Source) *Registry {
	return &Registry{sources: sources}
}

func (r *Registry) Resolve(uri string) (Source, error) {
	for _, src := range r.sources {
		if src.IdentifyURI(uri) {
			return src, nil
		}
	}

	return nil, fmt.Errorf("no source recognizes uri %q", uri)
}

func (r *Registry) All() []Source {
	return r.sources
}
