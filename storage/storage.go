package storage

import (
	"errors"
	"time"

	"ewintr.nl/vidfeed/model"
)

var ErrNotFound = errors.New("not found")

// VideoWriter is the mutation set available inside a reconciliation
// transaction. All lookups key on the platform-native video ID.
type VideoWriter interface {
	// ResolveLive marks a previously live video as finished, setting its
	// final title and duration.
	ResolveLive(videoID, title string, duration int) error
	// UpdateMeta refreshes the title and, when non-nil, the duration.
	UpdateMeta(videoID, title string, duration *int) error
	Delete(videoID string) error
}

type VideoRepository interface {
	Create(video *model.Video) error
	FindByChannel(channelID string) ([]*model.Video, error)
	// FindRecentOrUnread returns videos on a platform published after cutoff
	// or still marked unread.
	FindRecentOrUnread(platform model.Platform, cutoff time.Time) ([]*model.Video, error)
	DistinctChannels(platform model.Platform) ([]string, error)
	DistinctShortsChannels(platform model.Platform) ([]string, error)
	FindUnread() ([]*model.Video, error)
	MarkRead(videoID string) error
	DeleteByChannel(platform model.Platform, channelID string) error
	DeleteShortsByChannel(platform model.Platform, channelID string) error
	SetSponsorBlock(videoID string, status *model.SponsorBlockStatus) error
	// InTransaction runs fn atomically. An error from fn rolls back every
	// write fn made.
	InTransaction(fn func(tx VideoWriter) error) error
}
