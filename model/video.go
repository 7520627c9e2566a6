package model

import (
	"time"

	"github.com/google/uuid"
)

type Platform string

const (
	PlatformYouTube  Platform = "youtube"
	PlatformPeerTube Platform = "peertube"
	PlatformOdysee   Platform = "odysee"
)

type VideoType string

const (
	TypeVideo  VideoType = "video"
	TypeShort  VideoType = "short"
	TypeStream VideoType = "stream"
)

// SponsorBlockStatus is the full-video segment classification reported by
// SponsorBlock. A nil status on a Video means no classification was found.
type SponsorBlockStatus string

const (
	SponsorBlockSponsor         SponsorBlockStatus = "sponsor"
	SponsorBlockSelfPromo       SponsorBlockStatus = "selfpromo"
	SponsorBlockExclusiveAccess SponsorBlockStatus = "exclusive_access"
)

const (
	// NewUnreadWindow is how recently a video must have been published for it
	// to start its life unread.
	NewUnreadWindow = 7 * 24 * time.Hour

	// NewVideosPerRunLimit caps how many new videos are enriched and stored
	// per channel per run. The rest are picked up on the next run.
	NewVideosPerRunLimit = 10
)

// OldVideoThreshold is the publish-date floor. A computed timestamp before
// Jan 2004 means the platform data was broken, not that the video is that old.
var OldVideoThreshold = time.UnixMilli(1072944000000)

type Video struct {
	ID                 uuid.UUID
	VideoID            string
	Platform           Platform
	Type               VideoType
	Title              string
	Description        string
	Duration           *int // seconds, nil while the video is an active livestream
	DisplayName        string
	Username           string
	ChannelID          string
	Date               time.Time
	IsCurrentlyLive    bool
	Unread             bool
	SponsorBlockStatus *SponsorBlockStatus
	URL                string
}
