package fetch

import (
	"context"
	"time"

	"ewintr.nl/vidfeed/model"
	"golang.org/x/exp/slog"
)

// recheckWindow selects which stored videos get their classification
// refreshed: anything published within it, plus everything still unread.
const recheckWindow = 24 * time.Hour

// RecheckClassifications re-runs the segment-classification lookup for recent
// or unread videos and stores the status when it changed. Crowd-sourced
// classifications tend to arrive only after a video has been up for a while.
func (f *Fetcher) RecheckClassifications(ctx context.Context) {
	if f.sbClient == nil {
		return
	}
	f.logger.Info("rechecking segment classifications")

	videos, err := f.videoRepo.FindRecentOrUnread(model.PlatformYouTube, f.now().Add(-recheckWindow))
	if err != nil {
		f.logger.Error("unable to select videos for recheck", err)
		return
	}

	for i, video := range videos {
		f.logger.Info("rechecking video", slog.String("video", video.VideoID),
			slog.Int("current", i+1), slog.Int("total", len(videos)))
		status, err := f.sbClient.FullVideoStatus(ctx, video.VideoID)
		if err != nil {
			f.logger.Error("classification recheck failed", err, slog.String("video", video.VideoID))
			continue
		}
		if statusEqual(status, video.SponsorBlockStatus) {
			continue
		}
		if err := f.videoRepo.SetSponsorBlock(video.VideoID, status); err != nil {
			f.logger.Error("unable to store rechecked classification", err, slog.String("video", video.VideoID))
		}
	}
	f.logger.Info("done rechecking segment classifications", slog.Int("count", len(videos)))
}

func statusEqual(a, b *model.SponsorBlockStatus) bool {
	if a == nil || b == nil {
		return a == b
	}

	return *a == *b
}
