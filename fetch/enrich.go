package fetch

import (
	"context"
	"fmt"

	"ewintr.nl/vidfeed/model"
	"ewintr.nl/vidfeed/source"
	"github.com/google/uuid"
	"golang.org/x/exp/slog"
)

// enrich fetches extended attributes and a segment classification for each
// newly discovered video and stores the finished record. Every video stands
// alone: a skip only abandons that one video for this run. At most
// model.NewVideosPerRunLimit videos are stored per channel per run.
func (f *Fetcher) enrich(ctx context.Context, src source.Source, listing *source.Listing, newItems []source.ListedItem) error {
	created := 0
	for i, item := range newItems {
		f.logger.Info("extracting extended attributes from new video", slog.String("video", item.NativeID),
			slog.Int("current", i+1), slog.Int("total", len(newItems)))

		type detailResult struct {
			detail *source.Detail
			skip   source.SkipReason
			err    error
		}
		detailCh := make(chan detailResult, 1)
		go func(item source.ListedItem) {
			detail, skip, err := src.FetchDetail(ctx, item)
			detailCh <- detailResult{detail: detail, skip: skip, err: err}
		}(item)

		// the classification lookup runs while the detail fetch is going
		var sbStatus *model.SponsorBlockStatus
		var sbFailed bool
		if src.SupportsClassification() && f.sbClient != nil {
			status, err := f.sbClient.FullVideoStatus(ctx, item.NativeID)
			if err != nil {
				f.notifier.Warn(fmt.Sprintf("WARNING: Error fetching segment classification for video %s: %v. Skipping this video for now.", item.NativeID, err))
				sbFailed = true
			} else {
				sbStatus = status
			}
		}

		res := <-detailCh
		switch {
		case res.err != nil:
			return res.err
		case res.skip != source.SkipNone:
			f.logger.Info("skipping video", slog.String("video", item.NativeID), slog.String("reason", string(res.skip)))
			f.notifier.Info(fmt.Sprintf("Video %s was skipped: %s.", item.NativeID, res.skip))
			continue
		case sbFailed:
			continue
		}

		date := res.detail.PublishedAt
		if date.Before(model.OldVideoThreshold) {
			f.notifier.Warn(fmt.Sprintf("WARNING: Received timestamp %d for video %s, which is older than expected! Skipping this video for now.", date.UnixMilli(), item.NativeID))
			continue
		}

		duration := res.detail.Duration
		if duration == nil {
			duration = item.Duration
		}
		description := res.detail.Description
		if description == "" {
			description = item.Description
		}

		video := &model.Video{
			ID:                 uuid.New(),
			VideoID:            item.NativeID,
			Platform:           src.Platform(),
			Type:               item.Type,
			Title:              item.Title,
			Description:        description,
			Duration:           duration,
			DisplayName:        listing.DisplayName,
			Username:           listing.Username,
			ChannelID:          listing.ChannelID,
			Date:               date,
			IsCurrentlyLive:    item.IsLive,
			Unread:             f.now().Sub(date) < model.NewUnreadWindow,
			SponsorBlockStatus: sbStatus,
			URL:                item.URL,
		}
		if err := f.videoRepo.Create(video); err != nil {
			return fmt.Errorf("store new video %s: %w", item.NativeID, err)
		}

		created++
		if created >= model.NewVideosPerRunLimit {
			f.logger.Info("new video limit reached, leaving the rest for the next run",
				slog.String("channel", listing.ChannelID), slog.Int("left", len(newItems)-i-1))
			break
		}
	}

	return nil
}
