package fetch

import (
	"fmt"

	"ewintr.nl/vidfeed/model"
	"ewintr.nl/vidfeed/source"
	"ewintr.nl/vidfeed/storage"
	"golang.org/x/exp/slog"
)

// reconcile diffs a channel's fresh listing against its stored videos and
// applies the minimal mutations inside one transaction. It returns the items
// that have no stored record yet; those are created later by enrichment,
// after the transaction committed.
func (f *Fetcher) reconcile(listing *source.Listing) ([]source.ListedItem, error) {
	existing, err := f.videoRepo.FindByChannel(listing.ChannelID)
	if err != nil {
		return nil, fmt.Errorf("find stored videos: %w", err)
	}
	stored := make(map[string]*model.Video, len(existing))
	for _, video := range existing {
		stored[video.VideoID] = video
	}

	newItems := []source.ListedItem{}
	err = f.videoRepo.InTransaction(func(tx storage.VideoWriter) error {
		for _, item := range listing.Items {
			current, ok := stored[item.NativeID]
			switch {
			case item.Broken:
				// broken or still processing on the platform side
				if ok {
					if err := tx.Delete(item.NativeID); err != nil {
						return fmt.Errorf("delete broken video %s: %w", item.NativeID, err)
					}
				}
			case !ok:
				newItems = append(newItems, item)
			case !item.IsLive && current.IsCurrentlyLive && item.Duration != nil:
				if err := tx.ResolveLive(item.NativeID, item.Title, *item.Duration); err != nil {
					return fmt.Errorf("resolve live video %s: %w", item.NativeID, err)
				}
			case item.Title != current.Title || durationChanged(item.Duration, current.Duration):
				if err := tx.UpdateMeta(item.NativeID, item.Title, item.Duration); err != nil {
					return fmt.Errorf("update video %s: %w", item.NativeID, err)
				}
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(newItems) > 0 {
		f.logger.Info("found new videos", slog.String("channel", listing.ChannelID), slog.Int("count", len(newItems)))
	}

	return newItems, nil
}

// durationChanged only fires for a non-nil listing duration; a nil one never
// overwrites a stored value.
func durationChanged(listed, stored *int) bool {
	if listed == nil {
		return false
	}

	return stored == nil || *listed != *stored
}
