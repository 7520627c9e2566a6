package source

import (
	"fmt"

	"ewintr.nl/vidfeed/model"
	"ewintr.nl/vidfeed/storage"
	"golang.org/x/exp/slog"
)

// purgeUnsubscribed deletes every stored channel on a platform that no
// current subscription maps back to. One channel failing does not stop the
// others.
func purgeUnsubscribed(repo storage.VideoRepository, logger *slog.Logger, platform model.Platform, subscriptions []string, matches func(subscription, channelID string) bool) error {
	logger.Info("checking for unsubscribed channels", slog.String("platform", string(platform)))
	channelIDs, err := repo.DistinctChannels(platform)
	if err != nil {
		return fmt.Errorf("list stored channels: %w", err)
	}
	for _, channelID := range channelIDs {
		if anyMatches(subscriptions, channelID, matches) {
			continue
		}
		logger.Info("purging unsubscribed channel", slog.String("platform", string(platform)), slog.String("channel", describeChannel(repo, channelID)))
		if err := repo.DeleteByChannel(platform, channelID); err != nil {
			logger.Error("failed to purge channel", err, slog.String("channel", channelID))
		}
	}

	return nil
}

// purgeShorts deletes only the short-form videos of channels that dropped off
// the shorts whitelist. Other videos of those channels stay.
func purgeShorts(repo storage.VideoRepository, logger *slog.Logger, platform model.Platform, shortsWhitelist []string, matches func(subscription, channelID string) bool) error {
	logger.Info("checking for channels no longer whitelisted for shorts", slog.String("platform", string(platform)))
	channelIDs, err := repo.DistinctShortsChannels(platform)
	if err != nil {
		return fmt.Errorf("list stored shorts channels: %w", err)
	}
	for _, channelID := range channelIDs {
		if anyMatches(shortsWhitelist, channelID, matches) {
			continue
		}
		logger.Info("purging shorts of un-whitelisted channel", slog.String("platform", string(platform)), slog.String("channel", describeChannel(repo, channelID)))
		if err := repo.DeleteShortsByChannel(platform, channelID); err != nil {
			logger.Error("failed to purge channel shorts", err, slog.String("channel", channelID))
		}
	}

	return nil
}

func anyMatches(uris []string, channelID string, matches func(subscription, channelID string) bool) bool {
	for _, uri := range uris {
		if matches(uri, channelID) {
			return true
		}
	}

	return false
}

func describeChannel(repo storage.VideoRepository, channelID string) string {
	videos, err := repo.FindByChannel(channelID)
	if err != nil || len(videos) == 0 {
		return channelID
	}

	return fmt.Sprintf("%s (%s / %s)", channelID, videos[0].Username, videos[0].DisplayName)
}
