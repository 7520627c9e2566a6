package source

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"ewintr.nl/vidfeed/model"
	"ewintr.nl/vidfeed/notify"
	"ewintr.nl/vidfeed/storage"
	"golang.org/x/exp/slog"
)

const (
	youtubeScheme      = "yt://"
	youtubeListingPage = 100

	defaultYtdlpPath    = "yt-dlp"
	defaultYtdlpTimeout = 10 * time.Minute
)

// stderr fragments yt-dlp emits for the per-video conditions we classify.
const (
	ytErrMarker     = "ERROR: "
	ytTerminated    = "This account has been terminated"
	ytAgeGate       = "Sign in to confirm your age. This video may be inappropriate for some users."
	ytProcessing    = "We're processing this video. Check back later."
	ytMembersOnlyA  = "Join this channel to get access to members-only content like this video, and other exclusive perks."
	ytMembersOnlyB  = "Join this channel to get access to members-only content and other exclusive perks."
	ytPayment       = "This video requires payment to watch"
	ytPendingStream = "This live event will begin in"
)

// YouTube scrapes channels with yt-dlp. Channel URIs look like
// yt://<channelID>/<handle>, where the handle is the last one we saw and only
// serves drift detection.
type YouTube struct {
	repo        storage.VideoRepository
	notifier    notify.Notifier
	logger      *slog.Logger
	ytdlpPath   string
	cookiesPath string
	timeout     time.Duration
}

func NewYouTube(repo storage.VideoRepository, notifier notify.Notifier, logger *slog.Logger, ytdlpPath, cookiesPath string) *YouTube {
	if ytdlpPath == "" {
		ytdlpPath = defaultYtdlpPath
	}

	return &YouTube{
		repo:        repo,
		notifier:    notifier,
		logger:      logger,
		ytdlpPath:   ytdlpPath,
		cookiesPath: cookiesPath,
		timeout:     defaultYtdlpTimeout,
	}
}

func (y *YouTube) Platform() model.Platform {
	return model.PlatformYouTube
}

func (y *YouTube) IdentifyURI(uri string) bool {
	return strings.HasPrefix(uri, youtubeScheme)
}

// Update lets yt-dlp update itself. An outdated yt-dlp fails in ways that
// look like channel errors, so a failed update fails the run.
func (y *YouTube) Update(ctx context.Context) error {
	stdout, stderr, err := y.runYtdlp(ctx, "-U")
	if err != nil || len(stderr) > 0 {
		return fmt.Errorf("update yt-dlp: %v: %s", err, stderr)
	}
	y.logger.Info("updated yt-dlp", slog.String("output", strings.TrimSpace(string(stdout))))

	return nil
}

func (y *YouTube) FetchListing(ctx context.Context, channelURI string, shortsWhitelisted bool) (*Listing, error) {
	channelID, expectedHandle, err := parseYouTubeURI(channelURI)
	if err != nil {
		return nil, err
	}

	stdout, stderr, err := y.runYtdlp(ctx, "-J", "--flat-playlist", "-I", fmt.Sprintf("0:%d", youtubeListingPage),
		"https://www.youtube.com/channel/"+channelID)
	if err != nil || strings.Contains(stderr, ytErrMarker) {
		if strings.Contains(stderr, ytTerminated) {
			y.logger.Warn("channel has been terminated", slog.String("channel", channelURI))
			y.notifier.Info(fmt.Sprintf("Channel %s has been terminated.", channelURI))
			return &Listing{ChannelID: channelID}, nil
		}
		if err == nil {
			err = errors.New("yt-dlp reported an error")
		}
		return nil, fmt.Errorf("scrape channel %s: %w: %s", channelID, err, stderr)
	}
	if stderr != "" {
		y.logger.Warn("yt-dlp warnings on channel listing", slog.String("channel", channelID), slog.String("stderr", stderr))
	}

	dump, err := parseYouTubeChannelDump(stdout)
	if err != nil {
		return nil, fmt.Errorf("parse channel %s listing: %w", channelID, err)
	}
	if dump.UploaderID != expectedHandle {
		y.notifier.Warn(fmt.Sprintf("WARNING: Channel %s, previously %s, is now %s", channelID, expectedHandle, dump.UploaderID))
	}
	if dump.ChannelID == "" {
		dump.ChannelID = channelID
	}

	return &Listing{
		ChannelID:   dump.ChannelID,
		DisplayName: dump.Channel,
		Username:    dump.UploaderID,
		Items:       normalizeYouTubeEntries(dump.Entries, shortsWhitelisted),
	}, nil
}

func (y *YouTube) FetchDetail(ctx context.Context, item ListedItem) (*Detail, SkipReason, error) {
	watchURL := "https://www.youtube.com/watch?v=" + item.DetailRef

	warned := false
	stdout, stderr, err := y.runYtdlp(ctx, "-J", "--no-check-formats", watchURL)
	if err != nil || stderr != "" {
		skip, ageGated, fatal := classifyYouTubeDetailStderr(stderr)
		switch {
		case ageGated && y.hasCookies():
			y.logger.Info("retrying video with authentication", slog.String("video", item.NativeID))
			stdout, stderr, err = y.runYtdlp(ctx, "-J", "--cookies", y.cookiesPath, watchURL)
			if err != nil || strings.Contains(stderr, ytErrMarker) {
				return nil, SkipNone, fmt.Errorf("scrape video %s with authentication: %v: %s", item.NativeID, err, stderr)
			}
		case skip != SkipNone:
			return nil, skip, nil
		case fatal || err != nil:
			return nil, SkipNone, fmt.Errorf("scrape video %s: %v: %s", item.NativeID, err, stderr)
		default:
			warned = true
		}
	}

	var data struct {
		Title       string   `json:"title"`
		Description string   `json:"description"`
		Duration    *float64 `json:"duration"`
		Timestamp   int64    `json:"timestamp"`
	}
	if err := json.Unmarshal(stdout, &data); err != nil {
		return nil, SkipNone, fmt.Errorf("parse video %s detail: %w", item.NativeID, err)
	}
	if warned {
		y.logger.Warn("yt-dlp warnings on video detail", slog.String("video", item.NativeID), slog.String("stderr", stderr))
		y.notifier.Info(fmt.Sprintf("There were warnings scraping video %s. Make sure %d is the right timestamp.", item.NativeID, data.Timestamp))
	}

	detail := &Detail{
		Description: data.Description,
		PublishedAt: time.Unix(data.Timestamp, 0),
	}
	if data.Duration != nil {
		d := int(*data.Duration)
		detail.Duration = &d
	}

	return detail, SkipNone, nil
}

func (y *YouTube) SupportsClassification() bool {
	return true
}

func (y *YouTube) PostRunCleanup(ctx context.Context, subscriptions, shortsWhitelist []string) error {
	if err := purgeUnsubscribed(y.repo, y.logger, model.PlatformYouTube, subscriptions, matchYouTubeChannel); err != nil {
		return err
	}

	return purgeShorts(y.repo, y.logger, model.PlatformYouTube, shortsWhitelist, matchYouTubeChannel)
}

func (y *YouTube) hasCookies() bool {
	if y.cookiesPath == "" {
		return false
	}
	_, err := os.Stat(y.cookiesPath)

	return err == nil
}

func (y *YouTube) runYtdlp(ctx context.Context, args ...string) ([]byte, string, error) {
	cmdCtx, cancel := context.WithTimeout(ctx, y.timeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, y.ytdlpPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()

	return stdout.Bytes(), stderr.String(), err
}

func parseYouTubeURI(uri string) (channelID, handle string, err error) {
	parts := strings.SplitN(strings.TrimPrefix(uri, youtubeScheme), "/", 2)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("uri %q misses channel id or handle", uri)
	}

	return parts[0], parts[1], nil
}

func matchYouTubeChannel(subscription, channelID string) bool {
	sub := strings.TrimPrefix(subscription, youtubeScheme)

	return strings.SplitN(sub, "/", 2)[0] == channelID
}

type youtubeEntry struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	LiveStatus   string   `json:"live_status"`   // is_live, was_live, is_upcoming
	Availability string   `json:"availability"`  // subscriber_only, premium_only
	Duration     *float64 `json:"duration"`      // absent for shorts, null for live
	URL          string   `json:"url"`
}

type youtubeChannelDump struct {
	Channel    string         `json:"channel"`
	ChannelID  string         `json:"channel_id"`
	UploaderID string         `json:"uploader_id"`
	WebpageURL string         `json:"webpage_url"`
	Entries    []youtubeEntry `json:"entries"`
}

type youtubeMetaDump struct {
	Channel    string               `json:"channel"`
	ChannelID  string               `json:"channel_id"`
	UploaderID string               `json:"uploader_id"`
	WebpageURL string               `json:"webpage_url"`
	Entries    []youtubeChannelDump `json:"entries"`
}

// parseYouTubeChannelDump handles both dump shapes yt-dlp produces for a
// channel: a meta-playlist of tab playlists, or a single playlist when the
// channel has only one tab.
func parseYouTubeChannelDump(data []byte) (*youtubeChannelDump, error) {
	var probe struct {
		WebpageURL string `json:"webpage_url"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, err
	}

	if strings.HasSuffix(probe.WebpageURL, "/videos") ||
		strings.HasSuffix(probe.WebpageURL, "/shorts") ||
		strings.HasSuffix(probe.WebpageURL, "/streams") {
		var dump youtubeChannelDump
		if err := json.Unmarshal(data, &dump); err != nil {
			return nil, err
		}
		return &dump, nil
	}

	var meta youtubeMetaDump
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	dump := &youtubeChannelDump{
		Channel:    meta.Channel,
		ChannelID:  meta.ChannelID,
		UploaderID: meta.UploaderID,
		WebpageURL: meta.WebpageURL,
	}
	for _, playlist := range meta.Entries {
		dump.Entries = append(dump.Entries, playlist.Entries...)
	}

	return dump, nil
}

func normalizeYouTubeEntries(entries []youtubeEntry, shortsWhitelisted bool) []ListedItem {
	items := []ListedItem{}
	for _, entry := range entries {
		if entry.Availability == "subscriber_only" || entry.Availability == "premium_only" ||
			entry.LiveStatus == "is_upcoming" {
			// a detail fetch would error on all of these, leave them alone
			continue
		}
		isShort := strings.Contains(entry.URL, "/shorts/")
		if isShort && !shortsWhitelisted {
			continue
		}

		item := ListedItem{
			NativeID:    entry.ID,
			Title:       entry.Title,
			Description: entry.Description,
			URL:         "https://youtu.be/" + entry.ID,
			IsLive:      entry.LiveStatus == "is_live",
			DetailRef:   entry.ID,
		}
		switch {
		case entry.LiveStatus != "":
			item.Type = model.TypeStream
		case isShort:
			item.Type = model.TypeShort
		default:
			item.Type = model.TypeVideo
		}
		if entry.LiveStatus == "was_live" && entry.Duration == nil {
			item.Broken = true
		}
		if entry.Duration != nil {
			d := int(*entry.Duration)
			item.Duration = &d
		}
		items = append(items, item)
	}

	return items
}

// classifyYouTubeDetailStderr maps yt-dlp stderr to the expected per-video
// skip conditions. Anything else with an error marker is fatal; output
// without one is mere warnings.
func classifyYouTubeDetailStderr(stderr string) (skip SkipReason, ageGated, fatal bool) {
	switch {
	case strings.Contains(stderr, ytAgeGate):
		return SkipNone, true, false
	case strings.Contains(stderr, ytProcessing):
		return SkipProcessing, false, false
	case strings.Contains(stderr, ytMembersOnlyA), strings.Contains(stderr, ytMembersOnlyB), strings.Contains(stderr, ytPayment):
		return SkipPaywalled, false, false
	case strings.Contains(stderr, ytPendingStream):
		return SkipUpcoming, false, false
	case strings.Contains(stderr, ytErrMarker):
		return SkipNone, false, true
	}

	return SkipNone, false, false
}
