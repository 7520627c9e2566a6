package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"ewintr.nl/vidfeed/model"
	"ewintr.nl/vidfeed/notify"
	"ewintr.nl/vidfeed/storage"
	"golang.org/x/exp/slog"
)

const (
	peertubeScheme      = "peertube://"
	peertubeListingPage = 100

	// videos in this state are fully processed and playable
	peertubeStatePublished = 1
)

// PeerTube talks to a PeerTube instance's REST API. Channel URIs look like
// peertube://<host>/<channel>, the stored channel ID is <channel>@<host>.
type PeerTube struct {
	repo     storage.VideoRepository
	notifier notify.Notifier
	logger   *slog.Logger
	client   *http.Client
	scheme   string
}

func NewPeerTube(repo storage.VideoRepository, notifier notify.Notifier, logger *slog.Logger) *PeerTube {
	return &PeerTube{
		repo:     repo,
		notifier: notifier,
		logger:   logger,
		client:   &http.Client{Timeout: 30 * time.Second},
		scheme:   "https",
	}
}

func (p *PeerTube) Platform() model.Platform {
	return model.PlatformPeerTube
}

func (p *PeerTube) IdentifyURI(uri string) bool {
	return strings.HasPrefix(uri, peertubeScheme)
}

type peertubeVideo struct {
	ID          int       `json:"id"`
	UUID        string    `json:"uuid"`
	URL         string    `json:"url"`
	Name        string    `json:"name"`
	PublishedAt time.Time `json:"publishedAt"`
	Duration    *int      `json:"duration"`
	IsLive      bool      `json:"isLive"`
	Channel     struct {
		Name        string `json:"name"`
		DisplayName string `json:"displayName"`
	} `json:"channel"`
}

func (p *PeerTube) FetchListing(ctx context.Context, channelURI string, _ bool) (*Listing, error) {
	host, channelName, err := parsePeerTubeURI(channelURI)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s://%s/api/v1/video-channels/%s/videos?count=%d&includeScheduledLive=false",
		p.scheme, host, channelName, peertubeListingPage)
	var listing struct {
		Total int             `json:"total"`
		Data  []peertubeVideo `json:"data"`
	}
	if err := p.getJSON(ctx, url, &listing); err != nil {
		return nil, fmt.Errorf("scrape channel %s: %w", channelURI, err)
	}

	result := &Listing{
		ChannelID: channelName + "@" + host,
	}
	for _, video := range listing.Data {
		item := ListedItem{
			NativeID:    video.UUID,
			Title:       video.Name,
			URL:         video.URL,
			Type:        model.TypeVideo,
			Duration:    video.Duration,
			IsLive:      video.IsLive,
			PublishedAt: video.PublishedAt,
			DetailRef:   fmt.Sprintf("%s://%s/api/v1/videos/%d", p.scheme, host, video.ID),
		}
		if video.IsLive {
			item.Type = model.TypeStream
		}
		if video.Duration == nil {
			item.Broken = true
		}
		result.Items = append(result.Items, item)
		if result.DisplayName == "" {
			result.DisplayName = video.Channel.DisplayName
			result.Username = video.Channel.Name
		}
	}

	return result, nil
}

func (p *PeerTube) FetchDetail(ctx context.Context, item ListedItem) (*Detail, SkipReason, error) {
	var detail struct {
		Description string `json:"description"`
		Duration    *int   `json:"duration"`
		State       struct {
			ID int `json:"id"`
		} `json:"state"`
	}
	if err := p.getJSON(ctx, item.DetailRef, &detail); err != nil {
		return nil, SkipNone, fmt.Errorf("scrape video %s: %w", item.NativeID, err)
	}
	if detail.State.ID != peertubeStatePublished {
		return nil, SkipProcessing, nil
	}

	duration := detail.Duration
	if duration == nil {
		duration = item.Duration
	}

	return &Detail{
		Description: detail.Description,
		Duration:    duration,
		PublishedAt: item.PublishedAt,
	}, SkipNone, nil
}

func (p *PeerTube) SupportsClassification() bool {
	return false
}

func (p *PeerTube) PostRunCleanup(ctx context.Context, subscriptions, _ []string) error {
	return purgeUnsubscribed(p.repo, p.logger, model.PlatformPeerTube, subscriptions, matchPeerTubeChannel)
}

func (p *PeerTube) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, body)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

func parsePeerTubeURI(uri string) (host, channelName string, err error) {
	parts := strings.SplitN(strings.TrimPrefix(uri, peertubeScheme), "/", 2)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("uri %q misses hostname or channel name", uri)
	}

	return parts[0], parts[1], nil
}

func matchPeerTubeChannel(subscription, channelID string) bool {
	parts := strings.SplitN(channelID, "@", 2)
	if len(parts) < 2 {
		return false
	}

	return strings.TrimPrefix(subscription, peertubeScheme) == parts[1]+"/"+parts[0]
}
