package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"ewintr.nl/vidfeed/model"
	"ewintr.nl/vidfeed/notify"
	"ewintr.nl/vidfeed/storage"
	"golang.org/x/exp/slog"
)

const (
	odyseeScheme      = "odysee://"
	odyseeListingPage = 50

	defaultOdyseeBackend = "https://api.na-backend.odysee.com/api/v1/proxy"
)

// Odysee talks to the Odysee backend proxy. Channel URIs look like
// odysee://<claimID>/<name>; the name is resolved on every run and the claim
// ID only serves drift detection.
type Odysee struct {
	repo       storage.VideoRepository
	notifier   notify.Notifier
	logger     *slog.Logger
	client     *http.Client
	backendURL string
}

func NewOdysee(repo storage.VideoRepository, notifier notify.Notifier, logger *slog.Logger) *Odysee {
	return &Odysee{
		repo:       repo,
		notifier:   notifier,
		logger:     logger,
		client:     &http.Client{Timeout: 30 * time.Second},
		backendURL: defaultOdyseeBackend,
	}
}

func (o *Odysee) Platform() model.Platform {
	return model.PlatformOdysee
}

func (o *Odysee) IdentifyURI(uri string) bool {
	return strings.HasPrefix(uri, odyseeScheme)
}

type odyseeClaim struct {
	ClaimID      string `json:"claim_id"`
	Name         string `json:"name"`
	PermanentURL string `json:"permanent_url"`
	Value        struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		ReleaseTime string `json:"release_time"` // seconds since epoch
		Video       *struct {
			Duration int `json:"duration"`
		} `json:"video"`
	} `json:"value"`
}

func (o *Odysee) FetchListing(ctx context.Context, channelURI string, _ bool) (*Listing, error) {
	expectedClaimID, channelName, err := parseOdyseeURI(channelURI)
	if err != nil {
		return nil, err
	}

	var resolved struct {
		Result map[string]odyseeClaim `json:"result"`
	}
	if err := o.requestBackend(ctx, "resolve", map[string]any{"urls": []string{channelName}}, &resolved); err != nil {
		return nil, fmt.Errorf("resolve channel %s: %w", channelURI, err)
	}
	channel, ok := resolved.Result[channelName]
	if !ok || channel.ClaimID == "" {
		return nil, fmt.Errorf("resolve channel %s: no claim in response", channelURI)
	}
	if channel.ClaimID != expectedClaimID {
		o.notifier.Warn(fmt.Sprintf("WARNING: Odysee channel %s, previously %s, is now %s", channelName, expectedClaimID, channel.ClaimID))
	}

	var search struct {
		Result struct {
			Items []odyseeClaim `json:"items"`
		} `json:"result"`
	}
	params := map[string]any{
		"channel_ids": []string{channel.ClaimID},
		"no_totals":   true,
		"claim_type":  []string{"stream"},
		"order_by":    []string{"release_time"},
		"page":        1,
		"page_size":   odyseeListingPage,
	}
	if err := o.requestBackend(ctx, "claim_search", params, &search); err != nil {
		return nil, fmt.Errorf("scrape channel %s: %w", channelURI, err)
	}

	result := &Listing{
		ChannelID:   channel.ClaimID,
		DisplayName: channel.Value.Title,
		Username:    channel.Name,
	}
	for _, claim := range search.Result.Items {
		item := ListedItem{
			NativeID:    claim.ClaimID,
			Title:       claim.Value.Title,
			Description: claim.Value.Description,
			URL:         strings.Replace(claim.PermanentURL, "lbry://", "https://odysee.com/", 1),
			Type:        model.TypeVideo,
			DetailRef:   claim.ClaimID,
		}
		if claim.Value.Video != nil {
			d := claim.Value.Video.Duration
			item.Duration = &d
		} else {
			// no resolved duration means the stream is still going
			item.Type = model.TypeStream
			item.IsLive = true
		}
		// a missing or mangled release time fails the publish-date sanity
		// check downstream
		if ts, err := strconv.ParseInt(claim.Value.ReleaseTime, 10, 64); err == nil {
			item.PublishedAt = time.Unix(ts, 0)
		}
		result.Items = append(result.Items, item)
	}

	return result, nil
}

// FetchDetail is local for Odysee: the listing already carries everything the
// other platforms need a second fetch for.
func (o *Odysee) FetchDetail(_ context.Context, item ListedItem) (*Detail, SkipReason, error) {
	return &Detail{
		Description: item.Description,
		Duration:    item.Duration,
		PublishedAt: item.PublishedAt,
	}, SkipNone, nil
}

func (o *Odysee) SupportsClassification() bool {
	return false
}

func (o *Odysee) PostRunCleanup(ctx context.Context, subscriptions, _ []string) error {
	return purgeUnsubscribed(o.repo, o.logger, model.PlatformOdysee, subscriptions, matchOdyseeChannel)
}

func (o *Odysee) requestBackend(ctx context.Context, method string, params any, out any) error {
	body, err := json.Marshal(map[string]any{
		"id":     time.Now().UnixMilli(),
		"method": method,
		"params": params,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.backendURL+"?m="+method, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Referer", "https://odysee.com/")

	resp, err := o.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, respBody)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

func parseOdyseeURI(uri string) (claimID, channelName string, err error) {
	parts := strings.SplitN(strings.TrimPrefix(uri, odyseeScheme), "/", 2)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("uri %q misses claim id or channel name", uri)
	}

	return parts[0], parts[1], nil
}

func matchOdyseeChannel(subscription, channelID string) bool {
	sub := strings.TrimPrefix(subscription, odyseeScheme)

	return strings.SplitN(sub, "/", 2)[0] == channelID
}
