// Package sponsorblock looks up full-video segment classifications on a
// SponsorBlock-compatible API. Lookups are k-anonymous: only a short prefix of
// the hashed video ID leaves the process and the response is filtered locally.
package sponsorblock

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"ewintr.nl/vidfeed/model"
	"golang.org/x/exp/slog"
)

const (
	DefaultBaseURL = "https://sponsor.ajay.app"

	hashPrefixLength = 4
	defaultRetries   = 5
	defaultDelay     = 5 * time.Second
)

// LookupError means the lookup itself failed after all retries, as opposed to
// the video having no classification.
type LookupError struct {
	Status int
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("sponsorblock lookup failed with status %d", e.Status)
}

type Client struct {
	baseURL string
	client  *http.Client
	retries int
	delay   time.Duration
	logger  *slog.Logger
}

func NewClient(baseURL string, logger *slog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
		retries: defaultRetries,
		delay:   defaultDelay,
		logger:  logger,
	}
}

type segment struct {
	Category model.SponsorBlockStatus `json:"category"`
	Votes    float64                  `json:"votes"`
}

type hashMatch struct {
	VideoID  string    `json:"videoID"`
	Segments []segment `json:"segments"`
}

// FullVideoStatus returns the full-video classification for one video, or nil
// when none exists. A nil status with a nil error is a successful "no
// classification" answer.
func (c *Client) FullVideoStatus(ctx context.Context, videoID string) (*model.SponsorBlockStatus, error) {
	hash := sha256.Sum256([]byte(videoID))
	prefix := hex.EncodeToString(hash[:])[:hashPrefixLength]
	url := fmt.Sprintf(`%s/api/skipSegments/%s?categories=["sponsor","selfpromo","exclusive_access"]&actionType=full`, c.baseURL, prefix)

	var lastStatus int
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(c.delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		status, matches, err := c.lookup(ctx, url)
		switch {
		case err != nil:
			c.logger.Error("sponsorblock request failed", err, slog.String("video", videoID))
			lastStatus = 0
			continue
		case status == http.StatusNotFound:
			// nothing at all shares this hash prefix
			return nil, nil
		case status >= http.StatusOK && status < http.StatusMultipleChoices:
			return selectStatus(matches, videoID), nil
		default:
			c.logger.Warn("sponsorblock request was rejected", slog.Int("status", status), slog.String("video", videoID))
			lastStatus = status
		}
	}

	return nil, &LookupError{Status: lastStatus}
}

func (c *Client) lookup(ctx context.Context, url string) (int, []hashMatch, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil, nil
	}

	var matches []hashMatch
	if err := json.NewDecoder(resp.Body).Decode(&matches); err != nil {
		return resp.StatusCode, nil, fmt.Errorf("parse sponsorblock response: %w", err)
	}

	return resp.StatusCode, matches, nil
}

// selectStatus filters the k-anonymity response down to the exact video and
// picks the category with the most votes. Ties keep the earlier segment.
func selectStatus(matches []hashMatch, videoID string) *model.SponsorBlockStatus {
	for _, match := range matches {
		if match.VideoID != videoID {
			continue
		}
		var best *segment
		for i := range match.Segments {
			if best == nil || match.Segments[i].Votes > best.Votes {
				best = &match.Segments[i]
			}
		}
		if best == nil {
			return nil
		}
		status := best.Category
		return &status
	}

	return nil
}
