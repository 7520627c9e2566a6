package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"ewintr.nl/vidfeed/storage"
	"golang.org/x/exp/slog"
)

// VideoAPI exposes the unread part of the catalog to feed readers. Marking a
// video read is the only mutation; everything else is the fetcher's job.
type VideoAPI struct {
	videoRepo storage.VideoRepository
	logger    *slog.Logger
}

func NewVideoAPI(videoRepo storage.VideoRepository, logger *slog.Logger) *VideoAPI {
	return &VideoAPI{
		videoRepo: videoRepo,
		logger:    logger,
	}
}

func (v *VideoAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	videoID, tail := ShiftPath(r.URL.Path)
	action, _ := ShiftPath(tail)

	switch {
	case r.Method == http.MethodGet && videoID == "":
		v.List(w, r)
	case r.Method == http.MethodPost && videoID != "" && action == "read":
		v.MarkRead(w, r, videoID)
	default:
		Error(w, http.StatusNotFound, "not found", fmt.Errorf("method %s with subpath %q was not registered in the video api", r.Method, videoID))
	}
}

func (v *VideoAPI) List(w http.ResponseWriter, r *http.Request) {
	videos, err := v.videoRepo.FindUnread()
	if err != nil {
		v.returnErr(w, http.StatusInternalServerError, "could not list videos", err)
		return
	}

	type respVideo struct {
		VideoID            string    `json:"video_id"`
		Platform           string    `json:"platform"`
		Type               string    `json:"type"`
		Title              string    `json:"title"`
		DisplayName        string    `json:"display_name"`
		Duration           *int      `json:"duration"`
		Date               time.Time `json:"date"`
		IsCurrentlyLive    bool      `json:"is_currently_live"`
		SponsorBlockStatus string    `json:"sponsorblock_status,omitempty"`
		URL                string    `json:"url"`
	}
	resp := []respVideo{}
	for _, video := range videos {
		rv := respVideo{
			VideoID:         video.VideoID,
			Platform:        string(video.Platform),
			Type:            string(video.Type),
			Title:           video.Title,
			DisplayName:     video.DisplayName,
			Duration:        video.Duration,
			Date:            video.Date,
			IsCurrentlyLive: video.IsCurrentlyLive,
			URL:             video.URL,
		}
		if video.SponsorBlockStatus != nil {
			rv.SponsorBlockStatus = string(*video.SponsorBlockStatus)
		}
		resp = append(resp, rv)
	}

	jsonBody, err := json.Marshal(resp)
	if err != nil {
		v.returnErr(w, http.StatusInternalServerError, "could not marshal response", err)
		return
	}

	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, string(jsonBody))
}

func (v *VideoAPI) MarkRead(w http.ResponseWriter, r *http.Request, videoID string) {
	if err := v.videoRepo.MarkRead(videoID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			Error(w, http.StatusNotFound, "not found", fmt.Errorf("no video with id %s", videoID))
			return
		}
		v.returnErr(w, http.StatusInternalServerError, "could not mark video read", err)
		return
	}

	Message(w, http.StatusOK, fmt.Sprintf("video %s was marked read", videoID))
}

func (v *VideoAPI) returnErr(w http.ResponseWriter, status int, message string, err error, details ...any) {
	v.logger.Error(message, err, slog.String("details", fmt.Sprintf("%+v", details)))
	Error(w, status, message, err, details...)
}
