package storage

import (
	"fmt"
	"sync"
	"time"

	"ewintr.nl/vidfeed/model"
)

// Memory is an in-memory VideoRepository. It backs tests and counts writes so
// reconciliation idempotence can be asserted.
type Memory struct {
	mu     sync.Mutex
	videos map[string]*model.Video
	writes int
}

func NewMemory() *Memory {
	return &Memory{
		videos: map[string]*model.Video{},
	}
}

func (m *Memory) Create(video *model.Video) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.videos[video.VideoID]; ok {
		return fmt.Errorf("duplicate video id %s", video.VideoID)
	}
	m.videos[video.VideoID] = cloneVideo(video)
	m.writes++

	return nil
}

func (m *Memory) FindByChannel(channelID string) ([]*model.Video, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	videos := []*model.Video{}
	for _, v := range m.videos {
		if v.ChannelID == channelID {
			videos = append(videos, cloneVideo(v))
		}
	}

	return videos, nil
}

func (m *Memory) FindRecentOrUnread(platform model.Platform, cutoff time.Time) ([]*model.Video, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	videos := []*model.Video{}
	for _, v := range m.videos {
		if v.Platform == platform && (v.Date.After(cutoff) || v.Unread) {
			videos = append(videos, cloneVideo(v))
		}
	}

	return videos, nil
}

func (m *Memory) FindUnread() ([]*model.Video, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	videos := []*model.Video{}
	for _, v := range m.videos {
		if v.Unread {
			videos = append(videos, cloneVideo(v))
		}
	}

	return videos, nil
}

func (m *Memory) MarkRead(videoID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.videos[videoID]
	if !ok {
		return ErrNotFound
	}
	v.Unread = false
	m.writes++

	return nil
}

func (m *Memory) DistinctChannels(platform model.Platform) ([]string, error) {
	return m.distinctChannels(platform, false)
}

func (m *Memory) DistinctShortsChannels(platform model.Platform) ([]string, error) {
	return m.distinctChannels(platform, true)
}

func (m *Memory) distinctChannels(platform model.Platform, shortsOnly bool) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := map[string]bool{}
	channelIDs := []string{}
	for _, v := range m.videos {
		if v.Platform != platform || seen[v.ChannelID] {
			continue
		}
		if shortsOnly && v.Type != model.TypeShort {
			continue
		}
		seen[v.ChannelID] = true
		channelIDs = append(channelIDs, v.ChannelID)
	}

	return channelIDs, nil
}

func (m *Memory) DeleteByChannel(platform model.Platform, channelID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, v := range m.videos {
		if v.Platform == platform && v.ChannelID == channelID {
			delete(m.videos, id)
			m.writes++
		}
	}

	return nil
}

func (m *Memory) DeleteShortsByChannel(platform model.Platform, channelID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, v := range m.videos {
		if v.Platform == platform && v.ChannelID == channelID && v.Type == model.TypeShort {
			delete(m.videos, id)
			m.writes++
		}
	}

	return nil
}

func (m *Memory) SetSponsorBlock(videoID string, status *model.SponsorBlockStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.videos[videoID]
	if !ok {
		return ErrNotFound
	}
	if status != nil {
		s := *status
		v.SponsorBlockStatus = &s
	} else {
		v.SponsorBlockStatus = nil
	}
	m.writes++

	return nil
}

func (m *Memory) InTransaction(fn func(tx VideoWriter) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	staged := make(map[string]*model.Video, len(m.videos))
	for id, v := range m.videos {
		staged[id] = cloneVideo(v)
	}

	w := &memoryVideoWriter{videos: staged}
	if err := fn(w); err != nil {
		return err
	}

	m.videos = staged
	m.writes += w.writes

	return nil
}

// Find returns one video by its platform-native ID.
func (m *Memory) Find(videoID string) (*model.Video, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.videos[videoID]
	if !ok {
		return nil, ErrNotFound
	}

	return cloneVideo(v), nil
}

// WriteCount reports the number of mutations applied so far.
func (m *Memory) WriteCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.writes
}

type memoryVideoWriter struct {
	videos map[string]*model.Video
	writes int
}

func (w *memoryVideoWriter) ResolveLive(videoID, title string, duration int) error {
	v, ok := w.videos[videoID]
	if !ok {
		return ErrNotFound
	}
	v.Title = title
	v.Duration = &duration
	v.IsCurrentlyLive = false
	w.writes++

	return nil
}

func (w *memoryVideoWriter) UpdateMeta(videoID, title string, duration *int) error {
	v, ok := w.videos[videoID]
	if !ok {
		return ErrNotFound
	}
	v.Title = title
	if duration != nil {
		d := *duration
		v.Duration = &d
	}
	w.writes++

	return nil
}

func (w *memoryVideoWriter) Delete(videoID string) error {
	if _, ok := w.videos[videoID]; !ok {
		return ErrNotFound
	}
	delete(w.videos, videoID)
	w.writes++

	return nil
}

func cloneVideo(v *model.Video) *model.Video {
	clone := *v
	if v.Duration != nil {
		d := *v.Duration
		clone.Duration = &d
	}
	if v.SponsorBlockStatus != nil {
		s := *v.SponsorBlockStatus
		clone.SponsorBlockStatus = &s
	}

	return &clone
}
