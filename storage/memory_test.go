package storage

import (
	"errors"
	"testing"
	"time"

	"ewintr.nl/vidfeed/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryTransactionRollsBack(t *testing.T) {
	mem := NewMemory()
	require.NoError(t, mem.Create(&model.Video{
		VideoID:   "v1",
		Platform:  model.PlatformYouTube,
		ChannelID: "c1",
		Title:     "Original",
	}))
	before := mem.WriteCount()

	boom := errors.New("boom")
	err := mem.InTransaction(func(tx VideoWriter) error {
		require.NoError(t, tx.UpdateMeta("v1", "Changed", nil))
		require.NoError(t, tx.Delete("v1"))

		return boom
	})
	assert.ErrorIs(t, err, boom)

	stored, err := mem.Find("v1")
	require.NoError(t, err)
	assert.Equal(t, "Original", stored.Title)
	assert.Equal(t, before, mem.WriteCount())
}

func TestMemoryTransactionCommits(t *testing.T) {
	mem := NewMemory()
	require.NoError(t, mem.Create(&model.Video{
		VideoID:         "v1",
		Platform:        model.PlatformYouTube,
		ChannelID:       "c1",
		Title:           "Stream",
		IsCurrentlyLive: true,
	}))

	err := mem.InTransaction(func(tx VideoWriter) error {
		return tx.ResolveLive("v1", "Stream finished", 900)
	})
	require.NoError(t, err)

	stored, err := mem.Find("v1")
	require.NoError(t, err)
	assert.Equal(t, "Stream finished", stored.Title)
	assert.False(t, stored.IsCurrentlyLive)
	require.NotNil(t, stored.Duration)
	assert.Equal(t, 900, *stored.Duration)
}

func TestMemoryWriterMissingVideo(t *testing.T) {
	mem := NewMemory()

	err := mem.InTransaction(func(tx VideoWriter) error {
		return tx.Delete("nope")
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryFindRecentOrUnread(t *testing.T) {
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	mem := NewMemory()
	require.NoError(t, mem.Create(&model.Video{
		VideoID:   "recent",
		Platform:  model.PlatformYouTube,
		ChannelID: "c1",
		Date:      now.Add(-time.Hour),
	}))
	require.NoError(t, mem.Create(&model.Video{
		VideoID:   "oldUnread",
		Platform:  model.PlatformYouTube,
		ChannelID: "c1",
		Date:      now.Add(-30 * 24 * time.Hour),
		Unread:    true,
	}))
	require.NoError(t, mem.Create(&model.Video{
		VideoID:   "oldRead",
		Platform:  model.PlatformYouTube,
		ChannelID: "c1",
		Date:      now.Add(-30 * 24 * time.Hour),
	}))

	videos, err := mem.FindRecentOrUnread(model.PlatformYouTube, now.Add(-24*time.Hour))
	require.NoError(t, err)

	ids := []string{}
	for _, v := range videos {
		ids = append(ids, v.VideoID)
	}
	assert.ElementsMatch(t, []string{"recent", "oldUnread"}, ids)
}
