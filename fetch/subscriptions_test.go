package fetch

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileSubscriptions(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "subscriptions.json"),
		[]byte(`["yt://UC123/@someone", "peertube://tube.example.com/cooking"]`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "shorts-whitelist.json"),
		[]byte(`["yt://UC123/@someone"]`), 0o644))

	subs := NewFileSubscriptions(dir)

	uris, err := subs.Subscriptions()
	require.NoError(t, err)
	assert.Equal(t, []string{"yt://UC123/@someone", "peertube://tube.example.com/cooking"}, uris)

	whitelist, err := subs.ShortsWhitelist()
	require.NoError(t, err)
	assert.Equal(t, []string{"yt://UC123/@someone"}, whitelist)
}

func TestFileSubscriptionsMissingWhitelist(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "subscriptions.json"), []byte(`[]`), 0o644))

	subs := NewFileSubscriptions(dir)

	whitelist, err := subs.ShortsWhitelist()
	require.NoError(t, err)
	assert.Empty(t, whitelist)
}

func TestFileSubscriptionsMissingSubscriptions(t *testing.T) {
	subs := NewFileSubscriptions(t.TempDir())

	_, err := subs.Subscriptions()
	assert.Error(t, err, "subscriptions are not optional")
}

func TestFileSubscriptionsMalformed(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "subscriptions.json"), []byte(`{"not": "a list"}`), 0o644))

	subs := NewFileSubscriptions(dir)

	_, err := subs.Subscriptions()
	assert.Error(t, err)
}
