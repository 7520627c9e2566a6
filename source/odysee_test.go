package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"ewintr.nl/vidfeed/model"
	"ewintr.nl/vidfeed/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOdyseeBackend(t *testing.T, claimID string) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string         `json:"method"`
			Params map[string]any `json:"params"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, req.Method, r.URL.Query().Get("m"))

		switch req.Method {
		case "resolve":
			fmt.Fprintf(w, `{"result": {"@somechannel": {
				"claim_id": %q,
				"name": "@somechannel",
				"value": {"title": "Some Channel"}
			}}}`, claimID)
		case "claim_search":
			fmt.Fprint(w, `{"result": {"items": [
				{
					"claim_id": "claim-video-1",
					"name": "first-video",
					"permanent_url": "lbry://@somechannel#ab/first-video#cd",
					"value": {
						"title": "First Video",
						"description": "about things",
						"release_time": "1710400000",
						"video": {"duration": 450}
					}
				},
				{
					"claim_id": "claim-live-1",
					"name": "live-show",
					"permanent_url": "lbry://@somechannel#ab/live-show#ef",
					"value": {
						"title": "Live Show",
						"release_time": "1710500000"
					}
				},
				{
					"claim_id": "claim-broken-1",
					"name": "broken-time",
					"permanent_url": "lbry://@somechannel#ab/broken-time#99",
					"value": {
						"title": "Broken Time",
						"video": {"duration": 10}
					}
				}
			]}}`)
		default:
			t.Errorf("unexpected method %q", req.Method)
		}
	}))
}

func newTestOdysee(srv *httptest.Server) *Odysee {
	o := NewOdysee(storage.NewMemory(), &testNotifier{}, testLogger)
	o.backendURL = srv.URL
	o.client = srv.Client()

	return o
}

func TestOdyseeFetchListing(t *testing.T) {
	srv := newOdyseeBackend(t, "chanclaim1")
	defer srv.Close()

	o := newTestOdysee(srv)
	listing, err := o.FetchListing(context.Background(), "odysee://chanclaim1/@somechannel", false)
	require.NoError(t, err)

	assert.Equal(t, "chanclaim1", listing.ChannelID)
	assert.Equal(t, "Some Channel", listing.DisplayName)
	assert.Equal(t, "@somechannel", listing.Username)
	require.Len(t, listing.Items, 3)

	video := listing.Items[0]
	assert.Equal(t, "claim-video-1", video.NativeID)
	assert.Equal(t, model.TypeVideo, video.Type)
	assert.Equal(t, "https://odysee.com/@somechannel#ab/first-video#cd", video.URL)
	require.NotNil(t, video.Duration)
	assert.Equal(t, 450, *video.Duration)
	assert.Equal(t, int64(1710400000), video.PublishedAt.Unix())
	assert.False(t, video.IsLive)

	live := listing.Items[1]
	assert.Equal(t, model.TypeStream, live.Type)
	assert.True(t, live.IsLive, "a claim without video metadata is an active stream")
	assert.Nil(t, live.Duration)

	broken := listing.Items[2]
	assert.True(t, broken.PublishedAt.IsZero(), "a missing release time stays zero for the sanity check")
}

func TestOdyseeFetchListingClaimDrift(t *testing.T) {
	srv := newOdyseeBackend(t, "newclaim")
	defer srv.Close()

	notifier := &testNotifier{}
	o := NewOdysee(storage.NewMemory(), notifier, testLogger)
	o.backendURL = srv.URL
	o.client = srv.Client()

	listing, err := o.FetchListing(context.Background(), "odysee://oldclaim/@somechannel", false)
	require.NoError(t, err)
	assert.Equal(t, "newclaim", listing.ChannelID)
	require.Len(t, notifier.warns, 1)
	assert.Contains(t, notifier.warns[0], "oldclaim")
	assert.Contains(t, notifier.warns[0], "newclaim")
}

func TestOdyseeFetchDetailIsLocal(t *testing.T) {
	o := NewOdysee(storage.NewMemory(), &testNotifier{}, testLogger)
	duration := 450
	item := ListedItem{
		NativeID:    "claim-video-1",
		Description: "about things",
		Duration:    &duration,
	}

	detail, skip, err := o.FetchDetail(context.Background(), item)
	require.NoError(t, err)
	assert.Equal(t, SkipNone, skip)
	assert.Equal(t, "about things", detail.Description)
	assert.Equal(t, &duration, detail.Duration)
}

func TestParseOdyseeURI(t *testing.T) {
	claimID, name, err := parseOdyseeURI("odysee://chanclaim1/@somechannel")
	require.NoError(t, err)
	assert.Equal(t, "chanclaim1", claimID)
	assert.Equal(t, "@somechannel", name)

	_, _, err = parseOdyseeURI("odysee://chanclaim1")
	assert.Error(t, err)
}

func TestMatchOdyseeChannel(t *testing.T) {
	assert.True(t, matchOdyseeChannel("odysee://chanclaim1/@somechannel", "chanclaim1"))
	assert.False(t, matchOdyseeChannel("odysee://chanclaim1/@somechannel", "otherclaim"))
	assert.False(t, matchOdyseeChannel("yt://UCabc123/@handle", "chanclaim1"))
}
