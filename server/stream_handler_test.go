package server_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	gowav "github.com/go-audio/wav"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"decayfm/core/events"
)

func TestStreamServesWholeFile(t *testing.T) {
	ts := newTestServer(t)
	ts.addTrack(t, "airplay.wav")

	fi, err := os.Stat(filepath.Join(ts.audioDir, "airplay.wav"))
	require.NoError(t, err)

	resp, err := http.Get(ts.srv.URL + "/stream/airplay.wav")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "audio/wav", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Cache-Control"), "no-store")
	assert.Len(t, body, int(fi.Size()))

	meta, err := ts.repo.GetTrack("airplay.wav")
	require.NoError(t, err)
	assert.Equal(t, int64(1), meta.TotalStreams)
}

func TestStreamRangeRequest(t *testing.T) {
	ts := newTestServer(t)
	ts.addTrack(t, "seeking.wav")

	fi, err := os.Stat(filepath.Join(ts.audioDir, "seeking.wav"))
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodGet, ts.srv.URL+"/stream/seeking.wav", nil)
	require.NoError(t, err)
	req.Header.Set("Range", "bytes=0-99")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)

	assert.Equal(t, http.StatusPartialContent, resp.StatusCode)
	assert.Len(t, body, 100)
	assert.Equal(t, "bytes 0-99/"+strconv.FormatInt(fi.Size(), 10), resp.Header.Get("Content-Range"))

	meta, err := ts.repo.GetTrack("seeking.wav")
	require.NoError(t, err)
	assert.Zero(t, meta.TotalStreams, "a seek inside playback is not a new stream")
}

func TestStreamUnknownTrack(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.srv.URL + "/stream/ghost.wav")
	require.NoError(t, err)
	var out map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "track not found", out["error"])
}

func TestChunkIsAStandaloneWAV(t *testing.T) {
	ts := newTestServer(t)
	ts.addTrack(t, "pieces.wav")

	resp, err := http.Get(ts.srv.URL + "/stream/pieces.wav/chunk/0")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "audio/wav", resp.Header.Get("Content-Type"))
	assert.Equal(t, strconv.Itoa(len(body)), resp.Header.Get("Content-Length"))

	dec := gowav.NewDecoder(bytes.NewReader(body))
	require.True(t, dec.IsValidFile(), "chunk must decode as a complete WAV")
	pcm, err := dec.FullPCMBuffer()
	require.NoError(t, err)
	// The fixture is 2 seconds long, shorter than one chunk, so chunk 0
	// holds the whole track.
	assert.Equal(t, 2*testRate, len(pcm.Data))
}

func TestChunkErrors(t *testing.T) {
	ts := newTestServer(t)
	ts.addTrack(t, "pieces.wav")

	resp, err := http.Get(ts.srv.URL + "/stream/pieces.wav/chunk/1")
	require.NoError(t, err)
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "past the end of the track")

	resp, err = http.Get(ts.srv.URL + "/stream/pieces.wav/chunk/banana")
	require.NoError(t, err)
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(ts.srv.URL + "/stream/ghost.wav/chunk/0")
	require.NoError(t, err)
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestWebSocketFeedCarriesDegradeEvents(t *testing.T) {
	ts := newTestServer(t)
	ts.addTrack(t, "fading.wav")

	wsURL := "ws" + strings.TrimPrefix(ts.srv.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	require.Eventually(t, func() bool { return ts.hub.ClientCount() == 1 },
		2*time.Second, 10*time.Millisecond)

	httpResp, out := postDegrade(t, ts.srv.URL, "fading.wav", `{"segment_index":3}`)
	require.Equal(t, http.StatusOK, httpResp.StatusCode)
	require.Equal(t, true, out["success"])

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var ev events.Event
	require.NoError(t, json.Unmarshal(data, &ev))
	assert.Equal(t, events.EventDegrade, ev.Type)
	assert.Equal(t, "fading.wav", ev.Filename)
	require.NotNil(t, ev.SegmentIndex)
	assert.Equal(t, 3, *ev.SegmentIndex)
	assert.Equal(t, int64(1), ev.PlayCount)
	assert.NotZero(t, ev.Timestamp)
}

func TestWebSocketFeedCarriesStreamEvents(t *testing.T) {
	ts := newTestServer(t)
	ts.addTrack(t, "onair.wav")

	wsURL := "ws" + strings.TrimPrefix(ts.srv.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	require.Eventually(t, func() bool { return ts.hub.ClientCount() == 1 },
		2*time.Second, 10*time.Millisecond)

	httpResp, err := http.Get(ts.srv.URL + "/stream/onair.wav")
	require.NoError(t, err)
	io.Copy(io.Discard, httpResp.Body)
	httpResp.Body.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var ev events.Event
	require.NoError(t, json.Unmarshal(data, &ev))
	assert.Equal(t, events.EventStream, ev.Type)
	assert.Equal(t, "onair.wav", ev.Filename)
	assert.Equal(t, int64(1), ev.TotalStreams)
}
