package stream

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/livedepth/internal/pipeline"
)

func sampleFrame() Frame {
	return Frame{
		Seq:       7,
		Timestamp: time.Unix(1700000000, 250),
		Width:     3,
		Height:    2,
		Min:       -1,
		Max:       2.5,
		Depth:     []float32{0, 0.5, 1, -1, 2.5, 1.25},
	}
}

func TestEncodeDecodeFrame(t *testing.T) {
	want := sampleFrame()
	data, err := EncodeFrame(want)
	require.NoError(t, err)

	got, err := DecodeFrame(data)
	require.NoError(t, err)
	assert.True(t, want.Timestamp.Equal(got.Timestamp))
	got.Timestamp = want.Timestamp
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("frame mismatch (-want +got):\n%s", diff)
	}
}

func TestEncodedFrameUsesTypedArrays(t *testing.T) {
	data, err := EncodeFrame(sampleFrame())
	require.NoError(t, err)

	var msg map[string]any
	require.NoError(t, cbor.Unmarshal(data, &msg))
	assert.Equal(t, "depth", msg["type"])

	outer, ok := msg["depth"].(cbor.Tag)
	require.True(t, ok)
	assert.EqualValues(t, tagMultiDimArray, outer.Number)

	items := outer.Content.([]any)
	assert.Equal(t, []any{uint64(2), uint64(3)}, items[0])

	inner, ok := items[1].(cbor.Tag)
	require.True(t, ok)
	assert.EqualValues(t, tagFloat32LE, inner.Number)
	raw := inner.Content.([]byte)
	require.Len(t, raw, 6*4)
	// 0.5 little-endian
	assert.Equal(t, []byte{0x00, 0x00, 0x00, 0x3f}, raw[4:8])
}

func TestEncodeFrameSizeMismatch(t *testing.T) {
	f := sampleFrame()
	f.Width = 4
	_, err := EncodeFrame(f)
	assert.Error(t, err)
}

func TestDecodeFrameRejectsOtherMessages(t *testing.T) {
	data, err := cbor.Marshal(map[string]any{"type": "hello"})
	require.NoError(t, err)
	_, err = DecodeFrame(data)
	assert.Error(t, err)

	_, err = DecodeFrame([]byte{0xff})
	assert.Error(t, err)
}

func TestFrameFromEvent(t *testing.T) {
	ev := pipeline.DepthEvent{
		Seq:    3,
		Values: []float32{4, float32(math.NaN()), 1, 2},
		Width:  2,
		Height: 2,
	}
	f := FrameFromEvent(ev)
	assert.Equal(t, float32(1), f.Min)
	assert.Equal(t, float32(4), f.Max)
	assert.EqualValues(t, 3, f.Seq)
}

func wsURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func dial(t *testing.T, ts *httptest.Server) (*websocket.Conn, map[string]any) {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	var hello map[string]any
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	require.NoError(t, conn.ReadJSON(&hello))
	return conn, hello
}

func TestServerBroadcast(t *testing.T) {
	srv := NewServer(Options{
		Hello: func() map[string]any { return map[string]any{"width": 3, "height": 2} },
	})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn, hello := dial(t, ts)
	assert.Equal(t, "hello", hello["type"])
	assert.NotEmpty(t, hello["id"])
	assert.EqualValues(t, 3, hello["width"])

	payload, err := EncodeFrame(sampleFrame())
	require.NoError(t, err)
	srv.Broadcast(payload)

	kind, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, kind)
	f, err := DecodeFrame(data)
	require.NoError(t, err)
	assert.EqualValues(t, 7, f.Seq)

	stats := srv.Stats()
	assert.Equal(t, 1, stats.Clients)
	assert.EqualValues(t, 1, stats.Frames)
	assert.EqualValues(t, 1, stats.Sent)
}

func TestServerDropsForFullQueue(t *testing.T) {
	srv := NewServer(Options{SendBuffer: 1})
	c := &client{id: "stuck", send: make(chan []byte, 1), done: make(chan struct{})}
	srv.clients[c.id] = c

	for range 3 {
		srv.Broadcast([]byte{1})
	}
	stats := srv.Stats()
	assert.EqualValues(t, 3, stats.Frames)
	assert.EqualValues(t, 1, stats.Sent)
	assert.EqualValues(t, 2, stats.Dropped)
}

func TestServerRemovesDisconnectedClient(t *testing.T) {
	srv := NewServer(Options{})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn, _ := dial(t, ts)
	require.Eventually(t, func() bool { return srv.Stats().Clients == 1 }, 2*time.Second, 10*time.Millisecond)

	conn.Close()
	assert.Eventually(t, func() bool { return srv.Stats().Clients == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestPumpAndWatch(t *testing.T) {
	srv := NewServer(Options{})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan pipeline.DepthEvent, 1)
	go srv.Pump(ctx, events)

	hellos := make(chan Hello, 1)
	frames := make(chan Frame, 1)
	done := make(chan error, 1)
	errStop := errors.New("stop")
	go func() {
		done <- Watch(ctx, wsURL(ts), func(h Hello) { hellos <- h }, func(f Frame) error {
			frames <- f
			return errStop
		})
	}()

	select {
	case h := <-hellos:
		assert.NotEmpty(t, h.ID)
	case <-time.After(5 * time.Second):
		t.Fatal("no hello")
	}

	events <- pipeline.DepthEvent{Seq: 9, Values: []float32{1, 2}, Width: 2, Height: 1}

	select {
	case f := <-frames:
		assert.EqualValues(t, 9, f.Seq)
		assert.Equal(t, []float32{1, 2}, f.Depth)
		assert.Equal(t, float32(1), f.Min)
		assert.Equal(t, float32(2), f.Max)
	case <-time.After(5 * time.Second):
		t.Fatal("no frame")
	}
	assert.ErrorIs(t, <-done, errStop)
}

func TestWatchStopsOnCancel(t *testing.T) {
	srv := NewServer(Options{})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	connected := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, wsURL(ts), func(Hello) { close(connected) }, func(Frame) error { return nil })
	}()

	<-connected
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}
}

func TestHealthAndStatus(t *testing.T) {
	srv := NewServer(Options{
		Status: func() map[string]any { return map[string]any{"state": "running"} },
	})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))

	resp, err = http.Get(ts.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var status struct {
		State  string `json:"state"`
		Stream Stats  `json:"stream"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Equal(t, "running", status.State)
	assert.Zero(t, status.Stream.Clients)
}
