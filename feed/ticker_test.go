package feed

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/optrade/market"
)

// frame builds a binary quote frame holding LTP packets (token, paise).
func frame(packets ...[2]uint32) []byte {
	buf := make([]byte, 2)
	binary.BigEndian.PutUint16(buf, uint16(len(packets)))
	for _, p := range packets {
		pkt := make([]byte, 10)
		binary.BigEndian.PutUint16(pkt[0:2], 8)
		binary.BigEndian.PutUint32(pkt[2:6], p[0])
		binary.BigEndian.PutUint32(pkt[6:10], p[1])
		buf = append(buf, pkt...)
	}
	return buf
}

func TestParseFrame(t *testing.T) {
	t.Parallel()

	now := time.Now()
	ticks := parseFrame(frame([2]uint32{101, 12050}, [2]uint32{202, 9925}), now)

	require.Len(t, ticks, 2)
	assert.Equal(t, market.Token(101), ticks[0].Token)
	assert.Equal(t, 120.50, ticks[0].Price)
	assert.Equal(t, market.Token(202), ticks[1].Token)
	assert.Equal(t, 99.25, ticks[1].Price)
}

func TestParseFrameHeartbeat(t *testing.T) {
	t.Parallel()

	assert.Nil(t, parseFrame([]byte{0}, time.Now()))
	assert.Nil(t, parseFrame(nil, time.Now()))
}

func TestParseFrameTruncated(t *testing.T) {
	t.Parallel()

	full := frame([2]uint32{101, 12050}, [2]uint32{202, 9925})
	ticks := parseFrame(full[:len(full)-4], time.Now())
	require.Len(t, ticks, 1, "a truncated trailing packet is dropped, not fatal")
	assert.Equal(t, market.Token(101), ticks[0].Token)
}

func TestTickerStreamsInOrder(t *testing.T) {
	t.Parallel()

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key-1", r.URL.Query().Get("api_key"))
		assert.Equal(t, "tok-1", r.URL.Query().Get("access_token"))

		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		// Expect the subscribe and mode control messages first.
		var sub, mode controlMessage
		require.NoError(t, conn.ReadJSON(&sub))
		require.NoError(t, conn.ReadJSON(&mode))
		assert.Equal(t, "subscribe", sub.Action)
		assert.Equal(t, "mode", mode.Action)

		require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, frame([2]uint32{101, 12000})))
		require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, frame([2]uint32{101, 15000})))
		require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	}))
	t.Cleanup(srv.Close)

	var got []float64
	done := make(chan struct{})
	ticker, err := NewTicker("ws"+strings.TrimPrefix(srv.URL, "http"), "key-1", "tok-1",
		func(tk market.Tick) {
			got = append(got, tk.Price)
			if len(got) == 2 {
				close(done)
			}
		}, nil)
	require.NoError(t, err)
	require.NoError(t, ticker.Subscribe(101))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	errc := make(chan error, 1)
	go func() { errc <- ticker.connectAndRead(ctx) }()

	select {
	case <-done:
	case <-ctx.Done():
		t.Fatal("ticks not delivered")
	}
	<-errc // connection closed by server

	assert.Equal(t, []float64{120, 150}, got, "ticks for one instrument arrive in feed order")
}

func TestSubscribeDedupes(t *testing.T) {
	t.Parallel()

	ticker, err := NewTicker("wss://example.invalid/ws", "k", "t", func(market.Tick) {}, nil)
	require.NoError(t, err)

	// Disconnected: tokens are queued, not sent.
	require.NoError(t, ticker.Subscribe(101, 101, 202))
	assert.Len(t, ticker.tokensLocked(), 2)

	_, err = ticker.Resubscribe()
	assert.ErrorContains(t, err, "not connected")
}

func TestControlMessageShape(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(controlMessage{Action: "subscribe", Value: []market.Token{101}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":"subscribe","v":[101]}`, string(data))
}
