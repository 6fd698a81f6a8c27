package feed

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rustyeddy/optrade/market"
)

const (
	// reconnectDelay paces redial attempts after the stream drops.
	reconnectDelay = 5 * time.Second

	// priceDivisor converts streamed paise to rupees.
	priceDivisor = 100.0
)

// Ticker maintains the websocket subscription to the broker's price stream.
// The wire format is the Kite ticker protocol: binary quote frames (big
// endian; an int16 packet count, then per packet an int16 length and payload
// whose first eight bytes are the instrument token and the last traded price
// in paise), one-byte heartbeats, and JSON control messages for subscribe and
// mode selection.
type Ticker struct {
	endpoint string
	handler  Handler
	logger   *slog.Logger

	mu         sync.Mutex
	conn       *websocket.Conn
	subscribed map[market.Token]struct{}
}

// NewTicker builds a ticker for the stream at endpoint, authenticating with
// the primary account's credentials as query parameters.
func NewTicker(endpoint, apiKey, accessToken string, h Handler, logger *slog.Logger) (*Ticker, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse feed endpoint: %w", err)
	}
	q := u.Query()
	q.Set("api_key", apiKey)
	q.Set("access_token", accessToken)
	u.RawQuery = q.Encode()

	if logger == nil {
		logger = slog.Default()
	}
	return &Ticker{
		endpoint:   u.String(),
		handler:    h,
		logger:     logger.With("module", "feed"),
		subscribed: make(map[market.Token]struct{}),
	}, nil
}

// Run connects and consumes the stream until ctx is cancelled, redialing
// after reconnectDelay whenever the connection drops. Known tokens are
// resubscribed on every (re)connect.
func (t *Ticker) Run(ctx context.Context) error {
	for {
		if err := t.connectAndRead(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			t.logger.Warn("stream dropped", "err", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(reconnectDelay):
		}
	}
}

func (t *Ticker) connectAndRead(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, t.endpoint, nil)
	if err != nil {
		return fmt.Errorf("dial feed: %w", err)
	}
	defer conn.Close()

	t.mu.Lock()
	t.conn = conn
	tokens := t.tokensLocked()
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		t.conn = nil
		t.mu.Unlock()
	}()

	t.logger.Info("feed connected", "subscriptions", len(tokens))
	if len(tokens) > 0 {
		if err := t.send(tokens); err != nil {
			return err
		}
	}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		kind, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read feed: %w", err)
		}

		switch kind {
		case websocket.BinaryMessage:
			for _, tk := range parseFrame(data, time.Now()) {
				t.handler(tk)
			}
		case websocket.TextMessage:
			// Postbacks and error notices; not price data.
			t.logger.Debug("feed message", "payload", string(data))
		}
	}
}

// Subscribe adds tokens to the subscription set and, when connected, asks
// the stream for them immediately. Tokens queued while disconnected are
// picked up on the next connect.
func (t *Ticker) Subscribe(tokens ...market.Token) error {
	t.mu.Lock()
	fresh := make([]market.Token, 0, len(tokens))
	for _, tok := range tokens {
		if _, ok := t.subscribed[tok]; ok {
			continue
		}
		t.subscribed[tok] = struct{}{}
		fresh = append(fresh, tok)
	}
	connected := t.conn != nil
	t.mu.Unlock()

	if len(fresh) == 0 || !connected {
		return nil
	}
	return t.send(fresh)
}

// Resubscribe re-requests every known token and reports how many were sent.
func (t *Ticker) Resubscribe() (int, error) {
	t.mu.Lock()
	tokens := t.tokensLocked()
	connected := t.conn != nil
	t.mu.Unlock()

	if !connected {
		return 0, fmt.Errorf("feed not connected")
	}
	if len(tokens) == 0 {
		return 0, nil
	}
	if err := t.send(tokens); err != nil {
		return 0, err
	}
	return len(tokens), nil
}

func (t *Ticker) tokensLocked() []market.Token {
	tokens := make([]market.Token, 0, len(t.subscribed))
	for tok := range t.subscribed {
		tokens = append(tokens, tok)
	}
	return tokens
}

type controlMessage struct {
	Action string `json:"a"`
	Value  any    `json:"v"`
}

// send issues subscribe and LTP-mode control messages for tokens. Writes are
// serialized under the ticker mutex; gorilla connections do not allow
// concurrent writers.
func (t *Ticker) send(tokens []market.Token) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return fmt.Errorf("feed not connected")
	}

	if err := t.conn.WriteJSON(controlMessage{Action: "subscribe", Value: tokens}); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	if err := t.conn.WriteJSON(controlMessage{Action: "mode", Value: []any{"ltp", tokens}}); err != nil {
		return fmt.Errorf("set mode: %w", err)
	}
	return nil
}

// parseFrame decodes one binary quote frame into ticks. One-byte frames are
// heartbeats; malformed packets are skipped rather than failing the stream.
func parseFrame(data []byte, now time.Time) []market.Tick {
	if len(data) < 2 {
		return nil
	}

	count := int(binary.BigEndian.Uint16(data[0:2]))
	offset := 2

	ticks := make([]market.Tick, 0, count)
	for i := 0; i < count; i++ {
		if offset+2 > len(data) {
			break
		}
		size := int(binary.BigEndian.Uint16(data[offset : offset+2]))
		offset += 2
		if offset+size > len(data) {
			break
		}
		packet := data[offset : offset+size]
		offset += size

		if size < 8 {
			continue
		}
		ticks = append(ticks, market.Tick{
			Token: market.Token(binary.BigEndian.Uint32(packet[0:4])),
			Price: float64(int32(binary.BigEndian.Uint32(packet[4:8]))) / priceDivisor,
			Time:  now,
		})
	}
	return ticks
}
