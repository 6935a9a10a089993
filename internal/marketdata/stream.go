package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"patch-forecast-lab/internal/domain"
)

// DefaultStreamURL is the Bybit v5 public spot stream endpoint.
const DefaultStreamURL = "wss://stream.bybit.com/v5/public/spot"

// StreamConfig configures kline stream behavior.
type StreamConfig struct {
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is interval for sending ping messages.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
}

// DefaultStreamConfig returns default stream configuration.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      20 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

// KlineStream receives confirmed candles for one symbol/interval over a
// websocket connection. Unconfirmed (still-forming) bars are dropped.
type KlineStream struct {
	endpoint string
	symbol   string
	interval domain.Interval
	topic    string
	config   StreamConfig
	log      logrus.FieldLogger

	conn   *websocket.Conn
	connMu sync.Mutex
	closed atomic.Bool

	out chan *domain.Candle

	// done signals shutdown
	done chan struct{}
	wg   sync.WaitGroup

	// reconnecting indicates reconnection in progress
	reconnecting atomic.Bool
}

// NewKlineStream connects and subscribes to the kline topic for the pair.
func NewKlineStream(ctx context.Context, endpoint, symbol string, interval domain.Interval, config *StreamConfig, log logrus.FieldLogger) (*KlineStream, error) {
	cfg := DefaultStreamConfig()
	if config != nil {
		cfg = *config
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	s := &KlineStream{
		endpoint: endpoint,
		symbol:   symbol,
		interval: interval,
		topic:    fmt.Sprintf("kline.%s.%s", interval.String(), symbol),
		config:   cfg,
		log:      log.WithField("topic", fmt.Sprintf("kline.%s.%s", interval.String(), symbol)),
		out:      make(chan *domain.Candle, 1024),
		done:     make(chan struct{}),
	}

	if err := s.connect(ctx); err != nil {
		return nil, err
	}
	if err := s.subscribe(); err != nil {
		s.closeConn()
		return nil, err
	}

	s.wg.Add(1)
	go s.readLoop()

	s.wg.Add(1)
	go s.pingLoop()

	return s, nil
}

// Candles returns the channel of confirmed candles. The channel is closed
// when the stream is closed.
func (s *KlineStream) Candles() <-chan *domain.Candle {
	return s.out
}

// Close shuts down the stream and closes the candle channel.
func (s *KlineStream) Close() error {
	if s.closed.Swap(true) {
		return nil // Already closed
	}

	close(s.done)

	s.connMu.Lock()
	if s.conn != nil {
		s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.conn.Close()
	}
	s.connMu.Unlock()

	s.wg.Wait()
	close(s.out)
	return nil
}

// connect establishes the websocket connection.
func (s *KlineStream) connect(ctx context.Context) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, s.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	s.conn = conn
	return nil
}

func (s *KlineStream) closeConn() {
	s.connMu.Lock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.connMu.Unlock()
}

// wsCommand is a Bybit v5 public stream operation message.
type wsCommand struct {
	Op   string   `json:"op"`
	Args []string `json:"args,omitempty"`
}

// subscribe sends the kline subscription request. The ack arrives on the
// read loop; a rejected subscription surfaces there as a logged error.
func (s *KlineStream) subscribe() error {
	return s.writeJSON(wsCommand{Op: "subscribe", Args: []string{s.topic}})
}

func (s *KlineStream) writeJSON(v interface{}) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	if s.conn == nil {
		return fmt.Errorf("not connected")
	}

	s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	return s.conn.WriteJSON(v)
}

// pingLoop sends protocol-level ping messages at the configured interval.
func (s *KlineStream) pingLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if err := s.writeJSON(wsCommand{Op: "ping"}); err != nil && !s.closed.Load() {
				s.log.WithError(err).Warn("ping write failed")
			}
		}
	}
}

// readLoop reads messages and dispatches confirmed candles.
func (s *KlineStream) readLoop() {
	defer s.wg.Done()

	reconnectDelay := s.config.ReconnectDelay

	for !s.closed.Load() {
		s.connMu.Lock()
		conn := s.conn
		s.connMu.Unlock()

		if conn == nil {
			select {
			case <-s.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if s.closed.Load() {
				return
			}

			// Connection error - reconnect with exponential backoff
			if !s.reconnecting.Swap(true) {
				go s.reconnect(reconnectDelay)
			}

			reconnectDelay = reconnectDelay * 2
			if reconnectDelay > s.config.MaxReconnectDelay {
				reconnectDelay = s.config.MaxReconnectDelay
			}

			select {
			case <-s.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		// Reset delay on successful read
		reconnectDelay = s.config.ReconnectDelay

		s.handleMessage(message)
	}
}

// reconnect re-dials and resubscribes after a read failure.
func (s *KlineStream) reconnect(delay time.Duration) {
	defer s.reconnecting.Store(false)

	if s.closed.Load() {
		return
	}

	select {
	case <-s.done:
		return
	case <-time.After(delay):
	}

	s.closeConn()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.connect(ctx); err != nil {
		s.log.WithError(err).Warn("reconnect failed, will retry")
		return
	}

	if err := s.subscribe(); err != nil {
		s.log.WithError(err).Warn("resubscribe failed")
		return
	}

	s.log.Info("stream reconnected")
}

// klineMessage is a kline topic data message.
type klineMessage struct {
	Topic   string `json:"topic"`
	Op      string `json:"op"`
	Success *bool  `json:"success,omitempty"`
	RetMsg  string `json:"ret_msg,omitempty"`
	Data    []struct {
		Start   int64  `json:"start"`
		Open    string `json:"open"`
		High    string `json:"high"`
		Low     string `json:"low"`
		Close   string `json:"close"`
		Volume  string `json:"volume"`
		Confirm bool   `json:"confirm"`
	} `json:"data"`
}

// handleMessage parses one message, forwarding confirmed bars.
func (s *KlineStream) handleMessage(message []byte) {
	var msg klineMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		s.log.WithError(err).Debug("unparseable stream message")
		return
	}

	// Command ack or pong
	if msg.Op != "" {
		if msg.Success != nil && !*msg.Success {
			s.log.WithFields(logrus.Fields{
				"op":      msg.Op,
				"ret_msg": msg.RetMsg,
			}).Error("stream operation rejected")
		}
		return
	}

	if !strings.HasPrefix(msg.Topic, "kline.") {
		return
	}

	for _, bar := range msg.Data {
		if !bar.Confirm {
			continue
		}

		candle, err := parseStreamBar(s.symbol, s.interval, bar.Start, bar.Open, bar.High, bar.Low, bar.Close, bar.Volume)
		if err != nil {
			s.log.WithError(err).Warn("bad kline bar")
			continue
		}

		// Blocking send; buffer absorbs bursts and Close drains via done.
		select {
		case s.out <- candle:
		case <-s.done:
			return
		}
	}
}

func parseStreamBar(symbol string, interval domain.Interval, startMs int64, open, high, low, close, volume string) (*domain.Candle, error) {
	fields := [5]string{open, high, low, close, volume}
	var vals [5]float64
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("parse bar field %q: %w", f, err)
		}
		vals[i] = v
	}

	return &domain.Candle{
		Symbol:     symbol,
		Interval:   interval,
		OpenTimeMs: startMs,
		Open:       vals[0],
		High:       vals[1],
		Low:        vals[2],
		Close:      vals[3],
		Volume:     vals[4],
	}, nil
}
