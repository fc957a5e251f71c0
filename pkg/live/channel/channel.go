// Package channel implements the bidirectional streaming session endpoint:
// it owns the websocket connection to the Gemini Live API, sends outbound
// audio frames, tool acknowledgements and synthetic turns, and delivers
// inbound tagged messages in arrival order.
package channel

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/astraportal/astraportal/pkg/live"
	"github.com/astraportal/astraportal/pkg/live/protocol"
)

// DefaultEndpoint is the production live endpoint, dialed when Config does
// not override it.
const DefaultEndpoint = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

const defaultConnectTimeout = 15 * time.Second

// Config configures a streaming session.
type Config struct {
	// APIKey authenticates the websocket dial. Required.
	APIKey string
	// Model is the conversational model identifier. Required.
	Model string
	// Voice is the synthesized voice identity.
	Voice string
	// SystemInstruction is the persona and conversation script.
	SystemInstruction string
	// Endpoint overrides the default wire endpoint (used by tests).
	Endpoint string
	// ConnectTimeout bounds the dial + setup handshake. Default 15s.
	ConnectTimeout time.Duration

	Logger *slog.Logger
}

// Channel is an open streaming session. All sends are fire-and-forget;
// inbound messages arrive on Messages() strictly in arrival order.
type Channel struct {
	conn   *websocket.Conn
	logger *slog.Logger

	messages chan protocol.InboundMessage
	closing  chan struct{}
	done     chan struct{}

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    atomic.Bool

	errMu sync.Mutex
	err   error
}

// Dial opens the remote connection, sends the session setup and waits for
// the server to accept it.
func Dial(ctx context.Context, cfg Config) (*Channel, error) {
	if cfg.APIKey == "" {
		return nil, live.NewConfigError("api key is required")
	}
	if cfg.Model == "" {
		return nil, live.NewConfigError("model is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	wsURL, err := appendKey(endpoint, cfg.APIKey)
	if err != nil {
		return nil, live.NewConfigError(fmt.Sprintf("invalid endpoint: %v", err))
	}

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}
	dialCtx := ctx
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, wsURL, nil)
	if err != nil {
		return nil, live.NewConnectionError(fmt.Sprintf("websocket dial failed: %v", err))
	}

	transcription := struct{}{}
	setup := protocol.SetupEnvelope{Setup: protocol.Setup{
		Model: cfg.Model,
		GenerationConfig: &protocol.GenerationConfig{
			ResponseModalities: []string{"AUDIO"},
			SpeechConfig: &protocol.SpeechConfig{
				VoiceConfig: &protocol.VoiceConfig{
					PrebuiltVoiceConfig: &protocol.PrebuiltVoiceConfig{VoiceName: cfg.Voice},
				},
			},
		},
		SystemInstruction:        &protocol.Content{Parts: []protocol.Part{{Text: cfg.SystemInstruction}}},
		Tools:                    protocol.SessionTools(),
		OutputAudioTranscription: &transcription,
	}}
	if err := conn.WriteJSON(setup); err != nil {
		_ = conn.Close()
		return nil, live.NewConnectionError(fmt.Sprintf("send setup: %v", err))
	}

	if err := awaitSetupComplete(conn, timeout); err != nil {
		_ = conn.Close()
		return nil, err
	}

	ch := &Channel{
		conn:     conn,
		logger:   logger,
		messages: make(chan protocol.InboundMessage, 256),
		closing:  make(chan struct{}),
		done:     make(chan struct{}),
	}
	go ch.readLoop()
	return ch, nil
}

func awaitSetupComplete(conn *websocket.Conn, timeout time.Duration) error {
	_ = conn.SetReadDeadline(time.Now().Add(timeout))
	defer conn.SetReadDeadline(time.Time{})

	_, payload, err := conn.ReadMessage()
	if err != nil {
		return live.NewConnectionError(fmt.Sprintf("read setup ack: %v", err))
	}
	msgs, err := protocol.Decode(payload)
	if err != nil {
		return live.NewConnectionError(fmt.Sprintf("decode setup ack: %v", err))
	}
	for _, msg := range msgs {
		if _, ok := msg.(protocol.SetupComplete); ok {
			return nil
		}
	}
	return live.NewConnectionError("session setup was not accepted")
}

func appendKey(endpoint, key string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("key", key)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Messages yields inbound tagged messages in arrival order. The channel is
// closed when the connection ends.
func (c *Channel) Messages() <-chan protocol.InboundMessage {
	if c == nil {
		return nil
	}
	return c.messages
}

// SendAudioFrame sends one captured PCM16 frame. No acknowledgement and no
// backpressure: a frame that cannot be sent is lost, never queued.
func (c *Channel) SendAudioFrame(pcm []byte) error {
	if len(pcm) == 0 {
		return nil
	}
	return c.sendJSON(protocol.AudioFrameMessage(pcm))
}

// SendToolResponse sends the correlated acknowledgement batch for one
// inbound tool call batch.
func (c *Channel) SendToolResponse(responses []protocol.FunctionResponse) error {
	if len(responses) == 0 {
		return nil
	}
	return c.sendJSON(protocol.ToolResponseEnvelope{
		ToolResponse: protocol.ToolResponse{FunctionResponses: responses},
	})
}

// SendSyntheticTurn injects a completed user turn without audio.
func (c *Channel) SendSyntheticTurn(text string) error {
	return c.sendJSON(protocol.SyntheticTurnMessage(text))
}

func (c *Channel) sendJSON(v any) error {
	if c == nil {
		return fmt.Errorf("channel must not be nil")
	}
	if c.closed.Load() {
		return live.NewConnectionError("session channel is closed")
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(v)
}

// Close requests a graceful shutdown. Safe to call more than once.
func (c *Channel) Close() error {
	if c == nil {
		return nil
	}
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.closing)
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(2*time.Second))
		c.writeMu.Unlock()
		_ = c.conn.Close()
	})
	<-c.done
	return nil
}

// Err returns the terminal connection error, if any, after the channel is
// done. A clean remote close returns nil.
func (c *Channel) Err() error {
	if c == nil {
		return nil
	}
	<-c.done
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

func (c *Channel) setErr(err error) {
	if err == nil {
		return
	}
	c.errMu.Lock()
	defer c.errMu.Unlock()
	if c.err == nil {
		c.err = err
	}
}

func (c *Channel) readLoop() {
	defer close(c.done)
	defer close(c.messages)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if c.closed.Load() || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return
			}
			c.setErr(live.NewConnectionError(err.Error()))
			return
		}

		msgs, err := protocol.Decode(data)
		if err != nil {
			// Skip the offending frame and keep the session alive.
			c.logger.Warn("skipping malformed server frame", "err", live.NewMalformedMessageError(err.Error()))
			continue
		}
		for _, msg := range msgs {
			// In-order delivery; bail out if the owner is tearing down
			// while the consumer has stopped draining.
			select {
			case c.messages <- msg:
			case <-c.closing:
				return
			}
		}
	}
}
