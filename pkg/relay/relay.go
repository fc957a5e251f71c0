// Package relay serves a local websocket endpoint that forwards live
// session traffic to the upstream API, injecting the API key server-side so
// clients never hold a credential. Point ASTRAPORTAL_ENDPOINT at the relay.
package relay

import (
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/astraportal/astraportal/pkg/live"
)

const defaultDialTimeout = 15 * time.Second

// Config configures the relay handler.
type Config struct {
	// APIKey is appended to every upstream dial. Required.
	APIKey string
	// Upstream is the real live endpoint URL, without a key.
	Upstream string
	// DialTimeout bounds the upstream connect. Defaults to 15 s.
	DialTimeout time.Duration

	Logger *slog.Logger
}

// Handler relays one websocket session per request.
type Handler struct {
	cfg      Config
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// New validates cfg and builds the handler.
func New(cfg Config) (*Handler, error) {
	if cfg.APIKey == "" {
		return nil, live.NewConfigError("relay: API key is not set")
	}
	if cfg.Upstream == "" {
		return nil, live.NewConfigError("relay: upstream URL is not set")
	}
	if _, err := url.Parse(cfg.Upstream); err != nil {
		return nil, live.NewConfigError("relay: invalid upstream URL: " + err.Error())
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{cfg: cfg, logger: logger}, nil
}

// ServeHTTP upgrades the client connection, dials upstream with the key
// attached, and pumps frames both ways until either side closes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	upstreamURL, err := h.keyedUpstream()
	if err != nil {
		h.logger.Error("relay: build upstream url", "err", err)
		http.Error(w, "bad upstream", http.StatusInternalServerError)
		return
	}

	client, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("relay: upgrade", "err", err)
		return
	}
	defer client.Close()

	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = h.cfg.DialTimeout
	upstream, resp, err := dialer.Dial(upstreamURL, nil)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		h.logger.Error("relay: dial upstream", "err", err, "status", status)
		msg := websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "upstream unavailable")
		_ = client.WriteMessage(websocket.CloseMessage, msg)
		return
	}
	defer upstream.Close()

	h.logger.Info("relay: session open", "remote", r.RemoteAddr)
	errc := make(chan error, 2)
	go pump(upstream, client, errc)
	go pump(client, upstream, errc)
	err = <-errc
	h.logger.Info("relay: session closed", "remote", r.RemoteAddr, "err", err)
}

// keyedUpstream appends the key query parameter to the upstream URL.
func (h *Handler) keyedUpstream() (string, error) {
	u, err := url.Parse(h.cfg.Upstream)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("key", h.cfg.APIKey)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// pump copies frames from src to dst until a read or write fails.
func pump(dst, src *websocket.Conn, errc chan<- error) {
	for {
		kind, data, err := src.ReadMessage()
		if err != nil {
			errc <- err
			return
		}
		if err := dst.WriteMessage(kind, data); err != nil {
			errc <- err
			return
		}
	}
}
