package speech

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/jonieats/assistant/internal/model/speech"
)

const defaultSpeechHost = "wss://openspeech.bytedance.com"

var (
	ErrMissingCredentials = errors.New("speech app id or access token missing")
	ErrNoAudio            = errors.New("no audio data to send")
)

// resolveCredentials returns the trimmed app id and access token.
func resolveCredentials(cfg *speech.Config) (string, string, error) {
	if cfg == nil {
		return "", "", ErrMissingCredentials
	}

	appID := strings.TrimSpace(cfg.AppID)
	token := strings.TrimSpace(cfg.AccessToken)
	if token == "" {
		token = strings.TrimSpace(cfg.APIKey)
	}
	if appID == "" || token == "" {
		return "", "", ErrMissingCredentials
	}
	return appID, token, nil
}

func endpoint(cfg *speech.Config, path string) string {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = defaultSpeechHost
	}
	return base + path
}

func newDialer(cfg *speech.Config) *websocket.Dialer {
	timeout := 30 * time.Second
	if cfg != nil && cfg.Timeout > 0 {
		timeout = time.Duration(cfg.Timeout) * time.Second
	}
	return &websocket.Dialer{HandshakeTimeout: timeout}
}

// dial opens an authenticated connection. The returned stop function must be
// called once the exchange is over; it also fires when ctx is cancelled so
// blocked reads return.
func dial(ctx context.Context, dialer *websocket.Dialer, url, appID, token, resourceID, connectID string) (*websocket.Conn, func(), error) {
	header := http.Header{}
	header.Set("X-Api-App-Key", appID)
	header.Set("X-Api-Access-Key", token)
	header.Set("X-Api-Resource-Id", resourceID)
	header.Set("X-Api-Connect-Id", connectID)

	conn, resp, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to %s: %w", url, err)
	}
	if resp != nil {
		if logid := resp.Header.Get("X-Tt-Logid"); logid != "" {
			log.Debugf("[speech] connected to %s with logid %s", url, logid)
		}
	}

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		_ = conn.Close()
	}()

	var once sync.Once
	stop := func() { once.Do(func() { close(done) }) }
	return conn, stop, nil
}

func writeFrame(conn *websocket.Conn, msg *Message) error {
	return conn.WriteMessage(websocket.BinaryMessage, EncodeMessage(msg))
}
