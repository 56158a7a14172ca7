package realtime

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/corgivoice/voice-core/core/audio"
	"github.com/corgivoice/voice-core/core/audio/miniaudio"
)

// ErrMediaAccess is returned when no capture device can be acquired.
var ErrMediaAccess = errors.New("failed to acquire audio input")

// AudioDevice is the local capture/playback pair attached to a session.
type AudioDevice interface {
	StartCapture(ctx context.Context, onAudio func(audio []byte)) error
	StopCapture() error
	Play(audio []byte) error
	ClearPlayback()
	Close()
	EncodingInfo() audio.EncodingInfo
}

// Client negotiates realtime sessions. Credential and device constructors are
// injectable so sessions can be opened against doubles in tests.
type Client struct {
	BaseURL string
	Model   string
	// Codec is the preferred session audio format. An unsupported preference
	// is a non-fatal warning and negotiation falls back to pcm16.
	Codec string

	Credential CredentialFunc
	// OpenDevice overrides the default miniaudio device constructor.
	OpenDevice func(encoding audio.EncodingInfo) (AudioDevice, error)
	// Dial overrides the default websocket dialer.
	Dial func(url string, header http.Header) (*websocket.Conn, error)
}

// SessionCallbacks receive inbound traffic. OnEvent is called with each raw
// frame in arrival order from a single goroutine.
type SessionCallbacks struct {
	OnEvent  func(raw []byte)
	OnClosed func(err error)
}

// Open establishes one realtime session: fetches a fresh credential, acquires
// the local audio device, dials the session endpoint and starts the read
// loop. Captured microphone frames are forwarded as input-buffer appends for
// the lifetime of the session.
func (c *Client) Open(ctx context.Context, callbacks SessionCallbacks) (*Session, error) {
	ctx, span := tracer.Start(ctx, "open realtime session")
	defer span.End()

	if c.Credential == nil {
		return nil, ErrNoCredential
	}
	credential, err := c.Credential(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch ephemeral credential: %w", err)
	}
	if credential == "" {
		return nil, ErrNoCredential
	}

	format, ok := audio.FormatFromName(c.Codec)
	if c.Codec != "" && !ok {
		logger.Warn("preferred codec not supported, falling back to default",
			"codec", c.Codec, "fallback", format.Name())
	}
	encoding := audio.EncodingInfo{SampleRate: audio.DefaultSampleRate, Format: format}

	openDevice := c.OpenDevice
	if openDevice == nil {
		openDevice = func(encoding audio.EncodingInfo) (AudioDevice, error) {
			return miniaudio.NewClient(encoding)
		}
	}
	device, err := openDevice(encoding)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMediaAccess, err)
	}

	sessionURL, err := url.Parse(c.BaseURL)
	if err != nil {
		device.Close()
		return nil, fmt.Errorf("invalid realtime base url: %w", err)
	}
	queryParams := sessionURL.Query()
	queryParams.Set("model", c.Model)
	sessionURL.RawQuery = queryParams.Encode()

	dial := c.Dial
	if dial == nil {
		dial = func(url string, header http.Header) (*websocket.Conn, error) {
			conn, _, err := websocket.DefaultDialer.Dial(url, header)
			return conn, err
		}
	}
	conn, err := dial(sessionURL.String(), http.Header{
		"Authorization": {"Bearer " + credential},
		"OpenAI-Beta":   {"realtime=v1"},
	})
	if err != nil {
		device.Close()
		return nil, fmt.Errorf("failed to open socket connection to realtime endpoint: %w", err)
	}

	session := &Session{
		conn:      conn,
		device:    device,
		callbacks: callbacks,
	}

	if err := device.StartCapture(ctx, func(frame []byte) {
		if err := session.Send(AppendInputAudio(base64.StdEncoding.EncodeToString(frame))); err != nil {
			logger.Warn("failed to forward captured audio", "error", err)
		}
	}); err != nil {
		session.Close()
		return nil, fmt.Errorf("%w: %v", ErrMediaAccess, err)
	}

	go session.readAndProcessMessages(conn)

	return session, nil
}

// Session is one live realtime connection: a full-duplex ordered message
// channel plus the local audio device.
type Session struct {
	conn   *websocket.Conn
	connMu sync.Mutex

	device    AudioDevice
	callbacks SessionCallbacks

	closeOnce sync.Once
	closed    bool
}

// Send writes one protocol event to the channel.
func (s *Session) Send(event ClientEvent) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	if s.closed || s.conn == nil {
		return fmt.Errorf("session channel is closed")
	}
	if err := s.conn.WriteJSON(event); err != nil {
		return fmt.Errorf("failed to write to realtime session: %w", err)
	}
	return nil
}

// PlayAudio routes a base64 inbound audio delta to the playback sink.
func (s *Session) PlayAudio(base64Audio string) error {
	decoded, err := base64.StdEncoding.DecodeString(base64Audio)
	if err != nil {
		return fmt.Errorf("failed to decode audio delta: %w", err)
	}
	return s.device.Play(decoded)
}

// ClearPlayback drops locally buffered remote audio, mirroring an
// output-buffer clear on the remote side.
func (s *Session) ClearPlayback() {
	s.device.ClearPlayback()
}

// EncodingInfo reports the negotiated session audio format.
func (s *Session) EncodingInfo() audio.EncodingInfo {
	return s.device.EncodingInfo()
}

// Close stops capture and tears the session down. Safe to call repeatedly.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		if err := s.device.StopCapture(); err != nil {
			logger.Warn("failed to stop audio capture", "error", err)
		}
		s.device.Close()

		s.connMu.Lock()
		s.closed = true
		conn := s.conn
		s.conn = nil
		s.connMu.Unlock()

		if conn != nil {
			conn.Close()
		}
	})
}

func (s *Session) readAndProcessMessages(conn *websocket.Conn) {
	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				logger.Warn("failed to read realtime session message", "error", err)
			}
			if s.callbacks.OnClosed != nil {
				s.callbacks.OnClosed(err)
			}
			return
		}
		if msgType == websocket.BinaryMessage {
			continue
		}
		if s.callbacks.OnEvent != nil {
			s.callbacks.OnEvent(msg)
		}
	}
}
