package wire

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/aegischarge/simulator/internal/ocpp"
)

// Subprotocol is the OCPP 1.6-J WebSocket subprotocol both sides advertise.
const Subprotocol = "ocpp1.6"

// Transport wraps a single WebSocket connection with a write mutex;
// gorilla/websocket connections support one concurrent reader and one
// concurrent writer, but this simulator's session layer may write from
// several goroutines (heartbeat loop, outgoing CALLs, CALLRESULTs).
type Transport struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// NewTransport wraps an already-established *websocket.Conn.
func NewTransport(conn *websocket.Conn) *Transport {
	return &Transport{conn: conn}
}

// WriteMessage sends one text frame.
func (t *Transport) WriteMessage(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("%w: write: %v", ocpp.ErrTransport, err)
	}
	return nil
}

// ReadMessage blocks for the next text frame.
func (t *Transport) ReadMessage() ([]byte, error) {
	_, data, err := t.conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("%w: read: %v", ocpp.ErrTransport, err)
	}
	return data, nil
}

// Close closes the underlying connection.
func (t *Transport) Close() error {
	return t.conn.Close()
}

// TLSConfig describes how a side of the wire should dial or accept TLS.
// The development fallback (disabled hostname/peer verification) is
// gated behind Insecure and always logs a warning when used — per
// spec.md §9, it must never be a silent downgrade.
type TLSConfig struct {
	Enabled  bool
	CAFile   string
	CertFile string
	KeyFile  string
	// Insecure disables hostname and peer verification. Development
	// mode only; never set this from a production-like build.
	Insecure bool
}

// ClientTLSConfigFromEnv builds a TLSConfig for the CP client from the
// CP_USE_TLS / CP_CA_FILE environment variables described in spec.md §6.
func ClientTLSConfigFromEnv() TLSConfig {
	enabled := envBool("CP_USE_TLS")
	return TLSConfig{
		Enabled: enabled,
		CAFile:  os.Getenv("CP_CA_FILE"),
	}
}

// ServerTLSConfigFromEnv builds a TLSConfig for the CSMS from the
// CSMS_USE_TLS / CSMS_CERT_FILE / CSMS_KEY_FILE / CSMS_CA_FILE
// environment variables. A missing cert or key silently falls back to
// plaintext with a warning, per spec.md §6.
func ServerTLSConfigFromEnv() TLSConfig {
	cfg := TLSConfig{
		Enabled:  envBool("CSMS_USE_TLS"),
		CertFile: os.Getenv("CSMS_CERT_FILE"),
		KeyFile:  os.Getenv("CSMS_KEY_FILE"),
		CAFile:   os.Getenv("CSMS_CA_FILE"),
	}
	if cfg.Enabled && (cfg.CertFile == "" || cfg.KeyFile == "") {
		slog.Warn("CSMS_USE_TLS set but CSMS_CERT_FILE/CSMS_KEY_FILE missing, falling back to plaintext")
		cfg.Enabled = false
	}
	return cfg
}

func envBool(name string) bool {
	v := os.Getenv(name)
	switch v {
	case "1", "true", "yes", "TRUE", "YES", "True", "Yes":
		return true
	default:
		return false
	}
}

// clientTLSConfig builds a *tls.Config for dialing, loading a CA bundle
// when provided. Insecure is only ever set by an explicit config switch,
// never inferred, and always logs a visible warning.
func clientTLSConfig(cfg TLSConfig) (*tls.Config, error) {
	tlsCfg := &tls.Config{}
	if cfg.CAFile != "" {
		pool := x509.NewCertPool()
		data, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("%w: read CA file %s: %v", ocpp.ErrTransport, cfg.CAFile, err)
		}
		if !pool.AppendCertsFromPEM(data) {
			return nil, fmt.Errorf("%w: no certs found in %s", ocpp.ErrTransport, cfg.CAFile)
		}
		tlsCfg.RootCAs = pool
	}
	if cfg.Insecure {
		slog.Warn("TLS hostname and peer verification disabled — development mode only")
		tlsCfg.InsecureSkipVerify = true
	}
	return tlsCfg, nil
}

// Dial opens a CP-side WebSocket connection to a CSMS at csmsURL for cpID,
// advertising the ocpp1.6 subprotocol. wss:// or cfg.Enabled selects TLS.
func Dial(ctx context.Context, csmsURL, cpID string, cfg TLSConfig) (*Transport, error) {
	u, err := url.Parse(csmsURL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid CSMS URL %s: %v", ocpp.ErrTransport, csmsURL, err)
	}
	u.Path = "/" + cpID

	if cfg.Enabled && u.Scheme == "ws" {
		u.Scheme = "wss"
	}
	if u.Scheme == "wss" {
		cfg.Enabled = true
	}

	dialer := websocket.Dialer{Subprotocols: []string{Subprotocol}}
	if cfg.Enabled {
		tlsCfg, err := clientTLSConfig(cfg)
		if err != nil {
			return nil, err
		}
		dialer.TLSClientConfig = tlsCfg
	}

	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ocpp.ErrTransport, u.String(), err)
	}
	return NewTransport(conn), nil
}

// Upgrader produces a *websocket.Upgrader that negotiates the ocpp1.6
// subprotocol; CheckOrigin always allows, matching this simulator's
// development posture (no browser-origin CPs exist).
func Upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		Subprotocols: []string{Subprotocol},
		CheckOrigin:  func(r *http.Request) bool { return true },
	}
}

// ServerTLSConfig builds a *tls.Config for the CSMS listener from a
// TLSConfig with CertFile/KeyFile set.
func ServerTLSConfig(cfg TLSConfig) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("%w: load server cert/key: %v", ocpp.ErrTransport, err)
	}
	tlsCfg := &tls.Config{Certificates: []tls.Certificate{cert}}
	if cfg.CAFile != "" {
		pool := x509.NewCertPool()
		data, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("%w: read CA file %s: %v", ocpp.ErrTransport, cfg.CAFile, err)
		}
		if pool.AppendCertsFromPEM(data) {
			tlsCfg.ClientCAs = pool
		}
	}
	return tlsCfg, nil
}
