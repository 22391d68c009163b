package router

import (
	"bytes"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pion/dtls/v2"
	"gopkg.in/yaml.v3"

	"github.com/coldwave/flake-go/pkg/auth"
	"github.com/coldwave/flake-go/pkg/cert"
	"github.com/coldwave/flake-go/pkg/transport"
)

// Listener types accepted in a configuration file.
const (
	ListenTCP       = "tcp"
	ListenTLS       = "tls"
	ListenUDP       = "udp"
	ListenDTLS      = "dtls"
	ListenWebSocket = "websocket"
	ListenMQTT      = "mqtt"
	ListenSerial    = "serial"
	ListenReversed  = "reversed"
)

// Configuration file errors.
var (
	ErrUnknownListener = errors.New("unknown listener type")
	ErrNoTLS           = errors.New("listener needs a tls section")
	ErrUnknownAuth     = errors.New("unknown auth type")
)

// FileConfig is the YAML form of a router configuration:
//
//	name: home
//	timeout: 10s
//	snapshot: /var/lib/flake/objects.snap
//	auth:
//	  type: signature
//	  secret: s3cret
//	tls:
//	  cert: router.pem
//	  key: router.key
//	  client_ca: peers.pem
//	listen:
//	  - type: tcp
//	  - type: tls
//	    port: 9987
//	  - type: mqtt
//	    broker: tcp://localhost:1883
type FileConfig struct {
	Name            string        `yaml:"name"`
	Timeout         time.Duration `yaml:"timeout"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout"`
	ChangeInterval  time.Duration `yaml:"change_interval"`
	BounceBack      bool          `yaml:"bounce_back"`
	MaxAuthAttempts int           `yaml:"max_auth_attempts"`
	Snapshot        string        `yaml:"snapshot"`

	Auth      *AuthFileConfig      `yaml:"auth"`
	TLS       *TLSFileConfig       `yaml:"tls"`
	KeepAlive *KeepAliveFileConfig `yaml:"keepalive"`
	Listen    []ListenFileConfig   `yaml:"listen"`

	// Metrics is the listen address of the Prometheus endpoint, e.g.
	// ":9100". Empty disables it.
	Metrics string `yaml:"metrics"`

	// Advertise announces the first TCP listener over mDNS.
	Advertise bool `yaml:"advertise"`

	// ProtocolLog is the path of a CBOR protocol log.
	ProtocolLog string `yaml:"protocol_log"`

	// ProtocolLogMaxSize rotates the protocol log at this many bytes.
	ProtocolLogMaxSize int64 `yaml:"protocol_log_max_size"`

	// ProtocolLogKeep is the number of rotated protocol logs kept.
	ProtocolLogKeep int `yaml:"protocol_log_keep"`
}

// AuthFileConfig selects the authenticator.
type AuthFileConfig struct {
	Type     string            `yaml:"type"`
	Secret   string            `yaml:"secret"`
	Accounts map[string]string `yaml:"accounts"`
}

// TLSFileConfig names the PEM files of the TLS, DTLS and secure
// WebSocket listeners.
type TLSFileConfig struct {
	Cert              string `yaml:"cert"`
	Key               string `yaml:"key"`
	ClientCA          string `yaml:"client_ca"`
	RequireClientCert bool   `yaml:"require_client_cert"`
}

// KeepAliveFileConfig enables pinging of connected sessions.
type KeepAliveFileConfig struct {
	Interval  time.Duration `yaml:"interval"`
	Timeout   time.Duration `yaml:"timeout"`
	MaxMissed int           `yaml:"max_missed"`
}

// ListenFileConfig is one listener. Fields that do not apply to Type are
// ignored.
type ListenFileConfig struct {
	Type string `yaml:"type"`
	Port int    `yaml:"port"`

	// Secure selects TLS for websocket and reversed listeners.
	Secure bool `yaml:"secure"`

	// websocket
	Path string `yaml:"path"`

	// reversed
	Host string `yaml:"host"`

	// mqtt
	Broker      string `yaml:"broker"`
	TopicPrefix string `yaml:"topic_prefix"`
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`

	// serial
	Device   string `yaml:"device"`
	BaudRate int    `yaml:"baud_rate"`
}

// LoadConfigFile reads a YAML router configuration.
func LoadConfigFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseConfig(data)
}

// ParseConfig decodes a YAML router configuration. Unknown keys are
// rejected.
func ParseConfig(data []byte) (*FileConfig, error) {
	fc := &FileConfig{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(fc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse router config: %w", err)
	}
	for i, l := range fc.Listen {
		if err := l.validate(); err != nil {
			return nil, fmt.Errorf("listen[%d]: %w", i, err)
		}
	}
	return fc, nil
}

func (l ListenFileConfig) validate() error {
	switch l.Type {
	case ListenTCP, ListenTLS, ListenUDP, ListenDTLS, ListenWebSocket:
	case ListenMQTT:
		if l.Broker == "" {
			return errors.New("mqtt listener needs a broker")
		}
	case ListenSerial:
		if l.Device == "" {
			return errors.New("serial listener needs a device")
		}
	case ListenReversed:
		if l.Host == "" {
			return errors.New("reversed listener needs a host")
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownListener, l.Type)
	}
	return nil
}

// Config merges the file settings into base.
func (fc *FileConfig) Config(base Config) (Config, error) {
	c := base
	if fc.Name != "" {
		c.Name = fc.Name
	}
	if fc.Timeout > 0 {
		c.Timeout = fc.Timeout
	}
	if fc.ConnectTimeout > 0 {
		c.ConnectTimeout = fc.ConnectTimeout
	}
	if fc.ChangeInterval > 0 {
		c.ChangeInterval = fc.ChangeInterval
	}
	if fc.BounceBack {
		c.SuppressBounceBack = false
	}
	if fc.MaxAuthAttempts > 0 {
		c.MaxAuthAttempts = fc.MaxAuthAttempts
	}
	if fc.Snapshot != "" {
		c.SnapshotPath = fc.Snapshot
	}
	if fc.KeepAlive != nil {
		c.KeepAlive = &transport.KeepAliveConfig{
			PingInterval:   fc.KeepAlive.Interval,
			PongTimeout:    fc.KeepAlive.Timeout,
			MaxMissedPongs: fc.KeepAlive.MaxMissed,
		}
	}
	if fc.Auth != nil {
		a, err := fc.Auth.sink()
		if err != nil {
			return Config{}, err
		}
		c.Authenticator = a
	}
	return c, nil
}

func (a *AuthFileConfig) sink() (auth.Sink, error) {
	switch a.Type {
	case "", "none":
		return nil, nil
	case "signature":
		if a.Secret == "" {
			return nil, errors.New("signature auth needs a secret")
		}
		return auth.NewSignature([]byte(a.Secret)), nil
	case "interactive":
		if len(a.Accounts) == 0 {
			return nil, errors.New("interactive auth needs accounts")
		}
		return &auth.Interactive{Accounts: a.Accounts}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAuth, a.Type)
	}
}

func (t *TLSFileConfig) material() (*transport.TLSConfig, error) {
	pair, err := cert.LoadKeyPair(t.Cert, t.Key)
	if err != nil {
		return nil, err
	}
	tc := &transport.TLSConfig{Certificate: pair, RequireClientCert: t.RequireClientCert}
	if t.ClientCA != "" {
		if tc.ClientCAs, err = cert.LoadCertPool(t.ClientCA); err != nil {
			return nil, err
		}
	}
	return tc, nil
}

// Apply adds a server wire to r for every listener.
func (fc *FileConfig) Apply(r *Router) error {
	var m *transport.TLSConfig
	if fc.TLS != nil {
		var err error
		if m, err = fc.TLS.material(); err != nil {
			return fmt.Errorf("tls: %w", err)
		}
	}
	for _, l := range fc.Listen {
		if err := l.apply(r, m); err != nil {
			return fmt.Errorf("listen %s: %w", l.Type, err)
		}
	}
	return nil
}

func (l ListenFileConfig) port() int {
	if l.Port == 0 {
		return transport.DefaultPort
	}
	return l.Port
}

// serverTLS returns nil without error when secure is false.
func serverTLS(m *transport.TLSConfig, secure bool) (*tls.Config, error) {
	if !secure {
		return nil, nil
	}
	if m == nil {
		return nil, ErrNoTLS
	}
	return transport.NewServerTLSConfig(m)
}

func (l ListenFileConfig) apply(r *Router, m *transport.TLSConfig) error {
	var err error
	switch l.Type {
	case ListenTCP, ListenTLS:
		var conf *tls.Config
		if conf, err = serverTLS(m, l.Type == ListenTLS); err != nil {
			return err
		}
		_, err = r.AddTCPServerWire(l.port(), conf)
	case ListenUDP:
		_, err = r.AddUDPServerWire(l.port())
	case ListenDTLS:
		if m == nil {
			return ErrNoTLS
		}
		var conf *dtls.Config
		if conf, err = transport.NewServerDTLSConfig(m); err != nil {
			return err
		}
		_, err = r.AddDTLSServerWire(l.port(), conf)
	case ListenWebSocket:
		path := l.Path
		if path == "" {
			path = transport.DefaultWebSocketPath
		}
		var conf *tls.Config
		if conf, err = serverTLS(m, l.Secure); err != nil {
			return err
		}
		_, err = r.AddWebSocketServerWire(l.port(), path, conf)
	case ListenMQTT:
		_, err = r.AddMQTTServerWire(transport.MQTTConfig{
			Broker:      l.Broker,
			TopicPrefix: l.TopicPrefix,
			ClientID:    l.ClientID,
			Username:    l.Username,
			Password:    l.Password,
		})
	case ListenSerial:
		_, err = r.AddSerialServerWire(transport.SerialConfig{Port: l.Device, BaudRate: l.BaudRate}, nil, nil)
	case ListenReversed:
		// The router dials out and verifies the peer against client_ca.
		var conf *tls.Config
		if l.Secure {
			if m == nil {
				return ErrNoTLS
			}
			cm := *m
			cm.RootCAs = m.ClientCAs
			if conf, err = transport.NewClientTLSConfig(&cm); err != nil {
				return err
			}
		}
		_, err = r.AddReversedTCPServerWire(l.Host, l.port(), conf)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownListener, l.Type)
	}
	return err
}
