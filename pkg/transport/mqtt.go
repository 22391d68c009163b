package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

// MQTT topic layout: a peer publishes frames on <prefix>/up/<client> and
// receives on <prefix>/down/<client>. An empty payload hangs up.
const (
	DefaultMQTTTopicPrefix = "flake"
	mqttUp                 = "up"
	mqttDown               = "down"
	mqttQoS                = byte(1)
	mqttPeerBacklog        = 32
)

// ErrMQTTTimeout is returned when the broker does not answer in time.
var ErrMQTTTimeout = errors.New("mqtt broker timeout")

// MQTTConfig configures a broker connection.
type MQTTConfig struct {
	// Broker is the broker URL, e.g. tcp://localhost:1883.
	Broker string

	// TopicPrefix defaults to DefaultMQTTTopicPrefix.
	TopicPrefix string

	// ClientID defaults to a random id.
	ClientID string

	Username string
	Password string

	// Timeout bounds connect, subscribe and publish. Defaults to
	// DefaultHandshakeTimeout.
	Timeout time.Duration
}

func (c MQTTConfig) withDefaults() MQTTConfig {
	if c.TopicPrefix == "" {
		c.TopicPrefix = DefaultMQTTTopicPrefix
	}
	c.TopicPrefix = strings.TrimSuffix(c.TopicPrefix, "/")
	if c.ClientID == "" {
		c.ClientID = "flake-" + uuid.NewString()[:8]
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultHandshakeTimeout
	}
	return c
}

func (c MQTTConfig) topic(dir, client string) string {
	return c.TopicPrefix + "/" + dir + "/" + client
}

func (c MQTTConfig) clientOptions() *paho.ClientOptions {
	opts := paho.NewClientOptions()
	opts.AddBroker(c.Broker).
		SetClientID(c.ClientID).
		SetAutoReconnect(true).
		SetCleanSession(true).
		SetConnectTimeout(c.Timeout)
	if c.Username != "" {
		opts.SetUsername(c.Username)
		opts.SetPassword(c.Password)
	}
	return opts
}

// waitToken waits for an MQTT operation.
func waitToken(tok paho.Token, timeout time.Duration) error {
	if !tok.WaitTimeout(timeout) {
		return ErrMQTTTimeout
	}
	return tok.Error()
}

// mqttWire carries one frame per MQTT message. A client wire owns its
// broker connection; wires produced by MQTTServerWire share the server's.
type mqttWire struct {
	id       string
	cfg      MQTTConfig
	pubTopic string
	owner    *MQTTServerWire

	mu     sync.Mutex
	client paho.Client
	in     chan []byte
	closed chan struct{}
}

// NewMQTTWire returns a client wire talking to a router through a broker.
func NewMQTTWire(cfg MQTTConfig) Wire {
	cfg = cfg.withDefaults()
	return &mqttWire{
		id:       uuid.NewString(),
		cfg:      cfg,
		pubTopic: cfg.topic(mqttUp, cfg.ClientID),
	}
}

func (w *mqttWire) Open(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.isOpenLocked() {
		return nil
	}
	if w.owner != nil {
		return ErrWireClosed
	}

	in := make(chan []byte, mqttPeerBacklog)
	closed := make(chan struct{})
	client := paho.NewClient(w.cfg.clientOptions())
	if err := waitContext(ctx, client.Connect(), w.cfg.Timeout); err != nil {
		return fmt.Errorf("mqtt connect %s: %w", w.cfg.Broker, err)
	}
	down := w.cfg.topic(mqttDown, w.cfg.ClientID)
	handler := func(_ paho.Client, m paho.Message) {
		deliverOrHangup(in, closed, m.Payload(), func() { w.Close() })
	}
	if err := waitContext(ctx, client.Subscribe(down, mqttQoS, handler), w.cfg.Timeout); err != nil {
		client.Disconnect(0)
		return fmt.Errorf("mqtt subscribe %s: %w", down, err)
	}
	w.client, w.in, w.closed = client, in, closed
	return nil
}

// waitContext waits for tok, bounded by ctx and timeout.
func waitContext(ctx context.Context, tok paho.Token, timeout time.Duration) error {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-tok.Done():
		return tok.Error()
	case <-t.C:
		return ErrMQTTTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

// deliverOrHangup queues a payload, or starts hangup for an empty one.
// It runs on the paho callback goroutine and must not block.
func deliverOrHangup(in chan []byte, closed chan struct{}, payload []byte, hangup func()) {
	if len(payload) == 0 {
		go hangup()
		return
	}
	data := make([]byte, len(payload))
	copy(data, payload)
	select {
	case in <- data:
	case <-closed:
	default:
	}
}

func (w *mqttWire) isOpenLocked() bool {
	if w.closed == nil {
		return false
	}
	select {
	case <-w.closed:
		return false
	default:
		return true
	}
}

func (w *mqttWire) channels() (chan []byte, chan struct{}) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.in, w.closed
}

func (w *mqttWire) Read() ([]byte, error) {
	in, closed := w.channels()
	if in == nil {
		return nil, ErrNotOpen
	}
	select {
	case data := <-in:
		return data, nil
	case <-closed:
		return nil, ErrWireClosed
	}
}

func (w *mqttWire) Write(frame []byte) error {
	w.mu.Lock()
	client, open := w.client, w.isOpenLocked()
	w.mu.Unlock()
	if !open {
		return ErrWireClosed
	}
	return waitToken(client.Publish(w.pubTopic, mqttQoS, false, frame), w.cfg.Timeout)
}

func (w *mqttWire) Close() error {
	w.mu.Lock()
	if !w.isOpenLocked() {
		w.mu.Unlock()
		return nil
	}
	close(w.closed)
	client := w.client
	w.mu.Unlock()

	// Tell the far side, best effort.
	tok := client.Publish(w.pubTopic, mqttQoS, false, []byte{})
	_ = tok.WaitTimeout(time.Second)

	if w.owner != nil {
		w.owner.forget(w)
		return nil
	}
	client.Disconnect(250)
	return nil
}

func (w *mqttWire) IsOpen() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.isOpenLocked()
}

func (w *mqttWire) ID() string { return w.id }
func (w *mqttWire) Secure() bool {
	return strings.HasPrefix(w.cfg.Broker, "ssl") || strings.HasPrefix(w.cfg.Broker, "tls")
}
func (w *mqttWire) Authenticated() bool { return false }
func (w *mqttWire) RemoteAddr() string  { return w.cfg.Broker + "/" + w.pubTopic }

// MQTTServerWire subscribes to <prefix>/up/+ and yields a wire for each
// client id that publishes.
type MQTTServerWire struct {
	cfg MQTTConfig

	mu     sync.Mutex
	client paho.Client
	queue  *acceptQueue
	peers  map[string]*mqttWire
}

// NewMQTTServerWire creates the server side of the MQTT transport.
func NewMQTTServerWire(cfg MQTTConfig) *MQTTServerWire {
	if cfg.ClientID == "" {
		cfg.ClientID = "flake-router-" + uuid.NewString()[:8]
	}
	return &MQTTServerWire{cfg: cfg.withDefaults(), peers: make(map[string]*mqttWire)}
}

// Init connects to the broker and subscribes to the uplink topics.
func (s *MQTTServerWire) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		return ErrAlreadyListening
	}
	opts := s.cfg.clientOptions()
	opts.SetConnectionLostHandler(func(paho.Client, error) { s.closePeers() })
	client := paho.NewClient(opts)
	if err := waitContext(ctx, client.Connect(), s.cfg.Timeout); err != nil {
		return fmt.Errorf("mqtt connect %s: %w", s.cfg.Broker, err)
	}
	filter := s.cfg.topic(mqttUp, "+")
	if err := waitContext(ctx, client.Subscribe(filter, mqttQoS, s.dispatch), s.cfg.Timeout); err != nil {
		client.Disconnect(0)
		return fmt.Errorf("mqtt subscribe %s: %w", filter, err)
	}
	s.client = client
	s.queue = newAcceptQueue()
	return nil
}

func (s *MQTTServerWire) dispatch(_ paho.Client, m paho.Message) {
	id := m.Topic()[strings.LastIndexByte(m.Topic(), '/')+1:]

	s.mu.Lock()
	q := s.queue
	p, ok := s.peers[id]
	if !ok {
		if len(m.Payload()) == 0 || q == nil {
			s.mu.Unlock()
			return
		}
		p = &mqttWire{
			id:       uuid.NewString(),
			cfg:      s.cfg,
			pubTopic: s.cfg.topic(mqttDown, id),
			owner:    s,
			client:   s.client,
			in:       make(chan []byte, mqttPeerBacklog),
			closed:   make(chan struct{}),
		}
		s.peers[id] = p
	}
	s.mu.Unlock()

	if !ok && !q.push(p) {
		return
	}
	deliverOrHangup(p.in, p.closed, m.Payload(), func() { p.Close() })
}

func (s *MQTTServerWire) forget(p *mqttWire) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, w := range s.peers {
		if w == p {
			delete(s.peers, id)
		}
	}
}

func (s *MQTTServerWire) closePeers() {
	s.mu.Lock()
	peers := make([]*mqttWire, 0, len(s.peers))
	for _, p := range s.peers {
		peers = append(peers, p)
	}
	s.mu.Unlock()
	for _, p := range peers {
		p.Close()
	}
}

// Accept returns the wire of the next new client id.
func (s *MQTTServerWire) Accept(ctx context.Context) (Wire, error) {
	s.mu.Lock()
	q := s.queue
	s.mu.Unlock()
	if q == nil {
		return nil, ErrNotInitialized
	}
	return q.accept(ctx)
}

// Available reports whether the broker connection is up.
func (s *MQTTServerWire) Available() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client != nil && s.client.IsConnected() && !s.queue.closed()
}

// Describe names the broker and topic filter.
func (s *MQTTServerWire) Describe() string {
	return s.cfg.Broker + "/" + s.cfg.topic(mqttUp, "+")
}

// Close hangs up every peer and disconnects from the broker.
func (s *MQTTServerWire) Close() error {
	s.mu.Lock()
	client, q := s.client, s.queue
	s.mu.Unlock()
	if client == nil {
		return nil
	}
	q.close()
	s.closePeers()
	client.Disconnect(250)
	return nil
}
