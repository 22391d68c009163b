package transport

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/google/uuid"

	"github.com/coldwave/flake-go/pkg/wire"
)

// udpPeerBacklog bounds datagrams queued for one peer.
const udpPeerBacklog = 32

// NewUDPWire returns a client wire sending datagrams to address.
func NewUDPWire(address string) Wire {
	return newPacketWire(func(ctx context.Context) (net.Conn, error) {
		var d net.Dialer
		conn, err := d.DialContext(ctx, "udp", address)
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", address, err)
		}
		return conn, nil
	}, false)
}

// UDPServerWire demultiplexes one UDP socket into a wire per remote
// address. The first datagram from a new address produces a wire.
type UDPServerWire struct {
	address string

	mu    sync.Mutex
	pc    net.PacketConn
	queue *acceptQueue
	peers map[string]*udpPeerWire
	done  chan struct{}
}

// NewUDPServerWire listens on address.
func NewUDPServerWire(address string) *UDPServerWire {
	if address == "" {
		address = fmt.Sprintf(":%d", DefaultPort)
	}
	return &UDPServerWire{address: address, peers: make(map[string]*udpPeerWire)}
}

// Init binds the socket.
func (s *UDPServerWire) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pc != nil {
		return ErrAlreadyListening
	}
	var lc net.ListenConfig
	pc, err := lc.ListenPacket(ctx, "udp", s.address)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	s.pc = pc
	s.queue = newAcceptQueue()
	s.done = make(chan struct{})
	go s.readLoop(pc, s.queue, s.done)
	return nil
}

func (s *UDPServerWire) readLoop(pc net.PacketConn, q *acceptQueue, done chan struct{}) {
	defer close(done)
	buf := make([]byte, wire.MaxFrameSize)
	for {
		n, addr, err := pc.ReadFrom(buf)
		if err != nil {
			q.close()
			s.closePeers()
			return
		}
		data := make([]byte, n)
		copy(data, buf[:n])

		s.mu.Lock()
		p, ok := s.peers[addr.String()]
		if !ok {
			p = &udpPeerWire{
				id:     uuid.NewString(),
				server: s,
				addr:   addr,
				in:     make(chan []byte, udpPeerBacklog),
				closed: make(chan struct{}),
			}
			s.peers[addr.String()] = p
		}
		s.mu.Unlock()

		if !ok && !q.push(p) {
			continue
		}
		p.deliver(data)
	}
}

func (s *UDPServerWire) closePeers() {
	s.mu.Lock()
	peers := make([]*udpPeerWire, 0, len(s.peers))
	for _, p := range s.peers {
		peers = append(peers, p)
	}
	s.mu.Unlock()
	for _, p := range peers {
		p.Close()
	}
}

func (s *UDPServerWire) forget(p *udpPeerWire) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.peers[p.addr.String()] == p {
		delete(s.peers, p.addr.String())
	}
}

// Accept returns the wire of the next new remote address.
func (s *UDPServerWire) Accept(ctx context.Context) (Wire, error) {
	s.mu.Lock()
	q := s.queue
	s.mu.Unlock()
	if q == nil {
		return nil, ErrNotInitialized
	}
	return q.accept(ctx)
}

// Available reports whether the socket is open.
func (s *UDPServerWire) Available() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue != nil && !s.queue.closed()
}

// Addr returns the bound address, or nil before Init.
func (s *UDPServerWire) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pc == nil {
		return nil
	}
	return s.pc.LocalAddr()
}

// Describe names the listener.
func (s *UDPServerWire) Describe() string {
	if a := s.Addr(); a != nil {
		return "udp://" + a.String()
	}
	return "udp://" + s.address
}

// Close closes the socket and every peer wire.
func (s *UDPServerWire) Close() error {
	s.mu.Lock()
	pc, done := s.pc, s.done
	s.mu.Unlock()
	if pc == nil {
		return nil
	}
	err := pc.Close()
	<-done
	return err
}

// udpPeerWire is the server side of one remote UDP address.
type udpPeerWire struct {
	id     string
	server *UDPServerWire
	addr   net.Addr
	in     chan []byte

	closeOnce sync.Once
	closed    chan struct{}
}

// deliver queues a datagram, dropping it when the peer is not reading.
func (p *udpPeerWire) deliver(data []byte) {
	select {
	case p.in <- data:
	case <-p.closed:
	default:
	}
}

func (p *udpPeerWire) Open(context.Context) error {
	if !p.IsOpen() {
		return ErrWireClosed
	}
	return nil
}

func (p *udpPeerWire) Read() ([]byte, error) {
	select {
	case data := <-p.in:
		return data, nil
	case <-p.closed:
		return nil, ErrWireClosed
	}
}

func (p *udpPeerWire) Write(frame []byte) error {
	if !p.IsOpen() {
		return ErrWireClosed
	}
	_, err := p.server.pc.WriteTo(frame, p.addr)
	return err
}

func (p *udpPeerWire) Close() error {
	p.closeOnce.Do(func() {
		close(p.closed)
		p.server.forget(p)
	})
	return nil
}

func (p *udpPeerWire) IsOpen() bool {
	select {
	case <-p.closed:
		return false
	default:
		return true
	}
}

func (p *udpPeerWire) ID() string          { return p.id }
func (p *udpPeerWire) Secure() bool        { return false }
func (p *udpPeerWire) Authenticated() bool { return false }
func (p *udpPeerWire) RemoteAddr() string  { return p.addr.String() }
