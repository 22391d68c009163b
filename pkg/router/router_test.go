package router

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coldwave/flake-go/pkg/auth"
	"github.com/coldwave/flake-go/pkg/connection"
	"github.com/coldwave/flake-go/pkg/interaction"
	"github.com/coldwave/flake-go/pkg/model"
	"github.com/coldwave/flake-go/pkg/transport"
	"github.com/coldwave/flake-go/pkg/wire"
)

const testTimeout = 2 * time.Second

var (
	tagLevel = wire.MakeTag(0x0300, wire.TypeUint8, 0)
	tagName  = wire.MakeTag(0x0301, wire.TypeString, 0)

	lampType   = wire.MustParseUniqueID("5b1f3c52-7a0e-4c39-9a37-0d1c2b7f6a10")
	sensorType = wire.MustParseUniqueID("0e7d4a61-3b28-4f0c-8d55-91a6c3e2b7f4")
)

type testRouter struct {
	*Router
	pipe *transport.PipeServerWire
}

func newTestRouter(t *testing.T, configure func(*Config)) *testRouter {
	t.Helper()
	cfg := DefaultConfig()
	cfg.ConnectTimeout = 0
	cfg.Timeout = testTimeout
	if configure != nil {
		configure(&cfg)
	}
	r, err := New(cfg)
	require.NoError(t, err)

	pipe := transport.NewPipeServerWire(t.Name())
	require.NoError(t, r.AddServerWire(pipe))
	require.NoError(t, r.Start(context.Background()))
	t.Cleanup(func() { r.Close() })
	return &testRouter{Router: r, pipe: pipe}
}

// dial opens a connection without running the handshake.
func (tr *testRouter) dial(t *testing.T) *connection.Connection {
	t.Helper()
	w, err := tr.pipe.Dial()
	require.NoError(t, err)
	c := connection.New(w, connection.Config{Timeout: testTimeout})
	t.Cleanup(func() { c.Close() })
	return c
}

func (tr *testRouter) connect(t *testing.T) *connection.Connection {
	t.Helper()
	c := tr.dial(t)
	require.NoError(t, c.Connect(ctxT(t), nil))
	return c
}

func ctxT(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	t.Cleanup(cancel)
	return ctx
}

func recv[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(testTimeout):
		t.Fatal("timeout waiting for event")
		var zero T
		return zero
	}
}

func level(t *testing.T, props wire.PropArray) int64 {
	t.Helper()
	v, ok := props.Get(tagLevel).AsInt()
	require.True(t, ok, "level missing in %v", props)
	return v
}

func TestConnectAssignsAddresses(t *testing.T) {
	r := newTestRouter(t, nil)

	a := r.connect(t)
	b := r.connect(t)

	assert.Equal(t, wire.Addr(1), a.Addr())
	assert.Equal(t, wire.Addr(2), b.Addr())
	assert.Equal(t, 2, r.Sessions())
	assert.Equal(t, 2.0, testutil.ToFloat64(r.metrics.sessions))

	_, err := a.Ping(ctxT(t))
	assert.NoError(t, err)
}

func TestRequestBeforeConnect(t *testing.T) {
	r := newTestRouter(t, nil)
	c := r.dial(t)

	conf, err := c.Requester().Do(ctxT(t), wire.NewFrame(wire.MsgQueryObjects, 0, wire.RouterAddr, wire.PropArray{}))
	require.NoError(t, err)
	assert.Equal(t, wire.StatusNotConnected, conf.Status)

	// Ping works without a handshake.
	conf, err = c.Requester().Do(ctxT(t), wire.NewFrame(wire.MsgPing, 0, wire.RouterAddr, wire.PropArray{}))
	require.NoError(t, err)
	assert.Equal(t, wire.StatusOK, conf.Status)
}

func TestRouterHostedObject(t *testing.T) {
	r := newTestRouter(t, nil)
	owner := r.connect(t)
	other := r.connect(t)
	ctx := ctxT(t)

	obj, err := owner.CreateObject(ctx, lampType, wire.NewPropArray(
		wire.NewUint8(tagLevel, 5),
		wire.NewString(tagName, "hall"),
	))
	require.NoError(t, err)
	assert.Equal(t, lampType, obj.Type())
	assert.Equal(t, 1, r.Objects())

	proxy, err := other.OpenObject(ctx, obj.Addr())
	require.NoError(t, err)
	assert.Equal(t, obj.BroadcastAddr(), proxy.BroadcastAddr())

	changed := make(chan wire.PropArray, 4)
	require.NoError(t, obj.Subscribe(ctx, func(ind *interaction.Indication) {
		if ind.Message == wire.MsgChanged {
			changed <- ind.Payload
		}
	}))

	require.NoError(t, proxy.SetProperty(ctx, wire.NewUint8(tagLevel, 9)))
	assert.Equal(t, int64(9), level(t, recv(t, changed)))

	props, err := owner.Requester().Do(ctx, wire.NewFrame(wire.MsgGetProperties, owner.Addr(), obj.Addr(),
		wire.NewPropArray(wire.Zero(tagLevel), wire.Zero(tagName))))
	require.NoError(t, err)
	require.Equal(t, wire.StatusOK, props.Status)
	assert.Equal(t, int64(9), level(t, props.Payload))
	name, _ := props.Payload.Get(tagName).AsString()
	assert.Equal(t, "hall", name)
}

func TestRegistryTagsAreReadOnly(t *testing.T) {
	r := newTestRouter(t, nil)
	c := r.connect(t)
	ctx := ctxT(t)

	obj, err := c.CreateObject(ctx, lampType, wire.NewPropArray(wire.NewUint8(tagLevel, 1)))
	require.NoError(t, err)

	err = obj.SetProperty(ctx, wire.NewUint16(wire.TagObjectAddr, 0x1234))
	assert.ErrorIs(t, err, wire.StatusReadOnly)

	err = obj.SetProperties(ctx, wire.NewPropArray(
		wire.NewUint8(tagLevel, 2),
		wire.NewUUID(wire.TagObjectType, sensorType),
	))
	assert.ErrorIs(t, err, wire.StatusPartialSuccess)

	conf, err := c.Requester().Do(ctx, wire.NewFrame(wire.MsgDeleteProperty, c.Addr(), obj.Addr(),
		wire.NewPropArray(wire.Zero(wire.TagObjectType))))
	require.NoError(t, err)
	assert.Equal(t, wire.StatusReadOnly, conf.Status)
}

func TestOversizeGetIsConfirmed(t *testing.T) {
	r := newTestRouter(t, nil)
	c := r.connect(t)
	ctx := ctxT(t)

	tagBlobA := wire.MakeTag(0x0310, wire.TypeBinary, 0)
	tagBlobB := wire.MakeTag(0x0311, wire.TypeBinary, 0)

	obj, err := c.CreateObject(ctx, lampType, wire.NewPropArray(wire.NewUint8(tagLevel, 1)))
	require.NoError(t, err)
	require.NoError(t, obj.CreateProperties(ctx, wire.NewPropArray(wire.NewBinary(tagBlobA, make([]byte, 40000)))))
	require.NoError(t, obj.CreateProperties(ctx, wire.NewPropArray(wire.NewBinary(tagBlobB, make([]byte, 30000)))))

	conf, err := c.Requester().Do(ctx, wire.NewFrame(wire.MsgGetProperties, c.Addr(), obj.Addr(), wire.PropArray{}))
	require.NoError(t, err)
	assert.Equal(t, wire.StatusPartialSuccess, conf.Status)
	assert.Equal(t, wire.StatusNoAlloc, conf.Payload.Get(tagBlobA).Err())
	blob, ok := conf.Payload.Get(tagBlobB).AsBytes()
	require.True(t, ok)
	assert.Len(t, blob, 30000)
	assert.Equal(t, int64(1), level(t, conf.Payload))
}

func TestPropertyLifecycle(t *testing.T) {
	r := newTestRouter(t, nil)
	c := r.connect(t)
	ctx := ctxT(t)

	obj, err := c.CreateObject(ctx, lampType, wire.PropArray{})
	require.NoError(t, err)

	require.NoError(t, obj.CreateProperties(ctx, wire.NewPropArray(wire.NewUint8(tagLevel, 3))))
	p, err := obj.GetProperty(ctx, tagLevel)
	require.NoError(t, err)
	v, _ := p.AsInt()
	assert.Equal(t, int64(3), v)

	require.NoError(t, obj.DeleteProperty(ctx, tagLevel))
	assert.ErrorIs(t, obj.DeleteProperty(ctx, tagLevel), wire.StatusNotFound)
}

func TestQueryObjects(t *testing.T) {
	r := newTestRouter(t, nil)
	c := r.connect(t)
	ctx := ctxT(t)

	lamp, err := c.CreateObject(ctx, lampType, wire.NewPropArray(wire.NewUint8(tagLevel, 4)))
	require.NoError(t, err)
	_, err = c.CreateObject(ctx, sensorType, wire.PropArray{})
	require.NoError(t, err)

	all, err := c.QueryObjects(ctx, wire.NilID)
	require.NoError(t, err)
	assert.Equal(t, 2, all.NumRows())
	assert.Equal(t, 3, all.NumColumns())

	lamps, err := c.QueryObjects(ctx, lampType, wire.TagObjectAddr, tagLevel)
	require.NoError(t, err)
	require.Equal(t, 1, lamps.NumRows())
	addr, _ := lamps.Row(0).Get(wire.TagObjectAddr).AsAddr()
	assert.Equal(t, lamp.Addr(), addr)
	assert.Equal(t, int64(4), level(t, lamps.Row(0)))
}

func newLampService() *model.BaseService {
	svc := model.NewBaseService(lampType, wire.NewPropArray(wire.NewUint8(tagLevel, 1)))
	svc.OnMessage("double", func(in wire.PropArray, out *wire.PropArray) wire.Status {
		v, _ := in.Get(tagLevel).AsInt()
		out.Set(wire.NewUint8(tagLevel, uint8(v*2)))
		return wire.StatusOK
	})
	return svc
}

func TestServiceForwarding(t *testing.T) {
	r := newTestRouter(t, nil)
	host := r.connect(t)
	client := r.connect(t)
	ctx := ctxT(t)

	svc := newLampService()
	obj, err := host.RegisterService(ctx, svc, false)
	require.NoError(t, err)

	proxy, err := client.OpenObject(ctx, obj.Addr())
	require.NoError(t, err)
	assert.Equal(t, lampType, proxy.Type())

	require.NoError(t, proxy.SetProperty(ctx, wire.NewUint8(tagLevel, 7)))
	v, _ := svc.Get(tagLevel).AsInt()
	assert.Equal(t, int64(7), v)

	out, err := proxy.Invoke(ctx, "double", wire.NewPropArray(wire.NewUint8(tagLevel, 4)))
	require.NoError(t, err)
	assert.Equal(t, int64(8), level(t, out))

	_, err = proxy.Invoke(ctx, "unknown", wire.PropArray{})
	assert.ErrorIs(t, err, wire.StatusNotImpl)

	// Only the host may destroy a service object.
	assert.ErrorIs(t, client.DestroyObject(ctx, obj.Addr()), wire.StatusRefused)
	assert.Equal(t, 1, r.Objects())
}

func TestCustomToRouterObjectNotImplemented(t *testing.T) {
	r := newTestRouter(t, nil)
	c := r.connect(t)
	ctx := ctxT(t)

	obj, err := c.CreateObject(ctx, lampType, wire.PropArray{})
	require.NoError(t, err)
	_, err = obj.Invoke(ctx, "double", wire.PropArray{})
	assert.ErrorIs(t, err, wire.StatusNotImpl)
}

func TestGroupCustomMessage(t *testing.T) {
	r := newTestRouter(t, nil)
	a := r.connect(t)
	b := r.connect(t)
	ctx := ctxT(t)

	obj, err := a.CreateObject(ctx, lampType, wire.PropArray{})
	require.NoError(t, err)
	proxy, err := b.OpenObject(ctx, obj.Addr())
	require.NoError(t, err)

	gotA := make(chan *interaction.Indication, 4)
	gotB := make(chan *interaction.Indication, 4)
	require.NoError(t, obj.Subscribe(ctx, func(ind *interaction.Indication) {
		if ind.Message == wire.MsgCustomMsgReceived {
			gotA <- ind
		}
	}))
	require.NoError(t, proxy.Subscribe(ctx, func(ind *interaction.Indication) {
		if ind.Message == wire.MsgCustomMsgReceived {
			gotB <- ind
		}
	}))

	require.NoError(t, obj.Broadcast("blink", wire.NewPropArray(wire.NewUint8(tagLevel, 2))))

	ind := recv(t, gotB)
	assert.Equal(t, "blink", ind.Name())
	assert.Equal(t, a.Addr(), ind.Source)
	assert.False(t, ind.NeedsAck())
	assert.Equal(t, int64(2), level(t, ind.Payload))

	select {
	case <-gotA:
		t.Fatal("sender received its own group message")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestJoinGroup(t *testing.T) {
	r := newTestRouter(t, nil)
	a := r.connect(t)
	b := r.connect(t)
	ctx := ctxT(t)

	assert.ErrorIs(t, a.JoinGroup(ctx, 0x4000), wire.StatusNotFound)
	assert.ErrorIs(t, a.LeaveGroup(ctx, wire.AnnounceAddr), wire.StatusNotFound)

	obj, err := a.CreateObject(ctx, lampType, wire.PropArray{})
	require.NoError(t, err)

	joined := make(chan wire.Addr, 2)
	require.NoError(t, obj.Subscribe(ctx, func(ind *interaction.Indication) {
		if ind.Message == wire.MsgJoined || ind.Message == wire.MsgLeft {
			joined <- ind.Source
		}
	}))

	require.NoError(t, b.JoinGroup(ctx, obj.BroadcastAddr()))
	assert.Equal(t, b.Addr(), recv(t, joined))
	require.NoError(t, b.LeaveGroup(ctx, obj.BroadcastAddr()))
	assert.Equal(t, b.Addr(), recv(t, joined))
}

func TestDisconnectCleansUp(t *testing.T) {
	r := newTestRouter(t, nil)
	host := r.connect(t)
	client := r.connect(t)
	watcher := r.connect(t)
	ctx := ctxT(t)

	obj, err := host.RegisterService(ctx, newLampService(), false)
	require.NoError(t, err)

	announced := make(chan wire.Addr, 4)
	require.NoError(t, watcher.WatchObjects(ctx, func(ind *interaction.Indication) {
		if ind.Message == wire.MsgDestroyed {
			announced <- ind.Source
		}
	}))

	proxy, err := client.OpenObject(ctx, obj.Addr())
	require.NoError(t, err)
	destroyed := make(chan struct{}, 2)
	require.NoError(t, proxy.Subscribe(ctx, func(ind *interaction.Indication) {
		if ind.Message == wire.MsgDestroyed {
			destroyed <- struct{}{}
		}
	}))

	require.NoError(t, host.Close())

	assert.Equal(t, obj.Addr(), recv(t, announced))
	recv(t, destroyed)
	assert.True(t, proxy.Destroyed())
	require.Eventually(t, func() bool {
		return r.Objects() == 0 && r.Sessions() == 2
	}, testTimeout, 10*time.Millisecond)

	// The object and group addresses are free again, but fresh ones are
	// handed out first.
	next, err := client.CreateObject(ctx, sensorType, wire.PropArray{})
	require.NoError(t, err)
	assert.NotEqual(t, obj.Addr(), next.Addr())
}

func TestClosingMemberLeavesAllGroups(t *testing.T) {
	r := newTestRouter(t, nil)
	owner := r.connect(t)
	host := r.connect(t)
	member := r.connect(t)
	ctx := ctxT(t)

	first, err := owner.CreateObject(ctx, lampType, wire.PropArray{})
	require.NoError(t, err)
	second, err := owner.CreateObject(ctx, sensorType, wire.PropArray{})
	require.NoError(t, err)

	memberAddr := member.Addr()
	left := make(chan wire.Addr, 4)
	onLeft := func(ind *interaction.Indication) {
		if ind.Message == wire.MsgLeft && ind.Source == memberAddr {
			left <- ind.Destination
		}
	}
	require.NoError(t, first.Subscribe(ctx, onLeft))
	require.NoError(t, second.Subscribe(ctx, onLeft))

	require.NoError(t, member.JoinGroup(ctx, first.BroadcastAddr()))
	require.NoError(t, member.JoinGroup(ctx, second.BroadcastAddr()))
	require.True(t, r.groups.IsMember(first.BroadcastAddr(), memberAddr))
	require.True(t, r.groups.IsMember(second.BroadcastAddr(), memberAddr))

	entered := make(chan struct{})
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	svc := model.NewBaseService(lampType, wire.PropArray{})
	svc.OnMessage("block", func(wire.PropArray, *wire.PropArray) wire.Status {
		close(entered)
		<-release
		return wire.StatusOK
	})
	obj, err := host.RegisterService(ctx, svc, false)
	require.NoError(t, err)
	proxy, err := member.OpenObject(ctx, obj.Addr())
	require.NoError(t, err)

	result := make(chan error, 1)
	go func() {
		_, err := proxy.Invoke(ctx, "block", wire.PropArray{})
		result <- err
	}()
	recv(t, entered)

	require.NoError(t, member.Close())
	assert.ErrorIs(t, recv(t, result), wire.StatusNotConnected)

	groups := []wire.Addr{recv(t, left), recv(t, left)}
	assert.ElementsMatch(t, []wire.Addr{first.BroadcastAddr(), second.BroadcastAddr()}, groups)
	assert.False(t, r.groups.IsMember(first.BroadcastAddr(), memberAddr))
	assert.False(t, r.groups.IsMember(second.BroadcastAddr(), memberAddr))
}

func TestForwardFailsWhenHostLeaves(t *testing.T) {
	r := newTestRouter(t, nil)
	host := r.connect(t)
	client := r.connect(t)
	ctx := ctxT(t)

	entered := make(chan struct{})
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	svc := model.NewBaseService(lampType, wire.PropArray{})
	svc.OnMessage("block", func(wire.PropArray, *wire.PropArray) wire.Status {
		close(entered)
		<-release
		return wire.StatusOK
	})
	obj, err := host.RegisterService(ctx, svc, false)
	require.NoError(t, err)
	proxy, err := client.OpenObject(ctx, obj.Addr())
	require.NoError(t, err)

	result := make(chan error, 1)
	go func() {
		_, err := proxy.Invoke(ctx, "block", wire.PropArray{})
		result <- err
	}()

	recv(t, entered)
	require.NoError(t, host.Close())
	assert.ErrorIs(t, recv(t, result), wire.StatusNotConnected)
}

func TestRequiresAuthWithoutAuthenticator(t *testing.T) {
	r := newTestRouter(t, nil)
	host := r.connect(t)
	client := r.connect(t)
	ctx := ctxT(t)

	obj, err := host.RegisterService(ctx, newLampService(), true)
	require.NoError(t, err)

	_, err = client.OpenObject(ctx, obj.Addr())
	assert.ErrorIs(t, err, wire.StatusUnauthorized)
	assert.ErrorIs(t, client.JoinGroup(ctx, obj.BroadcastAddr()), wire.StatusUnauthorized)
}

func TestSignatureAuth(t *testing.T) {
	secret := []byte("kitchen")
	r := newTestRouter(t, func(c *Config) {
		c.Authenticator = auth.NewSignature(secret)
	})
	ctx := ctxT(t)

	good := r.dial(t)
	require.NoError(t, good.Connect(ctx, auth.NewSignature(secret)))
	assert.True(t, good.Connected())

	bad := r.dial(t)
	for i := 0; i < DefaultMaxAuthAttempts; i++ {
		err := bad.Connect(ctx, auth.NewSignature([]byte("garden")))
		require.ErrorIs(t, err, wire.StatusUnauthorized)
	}
	recv(t, bad.Done())
	assert.Equal(t, 1, r.Sessions())
	assert.Equal(t, float64(DefaultMaxAuthAttempts), testutil.ToFloat64(r.metrics.authFailures))
}

func TestInteractiveCredentialsOnConnect(t *testing.T) {
	r := newTestRouter(t, func(c *Config) {
		c.Authenticator = &auth.Interactive{Accounts: map[string]string{"ada": "lovelace"}}
	})
	ctx := ctxT(t)

	c := r.dial(t)
	require.NoError(t, c.ConnectWithProps(ctx, wire.NewPropArray(
		wire.NewString(wire.TagAuthUser, "ada"),
		wire.NewString(wire.TagAuthPass, "lovelace"),
	)))

	prompt := r.dial(t)
	require.NoError(t, prompt.Connect(ctx, &auth.Interactive{User: "ada", Password: "lovelace"}))

	wrong := r.dial(t)
	err := wrong.Connect(ctx, &auth.Interactive{User: "ada", Password: "babbage"})
	assert.ErrorIs(t, err, wire.StatusUnauthorized)
}

func TestHandshakeTimeout(t *testing.T) {
	r := newTestRouter(t, func(c *Config) {
		c.ConnectTimeout = 50 * time.Millisecond
		c.ReaperInterval = 10 * time.Millisecond
	})
	idle := r.dial(t)
	recv(t, idle.Done())

	// Connected sessions are left alone.
	c := r.connect(t)
	time.Sleep(100 * time.Millisecond)
	assert.True(t, c.Connected())
}

func TestConfigure(t *testing.T) {
	r := newTestRouter(t, nil)
	c := r.connect(t)
	ctx := ctxT(t)

	require.NoError(t, c.Configure(ctx, wire.NewPropArray(wire.NewUint32(wire.TagIndicationTimeout, 250))))

	err := c.Configure(ctx, wire.NewPropArray(
		wire.NewUint32(wire.TagIndicationTimeout, 500),
		wire.NewUint8(tagLevel, 1),
	))
	assert.ErrorIs(t, err, wire.StatusPartialSuccess)

	err = c.Configure(ctx, wire.NewPropArray(wire.NewUint8(tagLevel, 1)))
	assert.ErrorIs(t, err, wire.StatusNotImpl)
}

func TestSaveChangesWithoutSnapshot(t *testing.T) {
	r := newTestRouter(t, nil)
	c := r.connect(t)
	assert.ErrorIs(t, c.SaveChanges(ctxT(t)), wire.StatusNotImpl)
}

func TestSnapshotRestore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "objects.snap")
	withSnapshot := func(c *Config) { c.SnapshotPath = path }

	r1 := newTestRouter(t, withSnapshot)
	c1 := r1.connect(t)
	ctx := ctxT(t)
	obj, err := c1.CreateObject(ctx, lampType, wire.NewPropArray(wire.NewUint8(tagLevel, 6)))
	require.NoError(t, err)
	svc, err := c1.RegisterService(ctx, newLampService(), false)
	require.NoError(t, err)
	require.NoError(t, c1.SaveChanges(ctx))
	require.NoError(t, r1.Close())

	r2 := newTestRouter(t, withSnapshot)
	assert.Equal(t, 1, r2.Objects(), "only router-hosted objects are saved")

	c2 := r2.connect(t)
	assert.NotEqual(t, obj.Addr(), c2.Addr())
	proxy, err := c2.OpenObject(ctx, obj.Addr())
	require.NoError(t, err)
	assert.Equal(t, lampType, proxy.Type())
	p, err := proxy.GetProperty(ctx, tagLevel)
	require.NoError(t, err)
	v, _ := p.AsInt()
	assert.Equal(t, int64(6), v)

	_, err = c2.OpenObject(ctx, svc.Addr())
	assert.ErrorIs(t, err, wire.StatusNotFound)
}

func TestRouterClose(t *testing.T) {
	r := newTestRouter(t, nil)
	c := r.connect(t)

	require.NoError(t, r.Close())
	recv(t, c.Done())
	assert.ErrorIs(t, r.AddServerWire(transport.NewPipeServerWire("late")), ErrRouterClosed)
	assert.ErrorIs(t, r.Start(context.Background()), ErrRouterClosed)
}
