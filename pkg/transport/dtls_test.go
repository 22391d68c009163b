package transport

import (
	"strings"
	"testing"

	"github.com/pion/dtls/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDTLSConfigForFillsServerName(t *testing.T) {
	conf := &dtls.Config{}
	assert.Equal(t, "127.0.0.1", dtlsConfigFor(conf, "127.0.0.1:9986").ServerName)
	assert.Empty(t, conf.ServerName)

	skip := &dtls.Config{InsecureSkipVerify: true}
	assert.Same(t, skip, dtlsConfigFor(skip, "127.0.0.1:9986"))
}

func TestDTLSServerWire(t *testing.T) {
	ctx := testContext(t)
	pki := newTestPKI(t)

	serverConf, err := NewServerDTLSConfig(&TLSConfig{
		Certificate: pki.server,
		ClientCAs:   pki.ca.Pool(),
	})
	require.NoError(t, err)

	srv := NewDTLSServerWire("127.0.0.1:0", serverConf)
	assert.Nil(t, srv.Addr())
	require.NoError(t, srv.Init(ctx))
	assert.ErrorIs(t, srv.Init(ctx), ErrAlreadyListening)
	assert.True(t, srv.Available())
	assert.True(t, strings.HasPrefix(srv.Describe(), "dtls://127.0.0.1:"), srv.Describe())
	addr := srv.Addr().String()

	anonConf, err := NewClientDTLSConfig(&TLSConfig{RootCAs: pki.ca.Pool()})
	require.NoError(t, err)
	anon := NewDTLSWire(addr, anonConf)
	require.NoError(t, anon.Open(ctx))
	defer anon.Close()

	server, err := srv.Accept(ctx)
	require.NoError(t, err)
	defer server.Close()
	assert.True(t, anon.Secure())
	assert.True(t, server.Secure())
	assert.False(t, server.Authenticated())
	exchange(t, anon, server)

	certConf, err := NewClientDTLSConfig(&TLSConfig{
		Certificate: pki.client,
		RootCAs:     pki.ca.Pool(),
	})
	require.NoError(t, err)
	peer := NewDTLSWire(addr, certConf)
	require.NoError(t, peer.Open(ctx))
	defer peer.Close()

	server2, err := srv.Accept(ctx)
	require.NoError(t, err)
	defer server2.Close()
	assert.True(t, server2.Authenticated())
	exchange(t, peer, server2)

	require.NoError(t, srv.Close())
	assert.False(t, srv.Available())
}

func TestDTLSWireRejectsUnknownAuthority(t *testing.T) {
	ctx := testContext(t)
	pki := newTestPKI(t)
	other := newTestPKI(t)

	serverConf, err := NewServerDTLSConfig(&TLSConfig{Certificate: pki.server})
	require.NoError(t, err)
	srv := NewDTLSServerWire("127.0.0.1:0", serverConf)
	require.NoError(t, srv.Init(ctx))
	defer srv.Close()

	clientConf, err := NewClientDTLSConfig(&TLSConfig{RootCAs: other.ca.Pool()})
	require.NoError(t, err)
	client := NewDTLSWire(srv.Addr().String(), clientConf)
	assert.Error(t, client.Open(ctx))
}
