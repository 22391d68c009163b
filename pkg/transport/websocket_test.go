package transport

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebSocketServerWire(t *testing.T) {
	ctx := testContext(t)
	srv := NewWebSocketServerWire("127.0.0.1:0", "", nil)
	require.NoError(t, srv.Init(ctx))
	defer srv.Close()

	url := srv.Describe()
	assert.True(t, strings.HasPrefix(url, "ws://127.0.0.1:"), url)
	assert.True(t, strings.HasSuffix(url, DefaultWebSocketPath), url)

	client := NewWebSocketWire(url, nil)
	require.NoError(t, client.Open(ctx))
	defer client.Close()

	server, err := srv.Accept(ctx)
	require.NoError(t, err)
	defer server.Close()
	exchange(t, client, server)

	require.NoError(t, client.Close())
	_, err = server.Read()
	assert.Error(t, err)

	require.NoError(t, srv.Close())
	assert.False(t, srv.Available())
}
