package router

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coldwave/flake-go/pkg/auth"
	"github.com/coldwave/flake-go/pkg/cert"
	"github.com/coldwave/flake-go/pkg/wire"
)

const sampleConfig = `
name: home
timeout: 3s
connect_timeout: 10s
change_interval: 100ms
max_auth_attempts: 5
snapshot: /tmp/flake.snap
auth:
  type: signature
  secret: kitchen
keepalive:
  interval: 15s
  max_missed: 2
listen:
  - type: tcp
    port: 9000
  - type: udp
  - type: websocket
    port: 8080
  - type: mqtt
    broker: tcp://localhost:1883
    topic_prefix: home
metrics: ":9100"
advertise: true
`

func TestParseConfig(t *testing.T) {
	fc, err := ParseConfig([]byte(sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "home", fc.Name)
	assert.Equal(t, 3*time.Second, fc.Timeout)
	assert.Equal(t, 100*time.Millisecond, fc.ChangeInterval)
	assert.Equal(t, ":9100", fc.Metrics)
	assert.True(t, fc.Advertise)
	require.Len(t, fc.Listen, 4)
	assert.Equal(t, ListenMQTT, fc.Listen[3].Type)
	assert.Equal(t, "home", fc.Listen[3].TopicPrefix)

	cfg, err := fc.Config(DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, "home", cfg.Name)
	assert.Equal(t, 3*time.Second, cfg.Timeout)
	assert.Equal(t, 10*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, 5, cfg.MaxAuthAttempts)
	assert.Equal(t, "/tmp/flake.snap", cfg.SnapshotPath)
	assert.True(t, cfg.SuppressBounceBack)
	require.NotNil(t, cfg.KeepAlive)
	assert.Equal(t, 15*time.Second, cfg.KeepAlive.PingInterval)
	assert.Equal(t, 2, cfg.KeepAlive.MaxMissedPongs)
	require.NotNil(t, cfg.Authenticator)
	assert.Equal(t, wire.AuthSignature, cfg.Authenticator.AuthenticationType())
}

func TestParseConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown key", "nmae: typo\n"},
		{"unknown listener", "listen:\n  - type: carrier-pigeon\n"},
		{"mqtt without broker", "listen:\n  - type: mqtt\n"},
		{"serial without device", "listen:\n  - type: serial\n"},
		{"reversed without host", "listen:\n  - type: reversed\n"},
		{"bad duration", "timeout: soon\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestParseConfigEmpty(t *testing.T) {
	fc, err := ParseConfig(nil)
	require.NoError(t, err)

	cfg, err := fc.Config(DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Name, cfg.Name)
	assert.Nil(t, cfg.Authenticator)
}

func TestAuthFileConfig(t *testing.T) {
	a, err := (&AuthFileConfig{Type: "interactive", Accounts: map[string]string{"ada": "x"}}).sink()
	require.NoError(t, err)
	assert.IsType(t, &auth.Interactive{}, a)

	_, err = (&AuthFileConfig{Type: "signature"}).sink()
	assert.Error(t, err)

	_, err = (&AuthFileConfig{Type: "kerberos"}).sink()
	assert.ErrorIs(t, err, ErrUnknownAuth)
}

func TestApplyAddsServerWires(t *testing.T) {
	fc, err := ParseConfig([]byte(sampleConfig))
	require.NoError(t, err)

	r, err := New(DefaultConfig())
	require.NoError(t, err)
	defer r.Close()

	require.NoError(t, fc.Apply(r))
	wires := r.ServerWires()
	require.Len(t, wires, 4)
	assert.Contains(t, wires[0].Describe(), "9000")
}

func TestApplyNeedsTLSSection(t *testing.T) {
	fc, err := ParseConfig([]byte("listen:\n  - type: tls\n"))
	require.NoError(t, err)

	r, err := New(DefaultConfig())
	require.NoError(t, err)
	defer r.Close()

	assert.ErrorIs(t, fc.Apply(r), ErrNoTLS)
}

func TestApplyWithTLSFiles(t *testing.T) {
	dir := t.TempDir()
	c, k, _, err := cert.GenerateSelfSigned("router", "localhost")
	require.NoError(t, err)
	certFile := filepath.Join(dir, "router.pem")
	keyFile := filepath.Join(dir, "router.key")
	require.NoError(t, cert.WriteCertFile(certFile, c))
	require.NoError(t, cert.WriteKeyFile(keyFile, k))

	yaml := "tls:\n  cert: " + certFile + "\n  key: " + keyFile + "\n" +
		"listen:\n  - type: tls\n    port: 9987\n  - type: dtls\n    port: 9988\n"
	path := filepath.Join(dir, "router.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	fc, err := LoadConfigFile(path)
	require.NoError(t, err)

	r, err := New(DefaultConfig())
	require.NoError(t, err)
	defer r.Close()

	require.NoError(t, fc.Apply(r))
	assert.Len(t, r.ServerWires(), 2)
}
