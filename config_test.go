// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqttsession

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Azure/mqttsession/retry"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "session.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestConfigFromFile(t *testing.T) {
	path := writeConfig(t, `
client_id: sensor
broker_address: tls://broker.example.com
clean_session: false
keep_alive: PT30S
operation_timeout: 5s
auto_reconnect: true
reconnect_max_attempts: 3
reconnect_min_interval: 100ms
reconnect_max_interval: PT1M
username: user
password: pass
`)

	cfg, err := SessionClientConfigFromFile(path)
	require.NoError(t, err)
	require.Equal(t, &SessionClientConfig{
		ClientID:             "sensor",
		BrokerAddress:        "tls://broker.example.com",
		CleanSession:         false,
		KeepAlive:            Duration(30 * time.Second),
		OperationTimeout:     Duration(5 * time.Second),
		AutoReconnect:        true,
		ReconnectMaxAttempts: 3,
		ReconnectMinInterval: Duration(100 * time.Millisecond),
		ReconnectMaxInterval: Duration(time.Minute),
		Username:             "user",
		Password:             "pass",
	}, cfg)
	require.Equal(t, 30, cfg.KeepAliveSeconds())
}

func TestConfigFromFileDefaults(t *testing.T) {
	cfg, err := SessionClientConfigFromFile(writeConfig(t, "client_id: a\n"))
	require.NoError(t, err)

	expected := DefaultSessionClientConfig()
	expected.ClientID = "a"
	require.Equal(t, expected, cfg)
	require.Equal(t, 60, cfg.KeepAliveSeconds())

	// Configured clients restore lost connections unless told otherwise.
	require.True(t, cfg.AutoReconnect)
	c, err := NewSessionClientFromConfig(cfg, WithTransport(newStubTransport()))
	require.NoError(t, err)
	require.NotNil(t, c.options.AutoReconnect)

	cfg, err = SessionClientConfigFromFile(writeConfig(t, "auto_reconnect: false\n"))
	require.NoError(t, err)
	c, err = NewSessionClientFromConfig(cfg, WithTransport(newStubTransport()))
	require.NoError(t, err)
	require.Nil(t, c.options.AutoReconnect)
}

func TestConfigFromFileErrors(t *testing.T) {
	var iae *InvalidArgumentError

	_, err := SessionClientConfigFromFile(filepath.Join(t.TempDir(), "missing"))
	require.ErrorAs(t, err, &iae)

	_, err = SessionClientConfigFromFile(writeConfig(t, "keep_alive: forever\n"))
	require.ErrorAs(t, err, &iae)

	_, err = SessionClientConfigFromFile(writeConfig(t, "client_id: [a\n"))
	require.ErrorAs(t, err, &iae)
}

func TestConfigValidate(t *testing.T) {
	for name, tc := range map[string]struct {
		modify func(*SessionClientConfig)
		msg    string
	}{
		"cert without key": {
			func(c *SessionClientConfig) { c.CertFile = "cert.pem" },
			"KeyFile (required_with)",
		},
		"key without cert": {
			func(c *SessionClientConfig) { c.KeyFile = "key.pem" },
			"CertFile (required_with)",
		},
		"password and password file": {
			func(c *SessionClientConfig) {
				c.Password = "pass"
				c.PasswordFile = "pass.txt"
			},
			"Password (excluded_with)",
		},
		"missing broker": {
			func(c *SessionClientConfig) { c.BrokerAddress = "" },
			"BrokerAddress (required)",
		},
		"keep alive too large": {
			func(c *SessionClientConfig) {
				c.KeepAlive = Duration(24 * time.Hour)
			},
			"KeepAlive (lte)",
		},
		"bad broker": {
			func(c *SessionClientConfig) { c.BrokerAddress = "http://localhost" },
			"invalid broker address",
		},
		"key password without key": {
			func(c *SessionClientConfig) { c.KeyPasswordFile = "pw.txt" },
			"key password file provided without key file",
		},
		"reversed intervals": {
			func(c *SessionClientConfig) {
				c.ReconnectMinInterval = Duration(time.Minute)
				c.ReconnectMaxInterval = Duration(time.Second)
			},
			"reconnect max interval is less than min interval",
		},
	} {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultSessionClientConfig()
			tc.modify(cfg)

			err := cfg.Validate()
			var iae *InvalidArgumentError
			require.ErrorAs(t, err, &iae)
			require.Contains(t, err.Error(), tc.msg)
		})
	}

	require.NoError(t, DefaultSessionClientConfig().Validate())
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("MQTT_HOST_NAME", "broker.local")
	t.Setenv("MQTT_TCP_PORT", "8884")
	t.Setenv("MQTT_USE_TLS", "true")
	t.Setenv("MQTT_KEEP_ALIVE", "PT30S")
	t.Setenv("MQTT_CLIENT_ID", "env-client")
	t.Setenv("MQTT_AUTO_RECONNECT", "true")
	t.Setenv("MQTT_RECONNECT_MAX_ATTEMPTS", "7")
	t.Setenv("NOT_MQTT_CLIENT_ID", "ignored")

	cfg, err := SessionClientConfigFromEnv()
	require.NoError(t, err)
	require.Equal(t, "tls://broker.local:8884", cfg.BrokerAddress)
	require.Equal(t, Duration(30*time.Second), cfg.KeepAlive)
	require.Equal(t, "env-client", cfg.ClientID)
	require.True(t, cfg.AutoReconnect)
	require.Equal(t, uint64(7), cfg.ReconnectMaxAttempts)
	require.True(t, cfg.CleanSession)
}

func TestConfigFromEnvErrors(t *testing.T) {
	var iae *InvalidArgumentError

	t.Setenv("MQTT_TCP_PORT", "1883")
	_, err := SessionClientConfigFromEnv()
	require.ErrorAs(t, err, &iae)
	require.Contains(t, err.Error(), "without hostname")

	t.Setenv("MQTT_HOST_NAME", "localhost")
	t.Setenv("MQTT_TCP_PORT", "not-a-port")
	_, err = SessionClientConfigFromEnv()
	require.ErrorAs(t, err, &iae)

	t.Setenv("MQTT_TCP_PORT", "1883")
	t.Setenv("MQTT_CLEAN_SESSION", "maybe")
	_, err = SessionClientConfigFromEnv()
	require.ErrorAs(t, err, &iae)
}

func TestConfigFromConnectionString(t *testing.T) {
	cfg, err := SessionClientConfigFromConnectionString(
		"HostName=localhost;TcpPort=1234;Username=user;Password=pass;" +
			"CleanSession=false;OperationTimeout=PT2S;",
	)
	require.NoError(t, err)
	require.Equal(t, "tcp://localhost:1234", cfg.BrokerAddress)
	require.Equal(t, "user", cfg.Username)
	require.Equal(t, "pass", cfg.Password)
	require.False(t, cfg.CleanSession)
	require.Equal(t, Duration(2*time.Second), cfg.OperationTimeout)

	cfg, err = SessionClientConfigFromConnectionString(
		"BrokerAddress=mqtts://example.com;HostName=ignored",
	)
	require.NoError(t, err)
	require.Equal(t, "mqtts://example.com", cfg.BrokerAddress)

	cfg, err = SessionClientConfigFromConnectionString("HostName=h;UseTls=true")
	require.NoError(t, err)
	require.Equal(t, "tls://h:8883", cfg.BrokerAddress)

	_, err = SessionClientConfigFromConnectionString("KeepAlive=soon")
	var iae *InvalidArgumentError
	require.ErrorAs(t, err, &iae)
}

func TestConfigOptions(t *testing.T) {
	cfg := DefaultSessionClientConfig()
	cfg.ClientID = "configured"
	cfg.OperationTimeout = Duration(3 * time.Second)
	cfg.AutoReconnect = true
	cfg.ReconnectMaxAttempts = 2
	cfg.Username = "user"
	cfg.Password = "pass"

	tr := newStubTransport()
	c, err := NewSessionClientFromConfig(cfg, WithTransport(tr))
	require.NoError(t, err)
	require.Equal(t, "configured", c.ID())
	require.Same(t, tr, c.options.Transport)
	require.Equal(t, 3*time.Second, c.options.OperationTimeout)

	eb, ok := c.options.AutoReconnect.(*retry.ExponentialBackoff)
	require.True(t, ok)
	require.Equal(t, uint64(2), eb.MaxAttempts)

	tok := c.Connect(cfg.CleanSession, cfg.KeepAliveSeconds())
	conn := tr.next(t)
	req := conn.next(t)
	require.Equal(t, "configured", req.opts.ClientID)
	require.Equal(t, uint16(60), req.opts.KeepAlive)
	require.Equal(t, "user", req.opts.Username)
	require.Equal(t, []byte("pass"), req.opts.Password)
	conn.connack(req.id, ReasonSuccess, false)
	require.Equal(t, ReasonSuccess, wait(t, tok))

	cfg.BrokerAddress = "ftp://localhost"
	_, err = NewSessionClientFromConfig(cfg)
	var iae *InvalidArgumentError
	require.ErrorAs(t, err, &iae)
}

func TestConfigPasswordFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "password")
	require.NoError(t, os.WriteFile(file, []byte("secret"), 0o600))

	cfg := DefaultSessionClientConfig()
	cfg.PasswordFile = file

	tr := newStubTransport()
	c, err := NewSessionClientFromConfig(cfg, WithTransport(tr))
	require.NoError(t, err)

	c.Connect(true, 60)
	req := tr.next(t).next(t)
	require.Equal(t, []byte("secret"), req.opts.Password)
}

func TestConfigTLS(t *testing.T) {
	cfg := DefaultSessionClientConfig()
	require.Nil(t, cfg.TLSConfig())
	for _, opt := range cfg.Options() {
		_, isTransport := opt.(withTransport)
		require.False(t, isTransport)
	}

	cfg.BrokerAddress = "tls://localhost"
	cfg.InsecureSkipVerify = true
	provider := cfg.TLSConfig()
	require.NotNil(t, provider)

	tlsCfg, err := provider(context.Background())
	require.NoError(t, err)
	require.True(t, tlsCfg.InsecureSkipVerify)

	c, err := NewSessionClientFromConfig(cfg)
	require.NoError(t, err)
	pt, ok := c.options.Transport.(*PahoTransport)
	require.True(t, ok)
	require.NotNil(t, pt.TLSConfig)

	cfg.CAFile = filepath.Join(t.TempDir(), "missing.pem")
	_, err = cfg.TLSConfig()(context.Background())
	require.Error(t, err)
}

func TestDurationYAML(t *testing.T) {
	var v struct {
		D Duration `yaml:"d"`
	}
	require.NoError(t, yaml.Unmarshal([]byte("d: PT1H30M"), &v))
	require.Equal(t, Duration(90*time.Minute), v.D)

	require.NoError(t, yaml.Unmarshal([]byte("d: 250ms"), &v))
	require.Equal(t, Duration(250*time.Millisecond), v.D)

	out, err := yaml.Marshal(v)
	require.NoError(t, err)
	require.Equal(t, "d: 250ms\n", string(out))

	require.Error(t, yaml.Unmarshal([]byte("d: P1X"), &v))
}
