// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqttsession

import (
	"net"
	"os"
	"strconv"
	"strings"
)

const envPrefix = "MQTT_"

// SessionClientConfigFromEnv parses a session client configuration from
// well-known environment variables, applied on top of the defaults:
//
//	MQTT_HOST_NAME=localhost
//	MQTT_TCP_PORT=8883
//	MQTT_USE_TLS=true
//	MQTT_KEEP_ALIVE=PT60S
//
// Any field of SessionClientConfig may be set this way by its name with
// underscores removed (e.g. MQTT_CLIENT_ID, MQTT_PASSWORD_FILE).
func SessionClientConfigFromEnv() (*SessionClientConfig, error) {
	settings := make(map[string]string)
	for _, env := range os.Environ() {
		idx := strings.IndexByte(env, '=')
		if idx < 0 || !strings.HasPrefix(env[:idx], envPrefix) {
			continue
		}
		key := strings.TrimPrefix(env[:idx], envPrefix)
		settings[settingKey(key)] = strings.TrimSpace(env[idx+1:])
	}
	return configFromSettings(settings)
}

// SessionClientConfigFromConnectionString parses a session client
// configuration from a connection string, applied on top of the defaults:
//
//	HostName=localhost;TcpPort=1883;UseTls=false;ClientId=Test
func SessionClientConfigFromConnectionString(
	connStr string,
) (*SessionClientConfig, error) {
	settings := make(map[string]string)
	for _, param := range strings.Split(strings.TrimSuffix(connStr, ";"), ";") {
		k, v, ok := strings.Cut(param, "=")
		if !ok {
			continue
		}
		settings[settingKey(k)] = strings.TrimSpace(v)
	}
	return configFromSettings(settings)
}

// NewSessionClientFromEnv is a shorthand for constructing a session client
// using SessionClientConfigFromEnv.
func NewSessionClientFromEnv(
	opts ...SessionClientOption,
) (*SessionClient, error) {
	cfg, err := SessionClientConfigFromEnv()
	if err != nil {
		return nil, err
	}
	return NewSessionClientFromConfig(cfg, opts...)
}

func settingKey(k string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(k), "_", ""))
}

func configFromSettings(
	settings map[string]string,
) (*SessionClientConfig, error) {
	cfg := DefaultSessionClientConfig()
	if err := cfg.applySettings(settings); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *SessionClientConfig) applySettings(
	settings map[string]string,
) error {
	if err := cfg.applyAddress(settings); err != nil {
		return err
	}

	assignIfExists(settings, "clientid", &cfg.ClientID)
	assignIfExists(settings, "username", &cfg.Username)
	assignIfExists(settings, "password", &cfg.Password)
	assignIfExists(settings, "passwordfile", &cfg.PasswordFile)
	assignIfExists(settings, "cafile", &cfg.CAFile)
	assignIfExists(settings, "certfile", &cfg.CertFile)
	assignIfExists(settings, "keyfile", &cfg.KeyFile)
	assignIfExists(settings, "keypasswordfile", &cfg.KeyPasswordFile)

	for key, field := range map[string]*bool{
		"cleansession":       &cfg.CleanSession,
		"autoreconnect":      &cfg.AutoReconnect,
		"insecureskipverify": &cfg.InsecureSkipVerify,
	} {
		if value, exists := settings[key]; exists {
			b, err := strconv.ParseBool(value)
			if err != nil {
				return &InvalidArgumentError{
					message: "could not parse " + key,
					wrapped: err,
				}
			}
			*field = b
		}
	}

	for key, field := range map[string]*Duration{
		"keepalive":            &cfg.KeepAlive,
		"operationtimeout":     &cfg.OperationTimeout,
		"reconnectmininterval": &cfg.ReconnectMinInterval,
		"reconnectmaxinterval": &cfg.ReconnectMaxInterval,
	} {
		if value, exists := settings[key]; exists {
			d, err := parseDuration(value)
			if err != nil {
				return &InvalidArgumentError{
					message: "could not parse " + key,
					wrapped: err,
				}
			}
			*field = Duration(d)
		}
	}

	if value, exists := settings["reconnectmaxattempts"]; exists {
		n, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return &InvalidArgumentError{
				message: "could not parse reconnectmaxattempts",
				wrapped: err,
			}
		}
		cfg.ReconnectMaxAttempts = n
	}
	return nil
}

// applyAddress sets the broker address, either directly or from its
// host name, port, and TLS parts.
func (cfg *SessionClientConfig) applyAddress(
	settings map[string]string,
) error {
	if value, exists := settings["brokeraddress"]; exists {
		cfg.BrokerAddress = value
		return nil
	}

	host := settings["hostname"]
	if host == "" {
		for _, key := range []string{"tcpport", "usetls"} {
			if _, exists := settings[key]; exists {
				return &InvalidArgumentError{
					message: "connection settings provided without hostname",
				}
			}
		}
		return nil
	}

	useTLS := false
	if value, exists := settings["usetls"]; exists {
		b, err := strconv.ParseBool(value)
		if err != nil {
			return &InvalidArgumentError{
				message: "could not parse usetls",
				wrapped: err,
			}
		}
		useTLS = b
	}

	scheme, port := "tcp", "1883"
	if useTLS {
		scheme, port = "tls", "8883"
	}
	if value, exists := settings["tcpport"]; exists {
		if _, err := strconv.ParseUint(value, 10, 16); err != nil {
			return &InvalidArgumentError{
				message: "could not parse tcpport",
				wrapped: err,
			}
		}
		port = value
	}

	cfg.BrokerAddress = scheme + "://" + net.JoinHostPort(host, port)
	return nil
}

// assignIfExists assigns non-empty string values from settings to the
// corresponding configuration field.
func assignIfExists(settings map[string]string, key string, field *string) {
	if value, exists := settings[key]; exists && value != "" {
		*field = value
	}
}
