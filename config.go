// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqttsession

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Azure/mqttsession/retry"
	"github.com/go-playground/validator/v10"
	"github.com/sosodev/duration"
	"gopkg.in/yaml.v3"
)

type (
	// SessionClientConfig is a declarative session client configuration, as
	// loaded from a YAML file, the environment, or a connection string.
	SessionClientConfig struct {
		ClientID      string `yaml:"client_id"`
		BrokerAddress string `yaml:"broker_address" validate:"required"`

		// Connect parameters; see SessionClient.Connect.
		CleanSession bool     `yaml:"clean_session"`
		KeepAlive    Duration `yaml:"keep_alive" validate:"gte=0,lte=65535000000000"`

		OperationTimeout Duration `yaml:"operation_timeout" validate:"gte=0"`

		AutoReconnect        bool     `yaml:"auto_reconnect"`
		ReconnectMaxAttempts uint64   `yaml:"reconnect_max_attempts"`
		ReconnectMinInterval Duration `yaml:"reconnect_min_interval" validate:"gte=0"`
		ReconnectMaxInterval Duration `yaml:"reconnect_max_interval" validate:"gte=0"`

		Username     string `yaml:"username"`
		Password     string `yaml:"password" validate:"excluded_with=PasswordFile"`
		PasswordFile string `yaml:"password_file"`

		CAFile             string `yaml:"ca_file"`
		CertFile           string `yaml:"cert_file" validate:"required_with=KeyFile"`
		KeyFile            string `yaml:"key_file" validate:"required_with=CertFile"`
		KeyPasswordFile    string `yaml:"key_password_file"`
		InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
	}

	// Duration is a time.Duration that parses from ISO 8601 ("PT30S") or Go
	// ("30s") notation.
	Duration time.Duration
)

var validate = validator.New()

// DefaultSessionClientConfig returns the configuration used for any value a
// source does not specify.
func DefaultSessionClientConfig() *SessionClientConfig {
	return &SessionClientConfig{
		BrokerAddress: "tcp://localhost:1883",
		CleanSession:  true,
		KeepAlive:     Duration(60 * time.Second),
		AutoReconnect: true,
	}
}

// SessionClientConfigFromFile loads a YAML configuration file on top of the
// defaults and validates the result.
func SessionClientConfigFromFile(path string) (*SessionClientConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &InvalidArgumentError{
			message: "could not read configuration file",
			wrapped: err,
		}
	}

	cfg := DefaultSessionClientConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, &InvalidArgumentError{
			message: "could not parse configuration file",
			wrapped: err,
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for consistency.
func (cfg *SessionClientConfig) Validate() error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, len(verrs))
			for i, fe := range verrs {
				fields[i] = fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag())
			}
			err = errors.New(strings.Join(fields, ", "))
		}
		return &InvalidArgumentError{
			message: "invalid session client configuration",
			wrapped: err,
		}
	}

	if cfg.KeyPasswordFile != "" && cfg.KeyFile == "" {
		return &InvalidArgumentError{
			message: "key password file provided without key file",
		}
	}
	if cfg.ReconnectMaxInterval > 0 &&
		cfg.ReconnectMaxInterval < cfg.ReconnectMinInterval {
		return &InvalidArgumentError{
			message: "reconnect max interval is less than min interval",
		}
	}
	if _, err := parseBrokerAddress(cfg.BrokerAddress); err != nil {
		return &InvalidArgumentError{
			message: "invalid broker address",
			wrapped: err,
		}
	}
	return nil
}

// KeepAliveSeconds returns the keep-alive to pass to SessionClient.Connect.
func (cfg *SessionClientConfig) KeepAliveSeconds() int {
	return int(time.Duration(cfg.KeepAlive) / time.Second)
}

// Options converts the configuration into session client options.
func (cfg *SessionClientConfig) Options() []SessionClientOption {
	var opts []SessionClientOption

	if cfg.OperationTimeout > 0 {
		opts = append(opts, WithOperationTimeout(cfg.OperationTimeout))
	}

	if cfg.AutoReconnect {
		opts = append(opts, WithAutoReconnect(&retry.ExponentialBackoff{
			MaxAttempts: cfg.ReconnectMaxAttempts,
			MinInterval: time.Duration(cfg.ReconnectMinInterval),
			MaxInterval: time.Duration(cfg.ReconnectMaxInterval),
		}))
	}

	if cfg.Username != "" {
		opts = append(opts, WithUsername(ConstantUsername(cfg.Username)))
	}
	switch {
	case cfg.PasswordFile != "":
		opts = append(opts, WithPassword(FilePassword(cfg.PasswordFile)))
	case cfg.Password != "":
		opts = append(opts, WithPassword(ConstantPassword([]byte(cfg.Password))))
	}

	if tls := cfg.TLSConfig(); tls != nil {
		opts = append(opts, WithTransport(&PahoTransport{TLSConfig: tls}))
	}
	return opts
}

// TLSConfig returns the TLS configuration described by the configuration, or
// nil if it describes none.
func (cfg *SessionClientConfig) TLSConfig() TLSConfigProvider {
	if opts := cfg.tlsOptions(); len(opts) > 0 {
		return TLSConfig(opts...)
	}
	return nil
}

func (cfg *SessionClientConfig) tlsOptions() []TLSOption {
	var opts []TLSOption
	if cfg.InsecureSkipVerify {
		opts = append(opts, WithInsecureSkipVerify())
	}
	if cfg.CertFile != "" {
		if cfg.KeyPasswordFile != "" {
			opts = append(opts, WithEncryptedX509(
				cfg.CertFile,
				cfg.KeyFile,
				cfg.KeyPasswordFile,
			))
		} else {
			opts = append(opts, WithX509(cfg.CertFile, cfg.KeyFile))
		}
	}
	if cfg.CAFile != "" {
		opts = append(opts, WithCA(cfg.CAFile))
	}
	return opts
}

// NewSessionClientFromConfig validates the configuration and constructs a
// session client from it. Additional options are applied after the
// configuration's own.
func NewSessionClientFromConfig(
	cfg *SessionClientConfig,
	opts ...SessionClientOption,
) (*SessionClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return NewSessionClient(
		cfg.ClientID,
		cfg.BrokerAddress,
		append(cfg.Options(), opts...)...,
	)
}

func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "P") || strings.HasPrefix(s, "-P") {
		d, err := duration.Parse(s)
		if err != nil {
			return 0, err
		}
		return d.ToTimeDuration(), nil
	}
	return time.ParseDuration(s)
}

// UnmarshalYAML accepts ISO 8601 and Go duration strings.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := parseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML renders the duration in Go notation.
func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

func (d Duration) String() string {
	return time.Duration(d).String()
}
