// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqttsession

import (
	"log/slog"
	"time"

	"github.com/Azure/mqttsession/retry"
)

type (
	// SessionClientOption represents a single option for the session client.
	SessionClientOption interface{ sessionClient(*SessionClientOptions) }

	// SessionClientOptions are the resolved options for the session client.
	SessionClientOptions struct {
		// Transport used to reach the broker. Defaults to the MQTT v5
		// PahoTransport.
		Transport Transport

		// OperationTimeout bounds how long any operation may wait for its
		// acknowledgement before resolving with ReasonTimedOut. Zero disables
		// the deadline.
		OperationTimeout time.Duration

		// AutoReconnect, if set, restores the connection with Reconnect after
		// it is lost, until the policy gives up or the user disconnects.
		AutoReconnect retry.Policy

		Username UsernameProvider
		Password PasswordProvider

		Logger *slog.Logger
	}

	// WithOperationTimeout sets the deadline applied to every operation.
	WithOperationTimeout time.Duration

	// WithUsername sets the UsernameProvider for the CONNECT.
	WithUsername UsernameProvider

	// WithPassword sets the PasswordProvider for the CONNECT.
	WithPassword PasswordProvider

	// This option is not used directly; see WithTransport below.
	withTransport struct{ Transport }

	// This option is not used directly; see WithAutoReconnect below.
	withAutoReconnect struct{ retry.Policy }

	// This option is not used directly; see WithLogger below.
	withLogger struct{ *slog.Logger }
)

// Apply resolves the provided list of options.
func (o *SessionClientOptions) Apply(
	opts []SessionClientOption,
	rest ...SessionClientOption,
) {
	for _, opt := range opts {
		if opt != nil {
			opt.sessionClient(o)
		}
	}
	for _, opt := range rest {
		if opt != nil {
			opt.sessionClient(o)
		}
	}
}

func (o *SessionClientOptions) sessionClient(opt *SessionClientOptions) {
	if o != nil {
		*opt = *o
	}
}

func (o WithOperationTimeout) sessionClient(opt *SessionClientOptions) {
	opt.OperationTimeout = time.Duration(o)
}

func (o WithUsername) sessionClient(opt *SessionClientOptions) {
	opt.Username = UsernameProvider(o)
}

func (o WithPassword) sessionClient(opt *SessionClientOptions) {
	opt.Password = PasswordProvider(o)
}

// WithTransport replaces the default MQTT v5 transport.
func WithTransport(transport Transport) SessionClientOption {
	return withTransport{transport}
}

func (o withTransport) sessionClient(opt *SessionClientOptions) {
	opt.Transport = o.Transport
}

// WithAutoReconnect enables automatic reconnection after a connection loss,
// paced by the given policy. A nil policy selects the default exponential
// backoff.
func WithAutoReconnect(policy retry.Policy) SessionClientOption {
	return withAutoReconnect{policy}
}

func (o withAutoReconnect) sessionClient(opt *SessionClientOptions) {
	if o.Policy == nil {
		opt.AutoReconnect = &retry.ExponentialBackoff{}
		return
	}
	opt.AutoReconnect = o.Policy
}

// WithLogger enables logging with the provided slog logger.
func WithLogger(logger *slog.Logger) SessionClientOption {
	return withLogger{logger}
}

func (o withLogger) sessionClient(opt *SessionClientOptions) {
	opt.Logger = o.Logger
}
