// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqttsession

import "fmt"

// ReasonCode is the result of a session client operation. Zero is success.
// Codes generated locally by the session client without contacting the broker
// are negative; codes reported by the broker or transport are positive, so the
// two domains never overlap.
type ReasonCode int

// ReasonSuccess indicates the operation completed successfully.
const ReasonSuccess ReasonCode = 0

// Local reason codes.
const (
	// ReasonInitializationFailed is reported when the session client could
	// not be constructed (e.g. a malformed broker address).
	ReasonInitializationFailed ReasonCode = -(iota + 1)

	// ReasonNotInitialized is reported by Reconnect when no connection has
	// ever been established.
	ReasonNotInitialized

	// ReasonAlreadyConnected is reported by Connect and Reconnect when a
	// connection is established or being established.
	ReasonAlreadyConnected

	// ReasonNotConnected is reported by operations that require an
	// established connection.
	ReasonNotConnected

	// ReasonTimedOut is reported when an operation was not acknowledged
	// before its deadline.
	ReasonTimedOut

	// ReasonConnectionLost is reported for operations that were outstanding
	// when the connection went away.
	ReasonConnectionLost

	// ReasonInvalidArgument is reported when an operation is called with a
	// value that could never be sent (e.g. an invalid topic).
	ReasonInvalidArgument
)

// Protocol reason codes (MQTT v5 section 2.4) and transport failures.
const (
	ReasonUnspecifiedError                    ReasonCode = 0x80
	ReasonMalformedPacket                     ReasonCode = 0x81
	ReasonProtocolError                       ReasonCode = 0x82
	ReasonImplementationSpecificError         ReasonCode = 0x83
	ReasonUnsupportedProtocolVersion          ReasonCode = 0x84
	ReasonClientIdentifierNotValid            ReasonCode = 0x85
	ReasonBadUserNameOrPassword               ReasonCode = 0x86
	ReasonNotAuthorized                       ReasonCode = 0x87
	ReasonServerUnavailable                   ReasonCode = 0x88
	ReasonServerBusy                          ReasonCode = 0x89
	ReasonBanned                              ReasonCode = 0x8A
	ReasonServerShuttingDown                  ReasonCode = 0x8B
	ReasonBadAuthenticationMethod             ReasonCode = 0x8C
	ReasonKeepAliveTimeout                    ReasonCode = 0x8D
	ReasonSessionTakenOver                    ReasonCode = 0x8E
	ReasonTopicFilterInvalid                  ReasonCode = 0x8F
	ReasonTopicNameInvalid                    ReasonCode = 0x90
	ReasonPacketIdentifierInUse               ReasonCode = 0x91
	ReasonPacketIdentifierNotFound            ReasonCode = 0x92
	ReasonReceiveMaximumExceeded              ReasonCode = 0x93
	ReasonTopicAliasInvalid                   ReasonCode = 0x94
	ReasonPacketTooLarge                      ReasonCode = 0x95
	ReasonMessageRateTooHigh                  ReasonCode = 0x96
	ReasonQuotaExceeded                       ReasonCode = 0x97
	ReasonAdministrativeAction                ReasonCode = 0x98
	ReasonPayloadFormatInvalid                ReasonCode = 0x99
	ReasonRetainNotSupported                  ReasonCode = 0x9A
	ReasonQoSNotSupported                     ReasonCode = 0x9B
	ReasonUseAnotherServer                    ReasonCode = 0x9C
	ReasonServerMoved                         ReasonCode = 0x9D
	ReasonSharedSubscriptionsNotSupported     ReasonCode = 0x9E
	ReasonConnectionRateExceeded              ReasonCode = 0x9F
	ReasonMaximumConnectTime                  ReasonCode = 0xA0
	ReasonSubscriptionIdentifiersNotSupported ReasonCode = 0xA1
	ReasonWildcardSubscriptionsNotSupported   ReasonCode = 0xA2

	// ReasonTransportError is reported when the transport failed to carry
	// the operation (network failure, connection refused, ...).
	ReasonTransportError ReasonCode = 0x100
)

var reasonNames = map[ReasonCode]string{
	ReasonSuccess: "success",

	ReasonInitializationFailed: "initialization failed",
	ReasonNotInitialized:       "not initialized",
	ReasonAlreadyConnected:     "already connected",
	ReasonNotConnected:         "not connected",
	ReasonTimedOut:             "timed out",
	ReasonConnectionLost:       "connection lost",
	ReasonInvalidArgument:      "invalid argument",

	ReasonUnspecifiedError:                    "unspecified error",
	ReasonMalformedPacket:                     "malformed packet",
	ReasonProtocolError:                       "protocol error",
	ReasonImplementationSpecificError:         "implementation specific error",
	ReasonUnsupportedProtocolVersion:          "unsupported protocol version",
	ReasonClientIdentifierNotValid:            "client identifier not valid",
	ReasonBadUserNameOrPassword:               "bad user name or password",
	ReasonNotAuthorized:                       "not authorized",
	ReasonServerUnavailable:                   "server unavailable",
	ReasonServerBusy:                          "server busy",
	ReasonBanned:                              "banned",
	ReasonServerShuttingDown:                  "server shutting down",
	ReasonBadAuthenticationMethod:             "bad authentication method",
	ReasonKeepAliveTimeout:                    "keep alive timeout",
	ReasonSessionTakenOver:                    "session taken over",
	ReasonTopicFilterInvalid:                  "topic filter invalid",
	ReasonTopicNameInvalid:                    "topic name invalid",
	ReasonPacketIdentifierInUse:               "packet identifier in use",
	ReasonPacketIdentifierNotFound:            "packet identifier not found",
	ReasonReceiveMaximumExceeded:              "receive maximum exceeded",
	ReasonTopicAliasInvalid:                   "topic alias invalid",
	ReasonPacketTooLarge:                      "packet too large",
	ReasonMessageRateTooHigh:                  "message rate too high",
	ReasonQuotaExceeded:                       "quota exceeded",
	ReasonAdministrativeAction:                "administrative action",
	ReasonPayloadFormatInvalid:                "payload format invalid",
	ReasonRetainNotSupported:                  "retain not supported",
	ReasonQoSNotSupported:                     "QoS not supported",
	ReasonUseAnotherServer:                    "use another server",
	ReasonServerMoved:                         "server moved",
	ReasonSharedSubscriptionsNotSupported:     "shared subscriptions not supported",
	ReasonConnectionRateExceeded:              "connection rate exceeded",
	ReasonMaximumConnectTime:                  "maximum connect time",
	ReasonSubscriptionIdentifiersNotSupported: "subscription identifiers not supported",
	ReasonWildcardSubscriptionsNotSupported:   "wildcard subscriptions not supported",

	ReasonTransportError: "transport error",
}

// Succeeded reports whether the code indicates success.
func (c ReasonCode) Succeeded() bool {
	return c == ReasonSuccess
}

// IsLocal reports whether the code was generated by the session client itself
// rather than reported by the broker or transport.
func (c ReasonCode) IsLocal() bool {
	return c < 0
}

// IsProtocol reports whether the code is a failure reported by the broker or
// transport.
func (c ReasonCode) IsProtocol() bool {
	return c > 0
}

func (c ReasonCode) String() string {
	if name, ok := reasonNames[c]; ok {
		return name
	}
	if c.IsProtocol() {
		return fmt.Sprintf("reason code 0x%02X", int(c))
	}
	return fmt.Sprintf("local reason code %d", int(c))
}

// protocolReason maps an MQTT reason code byte into the protocol domain. Codes
// below 0x80 (granted QoS, "no matching subscribers", ...) indicate success.
func protocolReason(code byte) ReasonCode {
	if code < 0x80 {
		return ReasonSuccess
	}
	return ReasonCode(code)
}
