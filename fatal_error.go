// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqttsession

// Reason codes after which retrying the connection cannot succeed without a
// change of configuration.
var fatalReasonCodes = map[ReasonCode]struct{}{
	ReasonInitializationFailed: {},
	ReasonNotInitialized:       {},
	ReasonInvalidArgument:      {},

	ReasonMalformedPacket:                     {},
	ReasonProtocolError:                       {},
	ReasonImplementationSpecificError:         {},
	ReasonUnsupportedProtocolVersion:          {},
	ReasonClientIdentifierNotValid:            {},
	ReasonBadUserNameOrPassword:               {},
	ReasonNotAuthorized:                       {},
	ReasonBanned:                              {},
	ReasonBadAuthenticationMethod:             {},
	ReasonSessionTakenOver:                    {},
	ReasonTopicFilterInvalid:                  {},
	ReasonTopicNameInvalid:                    {},
	ReasonTopicAliasInvalid:                   {},
	ReasonPacketTooLarge:                      {},
	ReasonPayloadFormatInvalid:                {},
	ReasonRetainNotSupported:                  {},
	ReasonQoSNotSupported:                     {},
	ReasonUseAnotherServer:                    {},
	ReasonServerMoved:                         {},
	ReasonSharedSubscriptionsNotSupported:     {},
	ReasonSubscriptionIdentifiersNotSupported: {},
	ReasonWildcardSubscriptionsNotSupported:   {},
}

// retryable reports whether a failed (re)connect may succeed if attempted
// again.
func retryable(code ReasonCode) bool {
	_, fatal := fatalReasonCodes[code]
	return !fatal && !code.Succeeded()
}
