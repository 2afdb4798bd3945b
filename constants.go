// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqttsession

import "math"

const (
	// Session expiry requested for persistent sessions; the broker may lower
	// it.
	maxSessionExpiry uint32 = math.MaxUint32

	// Events a connection may buffer before its goroutines block.
	eventBufferSize = 64

	disconnectNormalDisconnection byte = 0x00
)

// Packet names used when logging.
const (
	connectPacket     = "CONNECT"
	subscribePacket   = "SUBSCRIBE"
	unsubscribePacket = "UNSUBSCRIBE"
	publishPacket     = "PUBLISH"
	disconnectPacket  = "DISCONNECT"
	receivedPacket    = "PUBLISH received"
)
