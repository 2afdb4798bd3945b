// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package internal

import (
	"math/rand"

	"github.com/Azure/mqttsession/internal/wallclock"
)

// ClientIDs must be between 1 and 23 UTF-8 encoded bytes in length and only
// contain alphanumeric characters:
// https://docs.oasis-open.org/mqtt/mqtt/v5.0/os/mqtt-v5.0-os.html#_Toc3901059
const maxClientIDLength = 23

var validClientIDCharacters = []byte(
	"0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ",
)

// RandomClientID generates a random valid client ID with the given prefix.
// The prefix is truncated if it leaves no room for random characters.
func RandomClientID(prefix string) string {
	seed := wallclock.Instance.Now().UnixNano()
	// #nosec G404
	r := rand.New(rand.NewSource(seed))

	if len(prefix) >= maxClientIDLength {
		prefix = prefix[:maxClientIDLength/2]
	}

	id := make([]byte, maxClientIDLength-len(prefix))
	for i := range id {
		id[i] = validClientIDCharacters[r.Intn(len(validClientIDCharacters))]
	}
	return prefix + string(id)
}
