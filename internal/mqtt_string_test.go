// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package internal_test

import (
	"strings"
	"testing"

	"github.com/Azure/mqttsession/internal"
	"github.com/stretchr/testify/require"
)

func TestSanitizeString(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "Empty string",
			input:    "",
			expected: "",
		},
		{
			name:     "Valid topic",
			input:    "sensors/kitchen/temperature",
			expected: "sensors/kitchen/temperature",
		},
		{
			name:     "Topic with newline",
			input:    "sensors/kitchen\n/temperature\n",
			expected: "sensors/kitchen/temperature",
		},
		{
			name:     "Topic with control characters",
			input:    "sensors\x01/kitchen\x0F/temperature",
			expected: "sensors/kitchen/temperature",
		},
		{
			name:     "Topic with non-characters",
			input:    "sensors\uFDD0/kitchen\uFDEF/temperature",
			expected: "sensors/kitchen/temperature",
		},
		{
			name:     "Topic with other non-characters",
			input:    "sensors\uFFFE\uFFFF/kitchen",
			expected: "sensors/kitchen",
		},
		{
			name:     "Only invalid characters",
			input:    "\x01\x7F\uFDD0\uFFFE\uFFFF",
			expected: "",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			require.Equal(t, test.expected, internal.SanitizeString(test.input))
		})
	}
}

func TestValidString(t *testing.T) {
	require.True(t, internal.ValidString("TopicA"))
	require.True(t, internal.ValidString("émetteur/données"))
	require.False(t, internal.ValidString("Topic\x00A"))
	require.False(t, internal.ValidString("Topic\uFFFF"))
	require.False(t, internal.ValidString(string([]byte{0xff, 0xfe})))
	require.False(t, internal.ValidString(strings.Repeat("a", 65536)))
}
