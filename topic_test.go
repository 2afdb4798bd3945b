// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqttsession_test

import (
	"testing"

	"github.com/Azure/mqttsession"
	"github.com/stretchr/testify/require"
)

func TestTopicFilterMatch(t *testing.T) {
	tests := []struct {
		filter   string
		topic    string
		expected bool
	}{
		{"$share/groups/color/+/white", "color/pink/white", true},
		{"$share/groups", "color/pink/white", false},
		{"color/+/white", "color/pink/white", true},
		{"color/+/white", "color/blue/white", true},
		{"color/+/white", "color/pink/white/shade", false},
		{"color/#", "color", true},
		{"color/#", "color/pink", true},
		{"color/#", "color/pink/white", true},
		{"color/pink", "color/pink", true},
		{"color/pink", "color/blue", false},
		{"color/+/white/#", "color/pink/white", true},
		{"color/+/white/#", "color/blue/white/shade", true},
		{"color/+/white/#", "color/pink/white/shade/details", true},
		{"color/+/white/#", "color/blue/white", true},
		{"color/#/white", "color/pink/white", false}, // Invalid filter
		{"#", "$SYS/uptime", false},
		{"$SYS/#", "$SYS/uptime", true},
	}

	for _, test := range tests {
		isMatched := mqttsession.IsTopicFilterMatch(test.filter, test.topic)
		require.Equal(
			t,
			test.expected,
			isMatched,
			"filter %q, topic %q",
			test.filter,
			test.topic,
		)
	}
}

func TestValidateTopicFilter(t *testing.T) {
	for _, filter := range []string{
		"TopicA",
		"a/b/c",
		"a/+/c",
		"a/#",
		"#",
		"+",
		"$share/group/a/+",
	} {
		require.NoError(t, mqttsession.ValidateTopicFilter(filter), filter)
	}

	for _, filter := range []string{
		"",
		"a/#/c",
		"a/b+/c",
		"a/b#",
		"$share/group",
		"$share//a",
		"a/\x00/b",
	} {
		require.Error(t, mqttsession.ValidateTopicFilter(filter), filter)
	}
}

func TestValidateTopicName(t *testing.T) {
	require.NoError(t, mqttsession.ValidateTopicName("TopicA"))
	require.NoError(t, mqttsession.ValidateTopicName("a/b/c"))

	require.Error(t, mqttsession.ValidateTopicName(""))
	require.Error(t, mqttsession.ValidateTopicName("a/+/c"))
	require.Error(t, mqttsession.ValidateTopicName("a/#"))
}
