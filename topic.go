// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqttsession

import (
	"errors"
	"strings"

	"github.com/Azure/mqttsession/internal"
)

const sharedPrefix = "$share/"

var (
	errEmptyTopic       = errors.New("topic is empty")
	errInvalidString    = errors.New("topic is not a valid MQTT string")
	errWildcardInName   = errors.New("topic name contains a wildcard")
	errInvalidWildcard  = errors.New("wildcard does not occupy a whole level")
	errMultiLevelNotEnd = errors.New("multi-level wildcard is not the last level")
	errInvalidShare     = errors.New("invalid shared subscription")
)

// ValidateTopicName checks that a topic can be published to.
func ValidateTopicName(topic string) error {
	if err := validateTopicString(topic); err != nil {
		return err
	}
	if strings.ContainsAny(topic, "+#") {
		return errWildcardInName
	}
	return nil
}

// ValidateTopicFilter checks that a topic filter can be subscribed to,
// including shared subscriptions of the form "$share/{group}/{filter}".
func ValidateTopicFilter(filter string) error {
	if err := validateTopicString(filter); err != nil {
		return err
	}

	if tf, ok := strings.CutPrefix(filter, sharedPrefix); ok {
		group, rest, found := strings.Cut(tf, "/")
		if !found || group == "" || rest == "" ||
			strings.ContainsAny(group, "+#") {
			return errInvalidShare
		}
		filter = rest
	}

	levels := strings.Split(filter, "/")
	for i, level := range levels {
		switch {
		case level == "#":
			if i != len(levels)-1 {
				return errMultiLevelNotEnd
			}
		case level == "+":
		case strings.ContainsAny(level, "+#"):
			return errInvalidWildcard
		}
	}
	return nil
}

func validateTopicString(topic string) error {
	if topic == "" {
		return errEmptyTopic
	}
	if !internal.ValidString(topic) {
		return errInvalidString
	}
	return nil
}

// IsTopicFilterMatch checks if a topic name matches a topic filter. Listeners
// receive every message on the session and can use this to route them.
func IsTopicFilterMatch(topicFilter, topicName string) bool {
	if ValidateTopicFilter(topicFilter) != nil {
		return false
	}

	// Handle shared subscriptions.
	if tf, ok := strings.CutPrefix(topicFilter, sharedPrefix); ok {
		_, topicFilter, _ = strings.Cut(tf, "/")
	}

	filters := strings.Split(topicFilter, "/")
	names := strings.Split(topicName, "/")

	// Wildcards at the first level don't match topics starting with "$".
	if strings.HasPrefix(topicName, "$") &&
		(filters[0] == "+" || filters[0] == "#") {
		return false
	}

	for i, filter := range filters {
		if filter == "#" {
			return true
		}
		if filter == "+" {
			// Single-level wildcard matches any single level.
			if i >= len(names) {
				return false
			}
			continue
		}
		if i >= len(names) || filter != names[i] {
			return false
		}
	}

	// Exact match is required if there are no wildcards left.
	return len(filters) == len(names)
}
