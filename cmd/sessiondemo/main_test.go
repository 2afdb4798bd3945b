// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package main

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDemoClientID(t *testing.T) {
	id := demoClientID(true)
	require.Len(t, id, 23)
	require.Regexp(t, regexp.MustCompile(`^sessiondemo[0-9a-zA-Z]+$`), id)

	require.Greater(t, len(demoClientID(false)), 23)
}
