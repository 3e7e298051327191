package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, want := range []string{"collect", "status", "serve", "import", "validate", "dlq", "prune"} {
		assert.True(t, names[want], "command %s should be registered", want)
	}
}

func TestCollectRequiresQuery(t *testing.T) {
	assert.Error(t, collectCmd.Args(collectCmd, nil))
	assert.NoError(t, collectCmd.Args(collectCmd, []string{"hulk 181"}))
}
