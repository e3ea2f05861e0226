package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedaction(t *testing.T) {
	log, logs := NewObserved()

	log.Info("tool dispatched",
		"tool", "check_allergen_compliance",
		"chef_id", "chef-1",
		"authorization", "Bearer abc",
		"payload", map[string]interface{}{
			"compliant":    true,
			"member_names": []interface{}{"Maya Okonkwo"},
		},
	)

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()

	assert.Equal(t, "check_allergen_compliance", fields["tool"])
	assert.Equal(t, "[REDACTED]", fields["authorization"])
	assert.Contains(t, fields["chef_id"], "hash:")
	assert.NotContains(t, fields["chef_id"], "chef-1")

	payload, ok := fields["payload"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, true, payload["compliant"])
	assert.Equal(t, "[REDACTED]", payload["member_names"])
}

func TestWithKeepsRedaction(t *testing.T) {
	log, logs := NewObserved()

	log.With("client_name", "Maya Okonkwo").Warn("lookup failed")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "[REDACTED]", logs.All()[0].ContextMap()["client_name"])
}
