package kafka

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type refreshTrigger struct {
	Reason string `json:"reason"`
}

func TestEncodeProducesKeyAndJSON(t *testing.T) {
	msg, err := encode(Event{Key: "docs", Value: refreshTrigger{Reason: "manifest changed"}})
	require.NoError(t, err)
	assert.Equal(t, []byte("docs"), msg.Key)
	assert.JSONEq(t, `{"reason":"manifest changed"}`, string(msg.Value))
}

func TestEncodeRejectsUnmarshalable(t *testing.T) {
	_, err := encode(Event{Key: "x", Value: math.Inf(1)})
	assert.ErrorContains(t, err, "marshaling event value")
}

func TestDecodeJSON(t *testing.T) {
	got, err := DecodeJSON[refreshTrigger]([]byte(`{"reason":"cron"}`))
	require.NoError(t, err)
	assert.Equal(t, "cron", got.Reason)

	_, err = DecodeJSON[refreshTrigger]([]byte(`{`))
	assert.ErrorContains(t, err, "decoding kafka message")
}

func TestReplicaGroup(t *testing.T) {
	g := ReplicaGroup("docuflow-group", "refresh")
	assert.True(t, strings.HasPrefix(g, "docuflow-group-refresh-"))
	assert.Greater(t, len(g), len("docuflow-group-refresh-"))
	assert.Equal(t, g, ReplicaGroup("docuflow-group", "refresh"))
}
