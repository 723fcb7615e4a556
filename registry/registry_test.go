package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := New(nil, nil)
	require.NoError(t, err)
	return r
}

func TestToCanonical_AliasResolution(t *testing.T) {
	r := newTestRegistry(t)

	assert.Equal(t, "log_event", r.ToCanonical("autoLog"))
	assert.Equal(t, "retrieve_logs", r.ToCanonical("getLogs"))
	assert.Equal(t, "trust_check_in", r.ToCanonical("trust-checkin"))
}

func TestToCanonical_CanonicalPassThrough(t *testing.T) {
	r := newTestRegistry(t)

	for _, id := range r.AllCanonical() {
		assert.Equal(t, id, r.ToCanonical(id))
	}
}

func TestToCanonical_UnknownPassThrough(t *testing.T) {
	r := newTestRegistry(t)

	assert.Equal(t, "never-heard-of-it", r.ToCanonical("never-heard-of-it"))
	assert.False(t, r.IsCanonical("never-heard-of-it"))
}

func TestToCanonical_Idempotent(t *testing.T) {
	r := newTestRegistry(t)

	inputs := []string{"autoLog", "log_event", "unknown-op", "getLogs"}
	for _, in := range inputs {
		once := r.ToCanonical(in)
		assert.Equal(t, once, r.ToCanonical(once), "resolution must be idempotent for %q", in)
	}
}

func TestNew_MergesConfiguredEntries(t *testing.T) {
	r, err := New([]string{"dream_capture"}, map[string]string{"dreamCapture": "dream_capture"})
	require.NoError(t, err)

	assert.True(t, r.IsCanonical("dream_capture"))
	assert.Equal(t, "dream_capture", r.ToCanonical("dreamCapture"))
	assert.Contains(t, r.AllAliases(), "dreamCapture")
}

func TestNew_RejectsAmbiguousAlias(t *testing.T) {
	// "log_event" is canonical; an alias entry pointing it at a different
	// operation is a configuration error.
	_, err := New(nil, map[string]string{"log_event": "session_init"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "both a canonical id and an alias")
}

func TestNew_RejectsDanglingAlias(t *testing.T) {
	_, err := New(nil, map[string]string{"mysteryOp": "does_not_exist"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown canonical id")
}

func TestNew_SelfAliasAllowed(t *testing.T) {
	r, err := New(nil, map[string]string{"log_event": "log_event"})
	require.NoError(t, err)
	assert.Equal(t, "log_event", r.ToCanonical("log_event"))
}
