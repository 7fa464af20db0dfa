package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestActiveSessionsGaugeTracksLifecycle(t *testing.T) {
	m := New()

	m.IncrementSessionsCreated()
	m.IncrementSessionsCreated()
	m.IncrementSessionsCreated()
	assert.Equal(t, float64(3), testutil.ToFloat64(m.ActiveSessions))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.SessionsCreated))

	m.IncrementSessionsEvicted(2)
	assert.Equal(t, float64(2), testutil.ToFloat64(m.SessionsEvicted))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ActiveSessions))

	m.DecrementActiveSessions(1)
	assert.Equal(t, float64(0), testutil.ToFloat64(m.ActiveSessions))
}
