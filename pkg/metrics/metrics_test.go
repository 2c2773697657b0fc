package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Counters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.IncRegistration("individual")
	m.IncRegistration("individual")
	m.IncDenial("NO_SEAT_AVAILABLE")
	m.ObserveJob("send_slot_reminder", time.Now(), true)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Registrations.WithLabelValues("individual")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Denials.WithLabelValues("NO_SEAT_AVAILABLE")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.JobRuns.WithLabelValues("send_slot_reminder", "true")))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.IncRegistration("group")
		m.IncDenial("SLOT_PAST")
		m.IncCancellation("system")
		m.IncNotification("IMMERSION_CONFIRM", "sent")
		m.ObserveRegister(time.Now())
		m.ObserveJob("annual_purge", time.Now(), false)
	})
}
