package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordTransition(t *testing.T) {
	before := testutil.ToFloat64(transitionsTotal.WithLabelValues("activate", "illegal"))
	RecordTransition("activate", "illegal")
	RecordTransition("activate", "illegal")
	if got := testutil.ToFloat64(transitionsTotal.WithLabelValues("activate", "illegal")); got != before+2 {
		t.Errorf("transitions = %v, want %v", got, before+2)
	}
}

func TestExtensionStateChanged(t *testing.T) {
	active := func() float64 { return testutil.ToFloat64(extensionStates.WithLabelValues("active")) }
	base := active()

	ExtensionStateChanged("", "registered")
	ExtensionStateChanged("registered", "active")
	if got := active(); got != base+1 {
		t.Errorf("active gauge = %v, want %v", got, base+1)
	}
	ExtensionStateChanged("active", "")
	if got := active(); got != base {
		t.Errorf("active gauge after leaving = %v, want %v", got, base)
	}
}

func TestInstanceGauge(t *testing.T) {
	g := openInstances.WithLabelValues("test capability", "a")
	InstanceOpened("test capability", "a")
	InstanceOpened("test capability", "a")
	InstanceClosed("test capability", "a")
	if got := testutil.ToFloat64(g); got != 1 {
		t.Errorf("open instances = %v, want 1", got)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	RecordProbe("test capability", "a", "accepted")
	RecordResolution("test capability", "found", 3*time.Millisecond)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	for _, name := range []string{"backplane_candidate_probes_total", "backplane_resolutions_total", "backplane_resolution_duration_seconds"} {
		if !strings.Contains(string(body), name) {
			t.Errorf("metrics output lacks %s", name)
		}
	}
}
