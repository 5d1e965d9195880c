package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestNilRegistryMethodsAreNoops(t *testing.T) {
	var r *Registry
	r.CallStarted()
	r.CallFinished("GetVersion", time.Millisecond)
	r.BytesSent(10)
	r.BytesReceived(10)
	r.Reconnected()
	r.AuthFailed("ntlm")
	r.StreamOpened()
	r.StreamClosed(128)
	r.EventQueued()
	r.EventDropped()
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	if err := g.Write(&m); err != nil {
		t.Fatalf("Write: %v", err)
	}
	return m.GetGauge().GetValue()
}

func TestCallsInFlightTracksStartAndFinish(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.CallStarted()
	r.CallStarted()
	if got := gaugeValue(t, r.callsInFlight); got != 2 {
		t.Fatalf("calls in flight = %v, want 2", got)
	}

	r.CallFinished("GetVersion", 5*time.Millisecond)
	if got := gaugeValue(t, r.callsInFlight); got != 1 {
		t.Fatalf("calls in flight = %v, want 1", got)
	}
}

func TestStreamsOpenTracksOpenAndClose(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.StreamOpened()
	if got := gaugeValue(t, r.streamsOpen); got != 1 {
		t.Fatalf("streams open = %v, want 1", got)
	}
	r.StreamClosed(2048)
	if got := gaugeValue(t, r.streamsOpen); got != 0 {
		t.Fatalf("streams open = %v, want 0", got)
	}
}
