package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsRegistered(t *testing.T) {
	// promauto registers automatically, so we just verify they exist
	// by writing a value and collecting it.

	PacketsReceived.WithLabelValues("DHCPOFFER").Inc()
	PacketsSent.WithLabelValues("DHCPDISCOVER").Inc()
	PacketsDiscarded.WithLabelValues("xid").Inc()
	PacketErrors.WithLabelValues("send").Inc()
	Exchanges.WithLabelValues("bound").Inc()
	Attempts.Inc()
	ExchangeDuration.WithLabelValues("bound").Observe(0.2)
	OffersSeen.WithLabelValues("192.168.1.1").Inc()
	LeaseSeconds.Set(3600)
	LeaseBoundTime.SetToCurrentTime()
	HookExecutions.WithLabelValues("script", "success").Inc()
	HookDuration.WithLabelValues("script").Observe(0.05)
	ClientInfo.WithLabelValues("dev").Set(1)

	if got := testutil.ToFloat64(LeaseSeconds); got != 3600 {
		t.Errorf("LeaseSeconds = %v, want 3600", got)
	}
	if got := testutil.ToFloat64(Attempts); got != 1 {
		t.Errorf("Attempts = %v, want 1", got)
	}
	if got := testutil.ToFloat64(PacketsDiscarded.WithLabelValues("xid")); got != 1 {
		t.Errorf("PacketsDiscarded{xid} = %v, want 1", got)
	}
}

func TestMetricsNamespace(t *testing.T) {
	mfs, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}

	for _, mf := range mfs {
		name := mf.GetName()
		// Skip standard go_* and process_* metrics
		if strings.HasPrefix(name, "go_") ||
			strings.HasPrefix(name, "process_") ||
			strings.HasPrefix(name, "promhttp_") {
			continue
		}
		if !strings.HasPrefix(name, "athena_dhclient_") {
			t.Errorf("metric %q does not have athena_dhclient_ prefix", name)
		}
	}
}

func TestWriteTextfile(t *testing.T) {
	Exchanges.WithLabelValues("timeout").Inc()

	path := filepath.Join(t.TempDir(), "dhclient.prom")
	if err := WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `athena_dhclient_exchanges_total{outcome="timeout"}`) {
		t.Errorf("textfile missing exchanges_total sample:\n%s", data)
	}
}

func TestWriteTextfileBadPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "dir", "dhclient.prom")
	if err := WriteTextfile(path); err == nil {
		t.Error("expected error for missing directory")
	}
}
