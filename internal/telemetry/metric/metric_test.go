package metric

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/yndnr/keymesh-go/internal/core/service"
)

func TestRegistryCounters(t *testing.T) {
	r := NewRegistry()

	r.ActivationsTotal.WithLabelValues("WEEK_7D", ResultOK).Inc()
	r.ActivationsTotal.WithLabelValues("WEEK_7D", ResultRejected).Inc()
	r.ActivationsTotal.WithLabelValues("WEEK_7D", ResultOK).Inc()

	got := testutil.ToFloat64(r.ActivationsTotal.WithLabelValues("WEEK_7D", ResultOK))
	if got != 2 {
		t.Errorf("activations ok = %v, want 2", got)
	}

	r.VerificationsTotal.WithLabelValues(ResultValid).Inc()
	if got := testutil.ToFloat64(r.VerificationsTotal.WithLabelValues(ResultValid)); got != 1 {
		t.Errorf("verifications valid = %v, want 1", got)
	}
}

func TestMetricsHandler(t *testing.T) {
	r := NewRegistry()
	r.CodesIssuedTotal.WithLabelValues("LIFETIME").Add(5)

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(body), "keymesh_codes_issued_total") {
		t.Errorf("exposition missing issuance counter:\n%s", body)
	}
}

type staticStats struct {
	stats service.DeviceStats
}

func (s staticStats) DeviceStats(context.Context) (service.DeviceStats, error) {
	return s.stats, nil
}

func TestDeviceCollector(t *testing.T) {
	r := NewRegistry()
	collector := NewDeviceCollector(staticStats{stats: service.DeviceStats{Active: 2, Total: 7}})
	r.Prometheus().MustRegister(collector)

	expected := strings.NewReader(`
# HELP keymesh_devices_active Device bindings currently marked active
# TYPE keymesh_devices_active gauge
keymesh_devices_active 2
# HELP keymesh_devices_total Device bindings ever created
# TYPE keymesh_devices_total gauge
keymesh_devices_total 7
`)
	if err := testutil.CollectAndCompare(collector, expected); err != nil {
		t.Error(err)
	}
}
