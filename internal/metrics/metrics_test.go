package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestCollectorRegistersAndServes(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.OnlineSessions.Set(3)
	c.Logins.WithLabelValues("success").Inc()
	c.Logins.WithLabelValues("invalid_credentials").Add(2)
	c.PacketsDispatched.WithLabelValues("ping", "ok").Inc()
	c.ReapedSessions.Inc()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	c.Handler().ServeHTTP(rec, req)

	body := rec.Body.String()
	for _, want := range []string{
		"bancho_online_sessions 3",
		`bancho_logins_total{result="success"} 1`,
		`bancho_logins_total{result="invalid_credentials"} 2`,
		`bancho_packets_dispatched_total{kind="ping",result="ok"} 1`,
		"bancho_reaped_sessions_total 1",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("exposition missing %q", want)
		}
	}
}

func TestNewCollectorNilRegistry(t *testing.T) {
	t.Parallel()

	c := NewCollector(nil)
	c.OnlineSessions.Set(1)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "bancho_online_sessions 1") {
		t.Error("private registry should serve collector metrics")
	}
}
