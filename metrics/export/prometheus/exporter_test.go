package prometheus

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	authcore "github.com/complyward/authcore"
	"github.com/complyward/authcore/metrics/export/internaldefs"
)

type fakeSource struct {
	snapshot authcore.MetricsSnapshot
	dropped  uint64
}

func (f *fakeSource) MetricsSnapshot() authcore.MetricsSnapshot { return f.snapshot }
func (f *fakeSource) AuditDropped() uint64                      { return f.dropped }

func fullSnapshot() authcore.MetricsSnapshot {
	counters := make(map[authcore.MetricID]uint64, len(internaldefs.CounterDefs))
	for _, def := range internaldefs.CounterDefs {
		counters[def.ID] = 0
	}
	counters[authcore.MetricLoginSuccess] = 42
	counters[authcore.MetricCacheDegraded] = 1
	return authcore.MetricsSnapshot{Counters: counters}
}

func TestRenderExposition(t *testing.T) {
	e := NewExporterFromSource(&fakeSource{snapshot: fullSnapshot(), dropped: 7})
	out := e.Render()

	for _, want := range []string{
		"# HELP authcore_login_success_total Successful login attempts.\n",
		"# TYPE authcore_login_success_total counter\n",
		"authcore_login_success_total 42\n",
		"authcore_cache_degraded_total 1\n",
		"authcore_audit_dropped_total 7\n",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}

	// Every defined counter appears, zero-valued ones included.
	for _, def := range internaldefs.CounterDefs {
		if !strings.Contains(out, def.Name+" ") {
			t.Fatalf("output missing counter %s", def.Name)
		}
	}
}

func TestRenderStableOrder(t *testing.T) {
	e := NewExporterFromSource(&fakeSource{snapshot: fullSnapshot()})
	out := e.Render()

	prev := -1
	for _, def := range internaldefs.CounterDefs {
		idx := strings.Index(out, "# HELP "+def.Name+" ")
		if idx < 0 {
			t.Fatalf("counter %s missing", def.Name)
		}
		if idx < prev {
			t.Fatalf("counter %s out of order", def.Name)
		}
		prev = idx
	}
}

func TestRenderEmptyWhenDisabled(t *testing.T) {
	// A disabled metrics system yields an empty snapshot; nothing is
	// rendered.
	e := NewExporterFromSource(&fakeSource{snapshot: authcore.MetricsSnapshot{Counters: map[authcore.MetricID]uint64{}}})
	if out := e.Render(); out != "" {
		t.Fatalf("expected empty output, got %q", out)
	}

	var nilExporter *Exporter
	if out := nilExporter.Render(); out != "" {
		t.Fatalf("nil exporter rendered %q", out)
	}
}

func TestHandlerServesMetrics(t *testing.T) {
	e := NewExporterFromSource(&fakeSource{snapshot: fullSnapshot()})

	rec := httptest.NewRecorder()
	e.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("content type = %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "authcore_login_success_total 42") {
		t.Fatalf("body missing counter:\n%s", rec.Body.String())
	}
}

func TestEscapeHelp(t *testing.T) {
	if got := escapeHelp("line1\nline2\\x"); got != "line1\\nline2\\\\x" {
		t.Fatalf("escapeHelp = %q", got)
	}
}
