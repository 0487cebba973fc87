package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCounterIdentity(t *testing.T) {
	c := NewCollector()

	a := c.Counter("requests_total", "Requests.", `kind="text"`)
	b := c.Counter("requests_total", "Requests.", `kind="text"`)
	other := c.Counter("requests_total", "Requests.", `kind="image"`)

	a.Inc()
	a.Inc()
	other.Inc()

	if a != b {
		t.Error("same name and labels must return the same counter")
	}
	if b.Value() != 2 {
		t.Errorf("value = %d, want 2", b.Value())
	}
	if other.Value() != 1 {
		t.Errorf("other value = %d, want 1", other.Value())
	}
}

func TestHandlerExpositionFormat(t *testing.T) {
	c := NewCollector()
	c.Counter("b_metric", "Second metric.", "").Inc()
	c.Counter("a_metric", "First metric.", `kind="text"`).Inc()
	c.Counter("a_metric", "First metric.", `kind="image"`).Inc()

	rec := httptest.NewRecorder()
	c.Handler()(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := rec.Body.String()
	if got := rec.Header().Get("Content-Type"); !strings.HasPrefix(got, "text/plain") {
		t.Errorf("content type = %q", got)
	}
	if !strings.Contains(body, "msgbridge_uptime_seconds") {
		t.Error("uptime gauge missing")
	}

	// One HELP/TYPE block per metric name, before its first sample.
	if strings.Count(body, "# HELP a_metric") != 1 {
		t.Errorf("a_metric HELP written %d times", strings.Count(body, "# HELP a_metric"))
	}
	aHelp := strings.Index(body, "# HELP a_metric")
	aText := strings.Index(body, `a_metric{kind="image"} 1`)
	bHelp := strings.Index(body, "# HELP b_metric")
	if aHelp == -1 || aText == -1 || bHelp == -1 {
		t.Fatalf("expected samples missing:\n%s", body)
	}
	if !(aHelp < aText && aText < bHelp) {
		t.Errorf("samples not grouped under their HELP blocks:\n%s", body)
	}
	if !strings.Contains(body, "b_metric 1") {
		t.Error("unlabeled counter must render without braces")
	}
}
