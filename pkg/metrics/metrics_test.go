package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestCounter(t *testing.T) {
	r := New()
	c := r.Counter("curator_test_total", "A test counter")
	c.Inc()
	c.Inc()
	c.Add(5)
	if c.Value() != 7 {
		t.Fatalf("expected 7, got %d", c.Value())
	}
	if r.Counter("curator_test_total", "") != c {
		t.Fatal("expected same counter instance")
	}
}

func TestGauge(t *testing.T) {
	g := New().Gauge("curator_cache_items", "")
	g.Set(42)
	g.Inc()
	g.Inc()
	g.Dec()
	if g.Value() != 43 {
		t.Fatalf("expected 43, got %d", g.Value())
	}
}

func TestHistogramBuckets(t *testing.T) {
	h := New().Histogram("load_seconds", "", []float64{1.0, 0.1, 0.5})
	for _, v := range []float64{0.05, 0.1, 0.3, 0.8, 2.0} {
		h.Observe(v)
	}
	want := []uint64{2, 1, 1}
	for i, c := range h.counts {
		if c != want[i] {
			t.Fatalf("bucket %g: got %d, want %d", h.bounds[i], c, want[i])
		}
	}
	if h.Count() != 5 {
		t.Fatalf("count = %d", h.Count())
	}
}

func TestHistogramSince(t *testing.T) {
	h := New().Histogram("latency", "", nil)
	h.Since(time.Now().Add(-100 * time.Millisecond))
	if h.Count() != 1 || h.sum < 0.1 {
		t.Fatalf("unexpected histogram state count=%d sum=%g", h.Count(), h.sum)
	}
}

func TestKindMismatchPanics(t *testing.T) {
	r := New()
	r.Counter("dual", "")
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for a counter reused as a gauge")
		}
	}()
	r.Gauge("dual", "")
}

func TestWithLabels(t *testing.T) {
	tests := []struct {
		name string
		kvs  []string
		want string
	}{
		{"plain", nil, "plain"},
		{"odd", []string{"k"}, "odd"},
		{"feed_total", []string{"source", "bol", "status", "ok"}, `feed_total{source="bol",status="ok"}`},
		{"escaped", []string{"v", `a"b\c`}, `escaped{v="a\"b\\c"}`},
	}
	for _, tt := range tests {
		if got := WithLabels(tt.name, tt.kvs...); got != tt.want {
			t.Errorf("WithLabels(%q, %v) = %q, want %q", tt.name, tt.kvs, got, tt.want)
		}
	}
}

func TestRender(t *testing.T) {
	r := New()
	r.Counter(WithLabels("requests_total", "method", "POST"), "Total requests").Add(3)
	r.Counter(WithLabels("requests_total", "method", "GET"), "").Add(7)
	r.Gauge("active_connections", "Active conns").Set(5)
	h := r.Histogram(WithLabels("request_duration_seconds", "route", "/api"), "Request latency", []float64{0.1, 0.5})
	h.Observe(0.05)
	h.Observe(0.3)

	out := r.Render()
	for _, want := range []string{
		"# HELP requests_total Total requests\n# TYPE requests_total counter\n" +
			`requests_total{method="GET"} 7` + "\n" + `requests_total{method="POST"} 3`,
		"# TYPE active_connections gauge\nactive_connections 5",
		`request_duration_seconds_bucket{le="0.1",route="/api"} 1`,
		`request_duration_seconds_bucket{le="0.5",route="/api"} 2`,
		`request_duration_seconds_bucket{le="+Inf",route="/api"} 2`,
		`request_duration_seconds_sum{route="/api"} 0.35`,
		`request_duration_seconds_count{route="/api"} 2`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
	if strings.Index(out, "requests_total") > strings.Index(out, "active_connections") {
		t.Error("families should render in registration order")
	}
}

func TestRenderUnlabelledHistogram(t *testing.T) {
	r := New()
	r.Histogram("plain_seconds", "", []float64{1}).Observe(0.5)
	out := r.Render()
	if !strings.Contains(out, `plain_seconds_bucket{le="1"} 1`) || !strings.Contains(out, "plain_seconds_count 1") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestConcurrentUse(t *testing.T) {
	r := New()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Counter(WithLabels("hits_total", "source", "amazon"), "").Inc()
			_ = r.Render()
		}()
	}
	wg.Wait()
	if v := r.Counter(WithLabels("hits_total", "source", "amazon"), "").Value(); v != 16 {
		t.Fatalf("expected 16, got %d", v)
	}
}

func TestHandler(t *testing.T) {
	r := New()
	r.Counter("test_total", "test").Inc()

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.Contains(ct, "text/plain") {
		t.Fatalf("unexpected content type: %s", ct)
	}
	if !strings.Contains(rec.Body.String(), "test_total 1") {
		t.Error("missing metric in handler output")
	}
}
