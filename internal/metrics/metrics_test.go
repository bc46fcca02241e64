package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// value gathers reg and returns the sample of name whose labels include want.
func value(t *testing.T, reg *prometheus.Registry, name string, want map[string]string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
	next:
		for _, m := range mf.GetMetric() {
			got := map[string]string{}
			for _, lp := range m.GetLabel() {
				got[lp.GetName()] = lp.GetValue()
			}
			for k, v := range want {
				if got[k] != v {
					continue next
				}
			}
			switch {
			case m.GetCounter() != nil:
				return m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				return m.GetGauge().GetValue()
			}
		}
	}
	t.Fatalf("metric %s%v not found", name, want)
	return 0
}

func TestCollectorRecords(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.Enqueued(2)
	c.Enqueued(2)
	c.Delivered(150 * time.Millisecond)
	c.Retried("transient")
	c.Dropped("rejected")
	c.Depth(7)
	c.StoreError("exists")
	c.Detected("github:x/y", 3)

	if got := value(t, reg, "announcebot_posts_enqueued_total", map[string]string{"priority": "2"}); got != 2 {
		t.Fatalf("enqueued{priority=2} = %v", got)
	}
	if got := value(t, reg, "announcebot_posts_delivered_total", nil); got != 1 {
		t.Fatalf("posted = %v", got)
	}
	if got := value(t, reg, "announcebot_queue_depth", nil); got != 7 {
		t.Fatalf("queue depth = %v", got)
	}
	if got := value(t, reg, "announcebot_store_errors_total", map[string]string{"op": "exists"}); got != 1 {
		t.Fatalf("store errors = %v", got)
	}
	if got := value(t, reg, "announcebot_items_detected_total", map[string]string{"source": "github:x/y"}); got != 3 {
		t.Fatalf("detected = %v", got)
	}
}

func TestHandlerServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.Dropped("max_attempts")

	w := httptest.NewRecorder()
	Handler(reg).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `announcebot_posts_dropped_total{reason="max_attempts"} 1`) {
		t.Fatalf("metrics body missing dropped counter:\n%s", body)
	}
}
