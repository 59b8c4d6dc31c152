package metrics

import (
	"net/http/httptest"
	"testing"
)

func TestRegistryIncrementsAndExposes(t *testing.T) {
	r := New()
	r.AssociationOpened()
	r.PDUSent(0x01)
	r.DIMSEDispatched(0x0030)
	r.TimerExpired("ARTIM")
	r.ObserveDIMSELatency(0.25)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, req)
	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !containsAll(body, "dicomcore_association_opened_total", "dicomcore_pdu_sent_total", "dicomcore_dimse_dispatched_total") {
		t.Fatalf("expected metric names in exposition, got:\n%s", body)
	}
}

func containsAll(s string, subs ...string) bool {
	for _, sub := range subs {
		if !contains(s, sub) {
			return false
		}
	}
	return true
}

func contains(s, sub string) bool {
	return len(s) >= len(sub) && indexOf(s, sub) >= 0
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}
