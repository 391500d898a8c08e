package diagnostics

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/sharedcode/vtm"
	"github.com/sharedcode/vtm/engine"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	path := filepath.Join(t.TempDir(), "diag.vtm")
	opts := vtm.NewSegmentOptions().SegmentSize(8192)
	e, err := engine.CreateNew(path, opts, nil)
	if err != nil {
		t.Fatalf("engine.CreateNew: %v", err)
	}
	t.Cleanup(func() { e.Close() })
	return New(e.Transactions, e.Heap)
}

func TestHandleHealthzReportsSegmentCount(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body=%s", w.Code, http.StatusOK, w.Body.String())
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("status field = %v, want ok", body["status"])
	}
	if _, ok := body["segment_count"]; !ok {
		t.Fatal("response missing segment_count")
	}
}

func TestHandleIntegrityReportsHealthy(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/integrity", nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body=%s", w.Code, http.StatusOK, w.Body.String())
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if healthy, ok := body["healthy"].(bool); !ok || !healthy {
		t.Fatalf("healthy = %v, want true", body["healthy"])
	}
}

func TestHandleIntegrityWithoutAllocatorReturns404(t *testing.T) {
	path := filepath.Join(t.TempDir(), "diag-no-alloc.vtm")
	opts := vtm.NewSegmentOptions().SegmentSize(8192)
	e, err := engine.CreateNew(path, opts, nil)
	if err != nil {
		t.Fatalf("engine.CreateNew: %v", err)
	}
	defer e.Close()

	s := New(e.Transactions, nil)
	req := httptest.NewRequest(http.MethodGet, "/integrity", nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestHandleStatsReportsLockAndSegmentInfo(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body=%s", w.Code, http.StatusOK, w.Body.String())
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if _, ok := body["lock_count"]; !ok {
		t.Fatal("response missing lock_count")
	}
	if _, ok := body["available_per_segment"]; !ok {
		t.Fatal("response missing available_per_segment")
	}
}

func TestHandleStatsReflectsActiveLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "diag-lock.vtm")
	opts := vtm.NewSegmentOptions().SegmentSize(8192)
	e, err := engine.CreateNew(path, opts, nil)
	if err != nil {
		t.Fatalf("engine.CreateNew: %v", err)
	}
	defer e.Close()
	s := New(e.Transactions, e.Heap)

	txn := e.Transactions.BeginTransaction()
	defer txn.Release()
	if _, err := txn.WritableBlock(vtm.FarAddress{Segment: 0, Offset: 4000}, 8, 0); err != nil {
		t.Fatalf("WritableBlock: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	count, ok := body["lock_count"].(float64)
	if !ok || count < 1 {
		t.Fatalf("lock_count = %v, want >= 1 while a transaction holds a lock", body["lock_count"])
	}

	if err := txn.Rollback(context.Background()); err != nil {
		t.Fatalf("Rollback: %v", err)
	}
}
