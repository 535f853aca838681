package health

import (
	"context"
	"errors"
	"testing"
)

// --- Mocks ---

type mockSnapshotPinger struct {
	err error
}

func (m *mockSnapshotPinger) Ping(_ context.Context) error { return m.err }

type mockExtractorChecker struct {
	err error
}

func (m *mockExtractorChecker) HealthCheck(_ context.Context) error { return m.err }

// --- Tests ---

func TestCheck_AllHealthy(t *testing.T) {
	svc := New(&mockSnapshotPinger{}, &mockExtractorChecker{})
	r := svc.Check(context.Background())

	if r.Status != Healthy {
		t.Errorf("expected %q, got %q", Healthy, r.Status)
	}
	if r.Checks["snapshot"] != CheckOK {
		t.Errorf("expected snapshot %q, got %q", CheckOK, r.Checks["snapshot"])
	}
	if r.Checks["extractor"] != CheckOK {
		t.Errorf("expected extractor %q, got %q", CheckOK, r.Checks["extractor"])
	}
}

func TestCheck_SnapshotError(t *testing.T) {
	svc := New(&mockSnapshotPinger{err: errors.New("permission denied")}, &mockExtractorChecker{})
	r := svc.Check(context.Background())

	if r.Status != Degraded {
		t.Errorf("expected %q, got %q", Degraded, r.Status)
	}
	if r.Checks["snapshot"] != CheckError {
		t.Errorf("expected snapshot %q, got %q", CheckError, r.Checks["snapshot"])
	}
	if r.Checks["extractor"] != CheckOK {
		t.Errorf("expected extractor %q, got %q", CheckOK, r.Checks["extractor"])
	}
}

func TestCheck_ExtractorError(t *testing.T) {
	svc := New(&mockSnapshotPinger{}, &mockExtractorChecker{err: errors.New("timeout")})
	r := svc.Check(context.Background())

	if r.Status != Degraded {
		t.Errorf("expected %q, got %q", Degraded, r.Status)
	}
	if r.Checks["snapshot"] != CheckOK {
		t.Errorf("expected snapshot %q, got %q", CheckOK, r.Checks["snapshot"])
	}
	if r.Checks["extractor"] != CheckError {
		t.Errorf("expected extractor %q, got %q", CheckError, r.Checks["extractor"])
	}
}

func TestCheck_BothFail(t *testing.T) {
	svc := New(
		&mockSnapshotPinger{err: errors.New("snapshot down")},
		&mockExtractorChecker{err: errors.New("extractor down")},
	)
	r := svc.Check(context.Background())

	if r.Status != Degraded {
		t.Errorf("expected %q, got %q", Degraded, r.Status)
	}
	if r.Checks["snapshot"] != CheckError {
		t.Error("expected snapshot error")
	}
	if r.Checks["extractor"] != CheckError {
		t.Error("expected extractor error")
	}
}

func TestCheck_NoExtractor(t *testing.T) {
	svc := New(&mockSnapshotPinger{}, nil)
	r := svc.Check(context.Background())

	if r.Status != Healthy {
		t.Errorf("expected %q, got %q", Healthy, r.Status)
	}
	if r.Checks["snapshot"] != CheckOK {
		t.Errorf("expected snapshot %q, got %q", CheckOK, r.Checks["snapshot"])
	}
	if _, ok := r.Checks["extractor"]; ok {
		t.Error("extractor check should be absent when extractor is nil")
	}
}

func TestCheck_NoExtractor_SnapshotError(t *testing.T) {
	svc := New(&mockSnapshotPinger{err: errors.New("fail")}, nil)
	r := svc.Check(context.Background())

	if r.Status != Degraded {
		t.Errorf("expected %q, got %q", Degraded, r.Status)
	}
	if r.Checks["snapshot"] != CheckError {
		t.Error("expected snapshot error")
	}
	if _, ok := r.Checks["extractor"]; ok {
		t.Error("extractor check should be absent when extractor is nil")
	}
}
