package dynconfig

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRefresher_RefreshOnce(t *testing.T) {
	store := newFakeStorage()
	store.stale = []string{"tenant-a", "tenant-b"}

	var got []string
	r := NewRefresher(store, time.Minute, func(_ context.Context, tenants []string) {
		got = append(got, tenants...)
	})

	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	r.lastRefresh = t0
	r.now = func() time.Time { return t0.Add(time.Minute) }

	tenants, err := r.RefreshOnce(context.Background())
	if err != nil {
		t.Fatalf("RefreshOnce() error: %v", err)
	}
	if len(tenants) != 2 || len(got) != 2 {
		t.Errorf("tenants = %v, callback got %v", tenants, got)
	}
	if !store.sinceIn[0].Equal(t0) {
		t.Errorf("first poll since = %v, want %v", store.sinceIn[0], t0)
	}
	if !r.lastRefresh.Equal(t0.Add(time.Minute)) {
		t.Errorf("watermark = %v, want advanced", r.lastRefresh)
	}
}

func TestRefresher_FailureKeepsWatermark(t *testing.T) {
	store := newFakeStorage()
	store.err = errors.New("db down")

	r := NewRefresher(store, time.Minute, nil)
	before := r.lastRefresh

	if _, err := r.RefreshOnce(context.Background()); err == nil {
		t.Fatal("RefreshOnce() should fail")
	}
	if !r.lastRefresh.Equal(before) {
		t.Error("watermark must not advance on failure")
	}
}

func TestRefresher_RunStopsOnCancel(t *testing.T) {
	store := newFakeStorage()
	r := NewRefresher(store, time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() = %v, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run() did not stop after cancel")
	}
}
