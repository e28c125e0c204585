package dispatch

import (
	"errors"
	"io"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pion/transport/v3/test"

	"github.com/sunnyswag/RTCStartupDemo/internal/callerr"
)

func newTestDispatcher() *Dispatcher {
	return New(Options{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
}

func TestSameKeyRunsInOrder(t *testing.T) {
	defer test.CheckRoutines(t)()

	d := newTestDispatcher()
	var mu sync.Mutex
	var got []int
	var running atomic.Int32

	for i := range 200 {
		if err := d.Submit("bob", func() {
			if running.Add(1) != 1 {
				t.Errorf("event %d ran concurrently with another bob event", i)
			}
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
			running.Add(-1)
		}); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}
	d.Close()

	if len(got) != 200 {
		t.Fatalf("ran %d events, want 200", len(got))
	}
	if !slices.IsSorted(got) {
		t.Fatalf("events ran out of order: %v", got)
	}
}

func TestDifferentKeysRunInParallel(t *testing.T) {
	defer test.CheckRoutines(t)()

	d := newTestDispatcher()
	release := make(chan struct{})
	entered := make(chan string, 2)

	for _, key := range []string{"alice", "bob"} {
		d.Submit(key, func() {
			entered <- key
			<-release
		})
	}

	for range 2 {
		select {
		case <-entered:
		case <-time.After(5 * time.Second):
			t.Fatal("keys did not run concurrently")
		}
	}
	close(release)
	d.Close()
}

func TestBlockedKeyDoesNotStallOthers(t *testing.T) {
	defer test.CheckRoutines(t)()

	d := newTestDispatcher()
	release := make(chan struct{})
	d.Submit("slow", func() { <-release })

	if err := d.Sync("fast"); err != nil {
		t.Fatalf("Sync(fast): %v", err)
	}
	close(release)
	d.Close()
}

func TestSyncWaitsForEarlierEvents(t *testing.T) {
	defer test.CheckRoutines(t)()

	d := newTestDispatcher()
	var ran atomic.Bool
	d.Submit("bob", func() {
		time.Sleep(20 * time.Millisecond)
		ran.Store(true)
	})
	if err := d.Sync("bob"); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if !ran.Load() {
		t.Fatal("Sync returned before the earlier event ran")
	}
	d.Close()
}

func TestPanicDoesNotKillQueue(t *testing.T) {
	defer test.CheckRoutines(t)()

	d := newTestDispatcher()
	var after atomic.Bool
	d.Submit("bob", func() { panic("boom") })
	d.Submit("bob", func() { after.Store(true) })
	d.Close()

	if !after.Load() {
		t.Fatal("event after a panic did not run")
	}
}

func TestSubmitAfterClose(t *testing.T) {
	d := newTestDispatcher()
	d.Close()

	err := d.Submit("bob", func() { t.Error("event ran after Close") })
	if !errors.Is(err, callerr.ErrClosed) {
		t.Fatalf("Submit after Close = %v, want ErrClosed", err)
	}
	if err := d.Sync("bob"); !errors.Is(err, callerr.ErrClosed) {
		t.Fatalf("Sync after Close = %v, want ErrClosed", err)
	}
}

func TestEventsMaySubmitMore(t *testing.T) {
	defer test.CheckRoutines(t)()

	d := newTestDispatcher()
	done := make(chan struct{})
	d.Submit("bob", func() {
		d.Submit("bob", func() { close(done) })
	})

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("nested submit never ran")
	}
	d.Close()
}
