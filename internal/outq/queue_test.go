package outq

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// =============================================================================
// Ordering and end of stream
// =============================================================================

func TestQueue_OrderPreserved(t *testing.T) {
	q := New()
	want := []string{"a", "b", "c"}
	for _, l := range want {
		if !q.Push(l) {
			t.Fatalf("Push(%q) rejected", l)
		}
	}
	q.Close()

	var got []string
	for {
		line, st := q.TryGet()
		if st == StatusEnd {
			break
		}
		if st != StatusLine {
			t.Fatalf("unexpected status %v", st)
		}
		got = append(got, line)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestQueue_EndOfStreamRepeatable(t *testing.T) {
	q := New()
	q.Close()

	for i := 0; i < 5; i++ {
		_, st, err := q.Get(context.Background(), 0)
		if err != nil || st != StatusEnd {
			t.Fatalf("call %d: got (%v, %v), want end of stream", i, st, err)
		}
	}
}

func TestQueue_CloseOnce(t *testing.T) {
	q := New()
	if !q.Close() {
		t.Error("first Close should report true")
	}
	if q.Close() {
		t.Error("second Close should report false")
	}
	if q.Push("late") {
		t.Error("Push after Close should be rejected")
	}
	pushed, dropped, buffered := q.Stats()
	if pushed != 0 || dropped != 1 || buffered != 0 {
		t.Errorf("Stats() = (%d, %d, %d), want (0, 1, 0)", pushed, dropped, buffered)
	}
}

// =============================================================================
// Get timeouts
// =============================================================================

func TestQueue_GetZeroNeverBlocks(t *testing.T) {
	q := New()
	start := time.Now()
	_, st, err := q.Get(context.Background(), 0)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if st != StatusTimeout {
		t.Errorf("status = %v, want timeout", st)
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("Get(0) took %v", elapsed)
	}
}

func TestQueue_GetTimeout(t *testing.T) {
	q := New()
	start := time.Now()
	_, st, err := q.Get(context.Background(), 50*time.Millisecond)
	if err != nil || st != StatusTimeout {
		t.Fatalf("got (%v, %v), want timeout", st, err)
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("returned after %v, expected to wait ~50ms", elapsed)
	}
}

func TestQueue_GetWakesOnPush(t *testing.T) {
	q := New()
	go func() {
		time.Sleep(20 * time.Millisecond)
		q.Push("late line")
	}()

	line, st, err := q.Get(context.Background(), 5*time.Second)
	if err != nil || st != StatusLine || line != "late line" {
		t.Errorf("got (%q, %v, %v), want late line", line, st, err)
	}
}

func TestQueue_GetWakesOnClose(t *testing.T) {
	q := New()
	go func() {
		time.Sleep(20 * time.Millisecond)
		q.Close()
	}()

	_, st, err := q.Get(context.Background(), NoTimeout)
	if err != nil || st != StatusEnd {
		t.Errorf("got (%v, %v), want end of stream", st, err)
	}
}

func TestQueue_GetContextCancel(t *testing.T) {
	q := New()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, _, err := q.Get(ctx, NoTimeout)
	if err != context.DeadlineExceeded {
		t.Errorf("err = %v, want context.DeadlineExceeded", err)
	}
}

// =============================================================================
// DrainAll / HasPending
// =============================================================================

func TestQueue_DrainAllKeepsEnd(t *testing.T) {
	q := New()
	q.Push("x")
	q.Push("y")
	q.Close()

	if !q.HasPending() {
		t.Error("HasPending should be true with buffered lines")
	}
	if diff := cmp.Diff([]string{"x", "y"}, q.DrainAll()); diff != "" {
		t.Errorf("DrainAll mismatch (-want +got):\n%s", diff)
	}
	if q.HasPending() {
		t.Error("HasPending should be false after DrainAll")
	}
	if got := q.DrainAll(); got != nil {
		t.Errorf("second DrainAll = %v, want nil", got)
	}
	if _, st := q.TryGet(); st != StatusEnd {
		t.Errorf("end of stream should survive DrainAll, got %v", st)
	}
}

func TestQueue_ConcurrentProducers(t *testing.T) {
	q := New()
	const producers, perProducer = 4, 250

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Push(fmt.Sprintf("%d-%d", p, i))
			}
		}(p)
	}

	got := 0
	done := make(chan struct{})
	go func() {
		wg.Wait()
		q.Close()
		close(done)
	}()

	for {
		_, st, err := q.Get(context.Background(), time.Second)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if st == StatusEnd {
			break
		}
		if st == StatusLine {
			got++
		}
	}
	<-done

	if got != producers*perProducer {
		t.Errorf("received %d lines, want %d", got, producers*perProducer)
	}
}

func TestStatus_String(t *testing.T) {
	testCases := []struct {
		s    Status
		want string
	}{
		{StatusLine, "line"},
		{StatusEnd, "end_of_stream"},
		{StatusTimeout, "timeout"},
		{Status(42), "unknown"},
	}
	for _, tc := range testCases {
		if got := tc.s.String(); got != tc.want {
			t.Errorf("Status(%d).String() = %q, want %q", tc.s, got, tc.want)
		}
	}
}
