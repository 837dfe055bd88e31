package jobs

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"posterd/internal/domain"
)

func statusPtr(s domain.JobStatus) *domain.JobStatus { return &s }
func intPtr(n int) *int                              { return &n }
func strPtr(v string) *string                        { return &v }

func testRequest() domain.PosterRequest {
	return domain.PosterRequest{
		City:    "Testville",
		Country: "Nowhere",
		Theme:   "noir",
		Size:    "auto",
	}
}

func TestStoreCreateStartsPending(t *testing.T) {
	store := NewStore(nil)

	created := store.Create(testRequest())
	if created.ID == "" {
		t.Fatal("expected a non-empty job id")
	}

	got, ok := store.Get(created.ID)
	if !ok {
		t.Fatalf("Get(%q) not found right after Create", created.ID)
	}
	if got.Status != domain.JobStatusPending {
		t.Fatalf("status = %q, want %q", got.Status, domain.JobStatusPending)
	}
	if got.Progress != 0 {
		t.Fatalf("progress = %d, want 0", got.Progress)
	}
	if got.CreatedAt.IsZero() {
		t.Fatal("expected CreatedAt to be stamped")
	}
	if got.Request != testRequest() {
		t.Fatalf("request = %+v, want %+v", got.Request, testRequest())
	}
}

func TestStoreGetUnknown(t *testing.T) {
	store := NewStore(nil)
	if _, ok := store.Get("no-such-job"); ok {
		t.Fatal("expected not-found for an unused id")
	}
}

func TestStoreUpdateMergesOnlyGivenFields(t *testing.T) {
	store := NewStore(nil)
	job := store.Create(testRequest())

	store.Update(job.ID, Update{Status: statusPtr(domain.JobStatusProcessing), Progress: intPtr(5), Message: strPtr("starting")})
	store.Update(job.ID, Update{Progress: intPtr(40)})

	got, _ := store.Get(job.ID)
	if got.Status != domain.JobStatusProcessing {
		t.Fatalf("status = %q, want %q", got.Status, domain.JobStatusProcessing)
	}
	if got.Progress != 40 {
		t.Fatalf("progress = %d, want 40", got.Progress)
	}
	if got.Message != "starting" {
		t.Fatalf("message = %q, want it untouched by the second update", got.Message)
	}
}

func TestStoreUpdateUnknownIsNoop(t *testing.T) {
	store := NewStore(nil)
	if _, ok := store.Update("gone", Update{Progress: intPtr(50)}); ok {
		t.Fatal("expected update on an unknown id to report no record")
	}
}

func TestStoreTerminalNeverRegresses(t *testing.T) {
	store := NewStore(nil)
	job := store.Create(testRequest())

	store.Update(job.ID, Update{Status: statusPtr(domain.JobStatusCompleted), Progress: intPtr(100)})

	if _, ok := store.Update(job.ID, Update{Status: statusPtr(domain.JobStatusProcessing), Progress: intPtr(10)}); ok {
		t.Fatal("expected update after terminal state to be a no-op")
	}
	if _, ok := store.Update(job.ID, Update{Status: statusPtr(domain.JobStatusFailed), Error: strPtr("late failure")}); ok {
		t.Fatal("expected duplicate terminal signal to be a no-op")
	}

	got, _ := store.Get(job.ID)
	if got.Status != domain.JobStatusCompleted {
		t.Fatalf("status = %q, want it to stay %q", got.Status, domain.JobStatusCompleted)
	}
	if got.Progress != 100 {
		t.Fatalf("progress = %d, want it to stay 100", got.Progress)
	}
	if got.Error != "" {
		t.Fatalf("error = %q, want empty on a completed job", got.Error)
	}
}

func TestStoreCompletedAtStampedOnce(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := NewStore(nil, WithClock(func() time.Time { return now }))
	job := store.Create(testRequest())

	store.Update(job.ID, Update{Status: statusPtr(domain.JobStatusCompleted), Progress: intPtr(100)})

	got, _ := store.Get(job.ID)
	if got.CompletedAt == nil || !got.CompletedAt.Equal(now) {
		t.Fatalf("CompletedAt = %v, want %v", got.CompletedAt, now)
	}
}

func TestStoreIdenticalUpdatesNotifyTwice(t *testing.T) {
	store := NewStore(nil)
	job := store.Create(testRequest())

	sub, ok := store.Subscribe(job.ID)
	if !ok {
		t.Fatal("expected subscription on a live job")
	}
	defer sub.Cancel()

	upd := Update{Progress: intPtr(40), Message: strPtr("processing map data")}
	store.Update(job.ID, upd)
	store.Update(job.ID, upd)

	for i := 0; i < 2; i++ {
		select {
		case snap := <-sub.Updates():
			if snap.Progress != 40 {
				t.Fatalf("notification %d progress = %d, want 40", i+1, snap.Progress)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for notification %d", i+1)
		}
	}

	got, _ := store.Get(job.ID)
	if got.Progress != 40 || got.Message != "processing map data" {
		t.Fatalf("snapshot after duplicate update = %+v, want same as single update", got)
	}
}

func TestStoreSubscribeBeforeCompletionSeesTerminal(t *testing.T) {
	store := NewStore(nil)
	job := store.Create(testRequest())

	sub, ok := store.Subscribe(job.ID)
	if !ok {
		t.Fatal("expected subscription on a live job")
	}

	store.Update(job.ID, Update{Status: statusPtr(domain.JobStatusProcessing), Progress: intPtr(5)})
	store.Update(job.ID, Update{Progress: intPtr(70)})
	store.Update(job.ID, Update{Status: statusPtr(domain.JobStatusCompleted), Progress: intPtr(100)})

	got := collectUntilClosed(t, sub, 2*time.Second)
	if len(got) == 0 {
		t.Fatal("expected at least one notification")
	}
	final := got[len(got)-1]
	if final.Status != domain.JobStatusCompleted {
		t.Fatalf("final status = %q, want %q", final.Status, domain.JobStatusCompleted)
	}
	if final.Progress != 100 {
		t.Fatalf("final progress = %d, want 100", final.Progress)
	}
	if final.Error != "" {
		t.Fatalf("final error = %q, want empty", final.Error)
	}
}

func TestStoreSubscribeAfterTerminalCatchesUpOnce(t *testing.T) {
	store := NewStore(nil)
	job := store.Create(testRequest())
	store.Update(job.ID, Update{Status: statusPtr(domain.JobStatusProcessing), Progress: intPtr(40)})
	store.Update(job.ID, Update{Status: statusPtr(domain.JobStatusCompleted), Progress: intPtr(100)})

	sub, ok := store.Subscribe(job.ID)
	if !ok {
		t.Fatal("expected subscription on a live job")
	}

	got := collectUntilClosed(t, sub, 2*time.Second)
	if len(got) != 1 {
		t.Fatalf("got %d snapshots, want exactly the terminal catch-up", len(got))
	}
	if got[0].Status != domain.JobStatusCompleted || got[0].Progress != 100 {
		t.Fatalf("catch-up snapshot = %+v, want the terminal state", got[0])
	}
}

func TestStoreSubscribeUnknown(t *testing.T) {
	store := NewStore(nil)
	if _, ok := store.Subscribe("missing"); ok {
		t.Fatal("expected no subscription for an unknown id")
	}
}

func TestStoreDelete(t *testing.T) {
	store := NewStore(nil)
	job := store.Create(testRequest())

	if !store.Delete(job.ID) {
		t.Fatal("expected delete of a live record to succeed")
	}
	if store.Delete(job.ID) {
		t.Fatal("expected second delete to report not-found")
	}
	if _, ok := store.Get(job.ID); ok {
		t.Fatal("expected Get after delete to be not-found")
	}
	if _, ok := store.Update(job.ID, Update{Progress: intPtr(50)}); ok {
		t.Fatal("expected Update after delete to be a no-op")
	}
}

func TestStoreDeleteEndsObserverStreams(t *testing.T) {
	store := NewStore(nil)
	job := store.Create(testRequest())
	sub, _ := store.Subscribe(job.ID)

	store.Delete(job.ID)

	select {
	case _, open := <-sub.Updates():
		if open {
			t.Fatal("expected the stream to close without a snapshot")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the stream to close")
	}
}

func TestStoreListNewestFirst(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	store := NewStore(nil, WithClock(func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}))

	first := store.Create(testRequest())
	second := store.Create(testRequest())

	list := store.List()
	if len(list) != 2 {
		t.Fatalf("len(list) = %d, want 2", len(list))
	}
	if list[0].ID != second.ID || list[1].ID != first.ID {
		t.Fatalf("list order = [%s %s], want newest first", list[0].ID, list[1].ID)
	}
}

func TestStoreConcurrentUpdatesKeepOneRecord(t *testing.T) {
	store := NewStore(nil)
	job := store.Create(testRequest())

	const writers = 16
	const updatesPerWriter = 50

	var wg sync.WaitGroup
	wg.Add(writers)
	for w := 0; w < writers; w++ {
		go func(w int) {
			defer wg.Done()
			for i := 0; i < updatesPerWriter; i++ {
				progress := (w*updatesPerWriter + i) % 100
				message := fmt.Sprintf("writer %d line %d", w, i)
				store.Update(job.ID, Update{Progress: &progress, Message: &message})
			}
		}(w)
	}
	wg.Wait()

	if n := store.Len(); n != 1 {
		t.Fatalf("record count = %d, want exactly 1", n)
	}
	got, ok := store.Get(job.ID)
	if !ok {
		t.Fatal("record vanished under concurrent updates")
	}
	if got.Progress < 0 || got.Progress > 99 {
		t.Fatalf("progress = %d, not a value any writer produced", got.Progress)
	}
	if got.Status != domain.JobStatusPending {
		t.Fatalf("status = %q, corrupted by progress-only updates", got.Status)
	}
}

func collectUntilClosed(t *testing.T, sub *Subscription, timeout time.Duration) []domain.Job {
	t.Helper()
	var got []domain.Job
	deadline := time.After(timeout)
	for {
		select {
		case snap, open := <-sub.Updates():
			if !open {
				return got
			}
			got = append(got, snap)
		case <-deadline:
			t.Fatalf("timed out waiting for stream close, got %d snapshots", len(got))
		}
	}
}
