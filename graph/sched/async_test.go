package sched

import (
	"testing"
	"time"
)

func TestTaskCompleteDeliversExactlyOnce(t *testing.T) {
	tr := NewTracker[int]()
	task := tr.Start()

	if !task.Complete(42, nil) {
		t.Fatal("expected first Complete call to be delivered")
	}
	if task.Complete(43, nil) {
		t.Fatal("expected second Complete call to be dropped")
	}

	result := <-task.Done()
	if result.Value != 42 || result.Err != nil {
		t.Fatalf("got %+v, want {Value: 42, Err: nil}", result)
	}
}

func TestTaskCancelDiscardsLateCompletion(t *testing.T) {
	tr := NewTracker[int]()
	task := tr.Start()
	task.Cancel()

	if task.Complete(1, nil) {
		t.Fatal("expected Complete to be dropped after Cancel")
	}
	if !task.Cancelled() {
		t.Fatal("expected Cancelled() to report true")
	}
}

func TestTaskCancelUnblocksWaiterAndLateCompleteIsDropped(t *testing.T) {
	tr := NewTracker[int]()
	task := tr.Start()

	done := make(chan struct{})
	go func() {
		<-task.Done()
		close(done)
	}()

	task.Cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected a goroutine parked on Done() to unblock once Cancel is called")
	}

	if task.Complete(1, nil) {
		t.Fatal("expected Complete to be dropped after Cancel, even once Done() has already unblocked")
	}
}

func TestTaskMarkWarnedFiresOnce(t *testing.T) {
	tr := NewTracker[int]()
	task := tr.Start()

	if !task.MarkWarned() {
		t.Fatal("expected first MarkWarned call to return true")
	}
	if task.MarkWarned() {
		t.Fatal("expected second MarkWarned call to return false")
	}
}

func TestTaskOutstandingGrowsOverTime(t *testing.T) {
	tr := NewTracker[int]()
	task := tr.Start()
	time.Sleep(2 * time.Millisecond)
	if task.Outstanding() <= 0 {
		t.Fatal("expected Outstanding to report a positive duration")
	}
}

func TestTrackerForgetRemovesTask(t *testing.T) {
	tr := NewTracker[int]()
	task := tr.Start()
	if tr.Len() != 1 {
		t.Fatalf("got %d outstanding tasks, want 1", tr.Len())
	}
	tr.Forget(task.ID)
	if tr.Len() != 0 {
		t.Fatalf("got %d outstanding tasks after Forget, want 0", tr.Len())
	}
}

func TestTrackerOutstandingListsLiveTasks(t *testing.T) {
	tr := NewTracker[int]()
	a := tr.Start()
	b := tr.Start()

	out := tr.Outstanding()
	if len(out) != 2 {
		t.Fatalf("got %d outstanding tasks, want 2", len(out))
	}
	found := map[uint64]bool{}
	for _, task := range out {
		found[task.ID] = true
	}
	if !found[a.ID] || !found[b.ID] {
		t.Fatal("expected both started tasks to be listed as outstanding")
	}
}
