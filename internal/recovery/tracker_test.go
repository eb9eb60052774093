package recovery

import (
	"sync"
	"testing"
)

func TestTracker_Transitions(t *testing.T) {
	tr := NewTracker()

	if st := tr.State("a"); st != TenantUnknown {
		t.Fatalf("initial state = %q, want unknown", st)
	}
	if !tr.Begin("a") {
		t.Fatal("first Begin should win")
	}
	if st := tr.State("a"); st != TenantInProgress {
		t.Fatalf("state after Begin = %q, want in_progress", st)
	}
	if tr.Begin("a") {
		t.Fatal("second Begin should lose while in progress")
	}

	tr.Complete("a")
	if st := tr.State("a"); st != TenantCompleted {
		t.Fatalf("state after Complete = %q, want completed", st)
	}
	if tr.Begin("a") {
		t.Fatal("Begin should lose after completion")
	}

	tr.Reset("a")
	if st := tr.State("a"); st != TenantUnknown {
		t.Fatalf("state after Reset = %q, want unknown", st)
	}
	if !tr.Begin("a") {
		t.Fatal("Begin should win again after Reset")
	}
}

func TestTracker_TenantsIndependent(t *testing.T) {
	tr := NewTracker()
	tr.Complete("a")
	if st := tr.State("b"); st != TenantUnknown {
		t.Fatalf("tenant b state = %q, want unknown", st)
	}
}

func TestTracker_BeginExactlyOneWinner(t *testing.T) {
	tr := NewTracker()
	const n = 32

	var wg sync.WaitGroup
	wins := make(chan bool, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			wins <- tr.Begin("contended")
		}()
	}
	wg.Wait()
	close(wins)

	winners := 0
	for won := range wins {
		if won {
			winners++
		}
	}
	if winners != 1 {
		t.Fatalf("got %d winners, want exactly 1", winners)
	}
}
