package debounce

import (
	"sync"
	"testing"
	"time"
)

func TestBatcherCollectsBurstIntoOneBatch(t *testing.T) {
	var mu sync.Mutex
	var batches [][]string

	b := New[string](50*time.Millisecond, func(key string, items []string) {
		mu.Lock()
		batches = append(batches, items)
		mu.Unlock()
	})

	b.Enqueue("a", "one")
	b.Enqueue("a", "two")
	b.Enqueue("a", "three")

	time.Sleep(200 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(batches) != 1 {
		t.Fatalf("expected 1 batch, got %d", len(batches))
	}
	if len(batches[0]) != 3 || batches[0][0] != "one" || batches[0][2] != "three" {
		t.Errorf("unexpected batch contents: %v", batches[0])
	}
}

func TestBatcherReArmsOnNewInput(t *testing.T) {
	var mu sync.Mutex
	var fired int

	b := New[string](80*time.Millisecond, func(key string, items []string) {
		mu.Lock()
		fired++
		mu.Unlock()
	})

	b.Enqueue("a", "one")
	time.Sleep(40 * time.Millisecond)
	b.Enqueue("a", "two") // inside the quiet period, must re-arm
	time.Sleep(40 * time.Millisecond)

	mu.Lock()
	if fired != 0 {
		mu.Unlock()
		t.Fatal("batch fired before the quiet period elapsed")
	}
	mu.Unlock()

	time.Sleep(150 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if fired != 1 {
		t.Errorf("expected exactly 1 fire, got %d", fired)
	}
}

func TestBatcherKeysAreIndependent(t *testing.T) {
	var mu sync.Mutex
	got := make(map[string][]string)

	b := New[string](30*time.Millisecond, func(key string, items []string) {
		mu.Lock()
		got[key] = items
		mu.Unlock()
	})

	b.Enqueue("a", "for-a")
	b.Enqueue("b", "for-b")

	time.Sleep(150 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 {
		t.Fatalf("expected 2 batches, got %d", len(got))
	}
	if got["a"][0] != "for-a" || got["b"][0] != "for-b" {
		t.Errorf("batches crossed keys: %v", got)
	}
}

func TestBatcherCancelDiscardsQueue(t *testing.T) {
	var mu sync.Mutex
	var fired int

	b := New[string](30*time.Millisecond, func(key string, items []string) {
		mu.Lock()
		fired++
		mu.Unlock()
	})

	b.Enqueue("a", "one")
	b.Cancel("a")

	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if fired != 0 {
		t.Errorf("cancelled batch still fired %d times", fired)
	}
	if b.Pending("a") {
		t.Error("Pending still true after Cancel")
	}
}

func TestBatcherSerializesPerKey(t *testing.T) {
	var mu sync.Mutex
	inFlight := 0
	maxInFlight := 0
	total := 0

	b := New[string](20*time.Millisecond, func(key string, items []string) {
		mu.Lock()
		inFlight++
		if inFlight > maxInFlight {
			maxInFlight = inFlight
		}
		total += len(items)
		mu.Unlock()

		time.Sleep(60 * time.Millisecond)

		mu.Lock()
		inFlight--
		mu.Unlock()
	})

	// Second enqueue lands while the first batch is still processing.
	b.Enqueue("a", "one")
	time.Sleep(30 * time.Millisecond)
	b.Enqueue("a", "two")

	time.Sleep(400 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if maxInFlight != 1 {
		t.Errorf("concurrent passes for one key: max in flight %d", maxInFlight)
	}
	if total != 2 {
		t.Errorf("expected both items processed, got %d", total)
	}
}
