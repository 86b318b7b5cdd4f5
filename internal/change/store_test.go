package change

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestStoreBeginIsMonotonic(t *testing.T) {
	s := NewStore()

	prev := s.Begin()
	for range 100 {
		id := s.Begin()
		if id <= prev {
			t.Fatalf("Begin() = %d after %d, ids must be strictly increasing", id, prev)
		}
		prev = id
	}
}

func TestStoreCaptureConsume(t *testing.T) {
	s := NewStore()

	id := s.Begin()
	img := &PreImage{
		DN:         "uid=alice,dc=example,dc=com",
		Attributes: map[string][]string{"mail": {"alice@example.com"}},
		CapturedAt: time.Now(),
	}
	s.Capture(id, img)

	if s.Pending() != 1 {
		t.Errorf("Pending() = %d, want 1", s.Pending())
	}

	got, ok := s.Consume(id)
	if !ok {
		t.Fatal("Consume() did not find the captured pre-image")
	}
	if got != img {
		t.Error("Consume() returned a different pre-image")
	}

	// Consume removes: a second consume misses
	if _, ok := s.Consume(id); ok {
		t.Error("Consume() found an already-consumed pre-image")
	}

	if s.Pending() != 0 {
		t.Errorf("Pending() = %d after consume, want 0", s.Pending())
	}
}

func TestStoreConsumeUnknownID(t *testing.T) {
	s := NewStore()

	if _, ok := s.Consume(42); ok {
		t.Error("Consume() of an unknown id should miss")
	}
}

func TestStoreConcurrentIsolation(t *testing.T) {
	s := NewStore()

	const workers = 64
	var wg sync.WaitGroup

	for range workers {
		wg.Go(func() {
			id := s.Begin()
			dn := fmt.Sprintf("uid=user%d,dc=example,dc=com", id)
			s.Capture(id, &PreImage{DN: dn})

			img, ok := s.Consume(id)
			if !ok {
				t.Errorf("worker lost its own pre-image for id %d", id)
				return
			}
			if img.DN != dn {
				t.Errorf("id %d resolved to pre-image %s, cross-operation leak", id, img.DN)
			}
		})
	}

	wg.Wait()

	if s.Pending() != 0 {
		t.Errorf("Pending() = %d after all workers consumed, want 0", s.Pending())
	}
}
