package ids

import (
	"sync"
	"testing"

	"github.com/oklog/ulid/v2"
)

func TestCreateULID(t *testing.T) {
	id := CreateULID()
	if len(id) != 26 {
		t.Fatalf("expected 26 characters, got %d", len(id))
	}
	if _, err := ulid.Parse(id); err != nil {
		t.Fatalf("generated ID does not parse as ULID: %v", err)
	}
}

func TestCreateULIDUniqueUnderConcurrency(t *testing.T) {
	const n = 100

	var wg sync.WaitGroup
	results := make([]string, n)
	for i := range n {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = CreateULID()
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool, n)
	for _, id := range results {
		if seen[id] {
			t.Fatalf("duplicate ULID generated: %s", id)
		}
		seen[id] = true
	}
}
