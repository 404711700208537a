package stringpool

import (
	"strconv"
	"sync"
	"testing"
)

func TestInternIdempotent(t *testing.T) {
	p := New()
	h1 := p.Intern("hello")
	h2 := p.Intern("hello")
	if h1 != h2 {
		t.Errorf("Intern(hello) twice gave %d and %d", h1, h2)
	}
	h3 := p.Intern("world")
	if h3 == h1 {
		t.Errorf("distinct content shares handle %d", h1)
	}
	if got := p.Resolve(h1); got != "hello" {
		t.Errorf("Resolve(%d) = %q", h1, got)
	}
	if got := p.Resolve(h3); got != "world" {
		t.Errorf("Resolve(%d) = %q", h3, got)
	}
}

func TestEmptyHandle(t *testing.T) {
	p := New()
	if h := p.Intern(""); h != Empty {
		t.Errorf("Intern(\"\") = %d, want %d", h, Empty)
	}
	if got := p.Resolve(Empty); got != "" {
		t.Errorf("Resolve(Empty) = %q", got)
	}
	if p.Len() != 1 {
		t.Errorf("fresh pool Len() = %d, want 1", p.Len())
	}
}

func TestInternBytes(t *testing.T) {
	p := New()
	b := []byte("shared")
	h := p.InternBytes(b)
	b[0] = 'X' // the pool must own its copy
	if got := p.Resolve(h); got != "shared" {
		t.Errorf("Resolve after caller mutation = %q", got)
	}
	if h2 := p.Intern("shared"); h2 != h {
		t.Errorf("string and byte interning disagree: %d vs %d", h, h2)
	}
}

func TestLookup(t *testing.T) {
	p := New()
	if _, ok := p.Lookup("missing"); ok {
		t.Error("Lookup(missing) reported present")
	}
	h := p.Intern("present")
	got, ok := p.Lookup("present")
	if !ok || got != h {
		t.Errorf("Lookup(present) = (%d, %v), want (%d, true)", got, ok, h)
	}
}

// Concurrent interns of the same content must converge on one handle and
// one pool entry; this is what the parallel worksheet decode relies on.
func TestConcurrentIntern(t *testing.T) {
	p := New()
	const workers = 16
	const distinct = 200

	handles := make([][]Handle, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			hs := make([]Handle, distinct)
			for i := 0; i < distinct; i++ {
				hs[i] = p.Intern("s" + strconv.Itoa(i))
			}
			handles[w] = hs
		}(w)
	}
	wg.Wait()

	for w := 1; w < workers; w++ {
		for i := 0; i < distinct; i++ {
			if handles[w][i] != handles[0][i] {
				t.Fatalf("worker %d got handle %d for s%d, worker 0 got %d",
					w, handles[w][i], i, handles[0][i])
			}
		}
	}
	if p.Len() != distinct+1 {
		t.Errorf("pool Len() = %d, want %d", p.Len(), distinct+1)
	}
	for i := 0; i < distinct; i++ {
		if got := p.Resolve(handles[0][i]); got != "s"+strconv.Itoa(i) {
			t.Errorf("Resolve(s%d) = %q", i, got)
		}
	}
}
