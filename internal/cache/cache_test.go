package cache

import (
	"fmt"
	"testing"
)

func TestCapacityIsNeverExceeded(t *testing.T) {
	for _, capacity := range []int{1, 3, 10} {
		c, err := New(capacity)
		if err != nil {
			t.Fatalf("New(%d) error = %v", capacity, err)
		}
		for i := 0; i < capacity*3; i++ {
			c.Put(KeyOf(fmt.Sprintf("key-%d", i)), "value")
			if c.Len() > capacity {
				t.Fatalf("capacity %d: Len() = %d after %d puts", capacity, c.Len(), i+1)
			}
		}
		if c.Len() != capacity {
			t.Errorf("capacity %d: final Len() = %d", capacity, c.Len())
		}
	}
}

func TestEvictsLeastRecentlyUsed(t *testing.T) {
	c, err := New(2)
	if err != nil {
		t.Fatal(err)
	}
	c.Put("a", "1")
	c.Put("b", "2")

	// Touch "a" so "b" becomes least recently used.
	if _, ok := c.Get("a"); !ok {
		t.Fatal("Get(a) = absent")
	}

	c.Put("c", "3")

	if _, ok := c.Get("b"); ok {
		t.Error("b survived eviction, want evicted as least recently used")
	}
	if _, ok := c.Get("a"); !ok {
		t.Error("a evicted, want retained (recently read)")
	}
	if _, ok := c.Get("c"); !ok {
		t.Error("c absent after Put")
	}
}

func TestPutOverwritesExistingKey(t *testing.T) {
	c, err := New(2)
	if err != nil {
		t.Fatal(err)
	}
	c.Put("a", "old")
	c.Put("a", "new")
	if got, _ := c.Get("a"); got != "new" {
		t.Errorf("Get(a) = %q, want new", got)
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
}

func TestKeyOf(t *testing.T) {
	if KeyOf("code", "error") != KeyOf("code", "error") {
		t.Error("identical inputs produced different fingerprints")
	}
	if KeyOf("code", "error") == KeyOf("error", "code") {
		t.Error("order-swapped inputs collided")
	}
	// Length prefixing keeps adjacent parts from bleeding into each other.
	if KeyOf("ab", "c") == KeyOf("a", "bc") {
		t.Error("boundary-shifted inputs collided")
	}
	// Leading/trailing whitespace is canonicalized away.
	if KeyOf(" x = 1 ", "err") != KeyOf("x = 1", "err") {
		t.Error("whitespace-padded input produced a different fingerprint")
	}
}
