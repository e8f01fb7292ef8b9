package ring

import "testing"

func TestRingWrapAround(t *testing.T) {
	r := New[int](4)
	for i := 0; i < 10; i++ {
		r.Set(i, i*10)
	}
	// Only the last 4 writes (6,7,8,9) should be visible at their positions.
	for i := 6; i < 10; i++ {
		if got := r.At(i); got != i*10 {
			t.Fatalf("At(%d) = %d, want %d", i, got, i*10)
		}
	}
}

func TestRingNegativeIndex(t *testing.T) {
	r := New[int](5)
	r.Set(-3, 42)
	if got := r.At(-3); got != 42 {
		t.Fatalf("At(-3) = %d, want 42", got)
	}
	// -3 mod 5 == 2 in the wrapped sense.
	if r.Index(-3) != 2 {
		t.Fatalf("Index(-3) = %d, want 2", r.Index(-3))
	}
}

func TestDequeBasic(t *testing.T) {
	d := NewDeque[string](2)
	d.PushBack("a")
	d.PushBack("b")
	d.PushBack("c")
	if d.Len() != 3 {
		t.Fatalf("expected len 3, got %d", d.Len())
	}
	if d.Front() != "a" {
		t.Fatalf("expected front 'a'")
	}
	got := d.PopFront()
	if got != "a" || d.Len() != 2 {
		t.Fatalf("PopFront broken: got %q len %d", got, d.Len())
	}
	d.DropFront(2)
	if d.Len() != 0 {
		t.Fatalf("expected empty after DropFront, got %d", d.Len())
	}
}

func TestDequeEach(t *testing.T) {
	d := NewDeque[int](4)
	for i := 0; i < 4; i++ {
		d.PushBack(i)
	}
	var sum int
	d.Each(func(v int) { sum += v })
	if sum != 6 {
		t.Fatalf("expected sum 6, got %d", sum)
	}
}
