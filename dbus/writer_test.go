package dbus

import "testing"

func TestWriterShortWritesPreservePosition(t *testing.T) {
	w := NewWriter()
	w.Enqueue([]byte("hello"))
	w.Enqueue([]byte("world"))

	if !w.Wants() {
		t.Fatal("expected pending writes")
	}
	if got := string(w.Pending()); got != "hello" {
		t.Fatalf("Pending() = %q, want %q", got, "hello")
	}
	if err := w.Satisfy(2); err != nil {
		t.Fatal(err)
	}
	if got := string(w.Pending()); got != "llo" {
		t.Fatalf("Pending() after short write = %q, want %q", got, "llo")
	}
	if err := w.Satisfy(3); err != nil {
		t.Fatal(err)
	}
	if got := string(w.Pending()); got != "world" {
		t.Fatalf("Pending() after first buffer drained = %q, want %q", got, "world")
	}
	if err := w.Satisfy(5); err != nil {
		t.Fatal(err)
	}
	if w.Wants() {
		t.Fatal("expected no pending writes once both buffers drained")
	}
}

func TestWriterSatisfyRejectsOverconsumption(t *testing.T) {
	w := NewWriter()
	w.Enqueue([]byte("ab"))
	if err := w.Satisfy(5); err == nil {
		t.Fatal("expected an error satisfying more bytes than were pending")
	}
}

func TestWriterSatisfyWithNothingQueuedIsContractError(t *testing.T) {
	w := NewWriter()
	if err := w.Satisfy(1); err == nil {
		t.Fatal("expected an error satisfying a write with nothing queued")
	}
}
