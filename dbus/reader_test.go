package dbus

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestReaderAssemblesMessageFromChunks(t *testing.T) {
	m := Message{
		Kind:        KindMethodCall,
		Serial:      1,
		Path:        "/org/freedesktop/DBus",
		Interface:   "org.freedesktop.DBus",
		Member:      "Hello",
		Destination: "org.freedesktop.DBus",
	}
	raw, err := EncodeMessage(m)
	if err != nil {
		t.Fatal(err)
	}

	r := NewReader()
	for i := 0; i < len(raw); i += 3 {
		end := i + 3
		if end > len(raw) {
			end = len(raw)
		}
		if r.Wants() != ReaderWantsBytes {
			t.Fatalf("Wants() = %v before message is complete", r.Wants())
		}
		if err := r.Satisfy(raw[i:end]); err != nil {
			t.Fatal(err)
		}
	}
	if r.Wants() != ReaderHasMessage {
		t.Fatalf("Wants() = %v, want ReaderHasMessage once all bytes delivered", r.Wants())
	}
	got, err := r.Take()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(m, got); diff != "" {
		t.Errorf("assembled message mismatch (-want +got):\n%s", diff)
	}
}

// TestReaderResumableAtEveryBoundary feeds one encoded message split into
// two chunks at every possible byte boundary; each split must yield exactly
// one message identical to the one-shot feed.
func TestReaderResumableAtEveryBoundary(t *testing.T) {
	m := Message{
		Kind:   KindMethodCall,
		Serial: 3,
		Path:   "/org/example",
		Member: "Poke",
		Body:   []Value{NewUInt32(7), NewString("x")},
	}
	raw, err := EncodeMessage(m)
	if err != nil {
		t.Fatal(err)
	}
	for split := 0; split <= len(raw); split++ {
		r := NewReader()
		if err := r.Satisfy(raw[:split]); err != nil {
			t.Fatalf("split %d: %v", split, err)
		}
		if err := r.Satisfy(raw[split:]); err != nil {
			t.Fatalf("split %d: %v", split, err)
		}
		if r.Wants() != ReaderHasMessage {
			t.Fatalf("split %d: no message ready after both chunks", split)
		}
		got, err := r.Take()
		if err != nil {
			t.Fatalf("split %d: %v", split, err)
		}
		if diff := cmp.Diff(m, got); diff != "" {
			t.Errorf("split %d mismatch (-want +got):\n%s", split, diff)
		}
	}
}

func TestReaderPipelinesTwoMessages(t *testing.T) {
	m1 := Message{Kind: KindMethodCall, Serial: 1, Path: "/a", Member: "M1"}
	m2 := Message{Kind: KindMethodCall, Serial: 2, Path: "/b", Member: "M2"}
	raw1, _ := EncodeMessage(m1)
	raw2, _ := EncodeMessage(m2)

	r := NewReader()
	if err := r.Satisfy(append(append([]byte{}, raw1...), raw2...)); err != nil {
		t.Fatal(err)
	}
	if r.Wants() != ReaderHasMessage {
		t.Fatal("expected first message ready")
	}
	got1, err := r.Take()
	if err != nil {
		t.Fatal(err)
	}
	if got1.Member != "M1" {
		t.Fatalf("got %q, want M1", got1.Member)
	}
	if r.Wants() != ReaderHasMessage {
		t.Fatal("expected second message ready immediately after Take")
	}
	got2, err := r.Take()
	if err != nil {
		t.Fatal(err)
	}
	if got2.Member != "M2" {
		t.Fatalf("got %q, want M2", got2.Member)
	}
}

func TestReaderRejectsBigEndianEarly(t *testing.T) {
	r := NewReader()
	header := make([]byte, 16)
	header[0] = 'B'
	if err := r.Satisfy(header); err == nil {
		t.Fatal("expected an error once 16 bytes reveal a big-endian header")
	}
}
