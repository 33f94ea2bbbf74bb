package ui

import (
	"bytes"
	"io"
	"testing"
	"time"
)

func TestEncodeSamples(t *testing.T) {
	got := encodeSamples(nil, []int16{0, 1, -1, 0x1234})
	want := []byte{0x00, 0x00, 0x01, 0x00, 0xFF, 0xFF, 0x34, 0x12}
	if !bytes.Equal(got, want) {
		t.Errorf("expected % X, got % X", want, got)
	}
}

func TestPCMRing_WriteRead(t *testing.T) {
	r := newPCMRing(8)
	r.Write([]byte{1, 2, 3})
	if r.Buffered() != 3 {
		t.Fatalf("expected 3 buffered, got %d", r.Buffered())
	}

	buf := make([]byte, 2)
	n, err := r.Read(buf)
	if err != nil || n != 2 || buf[0] != 1 || buf[1] != 2 {
		t.Errorf("first read: n=%d err=%v buf=%v", n, err, buf)
	}
	buf = make([]byte, 8)
	n, _ = r.Read(buf)
	if n != 1 || buf[0] != 3 {
		t.Errorf("second read: n=%d buf=%v", n, buf[:n])
	}
}

func TestPCMRing_Wraps(t *testing.T) {
	r := newPCMRing(4)
	r.Write([]byte{1, 2, 3})
	r.Read(make([]byte, 2))
	r.Write([]byte{4, 5, 6})

	buf := make([]byte, 4)
	n, _ := r.Read(buf)
	if !bytes.Equal(buf[:n], []byte{3, 4, 5, 6}) {
		t.Errorf("expected 3 4 5 6, got %v", buf[:n])
	}
	if r.Dropped() != 0 {
		t.Errorf("expected no drops, got %d", r.Dropped())
	}
}

func TestPCMRing_OverflowDropsOldest(t *testing.T) {
	r := newPCMRing(4)
	r.Write([]byte{1, 2, 3})
	r.Write([]byte{4, 5})

	buf := make([]byte, 4)
	n, _ := r.Read(buf)
	if !bytes.Equal(buf[:n], []byte{2, 3, 4, 5}) {
		t.Errorf("expected 2 3 4 5, got %v", buf[:n])
	}
	if r.Dropped() != 1 {
		t.Errorf("expected 1 dropped byte, got %d", r.Dropped())
	}

	r.Write([]byte{1, 2, 3, 4, 5, 6})
	n, _ = r.Read(buf)
	if !bytes.Equal(buf[:n], []byte{3, 4, 5, 6}) {
		t.Errorf("oversized write: expected 3 4 5 6, got %v", buf[:n])
	}
	if r.Dropped() != 3 {
		t.Errorf("expected 3 dropped bytes, got %d", r.Dropped())
	}
}

func TestPCMRing_ResetAndClose(t *testing.T) {
	r := newPCMRing(4)
	r.Write([]byte{1, 2})
	r.Reset()
	if r.Buffered() != 0 {
		t.Errorf("expected empty ring after Reset, got %d", r.Buffered())
	}

	done := make(chan error, 1)
	go func() {
		_, err := r.Read(make([]byte, 1))
		done <- err
	}()
	time.Sleep(10 * time.Millisecond)
	r.Close()

	select {
	case err := <-done:
		if err != io.EOF {
			t.Errorf("expected io.EOF, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Close did not wake the reader")
	}

	r.Write([]byte{1})
	if r.Buffered() != 0 {
		t.Error("writes after Close should be ignored")
	}
}
