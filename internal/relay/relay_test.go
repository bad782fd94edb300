package relay

import (
	"bytes"
	"errors"
	"io"
	"net"
	"testing"
	"time"
)

func waitResult(t *testing.T, ch <-chan Result) Result {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(3 * time.Second):
		t.Fatal("Pipe did not return")
	}
	return Result{}
}

func TestPipe_Forward(t *testing.T) {
	aServer, aClient := net.Pipe()
	bServer, bClient := net.Pipe()

	done := make(chan Result, 1)
	go func() { done <- Pipe(aServer, bServer) }()

	msg := []byte("hello relay")
	go func() {
		aClient.Write(msg) //nolint:errcheck
		aClient.Close()
	}()

	got, err := io.ReadAll(bClient)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(got, msg) {
		t.Errorf("forward: got %q, want %q", got, msg)
	}

	r := waitResult(t, done)
	if r.AToB != int64(len(msg)) || r.BToA != 0 {
		t.Errorf("counts = %d/%d", r.AToB, r.BToA)
	}
	if r.Err != nil {
		t.Errorf("Err = %v, want nil for a clean close", r.Err)
	}
}

func TestPipe_Bidirectional(t *testing.T) {
	aServer, aClient := net.Pipe()
	bServer, bClient := net.Pipe()

	done := make(chan Result, 1)
	go func() { done <- Pipe(aServer, bServer) }()

	for _, tc := range []struct {
		name     string
		src, dst net.Conn
		msg      string
	}{
		{"A→B", aClient, bClient, "from-A"},
		{"B→A", bClient, aClient, "from-B"},
		{"A→B again", aClient, bClient, "more-from-A"},
	} {
		go tc.src.Write([]byte(tc.msg)) //nolint:errcheck
		buf := make([]byte, len(tc.msg))
		if _, err := io.ReadFull(tc.dst, buf); err != nil {
			t.Fatalf("%s read: %v", tc.name, err)
		}
		if string(buf) != tc.msg {
			t.Errorf("%s: got %q, want %q", tc.name, buf, tc.msg)
		}
	}

	bClient.Close()
	r := waitResult(t, done)
	if r.AToB != int64(len("from-A")+len("more-from-A")) || r.BToA != int64(len("from-B")) {
		t.Errorf("counts = %d/%d", r.AToB, r.BToA)
	}
}

func TestPipe_HalfDuplexCompletes(t *testing.T) {
	aServer, aClient := net.Pipe()
	bServer, bClient := net.Pipe()

	done := make(chan Result, 1)
	go func() { done <- Pipe(aServer, bServer) }()

	payload := bytes.Repeat([]byte("0123456789abcdef"), 64*1024) // 1 MiB, many chunks
	go func() {
		aClient.Write(payload) //nolint:errcheck
		aClient.Close()
	}()

	got, err := io.ReadAll(bClient)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("received %d bytes, want %d identical bytes", len(got), len(payload))
	}
	r := waitResult(t, done)
	if r.AToB != int64(len(payload)) {
		t.Errorf("AToB = %d", r.AToB)
	}
}

// failingWriter wraps a conn whose writes always fail.
type failingWriter struct {
	net.Conn
	err error
}

func (f failingWriter) Write([]byte) (int, error) { return 0, f.err }

func TestPipe_EagerCloseOnError(t *testing.T) {
	aServer, aClient := net.Pipe()
	bServer, bClient := net.Pipe()
	defer aClient.Close()

	boom := errors.New("write failed")
	done := make(chan Result, 1)
	go func() { done <- Pipe(failingWriter{aServer, boom}, bServer) }()

	// B→A fails on write; A→B is blocked reading and must be torn down.
	go bClient.Write([]byte("trigger")) //nolint:errcheck

	r := waitResult(t, done)
	if !errors.Is(r.Err, boom) {
		t.Errorf("Err = %v, want %v", r.Err, boom)
	}

	bClient.SetReadDeadline(time.Now().Add(time.Second)) //nolint:errcheck
	if _, err := bClient.Read(make([]byte, 1)); err != io.EOF {
		t.Errorf("B should see EOF after eager close, got %v", err)
	}
}

func TestPipe_CloseFromEitherSide(t *testing.T) {
	for _, side := range []string{"a", "b"} {
		t.Run(side, func(t *testing.T) {
			aServer, aClient := net.Pipe()
			bServer, bClient := net.Pipe()

			done := make(chan Result, 1)
			go func() { done <- Pipe(aServer, bServer) }()

			if side == "a" {
				aClient.Close()
				defer bClient.Close()
			} else {
				bClient.Close()
				defer aClient.Close()
			}
			waitResult(t, done)
		})
	}
}
