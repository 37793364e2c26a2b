package debugtransport

import (
	"sync"
	"testing"
	"time"
)

// fakeTransport is an in-memory chain end for rendezvous tests.
type fakeTransport struct {
	mu      sync.Mutex
	pending [][]byte
	sent    [][]byte
	closed  bool
}

func (f *fakeTransport) Next() Transport { return nil }

func (f *fakeTransport) Send(data []byte) error {
	f.mu.Lock()
	f.sent = append(f.sent, data)
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) Receive() ([]byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.pending) == 0 {
		return nil, false, nil
	}
	d := f.pending[0]
	f.pending = f.pending[1:]
	return d, true, nil
}

func (f *fakeTransport) Close() error {
	f.closed = true
	return nil
}

func (f *fakeTransport) push(data []byte) {
	f.mu.Lock()
	f.pending = append(f.pending, data)
	f.mu.Unlock()
}

func TestWaitDeliversClientMessage(t *testing.T) {
	ft := &fakeTransport{}
	s := NewSession(ft)

	go func() {
		time.Sleep(5 * time.Millisecond)
		ft.push([]byte("source"))
	}()

	var got []byte
	err := s.WaitForClientSource(time.Millisecond, func(d []byte) { got = d })
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "source" {
		t.Fatalf("delivered %q", got)
	}
}

func TestWaitHonoursCancellation(t *testing.T) {
	ft := &fakeTransport{}
	s := NewSession(ft)

	done := make(chan error, 1)
	go func() {
		done <- s.WaitForClientSource(time.Millisecond, func([]byte) {
			t.Error("no message should be delivered")
		})
	}()
	time.Sleep(3 * time.Millisecond)
	s.RequestStop()

	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(time.Second):
		t.Fatal("cancellation must end the rendezvous")
	}
}

func TestBreakpointTable(t *testing.T) {
	bt := NewBreakpointTable()
	bt.Record(3, 10)
	bt.Record(5, 20)
	bt.Record(3, 30)

	if got := bt.OffsetsForLine(3); len(got) != 2 || got[0] != 10 || got[1] != 30 {
		t.Fatalf("line 3 offsets %v", got)
	}
	if sites := bt.Sites(); len(sites) != 3 {
		t.Fatalf("sites %v", sites)
	}
}

func TestFromLineInfo(t *testing.T) {
	// two pairs of big-endian (offset, line)
	info := []byte{
		0, 0, 0, 12, 0, 0, 0, 1,
		0, 0, 0, 40, 0, 0, 0, 7,
	}
	bt := FromLineInfo(info)
	if got := bt.OffsetsForLine(7); len(got) != 1 || got[0] != 40 {
		t.Fatalf("line 7 offsets %v", got)
	}
}

func TestSessionIDsAreUnique(t *testing.T) {
	a := NewSession(&fakeTransport{})
	b := NewSession(&fakeTransport{})
	if a.ID == b.ID {
		t.Fatal("session correlation ids must differ")
	}
}
