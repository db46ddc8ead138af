package sdep

import (
	"bytes"
	"testing"
	"time"
)

func TestFrameRoundTrip(t *testing.T) {
	f, err := NewATFrame([]byte("AT+GAPGETCONN"), false)
	if err != nil {
		t.Fatal(err)
	}
	raw, err := f.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	if len(raw) != FrameSize {
		t.Fatalf("encoded length = %d, want %d", len(raw), FrameSize)
	}
	var got Frame
	if err := got.UnmarshalBinary(raw); err != nil {
		t.Fatal(err)
	}
	if got.Type != f.Type || got.CmdLo != f.CmdLo || got.CmdHi != f.CmdHi ||
		got.Len != f.Len || got.More != f.More || got.Payload != f.Payload {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, f)
	}
}

func TestFramePayloadTooBig(t *testing.T) {
	_, err := NewATFrame(make([]byte, 17), false)
	if err != ErrPayloadTooBig {
		t.Fatalf("err = %v, want ErrPayloadTooBig", err)
	}
}

// fakePin is a software stand-in for a CS/IRQ machine.Pin.
type fakePin struct {
	state bool
}

func (p *fakePin) High()    { p.state = true }
func (p *fakePin) Low()     { p.state = false }
func (p *fakePin) Get() bool { return p.state }

// fakeBus simulates a slave that NAKs its first nakCount transfers
// (counted across all transactions) with SlaveNotReady, then returns
// a canned response frame byte-by-byte, and zeros after that.
type fakeBus struct {
	nakCount int
	resp     []byte
	pos      int
	sent     []byte
}

func (b *fakeBus) Transfer(tx byte) (byte, error) {
	b.sent = append(b.sent, tx)
	if b.nakCount > 0 {
		b.nakCount--
		return byte(TypeSlaveNotReady), nil
	}
	if b.pos < len(b.resp) {
		rx := b.resp[b.pos]
		b.pos++
		return rx, nil
	}
	return 0, nil
}

func TestSendRetriesOnNotReady(t *testing.T) {
	bus := &fakeBus{nakCount: 2, resp: []byte{byte(TypeCommand)}}
	fr := &Framer{Bus: bus, CS: &fakePin{}, IRQ: &fakePin{}}
	f, _ := NewATFrame([]byte("ATZ"), false)
	if err := fr.Send(f, 100*time.Millisecond); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	// Two NAK'd attempts (1 byte each) plus one full 20-byte send.
	if len(bus.sent) != 2+FrameSize {
		t.Fatalf("sent %d bytes, want %d", len(bus.sent), 2+FrameSize)
	}
}

func TestSendTimesOutWhenAlwaysNotReady(t *testing.T) {
	bus := &fakeBus{nakCount: 1 << 30}
	fr := &Framer{Bus: bus, CS: &fakePin{}, IRQ: &fakePin{}}
	f, _ := NewATFrame([]byte("ATZ"), false)
	if err := fr.Send(f, 5*time.Millisecond); err != ErrTimeout {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
}

func TestReceiveWaitsForIRQ(t *testing.T) {
	irq := &fakePin{}
	f, _ := NewATFrame([]byte("OK"), false)
	f.Type = TypeResponse
	raw, _ := f.MarshalBinary()
	bus := &fakeBus{resp: raw}
	fr := &Framer{Bus: bus, CS: &fakePin{}, IRQ: irq}

	done := make(chan struct{})
	go func() {
		defer close(done)
		time.Sleep(5 * time.Millisecond)
		irq.High()
	}()
	got, err := fr.Receive(200 * time.Millisecond)
	<-done
	if err != nil {
		t.Fatalf("Receive failed: %v", err)
	}
	if got.Type != TypeResponse || !bytes.Equal(got.Payload[:got.Len], []byte("OK")) {
		t.Fatalf("got %+v", got)
	}
}

func TestReceiveTimesOutWithoutIRQ(t *testing.T) {
	fr := &Framer{Bus: &fakeBus{}, CS: &fakePin{}, IRQ: &fakePin{}}
	if _, err := fr.Receive(5 * time.Millisecond); err != ErrTimeout {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
}
