package ble

import (
	"testing"
	"time"

	"kb2ble.dev/driver/nrf51822"
	"kb2ble.dev/driver/sdep"
)

func TestSendRingFIFOOrder(t *testing.T) {
	var r SendRing
	r.Enqueue(Consumer{Code: 1})
	r.Enqueue(Consumer{Code: 2})
	first, _ := r.Pop()
	if first.(Consumer).Code != 1 {
		t.Fatalf("expected FIFO order, got %+v", first)
	}
	second, _ := r.Pop()
	if second.(Consumer).Code != 2 {
		t.Fatalf("expected FIFO order, got %+v", second)
	}
}

func TestSendRingDropsNewestWhenFull(t *testing.T) {
	var r SendRing
	for i := 0; i < SendCapacity; i++ {
		if !r.Enqueue(Consumer{Code: uint16(i)}) {
			t.Fatalf("enqueue %d should have succeeded", i)
		}
	}
	if r.Enqueue(Consumer{Code: 999}) {
		t.Fatal("41st enqueue into a 40-capacity ring should fail")
	}
	if r.Len() != SendCapacity {
		t.Fatalf("Len = %d, want %d", r.Len(), SendCapacity)
	}
}

func TestResponseRingCapacityTwo(t *testing.T) {
	var r ResponseRing
	if !r.Push(100) || !r.Push(200) {
		t.Fatal("first two pushes should succeed")
	}
	if r.Push(300) {
		t.Fatal("third push into a 2-capacity ring should fail")
	}
	ts, ok := r.Pop()
	if !ok || ts != 100 {
		t.Fatalf("Pop = %d, %v, want 100, true", ts, ok)
	}
}

func TestParseATResponseOK(t *testing.T) {
	n, ok := parseATResponse([]byte("Hello\r\nOK\r\n"))
	if !ok || n != 5 {
		t.Fatalf("n, ok = %d, %v, want 5, true", n, ok)
	}
}

func TestParseATResponseError(t *testing.T) {
	_, ok := parseATResponse([]byte("Hello\r\nERROR\r\n"))
	if ok {
		t.Fatal("ERROR-terminated response must not report ok")
	}
}

func TestParseATResponseBareOK(t *testing.T) {
	n, ok := parseATResponse([]byte("OK\r\n"))
	if !ok || n != 0 {
		t.Fatalf("n, ok = %d, %v, want 0, true", n, ok)
	}
}

func TestFormatMouseButtonBits(t *testing.T) {
	cases := []struct {
		buttons byte
		want    string
	}{
		{0, "AT+BLEHIDMOUSEBUTTON=0"},
		{mouseButtonLeft, "AT+BLEHIDMOUSEBUTTON=L"},
		{mouseButtonLeft | mouseButtonRight, "AT+BLEHIDMOUSEBUTTON=LR"},
		{mouseButtonLeft | mouseButtonRight | mouseButtonMiddle, "AT+BLEHIDMOUSEBUTTON=LRM"},
	}
	for _, c := range cases {
		got := formatMouseButton(MouseMove{Buttons: c.buttons})
		if got != c.want {
			t.Errorf("formatMouseButton(%#b) = %q, want %q", c.buttons, got, c.want)
		}
	}
}

func TestFormatKeyboardCode(t *testing.T) {
	got := formatKeyboardCode(KeyReport{Modifier: 0x02, Keys: [6]byte{0x04, 0, 0, 0, 0, 0}})
	want := "AT+BLEKEYBOARDCODE=02-00-04-00-00-00-00-00"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

// csPin toggles session state on the scripted bus it drives so the
// bus can tell a Send transaction (our header bytes) from a Receive
// transaction (all-zero clock bytes) apart.
type csPin struct {
	state bool
	bus   *scriptedBus
}

func (p *csPin) High() { p.state = true }
func (p *csPin) Low() {
	p.state = false
	if p.bus != nil {
		p.bus.beginSession()
	}
}
func (p *csPin) Get() bool { return p.state }

// scriptedBus is a fake coprocessor: it acknowledges every Send
// immediately, and answers queued Receive calls with pre-built SDEP
// response frames, one frame per Receive call, in order.
type scriptedBus struct {
	replies   []sdep.Frame
	pos       int
	cur       []byte
	cursor    int
	first     bool
	receiving bool
}

func (b *scriptedBus) beginSession() {
	b.first = true
	b.receiving = false
	b.cur = nil
	b.cursor = 0
}

func (b *scriptedBus) Transfer(tx byte) (byte, error) {
	if b.first {
		b.first = false
		b.receiving = tx == 0
	}
	if !b.receiving {
		return byte(sdep.TypeCommand), nil
	}
	if b.cur == nil {
		if b.pos >= len(b.replies) {
			return byte(sdep.TypeSlaveNotReady), nil
		}
		raw, _ := b.replies[b.pos].MarshalBinary()
		b.cur = raw
		b.pos++
	}
	rx := b.cur[b.cursor]
	b.cursor++
	return rx, nil
}

func responseFrame(payload string) sdep.Frame {
	f, _ := sdep.NewATFrame([]byte(payload), false)
	f.Type = sdep.TypeResponse
	return f
}

func newTestTransport(replies ...sdep.Frame) (*Transport, *scriptedBus, *csPin) {
	bus := &scriptedBus{replies: replies}
	cs := &csPin{bus: bus}
	irq := &csPin{}
	fr := &sdep.Framer{Bus: bus, CS: cs, IRQ: irq}
	dev := &nrf51822.Device{Framer: fr, Reset: &csPin{}}
	tr := &Transport{Dev: dev, Product: "kb2ble", Description: "test"}
	return tr, bus, irq
}

func TestATCommandReadsOKResponse(t *testing.T) {
	tr, _, irq := newTestTransport(responseFrame("Hello\r\nOK\r\n"))
	irq.High()
	var buf [32]byte
	n, ok := tr.ATCommand("AT+GAPGETCONN", buf[:], 50*time.Millisecond)
	if !ok {
		t.Fatal("expected ok response")
	}
	if string(buf[:n]) != "Hello" {
		t.Fatalf("got %q, want %q", buf[:n], "Hello")
	}
}

func TestATCommandReadsErrorResponse(t *testing.T) {
	tr, _, irq := newTestTransport(responseFrame("ERROR\r\n"))
	irq.High()
	var buf [32]byte
	_, ok := tr.ATCommand("AT+BOGUS", buf[:], 50*time.Millisecond)
	if ok {
		t.Fatal("ERROR reply must not report ok")
	}
}

func TestATCommandFireAndForgetQueuesResponseRing(t *testing.T) {
	tr, _, _ := newTestTransport()
	_, ok := tr.ATCommand("AT+BLEHIDEN=1", nil, 50*time.Millisecond)
	if !ok {
		t.Fatal("fire-and-forget dispatch should report ok immediately")
	}
	if tr.resp.Len() != 1 {
		t.Fatalf("response ring len = %d, want 1", tr.resp.Len())
	}
}

func TestRunConfigScriptSuccess(t *testing.T) {
	ok := responseFrame("OK\r\n")
	tr, _, irq := newTestTransport(ok, ok, ok, ok, ok, ok)
	irq.High()
	if !tr.runConfigScript() {
		t.Fatal("expected configuration to succeed")
	}
	if !tr.state.Configured {
		t.Fatal("Configured must be true after a successful script")
	}
}

func TestRunConfigScriptAbortsOnError(t *testing.T) {
	ok := responseFrame("OK\r\n")
	bad := responseFrame("ERROR\r\n")
	tr, _, irq := newTestTransport(ok, ok, bad, ok, ok, ok)
	irq.High()
	if tr.runConfigScript() {
		t.Fatal("expected configuration to abort on the third command")
	}
	if tr.state.Configured {
		t.Fatal("Configured must remain false after an aborted script")
	}
}

func TestTaskDispatchesQueuedReport(t *testing.T) {
	tr, _, irq := newTestTransport()
	tr.state.Configured = true
	irq.High()
	tr.Enqueue(KeyReport{Modifier: 0, Keys: [6]byte{0x04}})
	tr.Task()
	if tr.send.Len() != 0 {
		t.Fatalf("send ring should be drained after dispatch, len = %d", tr.send.Len())
	}
	if tr.resp.Len() != 1 {
		t.Fatalf("response ring should hold the dispatch's pending reply, len = %d", tr.resp.Len())
	}
}

func TestTaskAppliesBackpressureWhileResponseOutstanding(t *testing.T) {
	tr, _, _ := newTestTransport()
	tr.state.Configured = true
	tr.resp.Push(tr.nowMillis())
	tr.Enqueue(KeyReport{Modifier: 0})
	tr.Task()
	if tr.send.Len() != 1 {
		t.Fatal("send ring must not be drained while a response is outstanding")
	}
}

func TestPollConnectionBootstrapsEvents(t *testing.T) {
	tr, _, irq := newTestTransport(responseFrame("0\r\nOK\r\n"))
	irq.High()
	tr.pollConnection()
	if !tr.state.UsingEvents {
		t.Fatal("first pollConnection call must bootstrap event mode")
	}
	if tr.state.IsConnected {
		t.Fatal("GAPGETCONN reply of 0 means not connected")
	}
}
