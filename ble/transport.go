// Package ble implements the BLE transport task: the AT command
// protocol layered over driver/nrf51822's SDEP framing, the bounded
// send/response rings, and the cooperative connection/battery/event
// pump.
//
// Like package ps2, Transport.Task must never block longer than the
// timeouts it is given and never spawns a goroutine — the concurrency
// model is cooperative single-threaded polling, in contrast to the
// goroutine-based host platform glue.
package ble

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"kb2ble.dev/driver/nrf51822"
	"kb2ble.dev/driver/sdep"
)

// Update intervals for the periodic connection and battery polls.
const (
	ConnectionUpdateInterval = 1 * time.Second
	BatteryUpdateInterval    = 10 * time.Second
)

// State is the transport's externally observable status, plus a
// LastError field giving the transport's various failure kinds
// somewhere to land.
type State struct {
	Initialized bool
	Configured  bool
	IsConnected bool
	UsingEvents bool

	LastConnectionUpdate time.Time
	LastBatteryUpdate    time.Time
	VBatMillivolts       int

	// LastError is excluded from the CBOR diagnostics snapshot
	// (cmd/replay's dumpSnapshot): an arbitrary error value has no
	// stable wire representation.
	LastError error `cbor:"-"`
}

// Transport owns the BLE coprocessor, both rings, and the transport
// state machine. Product/Description feed AT+GAPDEVNAME during the
// initial configuration script.
type Transport struct {
	Dev         *nrf51822.Device
	Product     string
	Description string

	// Now, if set, overrides time.Now for deterministic tests —
	// not a teacher idiom, but a plain func-field seam, not a new
	// dependency.
	Now func() time.Time

	state State
	send  SendRing
	resp  ResponseRing
}

func (t *Transport) now() time.Time {
	if t.Now != nil {
		return t.Now()
	}
	return time.Now()
}

// nowMillis returns the 16-bit wrapping millisecond timestamp used to
// tag queue items and response-ring entries.
func (t *Transport) nowMillis() uint16 {
	return uint16(t.now().UnixMilli())
}

// State returns a copy of the transport's current status.
func (t *Transport) State() State { return t.state }

// Enqueue appends a report to the send ring. It reports false if the
// ring is full, in which case the producer drops the newest item.
func (t *Transport) Enqueue(item QueueItem) bool {
	return t.send.Enqueue(item)
}

// HardwareReset pulses the coprocessor reset line once and marks the
// transport initialized. Called once during firmware bring-up, before
// the outer scan/task loop starts.
func (t *Transport) HardwareReset() {
	t.Dev.HardwareReset()
	t.state.Initialized = true
}

// AllKeysUp implements ps2.HIDNotifier: the decoder calls it after a
// matrix overrun or desync, and the transport responds by enqueuing an
// all-zero key report so the host releases every key it may still
// think is held.
func (t *Transport) AllKeysUp() {
	t.send.Enqueue(KeyReport{Added: t.nowMillis()})
}

// configScript is the initial AT configuration sequence, issued in
// order; any non-OK reply aborts configuration.
func (t *Transport) configScript() []string {
	return []string{
		"ATE=0",
		"AT+GAPINTERVALS=10,30,,",
		fmt.Sprintf("AT+GAPDEVNAME=%s %s", t.Product, t.Description),
		"AT+BLEHIDEN=1",
		"AT+BLEPOWERLEVEL=-12",
		"ATZ",
	}
}

// runConfigScript issues the configuration script and sets Configured
// on full success. It does not touch the reset line — a failed attempt
// is retried whole by the next Task call, not by resetting the
// coprocessor again.
func (t *Transport) runConfigScript() bool {
	var scratch [64]byte
	for _, cmd := range t.configScript() {
		if _, ok := t.ATCommand(cmd, scratch[:], nrf51822.CommandTimeout); !ok {
			return false
		}
	}
	t.state.Configured = true
	return true
}

// ATCommand fragments cmd across 16-byte SDEP payloads, and, when
// resp is non-nil, first drains any response
// already in flight so the forthcoming reply cannot be mistaken for an
// older command's, then reassembles the reply into resp and parses its
// trailing OK/ERROR line. When resp is nil it is fire-and-forget: the
// dispatch timestamp is recorded on the response ring and drained
// later by Task's pump, without ever inspecting the reply payload. If
// the ring is full and a drain pass frees no slot, the timestamp is
// not recorded and the call still reports ok.
func (t *Transport) ATCommand(cmd string, resp []byte, timeout time.Duration) (n int, ok bool) {
	if resp != nil {
		t.drainUntilEmpty(timeout)
	}
	if err := t.sendFragments([]byte(cmd), timeout); err != nil {
		t.state.LastError = err
		return 0, false
	}
	if resp == nil {
		for t.resp.Full() {
			if !t.drainResponses() {
				break
			}
		}
		t.resp.Push(t.nowMillis())
		return 0, true
	}
	n, err := t.readResponse(resp, timeout)
	if err != nil {
		t.state.LastError = err
		return 0, false
	}
	return parseATResponse(resp[:n])
}

// sendFragments streams cmd as a chain of SDEP command frames, 16
// bytes at a time, More set on every fragment but the last.
func (t *Transport) sendFragments(data []byte, timeout time.Duration) error {
	if len(data) == 0 {
		return t.Dev.SendFragment(nil, false, timeout)
	}
	for i := 0; i < len(data); i += sdep.PayloadSize {
		end := i + sdep.PayloadSize
		if end > len(data) {
			end = len(data)
		}
		more := end < len(data)
		if err := t.Dev.SendFragment(data[i:end], more, timeout); err != nil {
			return err
		}
	}
	return nil
}

// readResponse reassembles SDEP response frames into buf until a frame
// arrives with More unset.
func (t *Transport) readResponse(buf []byte, timeout time.Duration) (int, error) {
	n := 0
	for {
		f, err := t.Dev.ReceiveFrame(timeout)
		if err != nil {
			return n, err
		}
		if f.Type != sdep.TypeResponse {
			continue
		}
		room := len(buf) - n
		c := int(f.Len)
		if c > room {
			c = room
		}
		copy(buf[n:n+c], f.Payload[:c])
		n += c
		if !f.More {
			return n, nil
		}
	}
}

// parseATResponse strips the trailing terminal line and reports
// whether it reads OK. buf is the reassembled payload with its
// trailing "\r\nOK\r\n" or "\r\nERROR\r\n" still attached.
func parseATResponse(buf []byte) (int, bool) {
	s := strings.TrimRight(string(buf), "\r\n")
	last := s
	prefixLen := 0
	if idx := strings.LastIndex(s, "\r\n"); idx >= 0 {
		last = s[idx+2:]
		prefixLen = idx
	}
	if last != "OK" {
		return 0, false
	}
	return prefixLen, true
}

// drainResponses performs one greedy, non-blocking pass over the
// response ring: while IRQ is high it keeps receiving
// fragments of the head command's reply until a terminal frame (More
// unset) pops it; once IRQ goes low, a head older than twice the
// command timeout is treated as abandoned and popped without a reply.
// It reports whether it made any progress.
func (t *Transport) drainResponses() bool {
	progressed := false
	for t.resp.Len() > 0 {
		if t.Dev.IRQHigh() {
			f, err := t.Dev.ReceiveFrame(nrf51822.PollTimeout)
			if err != nil {
				t.state.LastError = err
				return progressed
			}
			if f.Type != sdep.TypeResponse {
				continue
			}
			if !f.More {
				t.resp.Pop()
				progressed = true
			}
			continue
		}
		head, ok := t.resp.Peek()
		if !ok {
			return progressed
		}
		if t.nowMillis()-head > uint16(2*nrf51822.CommandTimeout/time.Millisecond) {
			t.resp.Pop()
			progressed = true
			continue
		}
		return progressed
	}
	return progressed
}

// drainUntilEmpty spins drainResponses until the response ring is
// empty or timeout elapses, used by ATCommand before a reply is
// requested so a stale in-flight reply cannot be misread as the
// answer to the new command.
func (t *Transport) drainUntilEmpty(timeout time.Duration) {
	deadline := t.now().Add(timeout)
	for t.resp.Len() > 0 {
		if t.drainResponses() {
			continue
		}
		if t.now().After(deadline) {
			return
		}
		time.Sleep(nrf51822.PollTimeout)
	}
}

// Task runs the five-step cooperative pump: drain responses, bring up
// configuration if needed, dispatch one queued report, and poll events,
// connection status, and battery. It must be called repeatedly from
// the firmware's outer loop alongside ps2.Decoder.MatrixScan.
func (t *Transport) Task() {
	t.drainResponses()
	if !t.state.Configured {
		t.runConfigScript()
		return
	}
	t.sendOne()
	t.pollEvents()
	t.pollConnection()
	t.sampleBattery()
}

// sendOne dispatches at most one queued report, applying back-pressure
// while a prior dispatch's response is still outstanding.
func (t *Transport) sendOne() {
	if t.resp.Len() > 0 {
		return
	}
	item, ok := t.send.Peek()
	if !ok {
		return
	}
	if !t.dispatch(item) {
		return
	}
	t.send.Pop()
}

func (t *Transport) dispatch(item QueueItem) bool {
	switch v := item.(type) {
	case KeyReport:
		_, ok := t.ATCommand(formatKeyboardCode(v), nil, nrf51822.CommandTimeout)
		return ok
	case Consumer:
		_, ok := t.ATCommand(formatControlKey(v), nil, nrf51822.CommandTimeout)
		return ok
	case MouseMove:
		if _, ok := t.ATCommand(formatMouseMove(v), nil, nrf51822.CommandTimeout); !ok {
			return false
		}
		_, ok := t.ATCommand(formatMouseButton(v), nil, nrf51822.CommandTimeout)
		return ok
	default:
		return false
	}
}

// pollEvents checks AT+EVENTSTATUS once events are enabled and the
// coprocessor is signalling one.
func (t *Transport) pollEvents() {
	if !t.state.UsingEvents || t.resp.Len() > 0 || !t.Dev.IRQHigh() {
		return
	}
	var buf [64]byte
	n, ok := t.ATCommand("AT+EVENTSTATUS", buf[:], nrf51822.CommandTimeout)
	if !ok {
		return
	}
	mask, err := strconv.ParseUint(strings.TrimSpace(string(buf[:n])), 0, 8)
	if err != nil {
		return
	}
	switch {
	case mask&0x1 != 0:
		t.state.IsConnected = true
	case mask&0x2 != 0:
		t.state.IsConnected = false
	}
}

// pollConnection issues AT+GAPGETCONN on ConnectionUpdateInterval, and
// on its very first run also bootstraps event mode with AT+EVENTENABLE.
// It does nothing while a dispatch's response is outstanding.
func (t *Transport) pollConnection() {
	if t.resp.Len() > 0 {
		return
	}
	now := t.now()
	first := t.state.LastConnectionUpdate.IsZero()
	if !first && now.Sub(t.state.LastConnectionUpdate) < ConnectionUpdateInterval {
		return
	}
	var buf [32]byte
	if n, ok := t.ATCommand("AT+GAPGETCONN", buf[:], nrf51822.CommandTimeout); ok {
		v, err := strconv.Atoi(strings.TrimSpace(string(buf[:n])))
		if err == nil {
			t.state.IsConnected = v != 0
		}
	}
	t.state.LastConnectionUpdate = now
	if first {
		t.ATCommand("AT+EVENTENABLE=0x1", nil, nrf51822.CommandTimeout)
		t.ATCommand("AT+EVENTENABLE=0x2", nil, nrf51822.CommandTimeout)
		t.state.UsingEvents = true
	}
}

// sampleBattery issues AT+HWVBAT on BatteryUpdateInterval.
func (t *Transport) sampleBattery() {
	if t.resp.Len() > 0 {
		return
	}
	now := t.now()
	if !t.state.LastBatteryUpdate.IsZero() && now.Sub(t.state.LastBatteryUpdate) < BatteryUpdateInterval {
		return
	}
	var buf [16]byte
	if n, ok := t.ATCommand("AT+HWVBAT", buf[:], nrf51822.CommandTimeout); ok {
		if mv, err := strconv.Atoi(strings.TrimSpace(string(buf[:n]))); err == nil {
			t.state.VBatMillivolts = mv
		}
	}
	t.state.LastBatteryUpdate = now
}

// SetStatusLED and SetAuxGPIO are straightforward AT+HWMODELED/
// AT+HWGPIO passthroughs, giving the rest of the external AT surface a
// home here rather than being silently dropped.

// SetStatusLED drives the coprocessor's status LED via AT+HWMODELED.
func (t *Transport) SetStatusLED(on bool) bool {
	v := 0
	if on {
		v = 1
	}
	_, ok := t.ATCommand(fmt.Sprintf("AT+HWMODELED=%d", v), nil, nrf51822.CommandTimeout)
	return ok
}

// SetAuxGPIO drives an auxiliary coprocessor GPIO pin via AT+HWGPIO.
func (t *Transport) SetAuxGPIO(pin int, high bool) bool {
	v := 0
	if high {
		v = 1
	}
	_, ok := t.ATCommand(fmt.Sprintf("AT+HWGPIO=%d,%d", pin, v), nil, nrf51822.CommandTimeout)
	return ok
}
