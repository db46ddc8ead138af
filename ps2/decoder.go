package ps2

import "log"

// state is one of the 14 decoder states of the Scan Code Set 2 escape
// grammar. No state carries data; transitions are keyed purely by the
// incoming byte.
type state int

const (
	stateInit state = iota
	stateF0
	stateE0
	stateE0F0
	stateE1
	stateE1_14
	stateE1_14_77
	stateE1_14_77_E1
	stateE1_14_77_E1_F0
	stateE1_14_77_E1_F0_14
	stateE1_14_77_E1_F0_14_F0
	stateE0_7E
	stateE0_7E_E0
	stateE0_7E_E0_F0
)

// Specific scan-code bytes with dedicated meaning in the decoder.
const (
	scE0        = 0xE0
	scE1        = 0xE1
	scF0        = 0xF0
	scBAT       = 0xAA
	scBATAlt    = 0xFC
	scKCF7      = 0x83
	scPrtScr    = 0x84
	scOverrun   = 0x00
	scShiftLo   = 0x12
	scShiftHi   = 0x59
	scPauseSeq1 = 0x14
	scPauseSeq2 = 0x77
	scCtrlPause = 0x7E
)

// HIDNotifier is the upstream HID report layer's "all keys up" hook,
// invoked whenever the decoder loses synchronisation and clears the
// matrix out from under it.
type HIDNotifier interface {
	AllKeysUp()
}

// Decoder drives matrix transitions from a raw Scan-Code-Set-2 byte
// stream. It is a plain owned struct, not an ambient global — construct
// one per keyboard and feed it through MatrixScan.
type Decoder struct {
	state  state
	Notify HIDNotifier
}

// MatrixScan is the firmware scheduler's entry point: it applies the
// Pause pseudo-break and then drains every scan-code byte currently
// pending on src into the decoder, mutating m.
func (d *Decoder) MatrixScan(src ByteSource, m *Matrix) {
	// The Pause key has a make sequence but no break code in Set 2.
	// Every scan begins by releasing any Pause held from the
	// previous scan, giving the host a one-scan make/break pulse.
	m.Break(PausePosition)

	for {
		b, ok := src.Recv()
		if !ok {
			return
		}
		if src.Err() {
			// Parity/framing failure: the byte is discarded,
			// decoder state is unchanged.
			continue
		}
		d.step(b, m)
	}
}

// step consumes one scan-code byte, applying exactly one state
// transition.
func (d *Decoder) step(b byte, m *Matrix) {
	switch d.state {
	case stateInit:
		d.stepInit(b, m)
	case stateF0:
		d.stepF0(b, m)
	case stateE0:
		d.stepE0(b, m)
	case stateE0F0:
		d.stepE0F0(b, m)
	case stateE1:
		d.state = transOr(b, scPauseSeq1, stateE1_14)
	case stateE1_14:
		d.state = transOr(b, scPauseSeq2, stateE1_14_77)
	case stateE1_14_77:
		d.state = transOr(b, scE1, stateE1_14_77_E1)
	case stateE1_14_77_E1:
		d.state = transOr(b, scF0, stateE1_14_77_E1_F0)
	case stateE1_14_77_E1_F0:
		d.state = transOr(b, scPauseSeq1, stateE1_14_77_E1_F0_14)
	case stateE1_14_77_E1_F0_14:
		d.state = transOr(b, scF0, stateE1_14_77_E1_F0_14_F0)
	case stateE1_14_77_E1_F0_14_F0:
		if b == scPauseSeq2 {
			m.Make(PausePosition)
		}
		d.state = stateInit
	case stateE0_7E:
		d.state = transOr(b, scE0, stateE0_7E_E0)
	case stateE0_7E_E0:
		d.state = transOr(b, scF0, stateE0_7E_E0_F0)
	case stateE0_7E_E0_F0:
		if b == scCtrlPause {
			m.Make(PausePosition)
		}
		d.state = stateInit
	default:
		d.state = stateInit
	}
}

// transOr returns next if b == want, otherwise resets to INIT — the
// shared "garbage is harmless" fallback used throughout the Pause
// escape paths.
func transOr(b, want byte, next state) state {
	if b == want {
		return next
	}
	return stateInit
}

func (d *Decoder) stepInit(b byte, m *Matrix) {
	switch {
	case b == scE0:
		d.state = stateE0
	case b == scF0:
		d.state = stateF0
	case b == scE1:
		d.state = stateE1
	case b == scKCF7:
		m.Make(KCF7Position)
		d.state = stateInit
	case b == scPrtScr:
		m.Make(PrintScreenPosition)
		d.state = stateInit
	case b == scOverrun:
		d.overrun(m)
		d.state = stateInit
	case b == scBAT || b == scBATAlt:
		// BAT completion / LED refresh notification; no matrix change.
		d.state = stateInit
	case b < 0x80:
		m.Make(Position(b))
		d.state = stateInit
	default:
		d.desync(b, m)
	}
}

func (d *Decoder) stepF0(b byte, m *Matrix) {
	switch {
	case b == scKCF7:
		m.Break(KCF7Position)
		d.state = stateInit
	case b == scPrtScr:
		m.Break(PrintScreenPosition)
		d.state = stateInit
	case b == scF0:
		// "F0 F0" is a desync, not a double break.
		d.desync(b, m)
	case b < 0x80:
		m.Break(Position(b))
		d.state = stateInit
	default:
		d.desync(b, m)
	}
}

func (d *Decoder) stepE0(b byte, m *Matrix) {
	switch {
	case b == scShiftLo || b == scShiftHi:
		// Shift-synthesis prefix: correct behaviour, not an error.
		d.state = stateInit
	case b == scCtrlPause:
		d.state = stateE0_7E
	case b == scF0:
		d.state = stateE0F0
	case b < 0x80:
		m.Make(Position(b | 0x80))
		d.state = stateInit
	default:
		d.desync(b, m)
	}
}

func (d *Decoder) stepE0F0(b byte, m *Matrix) {
	switch {
	case b == scShiftLo || b == scShiftHi:
		d.state = stateInit
	case b < 0x80:
		m.Break(Position(b | 0x80))
		d.state = stateInit
	default:
		d.desync(b, m)
	}
}

// overrun handles a 0x00 byte seen at INIT, signalling a bus buffer
// overrun.
func (d *Decoder) overrun(m *Matrix) {
	log.Printf("ps2: buffer overrun")
	m.Clear()
	if d.Notify != nil {
		d.Notify.AllKeysUp()
	}
}

// desync handles an unexpected byte >=0x80 mid-sequence, or "F0 F0".
// Conservative but prevents stuck keys across a bus desynchronisation.
func (d *Decoder) desync(b byte, m *Matrix) {
	log.Printf("ps2: desync on byte %#02x in state %d", b, d.state)
	m.Clear()
	if d.Notify != nil {
		d.Notify.AllKeysUp()
	}
	d.state = stateInit
}
