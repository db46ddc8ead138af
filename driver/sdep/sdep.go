// Package sdep implements SDEP (Simple Data Exchange Protocol), the
// 20-byte fixed-frame SPI protocol used to talk to a BLE coprocessor
// such as the Nordic nRF51822 behind an Adafruit Bluefruit LE SPI
// Friend module.
//
// The Bus/Pin shape adapts a one-shot addressed-transact abstraction to
// a raw SPI byte-clock, because SDEP needs to toggle chip-select
// mid-transaction for the not-ready backoff, which a single combined
// Tx call cannot express.
package sdep

import (
	"errors"
	"time"
)

// PayloadSize is the maximum payload carried by a single SDEP frame.
const PayloadSize = 16

// FrameSize is the fixed wire size of an SDEP frame: type, cmd_lo,
// cmd_hi, len|more, and a 16-byte payload.
const FrameSize = 4 + PayloadSize

// Type is the SDEP frame type byte.
type Type byte

const (
	TypeCommand       Type = 0x10
	TypeResponse      Type = 0x20
	TypeAlert         Type = 0x40
	TypeError         Type = 0x80
	TypeSlaveNotReady Type = 0xFE
	TypeSlaveOverflow Type = 0xFF
)

// BackoffDelay is the pause between a SlaveNotReady NAK and the next
// retry.
const BackoffDelay = 25 * time.Microsecond

// BleAtWrapper is the SDEP command id carrying fragments of an AT
// command.
const BleAtWrapper = 0x0A00

var (
	ErrTimeout       = errors.New("sdep: timed out waiting for the slave")
	ErrPayloadTooBig = errors.New("sdep: payload exceeds 16 bytes")
)

// Frame is the 20-byte SDEP wire layout.
type Frame struct {
	Type         Type
	CmdLo, CmdHi byte
	Len          byte
	More         bool
	Payload      [PayloadSize]byte
}

// NewATFrame builds a Command-typed BleAtWrapper frame carrying up to
// 16 bytes of an AT command fragment.
func NewATFrame(payload []byte, more bool) (Frame, error) {
	if len(payload) > PayloadSize {
		return Frame{}, ErrPayloadTooBig
	}
	f := Frame{
		Type: TypeCommand,
		CmdLo: byte(BleAtWrapper & 0xff),
		CmdHi: byte(BleAtWrapper >> 8),
		Len:   byte(len(payload)),
		More:  more,
	}
	copy(f.Payload[:], payload)
	return f, nil
}

// MarshalBinary encodes f into its 20-byte wire form.
func (f Frame) MarshalBinary() ([]byte, error) {
	if f.Len > PayloadSize {
		return nil, ErrPayloadTooBig
	}
	b := make([]byte, FrameSize)
	b[0] = byte(f.Type)
	b[1] = f.CmdLo
	b[2] = f.CmdHi
	lenMore := f.Len & 0x7f
	if f.More {
		lenMore |= 0x80
	}
	b[3] = lenMore
	copy(b[4:], f.Payload[:])
	return b, nil
}

// UnmarshalBinary decodes a 20-byte wire form into f.
func (f *Frame) UnmarshalBinary(data []byte) error {
	if len(data) != FrameSize {
		return errors.New("sdep: frame must be exactly 20 bytes")
	}
	f.Type = Type(data[0])
	f.CmdLo = data[1]
	f.CmdHi = data[2]
	f.Len = data[3] & 0x7f
	f.More = data[3]&0x80 != 0
	if f.Len > PayloadSize {
		return ErrPayloadTooBig
	}
	copy(f.Payload[:], data[4:])
	return nil
}

// Bus is the raw full-duplex SPI byte transfer a Framer drives (MSB
// first, mode 0). It strips an addressed-bus Tx call down to a single
// clocked byte, since the framer itself owns chip-select and must be
// able to toggle it between individual byte transfers.
type Bus interface {
	Transfer(tx byte) (rx byte, err error)
}

// Pin is chip-select, IRQ, or reset as seen by the framer: the subset
// of machine.Pin it needs.
type Pin interface {
	High()
	Low()
	Get() bool
}

// Framer builds, sends, and receives SDEP frames over a half-duplex
// SPI bus with slave-not-ready back-off.
type Framer struct {
	Bus Bus
	CS  Pin
	IRQ Pin
}

// Send transmits f, retrying on SlaveNotReady until timeout elapses.
func (fr *Framer) Send(f Frame, timeout time.Duration) error {
	raw, err := f.MarshalBinary()
	if err != nil {
		return err
	}
	deadline := time.Now().Add(timeout)
	for {
		fr.CS.Low()
		echo, err := fr.Bus.Transfer(raw[0])
		if err != nil {
			fr.CS.High()
			return err
		}
		if Type(echo) == TypeSlaveNotReady {
			fr.CS.High()
			if time.Now().After(deadline) {
				return ErrTimeout
			}
			time.Sleep(BackoffDelay)
			continue
		}
		for _, b := range raw[1:] {
			if _, err := fr.Bus.Transfer(b); err != nil {
				fr.CS.High()
				return err
			}
		}
		fr.CS.High()
		return nil
	}
}

// Receive polls IRQ and reads one SDEP frame, retrying on
// SlaveNotReady/SlaveOverflow until timeout elapses.
func (fr *Framer) Receive(timeout time.Duration) (Frame, error) {
	deadline := time.Now().Add(timeout)
	for !fr.IRQ.Get() {
		if time.Now().After(deadline) {
			return Frame{}, ErrTimeout
		}
	}
	for {
		fr.CS.Low()
		typeByte, err := fr.Bus.Transfer(0)
		if err != nil {
			fr.CS.High()
			return Frame{}, err
		}
		t := Type(typeByte)
		if t == TypeSlaveNotReady || t == TypeSlaveOverflow {
			fr.CS.High()
			if time.Now().After(deadline) {
				return Frame{}, ErrTimeout
			}
			time.Sleep(BackoffDelay)
			continue
		}
		raw := make([]byte, FrameSize)
		raw[0] = typeByte
		for i := 1; i < 4; i++ {
			b, err := fr.Bus.Transfer(0)
			if err != nil {
				fr.CS.High()
				return Frame{}, err
			}
			raw[i] = b
		}
		length := raw[3] & 0x7f
		if length > PayloadSize {
			fr.CS.High()
			return Frame{}, ErrPayloadTooBig
		}
		for i := 0; i < int(length); i++ {
			b, err := fr.Bus.Transfer(0)
			if err != nil {
				fr.CS.High()
				return Frame{}, err
			}
			raw[4+i] = b
		}
		fr.CS.High()
		var f Frame
		if err := f.UnmarshalBinary(raw); err != nil {
			return Frame{}, err
		}
		return f, nil
	}
}
