// Package ps2sim is a scripted ps2.ByteSource fake, standing in for
// real PS/2 hardware the way driver/mjolnir.Simulator stands in for a
// real engraver: it replays an exact byte sequence so decoder tests
// can assert on spec scenarios byte-for-byte.
package ps2sim

// Source replays a fixed sequence of bytes, one per Recv call, then
// reports no more bytes pending.
type Source struct {
	bytes []byte
	pos   int
	err   bool
}

// New returns a Source that will yield seq, in order, before going
// empty.
func New(seq ...byte) *Source {
	return &Source{bytes: seq}
}

// Recv implements ps2.ByteSource.
func (s *Source) Recv() (byte, bool) {
	if s.pos >= len(s.bytes) {
		return 0, false
	}
	b := s.bytes[s.pos]
	s.pos++
	return b, true
}

// Err implements ps2.ByteSource. It reports the flag last set by
// SetErr (false until then, and after Reset).
func (s *Source) Err() bool {
	return s.err
}

// SetErr sets the bus-error flag that Err reports; it stays in effect
// for every subsequent byte until SetErr or Reset changes it.
func (s *Source) SetErr(v bool) {
	s.err = v
}

// Reset rewinds the source to replay seq from the start.
func (s *Source) Reset(seq ...byte) {
	s.bytes = seq
	s.pos = 0
	s.err = false
}
