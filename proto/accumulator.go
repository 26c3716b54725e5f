package proto

// Accumulator reassembles one frame from a byte stream delivered in arbitrary pieces.
// The buffer holds the largest length byte a peer can send, so an oversized frame is
// consumed whole and the stream stays in sync.
type Accumulator struct {
	buf      [HeaderSize + 0xff]byte
	received int
	expected int
}

// Buf is where the next read should land. It never extends past the current frame.
func (a *Accumulator) Buf() []byte {
	if a.received < HeaderSize {
		return a.buf[a.received:HeaderSize]
	}
	return a.buf[a.received:a.expected]
}

// Advance records n bytes read into Buf and reports whether the frame is complete.
func (a *Accumulator) Advance(n int) bool {
	a.received += n
	if a.received >= HeaderSize {
		a.expected = HeaderSize + int(a.buf[PosLen])
	}
	return a.Complete()
}

func (a *Accumulator) Complete() bool {
	return a.received >= HeaderSize && a.received == a.expected
}

// Write copies as much of p as fits in the current frame.
func (a *Accumulator) Write(p []byte) (int, bool) {
	n := 0
	for n < len(p) && !a.Complete() {
		c := copy(a.Buf(), p[n:])
		n += c
		a.Advance(c)
	}
	return n, a.Complete()
}

func (a *Accumulator) Reset() {
	a.received, a.expected = 0, 0
}

// Bytes returns the bytes received so far.
func (a *Accumulator) Bytes() []byte {
	return a.buf[:a.received]
}

func (a *Accumulator) Len() int {
	return int(a.buf[PosLen])
}

func (a *Accumulator) Cmd0() byte {
	return a.buf[PosCmd0]
}

func (a *Accumulator) Cmd1() byte {
	return a.buf[PosCmd1]
}

func (a *Accumulator) Payload() []byte {
	if a.received < HeaderSize {
		return nil
	}
	return a.buf[PosData:a.received]
}

func (a *Accumulator) Received() int {
	return a.received
}

func (a *Accumulator) Expected() int {
	return a.expected
}
