package amiproto

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func TestFrameReader_SingleFrame(t *testing.T) {
	src := bytes.NewBufferString("Event: Newchannel\r\nChannel: SIP/1001-1\r\n\r\n")
	fr := NewFrameReader(src)

	m, err := fr.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame() error = %v", err)
	}
	if m.Event() != "Newchannel" {
		t.Errorf("Event() = %q, want Newchannel", m.Event())
	}
}

func TestFrameReader_MultipleFramesInOneRead(t *testing.T) {
	src := bytes.NewBufferString(
		"Event: Newchannel\r\nChannel: SIP/1001-1\r\n\r\n" +
			"Event: Hangup\r\nChannel: SIP/1001-1\r\nCause: 16\r\n\r\n",
	)
	fr := NewFrameReader(src)

	first, err := fr.ReadFrame()
	if err != nil {
		t.Fatalf("first ReadFrame() error = %v", err)
	}
	if first.Event() != "Newchannel" {
		t.Errorf("first Event() = %q, want Newchannel", first.Event())
	}

	second, err := fr.ReadFrame()
	if err != nil {
		t.Fatalf("second ReadFrame() error = %v", err)
	}
	if second.Event() != "Hangup" {
		t.Errorf("second Event() = %q, want Hangup", second.Event())
	}
	if second.Get("Cause") != "16" {
		t.Errorf("Cause = %q, want 16", second.Get("Cause"))
	}
}

// fragmentReader dribbles out bytes a few at a time, simulating a frame
// boundary that does not line up with a single underlying Read.
type fragmentReader struct {
	chunks [][]byte
}

func (f *fragmentReader) Read(p []byte) (int, error) {
	if len(f.chunks) == 0 {
		return 0, io.EOF
	}
	n := copy(p, f.chunks[0])
	f.chunks = f.chunks[1:]
	return n, nil
}

func TestFrameReader_FrameSplitAcrossReads(t *testing.T) {
	full := "Event: Dial\r\nChannel: SIP/1001-1\r\n\r\n"
	src := &fragmentReader{chunks: [][]byte{
		[]byte(full[:10]),
		[]byte(full[10:25]),
		[]byte(full[25:]),
	}}
	fr := NewFrameReader(src)

	m, err := fr.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame() error = %v", err)
	}
	if m.Event() != "Dial" {
		t.Errorf("Event() = %q, want Dial", m.Event())
	}
}

func TestFrameReader_PropagatesUnderlyingError(t *testing.T) {
	boom := errors.New("boom")
	src := &erroringReader{err: boom}
	fr := NewFrameReader(src)

	_, err := fr.ReadFrame()
	if !errors.Is(err, boom) {
		t.Fatalf("ReadFrame() error = %v, want %v", err, boom)
	}
}

type erroringReader struct{ err error }

func (e *erroringReader) Read(p []byte) (int, error) {
	return 0, e.err
}
