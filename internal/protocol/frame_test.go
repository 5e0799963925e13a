package protocol

import (
	"bytes"
	"testing"
)

func TestPackUnpackRoundTrip(t *testing.T) {
	a := Pack(TypeOutput, []byte("hello\r\n"))
	b := Pack(TypeInput, []byte("ls\n"))

	frames, consumed := IterFrames(append(a, b...))
	if consumed != len(a)+len(b) {
		t.Fatalf("consumed = %d, want %d", consumed, len(a)+len(b))
	}
	if len(frames) != 2 {
		t.Fatalf("got %d frames, want 2", len(frames))
	}
	if frames[0].Type != TypeOutput || !bytes.Equal(frames[0].Payload, []byte("hello\r\n")) {
		t.Errorf("frame 0 = %+v", frames[0])
	}
	if frames[1].Type != TypeInput || !bytes.Equal(frames[1].Payload, []byte("ls\n")) {
		t.Errorf("frame 1 = %+v", frames[1])
	}
}

func TestIterFramesPartialTrailing(t *testing.T) {
	full := Pack(TypeOutput, []byte("abc"))
	partial := append(full, full[:3]...) // a truncated second frame

	frames, consumed := IterFrames(partial)
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	if consumed != len(full) {
		t.Errorf("consumed = %d, want %d", consumed, len(full))
	}
}

func TestIterFramesEmpty(t *testing.T) {
	frames, consumed := IterFrames(nil)
	if frames != nil || consumed != 0 {
		t.Errorf("got (%v, %d), want (nil, 0)", frames, consumed)
	}
}

func TestResizePayloadRoundTrip(t *testing.T) {
	frame := PackResize(30, 120)
	frames, _ := IterFrames(frame)
	if len(frames) != 1 || frames[0].Type != TypeResize {
		t.Fatalf("unexpected decode: %+v", frames)
	}
	rows, cols, err := UnpackResize(frames[0].Payload)
	if err != nil {
		t.Fatalf("UnpackResize: %v", err)
	}
	if rows != 30 || cols != 120 {
		t.Errorf("got rows=%d cols=%d, want 30,120", rows, cols)
	}
}

func TestUnpackResizeBadLength(t *testing.T) {
	if _, _, err := UnpackResize([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for short payload")
	}
}

func TestMaxFrameLengthRejected(t *testing.T) {
	buf := make([]byte, headerSize)
	buf[0] = TypeOutput
	// Claim a length far beyond MaxFrameLength.
	buf[1], buf[2], buf[3], buf[4] = 0xff, 0xff, 0xff, 0xff
	frames, consumed := IterFrames(buf)
	if frames != nil || consumed != 0 {
		t.Errorf("oversized frame should stall decoding, got (%v, %d)", frames, consumed)
	}
}
