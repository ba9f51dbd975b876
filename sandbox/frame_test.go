package sandbox

import (
	"testing"

	"github.com/scriptbox-dev/scriptbox/protocol"
)

func TestFrameHandlerRoutesAcrossWrites(t *testing.T) {
	var got []protocol.Message
	h := newFrameHandler(func(msg protocol.Message) { got = append(got, msg) })

	// One frame split over two writes, with interpreter noise around it.
	h.Write([]byte("noise before\x00SBX:{\"type\":\"prog"))
	h.Write([]byte("ress\",\"text\":\"hi\"}\x00noise after"))

	if len(got) != 1 {
		t.Fatalf("routed %d messages, want 1", len(got))
	}
	if got[0].Type != protocol.KindProgress || got[0].Text != "hi" {
		t.Errorf("message = %+v", got[0])
	}
	if h.Stderr() != "noise beforenoise after" {
		t.Errorf("stderr = %q", h.Stderr())
	}
}

func TestFrameHandlerMultipleFramesOneWrite(t *testing.T) {
	var got []protocol.Message
	h := newFrameHandler(func(msg protocol.Message) { got = append(got, msg) })

	h.Write([]byte("\x00SBX:{\"type\":\"progress\",\"text\":\"a\"}\x00\x00SBX:{\"type\":\"done\",\"value\":1}\x00"))

	if len(got) != 2 {
		t.Fatalf("routed %d messages, want 2", len(got))
	}
	if got[0].Text != "a" || got[1].Type != protocol.KindDone {
		t.Errorf("messages = %+v", got)
	}
}

func TestFrameHandlerDropsMalformedFrame(t *testing.T) {
	var got []protocol.Message
	h := newFrameHandler(func(msg protocol.Message) { got = append(got, msg) })

	h.Write([]byte("\x00SBX:{not json}\x00\x00SBX:{\"type\":\"done\"}\x00"))

	if len(got) != 1 || got[0].Type != protocol.KindDone {
		t.Errorf("messages = %+v, want only the valid frame", got)
	}
}
