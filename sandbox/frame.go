package sandbox

import (
	"bytes"
	"sync"

	"github.com/scriptbox-dev/scriptbox/protocol"
)

// frameHandler is the guest's stderr sink. Protocol frames are reassembled
// across writes and routed as decoded messages; ordinary stderr output
// passes through to a side buffer (useful for interpreter error text).
type frameHandler struct {
	route func(protocol.Message)

	mu     sync.Mutex
	buf    bytes.Buffer
	stderr bytes.Buffer
}

func newFrameHandler(route func(protocol.Message)) *frameHandler {
	return &frameHandler{route: route}
}

func (h *frameHandler) Write(data []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.buf.Write(data)

	for {
		content := h.buf.String()

		idx := protocol.FindFrame(content)
		if idx == -1 {
			h.stderr.WriteString(content)
			h.buf.Reset()
			break
		}

		h.stderr.WriteString(content[:idx])

		payload, remaining, ok := protocol.ExtractFrame(content, idx)
		h.buf.Reset()
		h.buf.WriteString(remaining)
		if !ok {
			break
		}

		msg, err := protocol.DecodeMessage(payload)
		if err != nil {
			// Malformed frame; nothing sane to route.
			continue
		}
		h.route(msg)
	}

	return len(data), nil
}

// Stderr returns the non-protocol stderr output seen so far.
func (h *frameHandler) Stderr() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stderr.String()
}
