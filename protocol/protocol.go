// Package protocol defines the messages exchanged between the host and an
// isolated guest, and the framing used to carry them over the guest's
// standard streams.
//
// Guest to host: messages are JSON objects wrapped in NUL-delimited frames
// (\x00SBX:{json}\x00) embedded in the guest's stderr stream, so they can be
// interleaved with ordinary stderr output. Host to guest: responses are
// newline-delimited JSON written to the guest's stdin.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Frame delimiters. The guest bootstrap emits these around every message.
const (
	FramePrefix = "\x00SBX:"
	FrameSuffix = "\x00"
)

// Kind discriminates the message union.
type Kind string

const (
	// KindCall asks the host to invoke a dispatch-table entry.
	KindCall Kind = "call"
	// KindProgress carries free-form progress text for the caller.
	KindProgress Kind = "progress"
	// KindSession mirrors a guest-side context write into the session store.
	KindSession Kind = "session"
	// KindDone reports successful completion of the script entry point.
	KindDone Kind = "done"
	// KindFatal reports an uncaught error thrown by the script entry point.
	KindFatal Kind = "fatal"
)

// Message is the guest-to-host union. Which fields are meaningful depends on
// Type: call uses ID/Namespace/Method/Args, progress uses Text, session uses
// Key/Value, done uses Value, fatal uses Error.
type Message struct {
	Type      Kind           `json:"type"`
	ID        string         `json:"id,omitempty"`
	Namespace string         `json:"ns,omitempty"`
	Method    string         `json:"method,omitempty"`
	Args      map[string]any `json:"args,omitempty"`
	Text      string         `json:"text,omitempty"`
	Key       string         `json:"key,omitempty"`
	Value     any            `json:"value,omitempty"`
	Error     *ErrorDetail   `json:"error,omitempty"`
}

// ErrorDetail is the structured error shape crossing the boundary in both
// directions: fatal messages carry one, and so do error responses.
type ErrorDetail struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Fix     string `json:"fix,omitempty"`
}

// Response answers exactly one call, matched by ID. Exactly one of Value or
// Error is set.
type Response struct {
	ID    string       `json:"id"`
	Value any          `json:"value,omitempty"`
	Error *ErrorDetail `json:"error,omitempty"`
}

// CallKey returns the dispatch lookup key for a call message.
func (m Message) CallKey() string {
	return m.Namespace + "." + m.Method
}

// DecodeMessage parses a frame payload.
func DecodeMessage(payload string) (Message, error) {
	var msg Message
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		return Message{}, fmt.Errorf("decode message: %w", err)
	}
	if msg.Type == "" {
		return Message{}, fmt.Errorf("decode message: missing type")
	}
	return msg, nil
}

// EncodeFrame renders a message as a complete stderr frame.
func EncodeFrame(msg Message) (string, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("encode frame: %w", err)
	}
	return FramePrefix + string(data) + FrameSuffix, nil
}

// EncodeResponse renders a response as one stdin line, newline included.
func EncodeResponse(resp Response) ([]byte, error) {
	data, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	return append(data, '\n'), nil
}

// FindFrame returns the index of the next frame start in content, or -1.
func FindFrame(content string) int {
	return strings.Index(content, FramePrefix)
}

// ExtractFrame pulls the frame payload beginning at idx (which must point at
// a FramePrefix). ok is false when the frame's closing delimiter has not
// arrived yet; remaining then holds the bytes to keep buffered.
func ExtractFrame(content string, idx int) (payload, remaining string, ok bool) {
	start := idx + len(FramePrefix)
	end := strings.Index(content[start:], FrameSuffix)
	if end == -1 {
		return "", content[idx:], false
	}
	return content[start : start+end], content[start+end+len(FrameSuffix):], true
}
