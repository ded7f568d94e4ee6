package harness

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/device-conformance/conformance-tests/catalog"
)

// Requests are framed as a big-endian uint32 length followed by a JSON
// document, so the child can be implemented independently of the
// orchestrator and deserialization cannot execute code.
const maxRequestSize = 16 << 20

// ExecutionRequest is everything a child process needs to run one test. It
// is constructed once per dispatched test and consumed exactly once.
type ExecutionRequest struct {
	Test            catalog.Test        `json:"test"`
	NamespaceSuffix string              `json:"namespaceSuffix,omitempty"`
	AppCommands     map[string][]string `json:"appCommands"`
	ToolCommand     []string            `json:"toolCommand"`
	PicsFile        string              `json:"picsFile,omitempty"`
	TimeoutSeconds  int                 `json:"timeoutSeconds,omitempty"`
}

// ExecutionResult is the dispatcher-side outcome of one test.
type ExecutionResult struct {
	Passed   bool
	Duration time.Duration
	LogFile  string
	Err      error
}

// WriteRequest frames req onto w.
func WriteRequest(w io.Writer, req ExecutionRequest) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode execution request: %w", err)
	}
	if len(payload) > maxRequestSize {
		return fmt.Errorf("execution request too large (%d bytes)", len(payload))
	}
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("write execution request: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("write execution request: %w", err)
	}
	return nil
}

// ReadRequest reads one framed request from r.
func ReadRequest(r io.Reader) (ExecutionRequest, error) {
	var req ExecutionRequest
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return req, fmt.Errorf("read execution request header: %w", err)
	}
	size := binary.BigEndian.Uint32(header[:])
	if size == 0 || size > maxRequestSize {
		return req, fmt.Errorf("invalid execution request size %d", size)
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return req, fmt.Errorf("read execution request body: %w", err)
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return req, fmt.Errorf("decode execution request: %w", err)
	}
	if req.Test.Name == "" {
		return req, fmt.Errorf("execution request has no test name")
	}
	return req, nil
}
