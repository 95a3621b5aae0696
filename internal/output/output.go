// Package output renders command results in the global output modes
// (text, json, ndjson, agent) and maps errors to exit codes.
package output

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/Luiz-Frias/semcode/internal/api"
	"github.com/Luiz-Frias/semcode/internal/errors"
)

// Mode selects the rendering format.
type Mode string

const (
	// ModeText is the default human-readable output.
	ModeText Mode = "text"
	// ModeJSON renders one JSON document on stdout.
	ModeJSON Mode = "json"
	// ModeNDJSON renders one JSON object per event line.
	ModeNDJSON Mode = "ndjson"
	// ModeAgent is NDJSON with stable v1 error codes, meant for tools.
	ModeAgent Mode = "agent"
)

// ModeFromFlags resolves the global --json/--ndjson/--agent flags.
func ModeFromFlags(jsonFlag, ndjsonFlag, agentFlag bool) Mode {
	switch {
	case agentFlag:
		return ModeAgent
	case ndjsonFlag:
		return ModeNDJSON
	case jsonFlag:
		return ModeJSON
	default:
		return ModeText
	}
}

// Renderer writes command results.
type Renderer struct {
	mode Mode
	out  io.Writer
}

// NewRenderer creates a renderer for the mode.
func NewRenderer(mode Mode, out io.Writer) *Renderer {
	return &Renderer{mode: mode, out: out}
}

// Mode returns the active mode.
func (r *Renderer) Mode() Mode { return r.mode }

// Event emits one named event with a payload. In text mode the payload
// is rendered with %+v unless it is a string.
func (r *Renderer) Event(event string, payload any) {
	switch r.mode {
	case ModeJSON, ModeNDJSON, ModeAgent:
		record := map[string]any{"event": event, "data": payload}
		encoded, err := json.Marshal(record)
		if err != nil {
			return
		}
		fmt.Fprintln(r.out, string(encoded))
	default:
		if text, ok := payload.(string); ok {
			fmt.Fprintln(r.out, text)
			return
		}
		fmt.Fprintf(r.out, "%s: %+v\n", event, payload)
	}
}

// Error emits an error envelope in the active mode.
func (r *Renderer) Error(err error) {
	env := errors.AsEnvelope(err)
	switch r.mode {
	case ModeAgent:
		record := map[string]any{"event": "error", "error": api.ErrorToV1(err)}
		encoded, _ := json.Marshal(record)
		fmt.Fprintln(r.out, string(encoded))
	case ModeJSON, ModeNDJSON:
		record := map[string]any{
			"event": "error",
			"error": map[string]any{
				"kind":    env.Kind,
				"class":   env.Class,
				"code":    env.Code,
				"message": env.Message,
				"meta":    env.Meta,
			},
		}
		encoded, _ := json.Marshal(record)
		fmt.Fprintln(r.out, string(encoded))
	default:
		fmt.Fprintf(r.out, "error: %s\n", env.Error())
	}
}

// ExitCode maps an error to the process exit code: 0 on success, 2 for
// expected errors (validation, not found, cancellation), 1 otherwise.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if errors.KindOf(err) == errors.KindExpected {
		return 2
	}
	return 1
}
