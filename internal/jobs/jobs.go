// Package jobs persists long-running operations as cancellable background
// jobs under .context/jobs/<id>/. The status file is the single source of
// truth; only the worker transitions states.
package jobs

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/google/renameio"
	"github.com/google/uuid"

	"github.com/Luiz-Frias/semcode/internal/errors"
	"github.com/Luiz-Frias/semcode/internal/fsys"
	"github.com/Luiz-Frias/semcode/internal/pipeline"
)

// Kind is the job kind.
type Kind string

const (
	KindIndex   Kind = "index"
	KindReindex Kind = "reindex"
)

// ParseKind validates a job kind.
func ParseKind(input string) (Kind, error) {
	switch Kind(input) {
	case KindIndex:
		return KindIndex, nil
	case KindReindex:
		return KindReindex, nil
	default:
		return "", errors.InvalidInput("job kind must be index or reindex").
			WithMeta("input", input)
	}
}

// State is the persisted job state.
type State string

const (
	StateQueued    State = "queued"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Terminal reports whether no further transitions can happen.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// Request is the immutable job request payload.
type Request struct {
	ID            string `json:"id"`
	Kind          Kind   `json:"kind"`
	CodebaseRoot  string `json:"codebaseRoot"`
	InitIfMissing bool   `json:"initIfMissing,omitempty"`
	CreatedAtMs   int64  `json:"createdAtMs"`
}

// Progress is a persisted progress snapshot.
type Progress struct {
	Stage      string `json:"stage"`
	Phase      string `json:"phase"`
	Current    uint64 `json:"current"`
	Total      uint64 `json:"total"`
	Percentage uint8  `json:"percentage"`
}

// IndexResult is the result payload of an index job.
type IndexResult struct {
	IndexedFiles int                  `json:"indexedFiles"`
	TotalChunks  int                  `json:"totalChunks"`
	IndexStatus  pipeline.IndexStatus `json:"indexStatus"`
	StageStats   pipeline.StageStats  `json:"stageStats"`
}

// ReindexResult is the result payload of a reindex job.
type ReindexResult struct {
	Added    int `json:"added"`
	Removed  int `json:"removed"`
	Modified int `json:"modified"`
}

// Result is the kind-typed job result.
type Result struct {
	Index   *IndexResult   `json:"index,omitempty"`
	Reindex *ReindexResult `json:"reindex,omitempty"`
}

// JobError is the flattened error stored on failed jobs.
type JobError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Class   string `json:"class"`
}

// Status is the persisted job status.
type Status struct {
	ID              string    `json:"id"`
	Kind            Kind      `json:"kind"`
	State           State     `json:"state"`
	CreatedAtMs     int64     `json:"createdAtMs"`
	UpdatedAtMs     int64     `json:"updatedAtMs"`
	Progress        *Progress `json:"progress,omitempty"`
	Result          *Result   `json:"result,omitempty"`
	Error           *JobError `json:"error,omitempty"`
	CancelRequested bool      `json:"cancelRequested"`
	Warnings        []string  `json:"warnings,omitempty"`
}

const (
	jobsDirName     = "jobs"
	requestFileName = "request.json"
	statusFileName  = "status.json"
	cancelFileName  = "cancel"
)

// Dir returns the directory of one job.
func Dir(codebaseRoot, jobID string) string {
	return filepath.Join(codebaseRoot, fsys.StateDirName, jobsDirName, jobID)
}

// CancelSentinelPath returns the cancel sentinel file of one job.
func CancelSentinelPath(codebaseRoot, jobID string) string {
	return filepath.Join(Dir(codebaseRoot, jobID), cancelFileName)
}

func nowMs() int64 { return time.Now().UnixMilli() }

// Create persists a new queued job: immutable request.json plus the
// initial status.json.
func Create(codebaseRoot string, kind Kind, initIfMissing bool) (Request, error) {
	abs, err := filepath.Abs(codebaseRoot)
	if err != nil {
		return Request{}, errors.IO(err).WithMeta("codebaseRoot", codebaseRoot)
	}

	request := Request{
		ID:            uuid.NewString(),
		Kind:          kind,
		CodebaseRoot:  abs,
		InitIfMissing: initIfMissing,
		CreatedAtMs:   nowMs(),
	}

	dir := Dir(abs, request.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Request{}, errors.IO(err).WithMeta("path", dir)
	}
	if err := writeJSON(filepath.Join(dir, requestFileName), request); err != nil {
		return Request{}, err
	}

	status := Status{
		ID:          request.ID,
		Kind:        kind,
		State:       StateQueued,
		CreatedAtMs: request.CreatedAtMs,
		UpdatedAtMs: request.CreatedAtMs,
	}
	if err := writeJSON(filepath.Join(dir, statusFileName), status); err != nil {
		return Request{}, err
	}
	return request, nil
}

// ReadRequest loads the immutable request payload.
func ReadRequest(codebaseRoot, jobID string) (Request, error) {
	var request Request
	if err := readJSON(filepath.Join(Dir(codebaseRoot, jobID), requestFileName), &request); err != nil {
		return Request{}, err
	}
	return request, nil
}

// ReadStatus loads the persisted status.
func ReadStatus(codebaseRoot, jobID string) (Status, error) {
	var status Status
	if err := readJSON(filepath.Join(Dir(codebaseRoot, jobID), statusFileName), &status); err != nil {
		return Status{}, err
	}
	return status, nil
}

// Cancel requests cancellation: writes the sentinel file and flips
// cancelRequested in the status. The state itself is only ever moved by
// the worker.
func Cancel(codebaseRoot, jobID string) error {
	status, err := ReadStatus(codebaseRoot, jobID)
	if err != nil {
		return err
	}
	if err := os.WriteFile(CancelSentinelPath(codebaseRoot, jobID), nil, 0o644); err != nil {
		return errors.IO(err).WithMeta("jobId", jobID)
	}
	status.CancelRequested = true
	status.UpdatedAtMs = nowMs()
	return writeJSON(filepath.Join(Dir(codebaseRoot, jobID), statusFileName), status)
}

func writeJSON(path string, value any) error {
	payload, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return errors.Invariant("failed to encode job file").WithCause(err)
	}
	if err := renameio.WriteFile(path, payload, 0o644); err != nil {
		return errors.IO(err).WithMeta("path", path)
	}
	return nil
}

func readJSON(path string, target any) error {
	payload, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.Expected(errors.CodeJobNotFound, "job not found").WithMeta("path", path)
		}
		return errors.IO(err).WithMeta("path", path)
	}
	if err := json.Unmarshal(payload, target); err != nil {
		return errors.Unexpected(errors.ClassNonRetriable, errors.CodeJobStatusWrite,
			"failed to parse job file").WithCause(err)
	}
	return nil
}
