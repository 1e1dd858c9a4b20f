package bulk

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidRequest    = errors.New("invalid bulk request")
	ErrUnknownTarget     = errors.New("unknown bulk target")
	ErrUnsupportedFormat = errors.New("export format not supported")
)

const (
	msgUpdateFailed = "Update failed"
	msgDeleteFailed = "Delete failed"
)

// Target is the kind of row a bulk operation acts on.
type Target string

const (
	TargetTask          Target = "task"
	TargetClaim         Target = "claim"
	TargetAuthorization Target = "authorization"
)

var targetTables = map[Target]string{
	TargetTask:          "authorization_tasks",
	TargetClaim:         "claims",
	TargetAuthorization: "authorization_requests",
}

// Table returns the backing table for the target.
func (t Target) Table() (string, error) {
	table, ok := targetTables[t]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownTarget, string(t))
	}
	return table, nil
}

// Operation names a bulk action for metrics and logs.
type Operation string

const (
	OpStatusUpdate Operation = "status_update"
	OpAssignment   Operation = "assignment"
	OpDelete       Operation = "delete"
	OpArchive      Operation = "archive"
	OpExport       Operation = "export"
)

// StatusArchived is written by Archive.
const StatusArchived = "archived"

type ItemError struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

// Result reports per-id outcomes. Successful+Failed always equals Total,
// and Total equals the number of ids requested.
type Result struct {
	Operation  Operation   `json:"operation"`
	Target     Target      `json:"target"`
	Total      int         `json:"total"`
	Successful int         `json:"successful"`
	Failed     int         `json:"failed"`
	Succeeded  []string    `json:"succeeded"`
	Errors     []ItemError `json:"errors"`
}

// NewResult classifies ids against the set the statement returned. A
// statement error fails every id with its message; otherwise ids missing from
// returned fail with missingMsg.
func NewResult(op Operation, target Target, ids, returned []string, stmtErr error, missingMsg string) Result {
	r := Result{
		Operation: op,
		Target:    target,
		Total:     len(ids),
		Succeeded: []string{},
		Errors:    []ItemError{},
	}
	ok := make(map[string]bool, len(returned))
	for _, id := range returned {
		ok[id] = true
	}
	for _, id := range ids {
		switch {
		case stmtErr != nil:
			r.Errors = append(r.Errors, ItemError{ID: id, Error: stmtErr.Error()})
		case ok[id]:
			r.Succeeded = append(r.Succeeded, id)
		default:
			r.Errors = append(r.Errors, ItemError{ID: id, Error: missingMsg})
		}
	}
	r.Successful = len(r.Succeeded)
	r.Failed = len(r.Errors)
	return r
}

// ExportFile is a rendered export ready for download.
type ExportFile struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"-"`
	Rows        int    `json:"rows"`
}
