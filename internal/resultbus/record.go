// Package resultbus implements the Result Record stream every command
// emits: a single-threaded serialization
// point, renderers, a rate-limiter, filters, an on_failure policy, result
// hooks, and the top-level exit code mapping.
package resultbus

import (
	"fmt"

	"github.com/datalad-core/datalad/internal/errs"
)

// Status is one Result Record's outcome.
type Status string

const (
	StatusOK         Status = "ok"
	StatusNotNeeded  Status = "notneeded"
	StatusImpossible Status = "impossible"
	StatusError      Status = "error"
)

// ObjectType is the `type` field of a Result Record.
type ObjectType string

const (
	TypeDataset   ObjectType = "dataset"
	TypeFile      ObjectType = "file"
	TypeDirectory ObjectType = "directory"
	TypeKey       ObjectType = "key"
	TypeSymlink   ObjectType = "symlink"
)

// Record is one message produced by a command.
type Record struct {
	Action    string
	Status    Status
	Path      string // absolute
	Type      ObjectType
	Message   string // a template; Args fill it in via Fprintf-style formatting rather than pre-rendered text
	Args      []interface{}
	Exception *errs.Error
	Fields    map[string]interface{} // action-specific extras
}

// Rendered formats Message against Args, matching how the generic renderer
// prints a record.
func (r Record) Rendered() string {
	if len(r.Args) == 0 {
		return r.Message
	}
	return fmt.Sprintf(r.Message, r.Args...)
}

// similarTo reports whether r and other share the same (action, status)
// pair for the rate-limiter's "consecutive similar records" grouping; paths
// are not compared.
func (r Record) similarTo(other Record) bool {
	return r.Action == other.Action && r.Status == other.Status
}
