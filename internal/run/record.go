// Package run implements the record/execute/rerun commands: running an
// arbitrary command against a dataset, recording its inputs/outputs/exit
// code in the resulting commit message, and later replaying that commit
// from the recorded command line.
package run

import (
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/datalad-core/datalad/internal/errs"
)

// recordMarkerStart/recordMarkerEnd bound the machine-parseable block
// embedded in a run commit's message, leaving the free-form subject line
// outside it so `git log --oneline` stays readable.
const (
	recordMarkerStart = "=== Do not change lines below ==="
	recordMarkerEnd   = "^^^ Do not change lines above ^^^"
)

// Record is the Run Record embedded in a run commit.
type Record struct {
	Command  string   `yaml:"cmd"`
	Exit     int      `yaml:"exit"`
	Inputs   []string `yaml:"inputs,omitempty"`
	Outputs  []string `yaml:"outputs,omitempty"`
	PWD      string   `yaml:"pwd"`
	ChainID  string   `yaml:"chain,omitempty"` // carried across rerun so a replay of a replay stays traceable
}

// Encode renders subject (the free-form summary line the user supplied or
// a default derived from the command) plus the machine-parseable block
// into one commit message.
func Encode(subject string, r Record) (string, error) {
	body, err := yaml.Marshal(r)
	if err != nil {
		return "", errs.Wrap(errs.Internal, err, "marshal run record")
	}
	var b strings.Builder
	b.WriteString(subject)
	b.WriteString("\n\n")
	b.WriteString(recordMarkerStart)
	b.WriteString("\n")
	b.Write(body)
	b.WriteString(recordMarkerEnd)
	b.WriteString("\n")
	return b.String(), nil
}

// Decode extracts a Record from a commit message, returning ok=false when
// the message carries no Run Record block (an ordinary, non-run commit).
func Decode(message string) (r Record, subject string, ok bool, err error) {
	start := strings.Index(message, recordMarkerStart)
	if start < 0 {
		return Record{}, "", false, nil
	}
	subject = strings.TrimSpace(message[:start])
	rest := message[start+len(recordMarkerStart):]
	end := strings.Index(rest, recordMarkerEnd)
	if end < 0 {
		return Record{}, "", false, errs.New(errs.Conflict, "run record block has no closing marker")
	}
	yamlBody := rest[:end]
	if yErr := yaml.Unmarshal([]byte(yamlBody), &r); yErr != nil {
		return Record{}, "", false, errs.Wrap(errs.Conflict, yErr, "parse run record")
	}
	return r, subject, true, nil
}
