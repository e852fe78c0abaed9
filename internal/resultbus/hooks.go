package resultbus

import (
	"strings"

	"github.com/datalad-core/datalad/internal/config"
)

// Hook is one configured result hook: when Match(record) holds, Action is
// dispatched with the record's fields bound to placeholders.
type Hook struct {
	Name   string
	Match  string // a simple "field=value[,field=value...]" expression
	Action string // a command-line template with {field} placeholders
}

// LoadHooks reads every configured datalad.result-hook.<name>.match /
// .action pair for the known hook names.
func LoadHooks(cfg *config.Store, names []string) []Hook {
	var out []Hook
	for _, name := range names {
		match, okMatch := cfg.Get("datalad.result-hook." + name + ".match")
		action, okAction := cfg.Get("datalad.result-hook." + name + ".action")
		if okMatch && okAction {
			out = append(out, Hook{Name: name, Match: match, Action: action})
		}
	}
	return out
}

// Matches evaluates h.Match against r's fields (action, status, type, path,
// plus any action-specific Fields entry).
func (h Hook) Matches(r Record) bool {
	clauses := strings.Split(h.Match, ",")
	for _, c := range clauses {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		parts := strings.SplitN(c, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key, want := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
		if r.fieldValue(key) != want {
			return false
		}
	}
	return true
}

// Render expands h.Action's placeholders from r's fields, ready to be
// tokenized and dispatched as a core command invocation by the caller.
func (h Hook) Render(r Record) string {
	out := h.Action
	for _, key := range []string{"action", "status", "type", "path"} {
		out = strings.ReplaceAll(out, "{"+key+"}", r.fieldValue(key))
	}
	for k, v := range r.Fields {
		if s, ok := v.(string); ok {
			out = strings.ReplaceAll(out, "{"+k+"}", s)
		}
	}
	return out
}

func (r Record) fieldValue(key string) string {
	switch key {
	case "action":
		return r.Action
	case "status":
		return string(r.Status)
	case "type":
		return string(r.Type)
	case "path":
		return r.Path
	default:
		if v, ok := r.Fields[key]; ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
		return ""
	}
}

// runHooks evaluates every configured hook against r, dispatching matches.
// Dispatch is left to a caller-supplied Dispatcher so resultbus does not
// import the command layer (avoiding an import cycle with cmd/datalad).
func (b *Bus) runHooks(r Record) {
	for _, h := range b.Hooks {
		if h.Matches(r) && b.HookDispatch != nil {
			b.HookDispatch(h.Render(r))
		}
	}
}
