// Package config implements ConfigStore: a precedence-ordered,
// typed view of configuration across five sources, with reload detection and
// scoped writes. It keeps the OrderedMap discipline (ordered.go) for
// multi-valued keys, and fails loud rather than silently racing on any
// mutable on-disk file via github.com/juju/fslock.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/juju/fslock"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/datalad-core/datalad/internal/errs"
)

// Scope names the six configuration scopes, ordered by ascending
// precedence; writes target exactly one of these.
type Scope int

const (
	ScopeSystem Scope = iota
	ScopeUser
	ScopeBranch
	ScopeLocal
	ScopeEnv
	ScopeOverride
)

func (s Scope) String() string {
	switch s {
	case ScopeSystem:
		return "system"
	case ScopeUser:
		return "user"
	case ScopeBranch:
		return "branch"
	case ScopeLocal:
		return "local"
	case ScopeEnv:
		return "env"
	case ScopeOverride:
		return "override"
	default:
		return "unknown"
	}
}

// fileBacked reports whether Set may target this scope directly (env and
// override are populated programmatically, never written to disk here).
func (s Scope) fileBacked() bool {
	return s == ScopeSystem || s == ScopeUser || s == ScopeBranch || s == ScopeLocal
}

// precedenceOrder lists scopes from lowest to highest precedence.
var precedenceOrder = []Scope{ScopeSystem, ScopeUser, ScopeBranch, ScopeLocal, ScopeEnv, ScopeOverride}

type fileSource struct {
	scope  Scope
	path   string
	values *orderedValues

	mu        sync.Mutex
	loadedAt  time.Time
	mtime     time.Time
	size      int64
}

// Store is the per-dataset ConfigStore. One Store is constructed per
// dataset root; BranchReader lets it also read `.datalad/config` out of a
// bare clone's HEAD without a working tree.
type Store struct {
	mu      sync.RWMutex
	sources map[Scope]*fileSource
	env     *orderedValues
	ovr     *orderedValues

	lockDir string

	// BranchReader reads the committed .datalad/config blob for a given
	// ref (defaults to HEAD); callers wire this to VcsBridge's
	// `show HEAD:.datalad/config` equivalent. Left nil in tests that do
	// not need branch-scope config.
	BranchReader func(ref string) ([]byte, error)
}

// New constructs a Store rooted at a dataset. systemPath/userPath/localPath/
// branchPath are the on-disk locations of the four file-backed scopes;
// lockDir is datalad.locations.locks, defaulting to a "locks" directory
// beside the local-scope file (the dataset's .vcs/) when empty, or to the
// system temp directory when localPath is empty as well.
func New(systemPath, userPath, localPath, branchPath, lockDir string) *Store {
	st := &Store{
		sources: map[Scope]*fileSource{
			ScopeSystem: {scope: ScopeSystem, path: systemPath, values: newOrderedValues()},
			ScopeUser:   {scope: ScopeUser, path: userPath, values: newOrderedValues()},
			ScopeBranch: {scope: ScopeBranch, path: branchPath, values: newOrderedValues()},
			ScopeLocal:  {scope: ScopeLocal, path: localPath, values: newOrderedValues()},
		},
		env:     newOrderedValues(),
		ovr:     newOrderedValues(),
		lockDir: lockDir,
	}
	st.loadEnv(os.Environ())
	for _, sc := range []Scope{ScopeSystem, ScopeUser, ScopeLocal} {
		_ = st.reloadFile(st.sources[sc])
	}
	return st
}

// envKeyToConfigKey converts DATALAD_<SECTION>_<SUBSECTION>__<KEY> into
// datalad.<section>.<subsection>-<key>: double underscore becomes a hyphen,
// everything lower-cased.
func envKeyToConfigKey(envKey string) (string, bool) {
	const prefix = "DATALAD_"
	if !strings.HasPrefix(envKey, prefix) {
		return "", false
	}
	rest := strings.TrimPrefix(envKey, prefix)
	if rest == "" {
		return "", false
	}
	rest = strings.ReplaceAll(rest, "__", "\x00HYPHEN\x00")
	parts := strings.SplitN(rest, "_", 2)
	if len(parts) != 2 {
		return "", false
	}
	section := strings.ToLower(parts[0])
	tail := strings.ReplaceAll(parts[1], "_", ".")
	tail = strings.ReplaceAll(tail, "\x00HYPHEN\x00", "-")
	return "datalad." + section + "." + strings.ToLower(tail), true
}

func (st *Store) loadEnv(environ []string) {
	st.env = newOrderedValues()
	for _, kv := range environ {
		i := strings.IndexByte(kv, '=')
		if i < 0 {
			continue
		}
		k, v := kv[:i], kv[i+1:]
		if ck, ok := envKeyToConfigKey(k); ok {
			st.env.add(normalizeKey(ck), v)
		}
	}
	// DATALAD_CONFIG_OVERRIDES_JSON carries keys env-mapping cannot
	// express . It layers into the override scope, not env, since it is
	// semantically an override table.
	if blob := os.Getenv("DATALAD_CONFIG_OVERRIDES_JSON"); blob != "" {
		var m map[string]interface{}
		if err := yaml.Unmarshal([]byte(blob), &m); err == nil {
			for k, v := range m {
				st.ovr.set(normalizeKey(k), fmt.Sprintf("%v", v))
			}
		}
	}
}

func (fs *fileSource) reload() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if fs.path == "" {
		return nil
	}
	info, err := os.Stat(fs.path)
	if os.IsNotExist(err) {
		fs.values = newOrderedValues()
		fs.mtime, fs.size = time.Time{}, 0
		return nil
	}
	if err != nil {
		return errs.Wrap(errs.Internal, err, "stat config file %s", fs.path)
	}
	// Stale-cache invalidation keyed on mtime+size.
	if info.ModTime().Equal(fs.mtime) && info.Size() == fs.size {
		return nil
	}
	raw, err := os.ReadFile(fs.path)
	if err != nil {
		return errs.Wrap(errs.Internal, err, "read config file %s", fs.path)
	}
	values, err := parseConfigFile(raw)
	if err != nil {
		return errs.Wrap(errs.InvalidArgument, err, "parse config file %s", fs.path)
	}
	fs.values = values
	fs.mtime = info.ModTime()
	fs.size = info.Size()
	fs.loadedAt = time.Now()
	return nil
}

func (st *Store) reloadFile(fs *fileSource) error {
	return fs.reload()
}

// parseConfigFile parses a git-config-like ini body: `[section "sub"]`
// headers followed by `key = value` lines, flattened to
// `section.sub-key` => value the same way VcsBridge would flatten
// `git config --list` output.
func parseConfigFile(raw []byte) (*orderedValues, error) {
	ov := newOrderedValues()
	var section, subsection string
	lines := strings.Split(string(raw), "\n")
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			body := line[1 : len(line)-1]
			if i := strings.IndexByte(body, '"'); i >= 0 {
				section = strings.TrimSpace(body[:i])
				subsection = strings.Trim(body[i:], `" `)
			} else {
				section = strings.TrimSpace(body)
				subsection = ""
			}
			continue
		}
		i := strings.IndexByte(line, '=')
		if i < 0 {
			continue
		}
		key := strings.TrimSpace(line[:i])
		val := strings.TrimSpace(line[i+1:])
		full := section
		if subsection != "" {
			full += "." + subsection
		}
		full += "-" + key
		ov.add(normalizeKey(full), val)
	}
	return ov, nil
}

func serializeConfigFile(ov *orderedValues) []byte {
	var b strings.Builder
	for _, k := range ov.keys {
		section, key := splitKey(k)
		for _, v := range ov.vals[k] {
			fmt.Fprintf(&b, "[%s]\n\t%s = %s\n", section, key, v)
		}
	}
	return []byte(b.String())
}

func splitKey(full string) (section, key string) {
	i := strings.LastIndexByte(full, '-')
	if i < 0 {
		return full, ""
	}
	return full[:i], full[i+1:]
}

// Get returns the highest-precedence single value for key, or ("", false)
// if unset in any scope.
func (st *Store) Get(key string) (string, bool) {
	vals := st.GetAll(key)
	if len(vals) == 0 {
		return "", false
	}
	return vals[len(vals)-1], true
}

// GetAll returns every value for key across all scopes, ordered from
// lowest to highest precedence.
func (st *Store) GetAll(key string) []string {
	st.mu.RLock()
	defer st.mu.RUnlock()
	key = normalizeKey(key)
	var out []string
	for _, sc := range precedenceOrder {
		var ov *orderedValues
		switch sc {
		case ScopeEnv:
			ov = st.env
		case ScopeOverride:
			ov = st.ovr
		default:
			ov = st.sources[sc].values
		}
		if ov == nil {
			continue
		}
		if v, ok := ov.get(key); ok {
			out = append(out, v...)
		}
	}
	return out
}

// KeysWithPrefix returns every distinct normalized key across all scopes
// that starts with prefix, in no particular order. Used to discover a
// deployment's configured instances of an open-ended key family (e.g.
// `datalad.get.subdataset-source-candidate-<label>`) rather than
// restricting callers to a fixed, compiled-in label list.
func (st *Store) KeysWithPrefix(prefix string) []string {
	st.mu.RLock()
	defer st.mu.RUnlock()
	prefix = normalizeKey(prefix)
	seen := make(map[string]bool)
	var out []string
	collect := func(ov *orderedValues) {
		if ov == nil {
			return
		}
		for _, k := range ov.keys {
			if strings.HasPrefix(k, prefix) && !seen[k] {
				seen[k] = true
				out = append(out, k)
			}
		}
	}
	for _, sc := range precedenceOrder {
		switch sc {
		case ScopeEnv:
			collect(st.env)
		case ScopeOverride:
			collect(st.ovr)
		default:
			collect(st.sources[sc].values)
		}
	}
	return out
}

// GetBool coerces the highest-precedence value with git-config-style
// truthy strings; malformed values raise an explicit InvalidArgument error
// rather than silently defaulting.
func (st *Store) GetBool(key string, dflt bool) (bool, error) {
	v, ok := st.Get(key)
	if !ok {
		return dflt, nil
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "yes", "on", "1":
		return true, nil
	case "false", "no", "off", "0", "":
		return false, nil
	default:
		return false, errs.New(errs.InvalidArgument, "config key %s: %q is not a boolean", key, v)
	}
}

// GetInt coerces the highest-precedence value to an integer.
func (st *Store) GetInt(key string, dflt int) (int, error) {
	v, ok := st.Get(key)
	if !ok {
		return dflt, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, errs.Wrap(errs.InvalidArgument, err, "config key %s: %q is not an integer", key, v)
	}
	return n, nil
}

// GetFloat coerces the highest-precedence value to a float.
func (st *Store) GetFloat(key string, dflt float64) (float64, error) {
	v, ok := st.Get(key)
	if !ok {
		return dflt, nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, errs.Wrap(errs.InvalidArgument, err, "config key %s: %q is not a float", key, v)
	}
	return f, nil
}

// SetOverride installs a process-level override; it
// never touches disk and always wins.
func (st *Store) SetOverride(key, value string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.ovr.set(normalizeKey(key), value)
}

// Set writes a value to a file-backed scope, guarded by a cross-process
// advisory lock on the scope file. Writing to
// ScopeBranch only stages the in-memory value and the serialized bytes;
// the caller (a RunRecorder/dsgraph command) is responsible for committing
// `.datalad/config` itself once the rest of its change is ready.
func (st *Store) Set(scope Scope, key, value string) error {
	if !scope.fileBacked() {
		return errs.New(errs.InvalidArgument, "scope %s is not file-backed", scope)
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	fs := st.sources[scope]
	if fs.path == "" {
		return errs.New(errs.InvalidArgument, "no path configured for scope %s", scope)
	}

	unlock, err := st.lockScope(scope)
	if err != nil {
		return err
	}
	defer unlock()

	if err := fs.reload(); err != nil {
		return err
	}
	fs.values.set(normalizeKey(key), value)

	if err := os.MkdirAll(filepath.Dir(fs.path), 0o755); err != nil {
		return errs.Wrap(errs.Permission, err, "create config directory for %s", fs.path)
	}
	if err := os.WriteFile(fs.path, serializeConfigFile(fs.values), 0o644); err != nil {
		return errs.Wrap(errs.Permission, err, "write config file %s", fs.path)
	}
	info, statErr := os.Stat(fs.path)
	if statErr == nil {
		fs.mtime, fs.size = info.ModTime(), info.Size()
	}
	return nil
}

// lockScope acquires the advisory lock for a scope's file under
// datalad.locations.locks, so shared on-disk state is never mutated
// without an explicit guard.
func (st *Store) lockScope(scope Scope) (unlock func(), err error) {
	dir := st.lockDir
	if dir == "" {
		if lp := st.sources[ScopeLocal].path; lp != "" {
			dir = filepath.Join(filepath.Dir(lp), "locks")
		} else {
			dir = os.TempDir()
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errs.Wrap(errs.Permission, err, "create lock directory %s", dir)
	}
	lockPath := filepath.Join(dir, "config-"+scope.String()+".lock")
	l := fslock.New(lockPath)
	if err := l.LockWithTimeout(30 * time.Second); err != nil {
		return nil, errs.Wrap(errs.Conflict, err, "acquire config lock for scope %s", scope)
	}
	return func() { _ = l.Unlock() }, nil
}

// ReloadBranch re-reads `.datalad/config` from BranchReader(ref), so a
// reader without a working tree (a bare clone) still sees branch-committed
// config.
func (st *Store) ReloadBranch(ref string) error {
	if st.BranchReader == nil {
		return nil
	}
	raw, err := st.BranchReader(ref)
	if err != nil {
		return errors.Wrapf(err, "read %s:.datalad/config", ref)
	}
	values, err := parseConfigFile(raw)
	if err != nil {
		return errs.Wrap(errs.InvalidArgument, err, "parse branch config")
	}
	st.mu.Lock()
	st.sources[ScopeBranch].values = values
	st.mu.Unlock()
	return nil
}
