package vcsbridge

import (
	"context"
	"os"
	"path/filepath"
)

// argMaxSafe is the clamped, 50%-margined upper bound on combined argv
// length used to decide when a call must be split across multiple
// invocations.
const argMaxSafe = 128 * 1024 // conservative clamp; real SC_ARG_MAX/2 is usually larger

// pathlistThreshold is the path count above which arguments are relayed via
// --pathspec-from-file instead of the command line.
const pathlistThreshold = 200

func argvLen(args []string) int {
	n := 0
	for _, a := range args {
		n += len(a) + 1
	}
	return n
}

// ChunkArgs splits a flat arg list into invocation-sized batches that stay
// under argMaxSafe, preserving any leading fixed prefix (e.g. `["commit",
// "-m", msg]`) on every batch.
func ChunkArgs(fixedPrefix []string, variadicArgs []string) [][]string {
	if argvLen(fixedPrefix)+argvLen(variadicArgs) <= argMaxSafe {
		return [][]string{append(append([]string{}, fixedPrefix...), variadicArgs...)}
	}
	var batches [][]string
	cur := append([]string{}, fixedPrefix...)
	curLen := argvLen(fixedPrefix)
	for _, a := range variadicArgs {
		if curLen+len(a)+1 > argMaxSafe && len(cur) > len(fixedPrefix) {
			batches = append(batches, cur)
			cur = append([]string{}, fixedPrefix...)
			curLen = argvLen(fixedPrefix)
		}
		cur = append(cur, a)
		curLen += len(a) + 1
	}
	if len(cur) > len(fixedPrefix) || len(batches) == 0 {
		batches = append(batches, cur)
	}
	return batches
}

// CallVcsCommit runs a commit-style VCS call whose paths may exceed
// argMaxSafe. Every invocation after the first amends the prior one so
// exactly one commit results.
func (b *Bridge) CallVcsCommit(ctx context.Context, fixedPrefix []string, paths []string, opts RunOpts) error {
	batches := ChunkArgs(fixedPrefix, paths)
	for i, batch := range batches {
		args := batch
		if i > 0 {
			args = append(append([]string{}, fixedPrefix...), "--amend", "--no-edit")
			args = append(args, batch[len(fixedPrefix):]...)
		}
		if _, _, _, err := b.CallVcs(ctx, args, opts); err != nil {
			return err
		}
	}
	return nil
}

// CallVcsWithPathspecFile relays paths via a `--pathspec-from-file` style
// temp file when their count exceeds pathlistThreshold, avoiding
// command-line length overflows.
func (b *Bridge) CallVcsWithPathspecFile(ctx context.Context, argsPrefix []string, paths []string, opts RunOpts) (stdout, stderr string, exit int, err error) {
	if len(paths) <= pathlistThreshold {
		return b.CallVcs(ctx, append(append([]string{}, argsPrefix...), paths...), opts)
	}

	f, ferr := os.CreateTemp("", "datalad-pathspec-*")
	if ferr != nil {
		return "", "", -1, ferr
	}
	defer os.Remove(f.Name())
	defer f.Close()
	for _, p := range paths {
		f.WriteString(filepath.ToSlash(p) + "\x00")
	}
	f.Close()

	args := append(append([]string{}, argsPrefix...), "--pathspec-from-file="+f.Name(), "--pathspec-file-nul")
	return b.CallVcs(ctx, args, opts)
}
