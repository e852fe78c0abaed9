// Package specialremote implements the annex's custom special remote
// protocol: a line-oriented dialog on stdio that lets the
// annex call into datalad-provided storage backends (the web-like "datalad"
// remote, "datalad-archives", and ORA) without either side knowing the
// other's internals beyond this wire format.
package specialremote

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/datalad-core/datalad/internal/errs"
)

// ProtocolVersion is the VERSION the helper announces at startup.
const ProtocolVersion = 1

// Request is one line the annex sent, already tokenized: verb plus the
// remaining space-separated fields, with the last field allowed to contain
// spaces.
type Request struct {
	Verb   string
	Fields []string
}

// parseLine splits one incoming protocol line into a Request, honoring the
// "last field may contain spaces" rule by capping the split count to the
// verb's known arity.
func parseLine(line string, arity int) Request {
	fields := strings.SplitN(line, " ", arity+1)
	if len(fields) == 0 {
		return Request{}
	}
	req := Request{Verb: fields[0]}
	if len(fields) > 1 {
		req.Fields = fields[1:]
	}
	return req
}

// verbArity caps the number of space-separated fields each verb expects
// before its final free-text field.
var verbArity = map[string]int{
	"PREPARE":        0,
	"TRANSFER":       3, // TRANSFER RETRIEVE|STORE key file
	"CHECKPRESENT":   1,
	"CHECKURL":       1,
	"CLAIMURL":       1,
	"GETCOST":        0,
	"GETAVAILABILITY": 0,
	"REMOVE":         1,
	"INITREMOTE":     0,
}

// Backend implements the storage operations a helper exposes; one concrete
// type per remote (datalad web-like, datalad-archives, ORA).
type Backend interface {
	Name() string
	Prepare() error
	Retrieve(key, destFile string) error
	Store(key, srcFile string) error
	CheckPresent(key string) (bool, error)
	Remove(key string) error
	ClaimURL(url string) bool
	CheckURL(url string) (present bool, size int64, err error)
	Cost() int
}

// Helper drives one Backend through the wire protocol over r/w.
type Helper struct {
	Backend Backend
	R       *bufio.Reader
	W       io.Writer

	mu         sync.Mutex
	noTerminal bool // set by the caller when stdio has no controlling terminal
}

// NewHelper constructs a Helper bound to r/w and backend.
func NewHelper(r io.Reader, w io.Writer, backend Backend, noTerminal bool) *Helper {
	return &Helper{Backend: backend, R: bufio.NewReaderSize(r, 256*1024), W: w, noTerminal: noTerminal}
}

// Serve runs the protocol loop until the annex closes its side (EOF) or a
// read fails. It does not check for a controlling terminal; RequireTerminal
// is the separate check for that.
func (h *Helper) Serve() error {
	h.writeLine("VERSION %d", ProtocolVersion)

	for {
		line, err := h.R.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return errs.Wrap(errs.External, err, "read protocol line")
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			continue
		}
		verb := strings.SplitN(line, " ", 2)[0]
		req := parseLine(line, verbArity[verb])
		if err := h.dispatch(req); err != nil {
			return err
		}
	}
}

func (h *Helper) dispatch(req Request) error {
	switch req.Verb {
	case "PREPARE":
		if err := h.Backend.Prepare(); err != nil {
			h.writeLine("PREPARE-FAILURE %s", escapeInfo(err.Error()))
			return nil
		}
		h.writeLine("PREPARE-SUCCESS")

	case "INITREMOTE":
		h.writeLine("INITREMOTE-SUCCESS")

	case "TRANSFER":
		if len(req.Fields) < 3 {
			h.writeLine("TRANSFER-FAILURE %s %s", safeField(req.Fields, 0), "malformed TRANSFER request")
			return nil
		}
		direction, key, file := req.Fields[0], req.Fields[1], req.Fields[2]
		var err error
		switch direction {
		case "RETRIEVE":
			err = h.Backend.Retrieve(key, file)
		case "STORE":
			err = h.Backend.Store(key, file)
		default:
			err = errs.New(errs.InvalidArgument, "unknown transfer direction %q", direction)
		}
		if err != nil {
			h.writeLine("TRANSFER-FAILURE %s %s %s", direction, key, escapeInfo(err.Error()))
			return nil
		}
		h.writeLine("TRANSFER-SUCCESS %s %s", direction, key)

	case "CHECKPRESENT":
		key := safeField(req.Fields, 0)
		present, err := h.Backend.CheckPresent(key)
		if err != nil {
			h.writeLine("CHECKPRESENT-UNKNOWN %s %s", key, escapeInfo(err.Error()))
			return nil
		}
		if present {
			h.writeLine("CHECKPRESENT-SUCCESS %s", key)
		} else {
			h.writeLine("CHECKPRESENT-FAILURE %s", key)
		}

	case "REMOVE":
		key := safeField(req.Fields, 0)
		if err := h.Backend.Remove(key); err != nil {
			h.writeLine("REMOVE-FAILURE %s %s", key, escapeInfo(err.Error()))
			return nil
		}
		h.writeLine("REMOVE-SUCCESS %s", key)

	case "CLAIMURL":
		url := safeField(req.Fields, 0)
		if h.Backend.ClaimURL(url) {
			h.writeLine("CLAIMURL-SUCCESS")
		} else {
			h.writeLine("CLAIMURL-FAILURE")
		}

	case "CHECKURL":
		url := safeField(req.Fields, 0)
		present, size, err := h.Backend.CheckURL(url)
		if err != nil {
			h.writeLine("CHECKURL-FAILURE")
			return nil
		}
		if !present {
			h.writeLine("CHECKURL-FAILURE")
			return nil
		}
		h.writeLine("CHECKURL-CONTENTS %d", size)

	case "GETCOST":
		h.writeLine("COST %d", h.Backend.Cost())

	case "GETAVAILABILITY":
		h.writeLine("AVAILABILITY GLOBAL")

	default:
		h.writeLine("UNSUPPORTED-REQUEST")
	}
	return nil
}

func safeField(fields []string, i int) string {
	if i < len(fields) {
		return fields[i]
	}
	return ""
}

// writeLine sends one protocol line, serialized against concurrent writers
// (a batched helper services requests from multiple goroutines once
// batched mode is negotiated).
func (h *Helper) writeLine(format string, args ...interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	fmt.Fprintf(h.W, format+"\n", args...)
}

// Info sends an INFO message, escaping embedded newlines so they cannot be
// mistaken for a protocol line boundary.
func (h *Helper) Info(text string) {
	h.writeLine("INFO %s", escapeInfo(text))
}

func escapeInfo(s string) string {
	return strings.ReplaceAll(s, "\n", `\n`)
}

// RequireTerminal returns an error instead of blocking when a verb would
// need to prompt for credentials but stdio has no controlling terminal.
func (h *Helper) RequireTerminal() error {
	if h.noTerminal {
		return errs.New(errs.Permission, "credential prompt required but no controlling terminal is attached")
	}
	return nil
}

// FormatCost renders a numeric cost for GETCOST-adjacent log lines in the
// same base-10 form the protocol itself uses.
func FormatCost(n int) string { return strconv.Itoa(n) }
