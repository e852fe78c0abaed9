package config

import (
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/datalad-core/datalad/internal/errs"
)

// Provider is one `datalad.credential.<name>.*` entry. Field is the closed set {type, url, user, token, secret,
// host}; Store keeps them as plain config keys and Provider is just a
// typed view over a name's fields.
type Provider struct {
	Name   string
	Type   string
	URL    string
	User   string
	Token  string
	Secret string
	Host   string
}

// Providers enumerates every `datalad.credential.<name>` block the store
// knows about, by scanning all configured keys for that prefix.
func (st *Store) Providers() []Provider {
	st.mu.RLock()
	names := map[string]bool{}
	scan := func(ov *orderedValues) {
		for _, k := range ov.keys {
			if !strings.HasPrefix(k, "datalad.credential.") {
				continue
			}
			rest := strings.TrimPrefix(k, "datalad.credential.")
			i := strings.IndexByte(rest, '.')
			if i < 0 {
				continue
			}
			names[rest[:i]] = true
		}
	}
	for _, sc := range st.sources {
		scan(sc.values)
	}
	scan(st.env)
	scan(st.ovr)
	st.mu.RUnlock()

	out := make([]Provider, 0, len(names))
	for name := range names {
		p := Provider{Name: name}
		p.Type, _ = st.Get("datalad.credential." + name + ".type")
		p.URL, _ = st.Get("datalad.credential." + name + ".url")
		p.User, _ = st.Get("datalad.credential." + name + ".user")
		p.Token, _ = st.Get("datalad.credential." + name + ".token")
		p.Secret, _ = st.Get("datalad.credential." + name + ".secret")
		p.Host, _ = st.Get("datalad.credential." + name + ".host")
		out = append(out, p)
	}
	return out
}

// MatchProvider selects a provider for url by longest-prefix match on its
// configured url field, falling back to anonymous access (nil, nil) when
// nothing matches.
func (st *Store) MatchProvider(url string) (*Provider, error) {
	providers := st.Providers()
	var best *Provider
	bestLen := -1
	for i := range providers {
		p := &providers[i]
		if p.URL == "" {
			continue
		}
		if strings.HasPrefix(url, p.URL) && len(p.URL) > bestLen {
			best = p
			bestLen = len(p.URL)
		}
	}
	return best, nil
}

// PromptSecret reads a credential's secret from fd without echoing it,
// for a Provider whose secret field is empty and must be supplied
// interactively. PromptSecret does not check for a terminal itself; when fd
// is not one, the no-echo read fails and that error is returned.
func PromptSecret(w io.Writer, fd int, prompt string) (string, error) {
	fmt.Fprint(w, prompt)
	raw, err := term.ReadPassword(fd)
	fmt.Fprintln(w)
	if err != nil {
		return "", errs.Wrap(errs.Permission, err, "read secret from terminal")
	}
	return string(raw), nil
}

// CredentialLockTimeout is the wait limit named in ErrCredentialTimeout's
// message.
const CredentialLockTimeout = 5 * time.Minute

// ErrCredentialTimeout builds the error for a credential-lock wait that
// exceeded CredentialLockTimeout. Nothing in this module calls it.
func ErrCredentialTimeout(provider string) error {
	return errs.New(errs.Permission, "timed out after %s waiting for credential lock on provider %q", CredentialLockTimeout, provider)
}
