package transfer

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"text/template"
	"bytes"

	linkedhashset "github.com/emirpasic/gods/sets/linkedhashset"

	"github.com/datalad-core/datalad/internal/config"
	"github.com/datalad-core/datalad/internal/errs"
	"github.com/datalad-core/datalad/internal/vcsbridge"
)

// LocationToken is one entry in a key's availability record: a sibling
// UUID, a special-remote UUID, a URL, or a composite "URL-key" for
// web-backed keys.
type LocationToken struct {
	UUID string
	URL  string
}

// Sibling describes one registered remote and its publish-dependency chain.
type Sibling struct {
	Name           string
	FetchURL       string
	PushURL        string
	UUID           string
	PublishDepends []string
	AnnexIgnore    bool
	AnnexWanted    string
	UIHosting      bool
	// Cost is the 3-digit numeric prefix of a matching
	// datalad.get.subdataset-source-candidate-<label> entry, lower first.
	// -1 means "no explicit cost configured".
	Cost int
}

// Candidate is one location token annotated with its sibling record and
// cost, ready for ordering.
type Candidate struct {
	Token   LocationToken
	Sibling *Sibling // nil for a bare URL token with no known sibling
	Cost    int
}

// AvailabilityResolver answers "where is the bytes" for a (dataset, key)
// pair.
type AvailabilityResolver struct {
	Bridge  *vcsbridge.Bridge
	Config  *config.Store
	LocalID string // this repository's own UUID, for step "availability queries must include the local repository's UUID"
}

// Locations queries the annex for every known location token of key, via
// `git annex whereis --json`.
func (r *AvailabilityResolver) Locations(ctx context.Context, key string) ([]LocationToken, error) {
	var tokens []LocationToken
	var sawLocal bool
	err := r.Bridge.CallAnnexJSON(ctx, []string{"whereis", "--json", "--key", key}, vcsbridge.RunOpts{}, func(rec vcsbridge.AnnexRecord) bool {
		if whereis, ok := rec.Fields["whereis"].([]interface{}); ok {
			for _, w := range whereis {
				m, ok := w.(map[string]interface{})
				if !ok {
					continue
				}
				tok := LocationToken{}
				if uuid, ok := m["uuid"].(string); ok {
					tok.UUID = uuid
					if uuid == r.LocalID {
						sawLocal = true
					}
				}
				if urls, ok := m["urls"].([]interface{}); ok && len(urls) > 0 {
					if s, ok := urls[0].(string); ok {
						tok.URL = s
					}
				}
				tokens = append(tokens, tok)
			}
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	// Invariant: "For a key present in the local annex,
	// availability queries must include the local repository's UUID."
	if !sawLocal && r.LocalID != "" {
		if present, _ := r.keyPresentLocally(ctx, key); present {
			tokens = append(tokens, LocationToken{UUID: r.LocalID})
		}
	}
	return tokens, nil
}

func (r *AvailabilityResolver) keyPresentLocally(ctx context.Context, key string) (bool, error) {
	_, _, exit, err := r.Bridge.CallVcs(ctx, []string{"annex", "info", "--bytesize", key}, vcsbridge.RunOpts{})
	if err != nil && exit != 0 {
		return false, nil
	}
	return exit == 0, nil
}

// candidateLabel is a parsed
// `datalad.get.subdataset-source-candidate-<NNN-label>` config key.
type candidateLabel struct {
	cost     int
	label    string
	template string
}

// candidateLabels reads every configured candidate-source template,
// ordered by ascending numeric cost prefix.
func candidateLabels(cfg *config.Store) []candidateLabel {
	const prefix = "datalad.get.subdataset-source-candidate-"
	var out []candidateLabel
	for _, kv := range keysWithPrefix(cfg, prefix) {
		label := strings.TrimPrefix(kv.key, prefix)
		cost := -1
		name := label
		if len(label) >= 4 && label[3] == '-' {
			if n, err := strconv.Atoi(label[:3]); err == nil {
				cost = n
				name = label[4:]
			}
		}
		out = append(out, candidateLabel{cost: cost, label: name, template: kv.value})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].cost < out[j].cost })
	return out
}

type kv struct{ key, value string }

// keysWithPrefix enumerates every candidate-source key actually configured
// in cfg, via Store.KeysWithPrefix, rather than a fixed compiled-in label
// set: a deployment-configured label the compiled-in list never anticipated
// is still discovered and ordered correctly.
func keysWithPrefix(cfg *config.Store, prefix string) []kv {
	var out []kv
	for _, full := range cfg.KeysWithPrefix(prefix) {
		if v, ok := cfg.Get(full); ok {
			out = append(out, kv{key: full, value: v})
		}
	}
	return out
}

// TemplateContext supplies the fields a candidate-source template may
// reference: the subdataset's own identity and path, and its parent
// dataset's identity and path.
type TemplateContext struct {
	SubID, SubPath, SubName string
	ParentID, ParentPath     string
}

// RenderCandidate expands a candidate-source template against ctx.
func RenderCandidate(tmpl string, ctx TemplateContext) (string, error) {
	t, err := template.New("candidate").Parse(tmpl)
	if err != nil {
		return "", errs.Wrap(errs.InvalidArgument, err, "parse candidate template %q", tmpl)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, ctx); err != nil {
		return "", errs.Wrap(errs.Internal, err, "render candidate template %q", tmpl)
	}
	return buf.String(), nil
}

// Order applies the configured candidate ordering to a set of resolved
// tokens, annotating cost and deduplicating via an ordered set so a token
// named by both a sibling record and an explicit URL template is tried only
// once, in its lowest-cost position.
func Order(tokens []LocationToken, siblingsByUUID map[string]*Sibling, cfg *config.Store) []Candidate {
	seen := linkedhashset.New()
	var out []Candidate
	labels := candidateLabels(cfg)

	costFor := func(c Candidate) int {
		if c.Sibling != nil && c.Sibling.Cost > 0 {
			return c.Sibling.Cost
		}
		for _, l := range labels {
			if l.cost >= 0 {
				return l.cost
			}
		}
		return 999
	}

	for _, tok := range tokens {
		key := tok.UUID + "|" + tok.URL
		if seen.Contains(key) {
			continue
		}
		seen.Add(key)
		c := Candidate{Token: tok}
		if tok.UUID != "" {
			c.Sibling = siblingsByUUID[tok.UUID]
		}
		c.Cost = costFor(c)
		out = append(out, c)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Cost < out[j].Cost })
	return out
}
