// Package drift detects structural changes in upstream payloads by comparing
// the shape of a live sample against a golden reference document. Only field
// names and kinds are compared; values never are.
package drift

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/ahmethakanbesel/market-ingest/internal/schema"
)

type DiffType string

const (
	// Missing: present in the golden document, absent from the sample.
	Missing DiffType = "missing"
	// Unexpected: present in the sample, absent from the golden document.
	Unexpected DiffType = "unexpected"
	// KindChanged: present in both with different kinds.
	KindChanged DiffType = "kind_changed"
)

type Difference struct {
	Path   string   `json:"path"`
	Type   DiffType `json:"type"`
	Golden string   `json:"golden,omitempty"`
	Sample string   `json:"sample,omitempty"`
}

func (d Difference) String() string {
	switch d.Type {
	case Missing:
		return fmt.Sprintf("%s: missing (want %s)", d.Path, d.Golden)
	case Unexpected:
		return fmt.Sprintf("%s: unexpected %s", d.Path, d.Sample)
	default:
		return fmt.Sprintf("%s: %s -> %s", d.Path, d.Golden, d.Sample)
	}
}

// Report lists every structural difference found, ordered by path.
type Report struct {
	Differences []Difference `json:"differences"`
}

func (r *Report) String() string {
	parts := make([]string, len(r.Differences))
	for i, d := range r.Differences {
		parts[i] = d.String()
	}
	return strings.Join(parts, "; ")
}

// Shape replaces every leaf of doc with the name of its kind. Objects become
// map[string]any, arrays become []any, leaves become strings.
func Shape(doc gjson.Result) any {
	switch {
	case doc.IsObject():
		out := make(map[string]any)
		doc.ForEach(func(key, value gjson.Result) bool {
			out[key.String()] = Shape(value)
			return true
		})
		return out
	case doc.IsArray():
		items := doc.Array()
		out := make([]any, len(items))
		for i, item := range items {
			out[i] = Shape(item)
		}
		return out
	default:
		return string(schema.KindOf(doc))
	}
}

// Detect compares the shapes of golden and sample and returns nil when they
// are structurally identical.
func Detect(golden, sample []byte) *Report {
	diffs := diff("", Shape(gjson.ParseBytes(golden)), Shape(gjson.ParseBytes(sample)), nil)
	if len(diffs) == 0 {
		return nil
	}
	return &Report{Differences: diffs}
}

func diff(path string, golden, sample any, out []Difference) []Difference {
	gm, gIsMap := golden.(map[string]any)
	sm, sIsMap := sample.(map[string]any)
	if gIsMap && sIsMap {
		keys := make([]string, 0, len(gm)+len(sm))
		for k := range gm {
			keys = append(keys, k)
		}
		for k := range sm {
			if _, ok := gm[k]; !ok {
				keys = append(keys, k)
			}
		}
		slices.Sort(keys)

		for _, k := range keys {
			child := join(path, k)
			g, inGolden := gm[k]
			s, inSample := sm[k]
			switch {
			case !inSample:
				out = append(out, Difference{Path: child, Type: Missing, Golden: kindName(g)})
			case !inGolden:
				out = append(out, Difference{Path: child, Type: Unexpected, Sample: kindName(s)})
			default:
				out = diff(child, g, s, out)
			}
		}
		return out
	}

	// Arrays are assumed homogeneous and compared by their first element.
	ga, gIsArr := golden.([]any)
	sa, sIsArr := sample.([]any)
	if gIsArr && sIsArr {
		if len(ga) > 0 && len(sa) > 0 {
			return diff(path+"[]", ga[0], sa[0], out)
		}
		return out
	}

	if g, s := kindName(golden), kindName(sample); g != s {
		out = append(out, Difference{Path: pathOrRoot(path), Type: KindChanged, Golden: g, Sample: s})
	}
	return out
}

func kindName(shape any) string {
	switch v := shape.(type) {
	case map[string]any:
		return string(schema.KindObject)
	case []any:
		return string(schema.KindArray)
	case string:
		return v
	default:
		return "unknown"
	}
}

func join(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

func pathOrRoot(path string) string {
	if path == "" {
		return "$"
	}
	return path
}

// Detector holds the golden document of one source and reports drift as a
// warning. It never returns an error and never blocks the caller.
type Detector struct {
	source string
	golden []byte
	notify func(source string, r *Report)
}

type Option func(*Detector)

// WithNotify registers a hook called for every non-empty report.
func WithNotify(fn func(source string, r *Report)) Option {
	return func(d *Detector) { d.notify = fn }
}

func NewDetector(source string, golden []byte, opts ...Option) *Detector {
	d := &Detector{source: source, golden: golden}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Check compares a single sample record against the golden document.
func (d *Detector) Check(sample []byte) *Report {
	if d == nil || len(d.golden) == 0 {
		return nil
	}

	r := Detect(d.golden, sample)
	if r == nil {
		return nil
	}

	slog.Warn("schema drift detected", "source", d.source,
		"differences", len(r.Differences), "detail", r.String())
	if d.notify != nil {
		d.notify(d.source, r)
	}
	return r
}

// CheckBatch checks the first element of a JSON array. Empty or non-array
// batches are skipped.
func (d *Detector) CheckBatch(batch []byte) *Report {
	first := gjson.GetBytes(batch, "0")
	if !gjson.ParseBytes(batch).IsArray() || !first.Exists() {
		return nil
	}
	return d.Check([]byte(first.Raw))
}
