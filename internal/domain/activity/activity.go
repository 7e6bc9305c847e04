// Package activity models the documents flowing through the pipeline: raw
// JSON payloads carrying an optional activity verb used for logging and
// metrics, never interpreted beyond percolation field extraction.
package activity

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/streamtag/streamtag/internal/domain"
)

// CatchAllField is the percolation field holding every string leaf of a
// document, the default target for rule clauses without an explicit field.
const CatchAllField = "__all"

// VerbField is the percolation field holding the activity verb.
const VerbField = "verb"

// Datum is one document entering the pipeline (immutable value object).
type Datum struct {
	document []byte
	verb     string
}

// New validates and creates a Datum. The document must be a JSON object;
// the verb discriminator is optional and recovered from the document when
// not supplied.
func New(document []byte, verb string) (Datum, error) {
	var node map[string]any
	if err := json.Unmarshal(document, &node); err != nil {
		return Datum{}, domain.NewParseError(err)
	}
	if verb == "" {
		if v, ok := node[VerbField].(string); ok {
			verb = v
		}
	}
	return Datum{document: document, verb: verb}, nil
}

// Document returns the raw JSON payload.
func (d Datum) Document() []byte { return d.document }

// Verb returns the activity verb discriminator; may be empty.
func (d Datum) Verb() string { return d.verb }

// Fields flattens a JSON document into percolation match fields: every
// top-level scalar becomes a named field, and all string leaves (recursive)
// are joined into the catch-all field. A document that fails to decode
// yields a ParseError before any store interaction.
func Fields(document []byte) (map[string]string, error) {
	var node map[string]any
	if err := json.Unmarshal(document, &node); err != nil {
		return nil, domain.NewParseError(err)
	}

	fields := make(map[string]string, len(node)+1)
	for k, v := range node {
		if s, ok := scalarString(v); ok {
			fields[k] = s
		}
	}

	var leaves []string
	collectStrings(node, &leaves)
	sort.Strings(leaves) // map iteration order must not leak into the catch-all
	fields[CatchAllField] = strings.Join(leaves, " ")

	return fields, nil
}

func scalarString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(t), true
	default:
		return "", false
	}
}

func collectStrings(v any, out *[]string) {
	switch t := v.(type) {
	case string:
		if t != "" {
			*out = append(*out, t)
		}
	case map[string]any:
		for _, child := range t {
			collectStrings(child, out)
		}
	case []any:
		for _, child := range t {
			collectStrings(child, out)
		}
	}
}

// Validate reports whether the document decodes as a JSON object.
func Validate(document []byte) error {
	var node map[string]any
	if err := json.Unmarshal(document, &node); err != nil {
		return domain.NewParseError(fmt.Errorf("decode document: %w", err))
	}
	return nil
}
