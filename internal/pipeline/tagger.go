package pipeline

import (
	"encoding/json"
	"fmt"

	"github.com/streamtag/streamtag/internal/domain"
)

// Keys of the tagging namespace inside a document.
const (
	ExtensionsProperty = "extensions"
	TagsExtension      = "tags"
)

// Tag writes the matched rule ids into the document's extensions namespace
// under the tags key and returns the new document. Copy-on-tag: the input
// bytes are never mutated. An empty match set still writes an empty tag
// array so downstream consumers can tell "no matches" from "never
// evaluated". All pre-existing fields are preserved; the extensions
// namespace is created when absent, and a pre-existing non-object value
// there is a parse error rather than silently replaced.
func Tag(document []byte, matched []string) ([]byte, error) {
	var node map[string]any
	if err := json.Unmarshal(document, &node); err != nil {
		return nil, domain.NewParseError(err)
	}

	extensions := make(map[string]any, 1)
	if raw, present := node[ExtensionsProperty]; present && raw != nil {
		obj, ok := raw.(map[string]any)
		if !ok {
			return nil, domain.NewParseError(fmt.Errorf("%s is not an object", ExtensionsProperty))
		}
		extensions = obj
	}

	tags := make([]string, len(matched))
	copy(tags, matched)
	extensions[TagsExtension] = tags
	node[ExtensionsProperty] = extensions

	tagged, err := json.Marshal(node)
	if err != nil {
		return nil, fmt.Errorf("encode tagged document: %w", err)
	}
	return tagged, nil
}
