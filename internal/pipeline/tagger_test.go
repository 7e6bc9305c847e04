package pipeline

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/streamtag/streamtag/internal/domain"
)

func decodeTags(t *testing.T, doc []byte) (map[string]any, []any) {
	t.Helper()
	var node map[string]any
	if err := json.Unmarshal(doc, &node); err != nil {
		t.Fatalf("tagged document is not valid JSON: %v", err)
	}
	ext, ok := node[ExtensionsProperty].(map[string]any)
	if !ok {
		t.Fatalf("missing extensions namespace: %s", doc)
	}
	tags, ok := ext[TagsExtension].([]any)
	if !ok {
		t.Fatalf("missing tags: %s", doc)
	}
	return node, tags
}

func TestTag_AttachesMatchedIDs(t *testing.T) {
	tagged, err := Tag([]byte(`{"verb":"post"}`), []string{"posts", "mentions"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	node, tags := decodeTags(t, tagged)
	if node["verb"] != "post" {
		t.Error("pre-existing fields must be preserved")
	}
	if !reflect.DeepEqual(tags, []any{"posts", "mentions"}) {
		t.Errorf("tags = %v", tags)
	}
}

func TestTag_EmptyMatchSetWritesEmptyArray(t *testing.T) {
	tagged, err := Tag([]byte(`{"verb":"post"}`), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// "no matches" must be distinguishable from "never evaluated".
	_, tags := decodeTags(t, tagged)
	if len(tags) != 0 {
		t.Errorf("tags = %v, want empty array", tags)
	}
}

func TestTag_PreservesOtherExtensions(t *testing.T) {
	tagged, err := Tag([]byte(`{"extensions":{"source":"feed"}}`), []string{"r1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	node, tags := decodeTags(t, tagged)
	ext := node[ExtensionsProperty].(map[string]any)
	if ext["source"] != "feed" {
		t.Error("sibling extensions must be preserved")
	}
	if !reflect.DeepEqual(tags, []any{"r1"}) {
		t.Errorf("tags = %v", tags)
	}
}

func TestTag_OverwritesStaleTags(t *testing.T) {
	tagged, err := Tag([]byte(`{"extensions":{"tags":["stale"]}}`), []string{"fresh"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, tags := decodeTags(t, tagged)
	if !reflect.DeepEqual(tags, []any{"fresh"}) {
		t.Errorf("tags = %v", tags)
	}
}

func TestTag_DoesNotMutateInput(t *testing.T) {
	original := []byte(`{"verb":"post"}`)
	input := make([]byte, len(original))
	copy(input, original)

	if _, err := Tag(input, []string{"r1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(input) != string(original) {
		t.Error("input bytes were mutated")
	}
}

func TestTag_CopiesMatchedSlice(t *testing.T) {
	matched := []string{"r1", "r2"}
	tagged, err := Tag([]byte(`{}`), matched)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	matched[0] = "mutated"

	_, tags := decodeTags(t, tagged)
	if tags[0] != "r1" {
		t.Error("tagged document must not alias the caller's slice")
	}
}

func TestTag_MalformedDocument(t *testing.T) {
	if _, err := Tag([]byte(`{broken`), nil); !errors.Is(err, domain.ErrParse) {
		t.Fatalf("expected ErrParse, got %v", err)
	}
}

func TestTag_NonObjectExtensions(t *testing.T) {
	// Overwriting a non-object value would drop data instead of preserving it.
	for _, doc := range []string{
		`{"extensions":"v1"}`,
		`{"extensions":[1,2]}`,
		`{"extensions":42}`,
	} {
		if _, err := Tag([]byte(doc), []string{"r1"}); !errors.Is(err, domain.ErrParse) {
			t.Errorf("%s: expected ErrParse, got %v", doc, err)
		}
	}
}

func TestTag_NullExtensions(t *testing.T) {
	tagged, err := Tag([]byte(`{"extensions":null}`), []string{"r1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, tags := decodeTags(t, tagged)
	if !reflect.DeepEqual(tags, []any{"r1"}) {
		t.Errorf("tags = %v", tags)
	}
}
