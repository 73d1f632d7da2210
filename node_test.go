package subdoc_test

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/agentflare-ai/subdoc"
)

func TestParseDocumentRoundTrip(t *testing.T) {
	testCases := []struct {
		name     string
		doc      string
		expected string
	}{
		{name: "object order kept", doc: `{"z":1,"a":2,"m":3}`, expected: `{"z":1,"a":2,"m":3}`},
		{name: "number literals kept", doc: `{"int":1,"float":2.0,"exp":1e10,"neg":-0.50}`, expected: `{"int":1,"float":2.0,"exp":1e10,"neg":-0.50}`},
		{name: "whitespace dropped", doc: " { \"a\" : [ 1 , true , null ] } ", expected: `{"a":[1,true,null]}`},
		{name: "nested", doc: `{"a":{"b":[{"c":"d"}]}}`, expected: `{"a":{"b":[{"c":"d"}]}}`},
		{name: "scalar root", doc: `"text"`, expected: `"text"`},
		{name: "array root", doc: `[1,[2,[3]]]`, expected: `[1,[2,[3]]]`},
		{name: "empty containers", doc: `{"o":{},"a":[]}`, expected: `{"o":{},"a":[]}`},
		{name: "duplicate key last wins", doc: `{"a":1,"b":2,"a":3}`, expected: `{"a":3,"b":2}`},
		{name: "escapes normalized", doc: `{"s":"tab\there é \/"}`, expected: "{\"s\":\"tab\\there é /\"}"},
		{name: "big integer kept", doc: `{"n":123456789012345678901234567890}`, expected: `{"n":123456789012345678901234567890}`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			root, err := subdoc.ParseDocument([]byte(tc.doc))
			if err != nil {
				t.Fatalf("ParseDocument() error: %v", err)
			}
			if got := string(subdoc.Marshal(root)); got != tc.expected {
				t.Errorf("Marshal() = %s, want %s", got, tc.expected)
			}
		})
	}
}

func TestParseDocumentErrors(t *testing.T) {
	testCases := []struct {
		name string
		doc  string
	}{
		{"empty", ""},
		{"truncated", `{"a":`},
		{"trailing data", `{"a":1} {"b":2}`},
		{"bare word", `hello`},
		{"trailing comma", `{"a":1,}`},
		{"unquoted key", `{a:1}`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := subdoc.ParseDocument([]byte(tc.doc))
			if !errors.Is(err, subdoc.ErrDocNotJSON) {
				t.Errorf("ParseDocument(%q) error = %v, want ErrDocNotJSON", tc.doc, err)
			}
		})
	}
}

func TestMarshalEscapes(t *testing.T) {
	lineSep := string(rune(0x2028))
	testCases := []struct {
		name     string
		in       string
		expected string
	}{
		{"quote and backslash", `a"b\c`, `"a\"b\\c"`},
		{"newline", "a\nb", `"a\nb"`},
		{"control", "a\x01b", `"a\u0001b"`},
		{"line separator", "a" + lineSep + "b", `"a\u2028b"`},
		{"invalid utf8", "a\xffb", `"a\ufffdb"`},
		{"multibyte", "日本", `"日本"`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := string(subdoc.Marshal(subdoc.String(tc.in))); got != tc.expected {
				t.Errorf("Marshal(%q) = %s, want %s", tc.in, got, tc.expected)
			}
		})
	}
}

func TestObjectMembers(t *testing.T) {
	obj := subdoc.NewObject()
	obj.Set("b", subdoc.Atom("1"))
	obj.Set("a", subdoc.Atom("2"))
	obj.Set("b", subdoc.Atom("3"))

	if got, want := obj.Keys(), []string{"b", "a"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Keys() = %v, want %v", got, want)
	}
	if v, ok := obj.Get("b"); !ok || v != subdoc.Atom("3") {
		t.Errorf("Get(b) = %v, %v", v, ok)
	}
	if !obj.Delete("b") {
		t.Error("Delete(b) = false, want true")
	}
	if obj.Delete("b") {
		t.Error("second Delete(b) = true, want false")
	}
	if got := string(subdoc.Marshal(obj)); got != `{"a":2}` {
		t.Errorf("Marshal() = %s", got)
	}
}

func TestArrayInsertRemove(t *testing.T) {
	arr := &subdoc.Array{}
	arr.Insert(0, subdoc.Atom("2"))
	arr.Insert(0, subdoc.Atom("1"))
	arr.Insert(2, subdoc.Atom("4"))
	arr.Insert(2, subdoc.Atom("3"))
	if got := string(subdoc.Marshal(arr)); got != `[1,2,3,4]` {
		t.Fatalf("Marshal() = %s", got)
	}
	arr.Remove(1)
	arr.Remove(2)
	if got := string(subdoc.Marshal(arr)); got != `[1,3]` {
		t.Errorf("Marshal() = %s", got)
	}
}

func TestCloneIsDeep(t *testing.T) {
	root, err := subdoc.ParseDocument([]byte(`{"a":{"b":[1,2]},"c":"d"}`))
	if err != nil {
		t.Fatalf("ParseDocument() error: %v", err)
	}
	clone := subdoc.Clone(root)

	inner, _ := clone.(*subdoc.Object).Get("a")
	list, _ := inner.(*subdoc.Object).Get("b")
	list.(*subdoc.Array).Insert(0, subdoc.Atom("0"))
	clone.(*subdoc.Object).Set("e", subdoc.String("f"))

	if got := string(subdoc.Marshal(root)); got != `{"a":{"b":[1,2]},"c":"d"}` {
		t.Errorf("original changed: %s", got)
	}
	if got := string(subdoc.Marshal(clone)); got != `{"a":{"b":[0,1,2]},"c":"d","e":"f"}` {
		t.Errorf("clone = %s", got)
	}
}

func nested(levels int) string {
	return strings.Repeat("[", levels) + strings.Repeat("]", levels)
}

func TestParseDocumentDepthLimit(t *testing.T) {
	if _, err := subdoc.ParseDocument([]byte(nested(subdoc.MaxDocumentDepth))); err != nil {
		t.Fatalf("ParseDocument() at the limit error: %v", err)
	}

	testCases := []struct {
		name string
		doc  string
	}{
		{"one level over", nested(subdoc.MaxDocumentDepth + 1)},
		{"objects", strings.Repeat(`{"a":`, subdoc.MaxDocumentDepth+1) + "1" + strings.Repeat("}", subdoc.MaxDocumentDepth+1)},
		{"very deep", nested(1_000_000)},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := subdoc.ParseDocument([]byte(tc.doc))
			if !errors.Is(err, subdoc.ErrDocNotJSON) {
				t.Errorf("ParseDocument() error = %v, want ErrDocNotJSON", err)
			}
		})
	}
}
