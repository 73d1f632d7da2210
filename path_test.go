package subdoc_test

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/agentflare-ai/subdoc"
)

func TestParsePath(t *testing.T) {
	key := subdoc.KeyComponent
	idx := subdoc.IndexComponent
	app := subdoc.AppendComponent

	testCases := []struct {
		name     string
		text     string
		expected subdoc.Path
	}{
		{name: "root", text: "", expected: subdoc.Path{}},
		{name: "single key", text: "a", expected: subdoc.Path{key("a")}},
		{name: "nested keys", text: "a.b.c", expected: subdoc.Path{key("a"), key("b"), key("c")}},
		{name: "index", text: "a[0]", expected: subdoc.Path{key("a"), idx(0)}},
		{name: "append marker", text: "a[-1]", expected: subdoc.Path{key("a"), app()}},
		{name: "leading index", text: "[3]", expected: subdoc.Path{idx(3)}},
		{name: "chained indices", text: "[1][2].x", expected: subdoc.Path{idx(1), idx(2), key("x")}},
		{name: "mixed", text: "items.list[12].name", expected: subdoc.Path{key("items"), key("list"), idx(12), key("name")}},
		{name: "numeric key", text: "123", expected: subdoc.Path{key("123")}},
		{name: "quoted key", text: "a.`b.c[0]`", expected: subdoc.Path{key("a"), key("b.c[0]")}},
		{name: "escaped backtick", text: "`a``b`", expected: subdoc.Path{key("a`b")}},
		{name: "empty quoted key", text: "``", expected: subdoc.Path{key("")}},
		{name: "quoted key with index", text: "`x`[0]", expected: subdoc.Path{key("x"), idx(0)}},
		{name: "unicode key", text: "café.n", expected: subdoc.Path{key("café"), key("n")}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := subdoc.ParsePath(tc.text)
			if err != nil {
				t.Fatalf("ParsePath(%q) error: %v", tc.text, err)
			}
			if !reflect.DeepEqual(got, tc.expected) {
				t.Errorf("ParsePath(%q) = %#v, want %#v", tc.text, got, tc.expected)
			}
		})
	}
}

func TestParsePathErrors(t *testing.T) {
	testCases := []struct {
		name string
		text string
	}{
		{"trailing dot", "a."},
		{"leading dot", ".a"},
		{"empty segment", "a..b"},
		{"unterminated bracket", "a[0"},
		{"empty index", "a[]"},
		{"leading zero", "a[01]"},
		{"negative index", "a[-2]"},
		{"non-numeric index", "a[x]"},
		{"index overflow", "a[99999999999999999999999]"},
		{"stray close bracket", "a]b"},
		{"junk after index", "a[0]b"},
		{"unterminated quote", "`abc"},
		{"backtick inside bare key", "a`b`"},
		{"too long", strings.Repeat("a", subdoc.MaxPathLength+1)},
		{"too deep", strings.Repeat("a.", subdoc.MaxPathComponents) + "a"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := subdoc.ParsePath(tc.text)
			if err == nil {
				t.Fatalf("ParsePath(%q) succeeded, want error", tc.text)
			}
			if !errors.Is(err, subdoc.ErrPathInvalid) {
				t.Errorf("ParsePath(%q) error = %v, want ErrPathInvalid", tc.text, err)
			}
			var perr *subdoc.ParseError
			if !errors.As(err, &perr) {
				t.Errorf("ParsePath(%q) error is %T, want *ParseError", tc.text, err)
			}
		})
	}
}

func TestParsePathDepthLimit(t *testing.T) {
	text := strings.TrimSuffix(strings.Repeat("a.", subdoc.MaxPathComponents), ".")
	p, err := subdoc.ParsePath(text)
	if err != nil {
		t.Fatalf("ParsePath() error: %v", err)
	}
	if len(p) != subdoc.MaxPathComponents {
		t.Errorf("len = %d, want %d", len(p), subdoc.MaxPathComponents)
	}
}

func TestPathStringRoundTrip(t *testing.T) {
	testCases := []struct {
		text      string
		canonical string
	}{
		{"", ""},
		{"a.b[0][-1]", "a.b[0][-1]"},
		{"[2].x", "[2].x"},
		{"`plain`", "plain"},
		{"`a.b`.c", "`a.b`.c"},
		{"`a``b`", "`a``b`"},
		{"``.x", "``.x"},
	}

	for _, tc := range testCases {
		t.Run(tc.text, func(t *testing.T) {
			p, err := subdoc.ParsePath(tc.text)
			if err != nil {
				t.Fatalf("ParsePath(%q) error: %v", tc.text, err)
			}
			if got := p.String(); got != tc.canonical {
				t.Errorf("String() = %q, want %q", got, tc.canonical)
			}
			again, err := subdoc.ParsePath(p.String())
			if err != nil {
				t.Fatalf("ParsePath(%q) error: %v", p.String(), err)
			}
			if !reflect.DeepEqual(again, p) {
				t.Errorf("round trip = %#v, want %#v", again, p)
			}
		})
	}
}

func TestPathPointer(t *testing.T) {
	testCases := []struct {
		text     string
		expected string
	}{
		{"a.b[0]", "/a/b/0"},
		{"list[-1]", "/list/-"},
		{"[1].x", "/1/x"},
		{"`a~b/c`.d", "/a~0b~1c/d"},
	}

	for _, tc := range testCases {
		t.Run(tc.text, func(t *testing.T) {
			p, err := subdoc.ParsePath(tc.text)
			if err != nil {
				t.Fatalf("ParsePath(%q) error: %v", tc.text, err)
			}
			if got := p.Pointer(); got != tc.expected {
				t.Errorf("Pointer() = %q, want %q", got, tc.expected)
			}
		})
	}
}
