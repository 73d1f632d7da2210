package subdoc

import (
	"strconv"
	"strings"

	"github.com/agentflare-ai/jsonpointer"
)

const (
	// MaxPathLength is the longest path expression accepted by ParsePath.
	MaxPathLength = 1024
	// MaxPathComponents is the deepest path accepted by ParsePath.
	MaxPathComponents = 32

	// AppendMarker is the bracketed index that addresses the position after
	// the last element of an array.
	AppendMarker = "-1"
)

// ComponentKind distinguishes dictionary and array steps of a Path.
type ComponentKind uint8

const (
	ComponentKey ComponentKind = iota
	ComponentIndex
	ComponentAppend
)

// Component is one step of a Path.
type Component struct {
	Kind  ComponentKind
	Key   string
	Index int
}

// KeyComponent returns a dictionary member step.
func KeyComponent(key string) Component { return Component{Kind: ComponentKey, Key: key} }

// IndexComponent returns an array element step.
func IndexComponent(i int) Component { return Component{Kind: ComponentIndex, Index: i} }

// AppendComponent returns the append marker step.
func AppendComponent() Component { return Component{Kind: ComponentAppend} }

// Path is an ordered sequence of components. The empty Path is the document root.
type Path []Component

// ParsePath parses a dotted path expression such as `items.list[2].name`.
//
// Keys may be quoted with backticks to carry '.', '[' or ']' literally; a
// doubled backtick inside a quoted key stands for one backtick. Bare numeric
// segments are dictionary keys; array indices only appear inside brackets.
func ParsePath(text string) (Path, error) {
	if text == "" {
		return Path{}, nil
	}
	if len(text) > MaxPathLength {
		return nil, &ParseError{Path: text, Pos: MaxPathLength, Msg: "path too long"}
	}

	pp := pathParser{text: text}
	var path Path
	for {
		start := pp.pos
		switch {
		case pp.peek() == '`':
			key, err := pp.quotedKey()
			if err != nil {
				return nil, err
			}
			path = append(path, KeyComponent(key))
		case pp.peek() == '[' && start == 0:
			// A path may open with an index into a root array.
		default:
			key := pp.bareKey()
			if key == "" {
				return nil, pp.fail("empty path segment")
			}
			path = append(path, KeyComponent(key))
		}

		for pp.peek() == '[' {
			c, err := pp.accessor()
			if err != nil {
				return nil, err
			}
			path = append(path, c)
		}
		if len(path) > MaxPathComponents {
			return nil, pp.fail("too many path components")
		}

		if pp.done() {
			return path, nil
		}
		if pp.peek() != '.' {
			return nil, pp.fail("unexpected character " + strconv.QuoteRune(rune(pp.peek())))
		}
		pp.pos++
		if pp.done() {
			return nil, pp.fail("empty path segment")
		}
	}
}

type pathParser struct {
	text string
	pos  int
}

func (pp *pathParser) done() bool { return pp.pos >= len(pp.text) }

func (pp *pathParser) peek() byte {
	if pp.done() {
		return 0
	}
	return pp.text[pp.pos]
}

func (pp *pathParser) fail(msg string) *ParseError {
	return &ParseError{Path: pp.text, Pos: pp.pos, Msg: msg}
}

func (pp *pathParser) bareKey() string {
	start := pp.pos
	for !pp.done() {
		switch pp.text[pp.pos] {
		case '.', '[', ']', '`':
			return pp.text[start:pp.pos]
		}
		pp.pos++
	}
	return pp.text[start:pp.pos]
}

func (pp *pathParser) quotedKey() (string, error) {
	open := pp.pos
	pp.pos++
	var sb strings.Builder
	for !pp.done() {
		ch := pp.text[pp.pos]
		pp.pos++
		if ch != '`' {
			sb.WriteByte(ch)
			continue
		}
		if pp.peek() == '`' {
			sb.WriteByte('`')
			pp.pos++
			continue
		}
		return sb.String(), nil
	}
	return "", &ParseError{Path: pp.text, Pos: open, Msg: "unterminated quoted key"}
}

func (pp *pathParser) accessor() (Component, error) {
	open := pp.pos
	end := strings.IndexByte(pp.text[open:], ']')
	if end < 0 {
		return Component{}, pp.fail("unterminated '['")
	}
	inner := pp.text[open+1 : open+end]
	pp.pos = open + end + 1

	switch {
	case inner == AppendMarker:
		return AppendComponent(), nil
	case inner == "":
		return Component{}, &ParseError{Path: pp.text, Pos: open, Msg: "empty array index"}
	case inner[0] == '-':
		return Component{}, &ParseError{Path: pp.text, Pos: open, Msg: "negative array index"}
	case len(inner) > 1 && inner[0] == '0':
		return Component{}, &ParseError{Path: pp.text, Pos: open, Msg: "leading zero in array index"}
	}
	for i := 0; i < len(inner); i++ {
		if inner[i] < '0' || inner[i] > '9' {
			return Component{}, &ParseError{Path: pp.text, Pos: open, Msg: "non-numeric array index"}
		}
	}
	idx, err := jsonpointer.ParseArrayIndex(inner)
	if err != nil || idx > uint64(maxInt) {
		return Component{}, &ParseError{Path: pp.text, Pos: open, Msg: "array index out of range"}
	}
	return IndexComponent(int(idx)), nil
}

const maxInt = int(^uint(0) >> 1)

// String renders the path in canonical form; ParsePath(p.String()) == p.
func (p Path) String() string {
	var sb strings.Builder
	for i, c := range p {
		switch c.Kind {
		case ComponentKey:
			if i > 0 {
				sb.WriteByte('.')
			}
			writeKey(&sb, c.Key)
		case ComponentIndex:
			sb.WriteByte('[')
			sb.WriteString(strconv.Itoa(c.Index))
			sb.WriteByte(']')
		case ComponentAppend:
			sb.WriteString("[" + AppendMarker + "]")
		}
	}
	return sb.String()
}

func writeKey(sb *strings.Builder, key string) {
	if key != "" && !strings.ContainsAny(key, ".[]`") {
		sb.WriteString(key)
		return
	}
	sb.WriteByte('`')
	sb.WriteString(strings.ReplaceAll(key, "`", "``"))
	sb.WriteByte('`')
}

// Pointer returns the RFC 6901 form of the path. The append marker renders
// as "-". It is used as the normalized identity of a path in logs.
func (p Path) Pointer() string {
	tokens := make(jsonpointer.Pointer, len(p))
	for i, c := range p {
		switch c.Kind {
		case ComponentKey:
			tokens[i] = c.Key
		case ComponentIndex:
			tokens[i] = strconv.Itoa(c.Index)
		case ComponentAppend:
			tokens[i] = "-"
		}
	}
	return tokens.String()
}

// parent splits p into the container path and the final component.
func (p Path) parent() (Path, Component) {
	return p[:len(p)-1], p[len(p)-1]
}
