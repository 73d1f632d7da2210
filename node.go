package subdoc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

// Kind enumerates the node kinds of a document tree.
type Kind uint8

const (
	KindObject Kind = iota
	KindArray
	KindString
	KindAtom
)

func (k Kind) String() string {
	switch k {
	case KindObject:
		return "object"
	case KindArray:
		return "array"
	case KindString:
		return "string"
	case KindAtom:
		return "atom"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Node is one element of a parsed document. The set of implementations is
// closed: *Object, *Array, String and Atom.
type Node interface {
	Kind() Kind
	node()
}

// Object is a JSON object. Members keep their insertion order.
type Object struct {
	keys    []string
	members map[string]Node
}

// NewObject returns an empty object.
func NewObject() *Object {
	return &Object{members: make(map[string]Node)}
}

func (*Object) Kind() Kind { return KindObject }
func (*Object) node()      {}

// Len returns the number of members.
func (o *Object) Len() int { return len(o.keys) }

// Get returns the member stored under key.
func (o *Object) Get(key string) (Node, bool) {
	n, ok := o.members[key]
	return n, ok
}

// Keys returns the member names in insertion order.
func (o *Object) Keys() []string {
	return append([]string(nil), o.keys...)
}

// Set stores v under key. An existing member keeps its position.
func (o *Object) Set(key string, v Node) {
	if _, ok := o.members[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.members[key] = v
}

// Delete removes key and reports whether it was present.
func (o *Object) Delete(key string) bool {
	if _, ok := o.members[key]; !ok {
		return false
	}
	delete(o.members, key)
	for i, k := range o.keys {
		if k == key {
			o.keys = append(o.keys[:i], o.keys[i+1:]...)
			break
		}
	}
	return true
}

// Array is a JSON array.
type Array struct {
	Elems []Node
}

func (*Array) Kind() Kind { return KindArray }
func (*Array) node()      {}

// Len returns the number of elements.
func (a *Array) Len() int { return len(a.Elems) }

// Insert places v at position i, 0 <= i <= Len().
func (a *Array) Insert(i int, v Node) {
	a.Elems = append(a.Elems, nil)
	copy(a.Elems[i+1:], a.Elems[i:])
	a.Elems[i] = v
}

// Remove drops the element at position i.
func (a *Array) Remove(i int) {
	a.Elems = append(a.Elems[:i], a.Elems[i+1:]...)
}

// String is a JSON string value.
type String string

func (String) Kind() Kind { return KindString }
func (String) node()      {}

// Atom is any other JSON scalar (number, true, false, null), kept as its
// literal text so numbers survive a round trip unchanged.
type Atom string

func (Atom) Kind() Kind { return KindAtom }
func (Atom) node()      {}

// MaxDocumentDepth caps how many containers may nest inside one another in
// a document or in a mutation value.
const MaxDocumentDepth = 32

// ParseDocument builds a tree from stored document bytes.
func ParseDocument(data []byte) (Node, error) {
	n, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDocNotJSON, err)
	}
	return n, nil
}

func parseValue(data []byte) (Node, error) {
	n, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	return n, nil
}

func decode(data []byte) (Node, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	n, err := decodeNode(dec, 0)
	if err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("trailing data after JSON value")
	}
	return n, nil
}

// decodeNode reads one value. level is the number of containers already
// open around it.
func decodeNode(dec *json.Decoder, level int) (Node, error) {
	tok, err := dec.Token()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
	switch t := tok.(type) {
	case json.Delim:
		if level >= MaxDocumentDepth {
			return nil, fmt.Errorf("nesting exceeds %d levels", MaxDocumentDepth)
		}
		switch t {
		case '{':
			obj := NewObject()
			for dec.More() {
				ktok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := ktok.(string)
				if !ok {
					return nil, fmt.Errorf("unexpected object key %v", ktok)
				}
				v, err := decodeNode(dec, level+1)
				if err != nil {
					return nil, err
				}
				obj.Set(key, v)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return obj, nil
		case '[':
			arr := &Array{}
			for dec.More() {
				v, err := decodeNode(dec, level+1)
				if err != nil {
					return nil, err
				}
				arr.Elems = append(arr.Elems, v)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return arr, nil
		}
		return nil, fmt.Errorf("unexpected delimiter %q", rune(t))
	case string:
		return String(t), nil
	case json.Number:
		return Atom(t.String()), nil
	case bool:
		if t {
			return Atom("true"), nil
		}
		return Atom("false"), nil
	case nil:
		return Atom("null"), nil
	}
	return nil, fmt.Errorf("unexpected token %v", tok)
}

// depth returns the number of containers nested along the deepest branch
// of n; scalars have depth 0.
func depth(n Node) int {
	d := 0
	switch n := n.(type) {
	case *Object:
		for _, v := range n.members {
			d = max(d, depth(v))
		}
		return d + 1
	case *Array:
		for _, e := range n.Elems {
			d = max(d, depth(e))
		}
		return d + 1
	}
	return 0
}

// Marshal renders n as compact JSON.
func Marshal(n Node) []byte {
	return appendNode(nil, n)
}

func appendNode(buf []byte, n Node) []byte {
	switch n := n.(type) {
	case *Object:
		buf = append(buf, '{')
		for i, k := range n.keys {
			if i > 0 {
				buf = append(buf, ',')
			}
			buf = appendString(buf, k)
			buf = append(buf, ':')
			buf = appendNode(buf, n.members[k])
		}
		return append(buf, '}')
	case *Array:
		buf = append(buf, '[')
		for i, e := range n.Elems {
			if i > 0 {
				buf = append(buf, ',')
			}
			buf = appendNode(buf, e)
		}
		return append(buf, ']')
	case String:
		return appendString(buf, string(n))
	case Atom:
		return append(buf, string(n)...)
	}
	panic(fmt.Sprintf("subdoc: unknown node type %T", n))
}

const hexDigits = "0123456789abcdef"

func appendString(buf []byte, s string) []byte {
	buf = append(buf, '"')
	for i := 0; i < len(s); {
		c := s[i]
		if c < utf8.RuneSelf {
			switch {
			case c == '"' || c == '\\':
				buf = append(buf, '\\', c)
			case c == '\n':
				buf = append(buf, '\\', 'n')
			case c == '\r':
				buf = append(buf, '\\', 'r')
			case c == '\t':
				buf = append(buf, '\\', 't')
			case c < 0x20:
				buf = append(buf, '\\', 'u', '0', '0', hexDigits[c>>4], hexDigits[c&0xf])
			default:
				buf = append(buf, c)
			}
			i++
			continue
		}
		r, size := utf8.DecodeRuneInString(s[i:])
		switch {
		case r == utf8.RuneError && size == 1:
			buf = append(buf, `\ufffd`...)
		case r == '\u2028' || r == '\u2029':
			buf = append(buf, '\\', 'u', '2', '0', '2', hexDigits[r&0xf])
		default:
			buf = append(buf, s[i:i+size]...)
		}
		i += size
	}
	return append(buf, '"')
}

// Clone returns a deep copy of n.
func Clone(n Node) Node {
	switch n := n.(type) {
	case *Object:
		c := &Object{
			keys:    append([]string(nil), n.keys...),
			members: make(map[string]Node, len(n.members)),
		}
		for k, v := range n.members {
			c.members[k] = Clone(v)
		}
		return c
	case *Array:
		c := &Array{Elems: make([]Node, len(n.Elems))}
		for i, e := range n.Elems {
			c.Elems[i] = Clone(e)
		}
		return c
	case String, Atom:
		return n
	}
	panic(fmt.Sprintf("subdoc: unknown node type %T", n))
}
