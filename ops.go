package subdoc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Opcode identifies the operation of a Spec.
type Opcode uint8

const (
	OpGet Opcode = iota + 1
	OpExists
	OpGetCount
	OpDictAdd
	OpDictUpsert
	OpReplace
	OpDelete
	OpArrayPushLast
	OpArrayPushFirst
	OpArrayInsert
	OpCounter
)

var opcodeNames = map[Opcode]string{
	OpGet:            "get",
	OpExists:         "exists",
	OpGetCount:       "get_count",
	OpDictAdd:        "dict_add",
	OpDictUpsert:     "dict_upsert",
	OpReplace:        "replace",
	OpDelete:         "delete",
	OpArrayPushLast:  "array_push_last",
	OpArrayPushFirst: "array_push_first",
	OpArrayInsert:    "array_insert",
	OpCounter:        "counter",
}

func (op Opcode) String() string {
	if name, ok := opcodeNames[op]; ok {
		return name
	}
	return fmt.Sprintf("Opcode(%d)", uint8(op))
}

// IsLookup reports whether op reads without modifying the document.
func (op Opcode) IsLookup() bool {
	return op == OpGet || op == OpExists || op == OpGetCount
}

// IsMutation reports whether op modifies the document.
func (op Opcode) IsMutation() bool {
	return op >= OpDictAdd && op <= OpCounter
}

func (op Opcode) MarshalText() ([]byte, error) {
	if _, ok := opcodeNames[op]; !ok {
		return nil, fmt.Errorf("unknown opcode %d", uint8(op))
	}
	return []byte(op.String()), nil
}

func (op *Opcode) UnmarshalText(text []byte) error {
	for code, name := range opcodeNames {
		if name == string(text) {
			*op = code
			return nil
		}
	}
	return fmt.Errorf("unknown opcode %q", text)
}

// Flags modify how a Spec is applied.
type Flags uint8

const (
	FlagNone Flags = 0
	// FlagMkdirP creates missing intermediate containers along the path.
	FlagMkdirP Flags = 1 << 0
)

func (f Flags) MarshalText() ([]byte, error) {
	if f&FlagMkdirP != 0 {
		return []byte("mkdir_p"), nil
	}
	return []byte{}, nil
}

func (f *Flags) UnmarshalText(text []byte) error {
	*f = FlagNone
	for _, name := range strings.Split(string(text), "|") {
		switch strings.TrimSpace(name) {
		case "", "none":
		case "mkdir_p":
			*f |= FlagMkdirP
		default:
			return fmt.Errorf("unknown flag %q", name)
		}
	}
	return nil
}

// Spec is one operation of a batch. Value holds the JSON payload of
// mutations and the decimal delta of counters.
type Spec struct {
	Op    Opcode          `json:"op"`
	Flags Flags           `json:"flags,omitempty"`
	Path  string          `json:"path"`
	Value json.RawMessage `json:"value,omitempty"`
}

// CounterPolicy decides whether a counter may create its own target.
type CounterPolicy uint8

const (
	// CounterCreateWithMkdirP creates an absent counter only when the spec
	// carries FlagMkdirP.
	CounterCreateWithMkdirP CounterPolicy = iota
	// CounterCreateAlways creates an absent counter whenever its parent
	// exists (or is created by FlagMkdirP).
	CounterCreateAlways
)

func (p CounterPolicy) String() string {
	if p == CounterCreateAlways {
		return "always"
	}
	return "mkdir_p"
}

// ParseCounterPolicy maps a configuration name to a CounterPolicy.
func ParseCounterPolicy(name string) (CounterPolicy, error) {
	switch name {
	case "", "mkdir_p":
		return CounterCreateWithMkdirP, nil
	case "always":
		return CounterCreateAlways, nil
	}
	return 0, fmt.Errorf("unknown counter policy %q", name)
}

// lookup evaluates one read spec against root.
func lookup(root Node, spec Spec) ([]byte, error) {
	path, err := ParsePath(spec.Path)
	if err != nil {
		return nil, err
	}
	n, err := Lookup(root, path)
	if err != nil {
		return nil, err
	}
	switch spec.Op {
	case OpGet:
		return Marshal(n), nil
	case OpExists:
		return nil, nil
	case OpGetCount:
		switch n := n.(type) {
		case *Object:
			return strconv.AppendInt(nil, int64(n.Len()), 10), nil
		case *Array:
			return strconv.AppendInt(nil, int64(n.Len()), 10), nil
		}
		return nil, ErrPathMismatch
	}
	return nil, ErrInvalidCombo
}

// mutate applies one mutation spec to root in place. It returns the root
// to use from now on (only a replace of the empty path changes it) and the
// value reported for the op, if any.
func (e *Engine) mutate(root Node, spec Spec) (Node, []byte, error) {
	path, err := ParsePath(spec.Path)
	if err != nil {
		return root, nil, err
	}
	mkdirP := spec.Flags&FlagMkdirP != 0

	if spec.Op == OpCounter {
		v, err := e.counter(root, spec, path)
		return root, v, err
	}
	var value Node
	if spec.Op != OpDelete {
		if value, err = parseValue(spec.Value); err != nil {
			return root, nil, err
		}
		// Containers enclosing the value once it is in place.
		enclosing := len(path)
		if spec.Op == OpArrayPushLast || spec.Op == OpArrayPushFirst {
			enclosing++
		}
		if enclosing+depth(value) > MaxDocumentDepth {
			return root, nil, fmt.Errorf("%w: value would nest deeper than %d levels", ErrInvalidValue, MaxDocumentDepth)
		}
	}

	switch spec.Op {
	case OpDictAdd, OpDictUpsert:
		if len(path) == 0 || path[len(path)-1].Kind != ComponentKey {
			return root, nil, ErrPathInvalid
		}
		loc, err := locate(root, path, mkdirP)
		if err != nil {
			return root, nil, err
		}
		if spec.Op == OpDictAdd && loc.node != nil {
			return root, nil, ErrPathExists
		}
		loc.set(value)

	case OpReplace:
		if len(path) == 0 {
			return value, nil, nil
		}
		loc, err := locate(root, path, false)
		if err != nil {
			return root, nil, err
		}
		if loc.node == nil {
			return root, nil, ErrPathNotFound
		}
		loc.set(value)

	case OpDelete:
		if len(path) == 0 {
			return root, nil, ErrPathInvalid
		}
		loc, err := locate(root, path, false)
		if err != nil {
			return root, nil, err
		}
		if loc.node == nil {
			return root, nil, ErrPathNotFound
		}
		loc.remove()

	case OpArrayPushLast, OpArrayPushFirst:
		arr, err := arrayAt(root, path, mkdirP)
		if err != nil {
			return root, nil, err
		}
		if spec.Op == OpArrayPushLast {
			arr.Insert(arr.Len(), value)
		} else {
			arr.Insert(0, value)
		}

	case OpArrayInsert:
		if len(path) == 0 || path[len(path)-1].Kind == ComponentKey {
			return root, nil, ErrPathInvalid
		}
		parent, err := container(root, path, mkdirP)
		if err != nil {
			return root, nil, err
		}
		arr, ok := parent.(*Array)
		if !ok {
			return root, nil, ErrPathMismatch
		}
		pos := arr.Len()
		if last := path[len(path)-1]; last.Kind == ComponentIndex {
			if last.Index > arr.Len() {
				return root, nil, ErrPathNotFound
			}
			pos = last.Index
		}
		arr.Insert(pos, value)

	default:
		return root, nil, ErrInvalidCombo
	}
	return root, nil, nil
}

// arrayAt resolves the array addressed by path for the push opcodes,
// creating it under FlagMkdirP when the final member is missing.
func arrayAt(root Node, path Path, mkdirP bool) (*Array, error) {
	var target Node = root
	if len(path) > 0 {
		loc, err := locate(root, path, mkdirP)
		if err != nil {
			return nil, err
		}
		target = loc.node
		if target == nil {
			if !mkdirP || loc.last.Kind != ComponentKey {
				return nil, ErrPathNotFound
			}
			target = &Array{}
			loc.set(target)
		}
	}
	arr, ok := target.(*Array)
	if !ok {
		return nil, ErrPathMismatch
	}
	return arr, nil
}

// counter adds the spec's delta to the integer at its path.
func (e *Engine) counter(root Node, spec Spec, path Path) ([]byte, error) {
	delta, err := parseDelta(spec.Value)
	if err != nil {
		return nil, err
	}
	if len(path) == 0 {
		return nil, ErrPathInvalid
	}
	mkdirP := spec.Flags&FlagMkdirP != 0
	loc, err := locate(root, path, mkdirP)
	if err != nil {
		return nil, err
	}

	var current int64
	switch n := loc.node.(type) {
	case nil:
		if loc.last.Kind != ComponentKey {
			return nil, ErrPathNotFound
		}
		if !mkdirP && e.counterPolicy != CounterCreateAlways {
			return nil, ErrPathNotFound
		}
	case Atom:
		if !isJSONInteger(string(n)) {
			return nil, ErrPathMismatch
		}
		if current, err = strconv.ParseInt(string(n), 10, 64); err != nil {
			return nil, ErrNumberTooBig
		}
	case *Object, *Array, String:
		return nil, ErrPathMismatch
	default:
		panic(fmt.Sprintf("subdoc: unknown node type %T", n))
	}

	if (delta > 0 && current > maxInt64-delta) || (delta < 0 && current < minInt64-delta) {
		return nil, ErrNumberTooBig
	}
	result := strconv.AppendInt(nil, current+delta, 10)
	loc.set(Atom(result))
	return result, nil
}

const (
	maxInt64 = 1<<63 - 1
	minInt64 = -1 << 63
)

func parseDelta(raw []byte) (int64, error) {
	text := string(bytes.TrimSpace(raw))
	if !isJSONInteger(text) {
		return 0, fmt.Errorf("%w: counter delta %q is not an integer", ErrInvalidValue, text)
	}
	delta, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: counter delta %q out of range", ErrInvalidValue, text)
	}
	return delta, nil
}

// isJSONInteger reports whether s is a JSON number without fraction or
// exponent.
func isJSONInteger(s string) bool {
	if strings.HasPrefix(s, "-") {
		s = s[1:]
	}
	if s == "" || (len(s) > 1 && s[0] == '0') {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
