package subdoc

import (
	"errors"
	"fmt"
)

// Lookup returns the node addressed by path. It never modifies root.
//
// A key step into a non-object or an index step into a non-array fails with
// ErrPathMismatch; a missing member or an index past the end fails with
// ErrPathNotFound. The append marker addresses the last element.
func Lookup(root Node, path Path) (Node, error) {
	cur := root
	for _, c := range path {
		next, err := step(cur, c)
		if err != nil {
			return nil, err
		}
		cur = next
	}
	return cur, nil
}

func step(n Node, c Component) (Node, error) {
	switch n := n.(type) {
	case *Object:
		if c.Kind != ComponentKey {
			return nil, ErrPathMismatch
		}
		v, ok := n.Get(c.Key)
		if !ok {
			return nil, ErrPathNotFound
		}
		return v, nil
	case *Array:
		if c.Kind == ComponentKey {
			return nil, ErrPathMismatch
		}
		i, ok := resolveIndex(n, c)
		if !ok {
			return nil, ErrPathNotFound
		}
		return n.Elems[i], nil
	case String, Atom:
		return nil, ErrPathMismatch
	}
	panic(fmt.Sprintf("subdoc: unknown node type %T", n))
}

func resolveIndex(a *Array, c Component) (int, bool) {
	switch c.Kind {
	case ComponentIndex:
		return c.Index, c.Index < a.Len()
	case ComponentAppend:
		return a.Len() - 1, a.Len() > 0
	}
	return 0, false
}

// container walks every component of path but the last and returns the
// node that holds the final element. With mkdirP, missing dictionary members
// on the way are created: an array when the following step indexes into
// it, an object otherwise. Missing array elements are never created.
func container(root Node, path Path, mkdirP bool) (Node, error) {
	cur := root
	for i := 0; i < len(path)-1; i++ {
		c := path[i]
		next, err := step(cur, c)
		if err == nil {
			cur = next
			continue
		}
		if !mkdirP || c.Kind != ComponentKey || !errors.Is(err, ErrPathNotFound) {
			return nil, err
		}
		var created Node = NewObject()
		if path[i+1].Kind != ComponentKey {
			created = &Array{}
		}
		cur.(*Object).Set(c.Key, created)
		cur = created
	}
	return cur, nil
}

// located is the result of resolving a mutation target.
type located struct {
	parent Node // *Object or *Array
	last   Component
	node   Node // nil when the target is absent
	index  int  // position of node in an array parent
}

func locate(root Node, path Path, mkdirP bool) (located, error) {
	parent, err := container(root, path, mkdirP)
	if err != nil {
		return located{}, err
	}
	_, last := path.parent()
	loc := located{parent: parent, last: last}
	switch p := parent.(type) {
	case *Object:
		if last.Kind != ComponentKey {
			return located{}, ErrPathMismatch
		}
		loc.node, _ = p.Get(last.Key)
	case *Array:
		if last.Kind == ComponentKey {
			return located{}, ErrPathMismatch
		}
		if i, ok := resolveIndex(p, last); ok {
			loc.index = i
			loc.node = p.Elems[i]
		}
	case String, Atom:
		return located{}, ErrPathMismatch
	default:
		panic(fmt.Sprintf("subdoc: unknown node type %T", parent))
	}
	return loc, nil
}

// set overwrites the located target.
func (l located) set(v Node) {
	switch p := l.parent.(type) {
	case *Object:
		p.Set(l.last.Key, v)
	case *Array:
		p.Elems[l.index] = v
	}
}

// remove deletes the located target from its parent.
func (l located) remove() {
	switch p := l.parent.(type) {
	case *Object:
		p.Delete(l.last.Key)
	case *Array:
		p.Remove(l.index)
	}
}
