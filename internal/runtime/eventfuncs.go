package runtime

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/risor-io/risor/object"

	"github.com/jward/cxref/internal/index"
	"github.com/jward/cxref/internal/position"
)

// eventSink collects the events of one script run. A VM runs on a single
// goroutine, so no locking is needed.
type eventSink struct {
	events []index.Event
}

// makeEmitFn creates declare, define and reference.
//
// declare({kind, usr, short_name, qualified_name, pos | file, line, column, length, indirect})
func makeEmitFn(name string, sink *eventSink, cat index.Category) *object.Builtin {
	return object.NewBuiltin(name, func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError(name, 1, len(args))
		}
		m, err := extractMap(args[0])
		if err != nil {
			return object.Errorf("%s: %v", name, err)
		}
		ev, err := eventFromMap(cat, m, "")
		if err != nil {
			return object.Errorf("%s: %v", name, err)
		}
		sink.events = append(sink.events, ev)
		return object.Nil
	})
}

// makeCallFn creates "call", a function reference that is also a call
// site inside the function named by caller_usr.
//
// call({usr, short_name, caller_usr, pos, ...})
func makeCallFn(sink *eventSink) *object.Builtin {
	return object.NewBuiltin("call", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("call", 1, len(args))
		}
		m, err := extractMap(args[0])
		if err != nil {
			return object.Errorf("call: %v", err)
		}
		ev, err := eventFromMap(index.Reference, m, index.Function.String())
		if err != nil {
			return object.Errorf("call: %v", err)
		}
		ev.Call = true
		ev.CallerUSR = getString(m, "caller_usr")
		if ev.CallerUSR == "" {
			return object.Errorf("call: caller_usr is required")
		}
		sink.events = append(sink.events, ev)
		return object.Nil
	})
}

// makeEndFn creates "end", which terminates the stream.
func makeEndFn(sink *eventSink) *object.Builtin {
	return object.NewBuiltin("end", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 0 {
			return object.NewArgsError("end", 0, len(args))
		}
		sink.events = append(sink.events, index.EndEvent())
		return object.Nil
	})
}

// eventFromMap builds an event; defaultKind applies when kind is absent.
func eventFromMap(cat index.Category, m map[string]object.Object, defaultKind string) (index.Event, error) {
	name := getString(m, "kind")
	if name == "" {
		name = defaultKind
	}
	kind, err := index.ParseKind(name)
	if err != nil {
		return index.Event{}, err
	}
	usr := getString(m, "usr")
	if usr == "" {
		return index.Event{}, errors.New("usr is required")
	}
	pos, err := positionFromMap(m)
	if err != nil {
		return index.Event{}, err
	}
	return index.Event{
		Category:      cat,
		Kind:          kind,
		USR:           usr,
		ShortName:     getString(m, "short_name"),
		QualifiedName: getString(m, "qualified_name"),
		Pos:           pos,
	}, nil
}

// positionFromMap accepts either an encoded "pos" string or separate
// file/line/column/length fields. file defaults to 1.
func positionFromMap(m map[string]object.Object) (position.Position, error) {
	if s := getString(m, "pos"); s != "" {
		p, err := position.Decode(s)
		if err != nil {
			return position.Position{}, err
		}
		p.Indirect = p.Indirect || getBool(m, "indirect")
		return p, nil
	}
	p := position.Position{
		File:     1,
		Indirect: getBool(m, "indirect"),
	}
	for _, f := range []struct {
		key string
		dst *int
	}{
		{"file", &p.File},
		{"line", &p.Line},
		{"column", &p.Column},
		{"length", &p.Length},
	} {
		v, ok, err := getOptionalInt(m, f.key)
		if err != nil {
			return position.Position{}, err
		}
		if ok {
			*f.dst = v
		}
	}
	if err := p.Validate(); err != nil {
		return position.Position{}, err
	}
	return p, nil
}

func extractMap(obj object.Object) (map[string]object.Object, error) {
	m, ok := obj.(*object.Map)
	if !ok {
		return nil, fmt.Errorf("expected map, got %s", obj.Type())
	}
	return m.Value(), nil
}

func getString(m map[string]object.Object, key string) string {
	if s, ok := m[key].(*object.String); ok {
		return s.Value()
	}
	return ""
}

// getOptionalInt reads an integer field. Floats are accepted only when
// they hold a whole number.
func getOptionalInt(m map[string]object.Object, key string) (int, bool, error) {
	switch v := m[key].(type) {
	case nil, *object.NilType:
		return 0, false, nil
	case *object.Int:
		return int(v.Value()), true, nil
	case *object.Float:
		f := v.Value()
		if f != math.Trunc(f) || math.IsInf(f, 0) {
			return 0, false, fmt.Errorf("%s must be an integer, got %v", key, f)
		}
		return int(f), true, nil
	default:
		return 0, false, fmt.Errorf("%s must be an integer, got %s", key, v.Type())
	}
}

func getBool(m map[string]object.Object, key string) bool {
	if b, ok := m[key].(*object.Bool); ok {
		return b.Value()
	}
	return false
}
