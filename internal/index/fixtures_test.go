package index

import (
	"testing"

	"github.com/jward/cxref/internal/position"
)

// declaration_vs_definition/func.cc:
//
//	void foo();
//	void foo();
//	void foo() {}
//	void foo();
func funcEvents(t *testing.T) []Event {
	t.Helper()
	foo := func(cat Category, pos string) Event {
		return Event{
			Category: cat, Kind: Function, USR: "c:@F@foo#",
			ShortName: "foo", QualifiedName: "foo",
			Pos: position.MustDecode(pos),
		}
	}
	return []Event{
		foo(Declaration, "1:1:6"),
		foo(Declaration, "1:2:6"),
		foo(Definition, "1:3:6"),
		foo(Declaration, "1:4:6"),
		EndEvent(),
	}
}

const (
	calledUSR = "c:@F@called#"
	callerUSR = "c:@F@caller#"
	localXUSR = "c:var_usage_call_function.cc@39@F@caller#@x"
)

// usage/var_usage_call_function.cc:
//
//	void called() {}
//
//	void caller() {
//	  auto x = &called;
//	  x();
//
//	  called();
//	}
func usageEvents(t *testing.T) []Event {
	t.Helper()
	fn := func(cat Category, usr, name, pos string) Event {
		return Event{
			Category: cat, Kind: Function, USR: usr,
			ShortName: name, QualifiedName: name,
			Pos: position.MustDecode(pos),
		}
	}
	call := func(pos string) Event {
		ev := fn(Reference, calledUSR, "called", pos)
		ev.Call = true
		ev.CallerUSR = callerUSR
		return ev
	}
	x := func(cat Category, pos string) Event {
		return Event{
			Category: cat, Kind: Variable, USR: localXUSR,
			ShortName: "x", QualifiedName: "x",
			Pos: position.MustDecode(pos),
		}
	}
	return []Event{
		fn(Definition, calledUSR, "called", "*1:1:6"),
		fn(Definition, callerUSR, "caller", "*1:3:6"),
		x(Definition, "*1:4:8"),
		call("*1:4:13"),
		x(Reference, "*1:5:3"),
		call("*1:7:3"),
		EndEvent(),
	}
}
