package callgraph

import (
	"testing"

	"repoctx/internal/engine/record"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fn(name string, calls ...record.Call) *record.Function {
	return &record.Function{Name: name, Calls: calls, StartLine: 1, EndLine: 1}
}

func method(class, name string, calls ...record.Call) *record.Function {
	f := fn(name, calls...)
	f.IsMethod = true
	f.ClassName = class
	return f
}

func call(name string, line int, ct record.CallType) record.Call {
	return record.Call{Name: name, Line: line, Type: ct}
}

func TestBuild_BareFunctionCall(t *testing.T) {
	a := fn("a", call("b", 2, record.CallFunction), call("print", 3, record.CallFunction))
	b := fn("b")
	rec := record.New("mod.py", "python")
	rec.Functions = []*record.Function{a, b}

	idx := Build(rec, Options{})

	require.Len(t, b.CalledBy, 1)
	assert.Equal(t, record.CallerRef{FunctionName: "a", File: "mod.py", Line: 2, CallType: record.CallFunction}, b.CalledBy[0])
	assert.Equal(t, []string{"b"}, a.CallsFunctions)
	assert.Empty(t, a.CalledBy)
	assert.Len(t, a.Calls, 2, "unresolved calls stay in the raw list")

	assert.Equal(t, []string{"a"}, idx.Callers("b"))
	assert.Equal(t, []string{"b"}, idx.Callees("a"))
	assert.Equal(t, []Edge{{From: "a", To: "b"}}, idx.Edges())
}

func TestBuild_SelfMethodCall(t *testing.T) {
	m := method("C", "m", call("self.helper", 3, record.CallMethod))
	helper := method("C", "helper")
	rec := record.New("c.py", "python")
	rec.Types = []*record.Type{{Name: "C", Kind: "class", Methods: []*record.Function{m, helper}}}

	idx := Build(rec, Options{})

	require.Len(t, helper.CalledBy, 1)
	assert.Equal(t, "m", helper.CalledBy[0].FunctionName)
	assert.Equal(t, record.CallMethod, helper.CalledBy[0].CallType)
	assert.Equal(t, []string{"C.m"}, idx.Callers("C.helper"))
}

func TestBuild_PrefersOwningType(t *testing.T) {
	aRun := method("A", "run")
	bRun := method("B", "run")
	bStart := method("B", "start", call("self.run", 5, record.CallMethod))
	rec := record.New("x.py", "python")
	rec.Types = []*record.Type{
		{Name: "A", Methods: []*record.Function{aRun}},
		{Name: "B", Methods: []*record.Function{bRun, bStart}},
	}

	Build(rec, Options{})

	assert.Empty(t, aRun.CalledBy)
	require.Len(t, bRun.CalledBy, 1)
	assert.Equal(t, "start", bRun.CalledBy[0].FunctionName)
}

func TestBuild_KnownMethodOnOtherReceiver(t *testing.T) {
	save := method("Repo", "save")
	main := fn("main", call("repo.save", 9, record.CallAttribute), call("os.path.join", 10, record.CallAttribute), call("repo.missing", 11, record.CallAttribute))
	rec := record.New("app.py", "python")
	rec.Functions = []*record.Function{main}
	rec.Types = []*record.Type{{Name: "Repo", Methods: []*record.Function{save}}}

	Build(rec, Options{})

	require.Len(t, save.CalledBy, 1)
	assert.Equal(t, record.CallAttribute, save.CalledBy[0].CallType)
	assert.Equal(t, []string{"save"}, main.CallsFunctions)
}

func TestBuild_RustPathSeparator(t *testing.T) {
	newFn := method("Point", "new")
	origin := method("Point", "origin", call("Self::new", 4, record.CallAttribute))
	rec := record.New("p.rs", "rust")
	rec.Types = []*record.Type{{Name: "Point", Methods: []*record.Function{newFn, origin}}}

	Build(rec, Options{Separators: []string{".", "::"}, SelfReceivers: []string{"Self"}})

	require.Len(t, newFn.CalledBy, 1)
	assert.Equal(t, "origin", newFn.CalledBy[0].FunctionName)
}

func TestBuild_LegacyModeDeduplicates(t *testing.T) {
	a := fn("a", call("b", 2, record.CallFunction), call("b", 3, record.CallFunction))
	b := fn("b")
	rec := record.New("m.py", "python")
	rec.Functions = []*record.Function{a, b}

	Build(rec, Options{Mode: ModeLegacy})

	require.Len(t, b.CalledBy, 1)
	assert.Equal(t, record.CallerRef{FunctionName: "a", File: "m.py"}, b.CalledBy[0])
	assert.Equal(t, []string{"b"}, a.CallsFunctions)
}

func TestBuild_IsRepeatable(t *testing.T) {
	a := fn("a", call("b", 2, record.CallFunction))
	b := fn("b")
	rec := record.New("m.py", "python")
	rec.Functions = []*record.Function{a, b}

	Build(rec, Options{})
	Build(rec, Options{})

	assert.Len(t, b.CalledBy, 1)
}

func TestIndex_Reachable(t *testing.T) {
	a := fn("a", call("b", 1, record.CallFunction))
	b := fn("b", call("c", 2, record.CallFunction))
	c := fn("c", call("a", 3, record.CallFunction))
	d := fn("d")
	rec := record.New("m.py", "python")
	rec.Functions = []*record.Function{a, b, c, d}

	idx := Build(rec, Options{})

	assert.Equal(t, []string{"a", "b", "c"}, idx.Reachable("a"))
	assert.Empty(t, idx.Reachable("d"))
	assert.Nil(t, idx.Reachable("missing"))
	assert.Equal(t, 3, idx.Size())
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeBidirectional, m)

	m, err = ParseMode("LEGACY")
	require.NoError(t, err)
	assert.Equal(t, ModeLegacy, m)

	_, err = ParseMode("fuzzy")
	assert.Error(t, err)
}
