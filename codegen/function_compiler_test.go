package codegen

import (
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/llir/llvm/ir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chi/graph"
)

// fixedID returns a deterministic UUID for reproducible block names.
func fixedID(n int) uuid.UUID {
	return uuid.MustParse(fmt.Sprintf("00000000-0000-0000-0000-%012d", n))
}

// compileModuleString compiles a loaded module and returns the IR text.
func compileModuleString(t *testing.T, ctx *graph.Context, fullName string, settings CompileSettings) string {
	t.Helper()

	llmod, res := CompileModule(ctx, fullName, settings)
	require.True(t, res.Success(), res.Dump())
	return llmod.String()
}

// buildNoopModule builds `<fullName>:noop` with one entry -> exit edge and
// no data.
func buildNoopModule(t *testing.T, ctx *graph.Context, fullName string) *graph.GraphModule {
	t.Helper()

	mod, res := ctx.NewGraphModule(fullName)
	require.True(t, res.Success(), res.Dump())

	fn, _ := mod.GetOrCreateFunction("noop", nil, nil, []string{"In"}, []string{"Out"})

	entry, res := fn.GetOrInsertEntryNode(0, 0, fixedID(1))
	require.True(t, res.Success(), res.Dump())

	exitType, res := fn.CreateExitNodeType()
	require.True(t, res.Success(), res.Dump())
	exit, res := fn.InsertNode(exitType, 0, 0, fixedID(2))
	require.True(t, res.Success())

	require.True(t, graph.ConnectExec(entry, 0, exit, 0).Success())
	return mod
}

// buildAddModule builds `<fullName>:add(a, b) -> s` computing a+b through a
// pure i32+i32 node.
func buildAddModule(t *testing.T, ctx *graph.Context, fullName string) *graph.GraphModule {
	t.Helper()

	mod, res := ctx.NewGraphModule(fullName)
	require.True(t, res.Success(), res.Dump())

	i32 := ctx.LangModule().TypeFromName("i32")
	fn, _ := mod.GetOrCreateFunction("add",
		[]graph.NamedDataType{{Name: "a", Type: i32}, {Name: "b", Type: i32}},
		[]graph.NamedDataType{{Name: "s", Type: i32}},
		[]string{"In"}, []string{"Out"})

	entry, res := fn.GetOrInsertEntryNode(0, 0, fixedID(1))
	require.True(t, res.Success(), res.Dump())

	exitType, res := fn.CreateExitNodeType()
	require.True(t, res.Success())
	exit, res := fn.InsertNode(exitType, 0, 0, fixedID(2))
	require.True(t, res.Success())

	add, res := fn.InsertNodeByName("lang", "i32+i32", nil, 0, 0, fixedID(3))
	require.True(t, res.Success(), res.Dump())

	require.True(t, graph.ConnectExec(entry, 0, exit, 0).Success())
	require.True(t, graph.ConnectData(entry, 0, add, 0).Success())
	require.True(t, graph.ConnectData(entry, 1, add, 1).Success())
	require.True(t, graph.ConnectData(add, 0, exit, 0).Success())

	return mod
}

func TestCompileNoopFunction(t *testing.T) {
	ctx := graph.NewContext(t.TempDir())
	buildNoopModule(t, ctx, "test/noop")

	irText := compileModuleString(t, ctx, "test/noop", 0)

	// i32(i32) with only the exec id parameter
	assert.Contains(t, irText, "define i32 @test_snoop_mnoop(i32 %inputexec_id)")
	assert.Contains(t, irText, "alloc:")
	// the exit returns its exec input index
	assert.Contains(t, irText, "ret i32 0")
	// entry dispatches on the exec id
	assert.Contains(t, irText, "switch i32 %inputexec_id")
}

func TestCompileAddFunction(t *testing.T) {
	ctx := graph.NewContext(t.TempDir())
	buildAddModule(t, ctx, "test/addmod")

	irText := compileModuleString(t, ctx, "test/addmod", 0)

	assert.Contains(t, irText,
		"define i32 @test_saddmod_madd(i32 %inputexec_id, i32 %a, i32 %b, i32* %s)")
	// the pure add is materialised before the exit consumes it
	assert.Contains(t, irText, "add i32")
	// the result lands in the out-pointer
	assert.Contains(t, irText, "store i32")
	assert.Contains(t, irText, "ret i32 0")
}

func TestCompileIfBranch(t *testing.T) {
	ctx := graph.NewContext(t.TempDir())

	mod, res := ctx.NewGraphModule("test/branch")
	require.True(t, res.Success())

	i32 := ctx.LangModule().TypeFromName("i32")
	fn, _ := mod.GetOrCreateFunction("classify",
		[]graph.NamedDataType{{Name: "x", Type: i32}},
		nil,
		[]string{"In"}, []string{"zero", "nonzero"})

	entry, res := fn.GetOrInsertEntryNode(0, 0, fixedID(1))
	require.True(t, res.Success(), res.Dump())

	exitType, res := fn.CreateExitNodeType()
	require.True(t, res.Success())
	exitZero, res := fn.InsertNode(exitType, 0, 0, fixedID(2))
	require.True(t, res.Success())
	exitNonzero, res := fn.InsertNode(exitType.Clone(), 0, 0, fixedID(3))
	require.True(t, res.Success())

	zeroConst, res := fn.InsertNodeByName("lang", "const-int", []byte("0"), 0, 0, fixedID(4))
	require.True(t, res.Success(), res.Dump())
	eq, res := fn.InsertNodeByName("lang", "i32==i32", nil, 0, 0, fixedID(5))
	require.True(t, res.Success(), res.Dump())
	ifNode, res := fn.InsertNodeByName("lang", "if", nil, 0, 0, fixedID(6))
	require.True(t, res.Success(), res.Dump())

	require.True(t, graph.ConnectData(entry, 0, eq, 0).Success())
	require.True(t, graph.ConnectData(zeroConst, 0, eq, 1).Success())
	require.True(t, graph.ConnectData(eq, 0, ifNode, 0).Success())
	require.True(t, graph.ConnectExec(entry, 0, ifNode, 0).Success())
	require.True(t, graph.ConnectExec(ifNode, 0, exitZero, 0).Success())
	require.True(t, graph.ConnectExec(ifNode, 1, exitNonzero, 1).Success())

	irText := compileModuleString(t, ctx, "test/branch", 0)

	assert.Contains(t, irText, "icmp eq i32")
	assert.Contains(t, irText, "br i1")
	// the two exits return their exec input ids
	assert.Contains(t, irText, "ret i32 0")
	assert.Contains(t, irText, "ret i32 1")
}

func TestCompileDeterminism(t *testing.T) {
	ctx1 := graph.NewContext(t.TempDir())
	buildAddModule(t, ctx1, "test/det")
	first := compileModuleString(t, ctx1, "test/det", 0)

	ctx2 := graph.NewContext(t.TempDir())
	buildAddModule(t, ctx2, "test/det")
	second := compileModuleString(t, ctx2, "test/det", 0)

	assert.Equal(t, first, second, "two compilations must yield identical IR")
}

func TestPureRematerializedPerConsumer(t *testing.T) {
	ctx := graph.NewContext(t.TempDir())

	mod, res := ctx.NewGraphModule("test/remat")
	require.True(t, res.Success())

	i32 := ctx.LangModule().TypeFromName("i32")
	fn, _ := mod.GetOrCreateFunction("pick",
		[]graph.NamedDataType{{Name: "x", Type: i32}},
		[]graph.NamedDataType{{Name: "out", Type: i32}},
		[]string{"In"}, []string{"zero", "nonzero"})

	entry, res := fn.GetOrInsertEntryNode(0, 0, fixedID(1))
	require.True(t, res.Success(), res.Dump())

	exitType, res := fn.CreateExitNodeType()
	require.True(t, res.Success())
	exit1, res := fn.InsertNode(exitType, 0, 0, fixedID(2))
	require.True(t, res.Success())
	exit2, res := fn.InsertNode(exitType.Clone(), 0, 0, fixedID(3))
	require.True(t, res.Success())

	magic, res := fn.InsertNodeByName("lang", "const-int", []byte("1337"), 0, 0, fixedID(4))
	require.True(t, res.Success())
	zero, res := fn.InsertNodeByName("lang", "const-int", []byte("0"), 0, 0, fixedID(5))
	require.True(t, res.Success())
	eq, res := fn.InsertNodeByName("lang", "i32==i32", nil, 0, 0, fixedID(6))
	require.True(t, res.Success())
	ifNode, res := fn.InsertNodeByName("lang", "if", nil, 0, 0, fixedID(7))
	require.True(t, res.Success())

	require.True(t, graph.ConnectData(entry, 0, eq, 0).Success())
	require.True(t, graph.ConnectData(zero, 0, eq, 1).Success())
	require.True(t, graph.ConnectData(eq, 0, ifNode, 0).Success())

	// the same pure constant feeds both exits
	require.True(t, graph.ConnectData(magic, 0, exit1, 0).Success())
	require.True(t, graph.ConnectData(magic, 0, exit2, 0).Success())

	require.True(t, graph.ConnectExec(entry, 0, ifNode, 0).Success())
	require.True(t, graph.ConnectExec(ifNode, 0, exit1, 0).Success())
	require.True(t, graph.ConnectExec(ifNode, 1, exit2, 1).Success())

	irText := compileModuleString(t, ctx, "test/remat", 0)

	// re-materialised once per consumer: the constant is stored twice
	assert.Equal(t, 2, strings.Count(irText, "store i32 1337"),
		"pure node must be emitted once per consumer\n%s", irText)
}

func TestCompileLinkedDependency(t *testing.T) {
	ctx := graph.NewContext(t.TempDir())

	// module B exports fortytwo() -> i32
	i32 := ctx.LangModule().TypeFromName("i32")
	modB, res := ctx.NewGraphModule("test/b")
	require.True(t, res.Success())

	fnB, _ := modB.GetOrCreateFunction("fortytwo",
		nil, []graph.NamedDataType{{Name: "v", Type: i32}},
		[]string{"In"}, []string{"Out"})

	entryB, res := fnB.GetOrInsertEntryNode(0, 0, fixedID(10))
	require.True(t, res.Success(), res.Dump())
	exitTypeB, res := fnB.CreateExitNodeType()
	require.True(t, res.Success())
	exitB, res := fnB.InsertNode(exitTypeB, 0, 0, fixedID(11))
	require.True(t, res.Success())
	c42, res := fnB.InsertNodeByName("lang", "const-int", []byte("42"), 0, 0, fixedID(12))
	require.True(t, res.Success())

	require.True(t, graph.ConnectExec(entryB, 0, exitB, 0).Success())
	require.True(t, graph.ConnectData(c42, 0, exitB, 0).Success())

	// module A re-exports it through a call node
	modA, res := ctx.NewGraphModule("test/a")
	require.True(t, res.Success())
	require.True(t, modA.AddDependency("test/b").Success())

	fnA, _ := modA.GetOrCreateFunction("get",
		nil, []graph.NamedDataType{{Name: "v", Type: i32}},
		[]string{"In"}, []string{"Out"})

	entryA, res := fnA.GetOrInsertEntryNode(0, 0, fixedID(20))
	require.True(t, res.Success(), res.Dump())
	exitTypeA, res := fnA.CreateExitNodeType()
	require.True(t, res.Success())
	exitA, res := fnA.InsertNode(exitTypeA, 0, 0, fixedID(21))
	require.True(t, res.Success())

	call, res := fnA.InsertNodeByName("test/b", "fortytwo", nil, 0, 0, fixedID(22))
	require.True(t, res.Success(), res.Dump())

	require.True(t, graph.ConnectExec(entryA, 0, call, 0).Success())
	require.True(t, graph.ConnectExec(call, 0, exitA, 0).Success())
	require.True(t, graph.ConnectData(call, 0, exitA, 0).Success())

	// linked: both functions are defined and the result is self-contained
	linked := compileModuleString(t, ctx, "test/a", LinkDependencies)
	assert.Contains(t, linked, "define i32 @test_sa_mget")
	assert.Contains(t, linked, "define i32 @test_sb_mfortytwo")
	assert.Contains(t, linked, "call i32 @test_sb_mfortytwo")
	assert.NotContains(t, linked, "declare")
	assert.Contains(t, linked, "store i32 42")

	// unlinked: the dependency stays a declaration
	unlinked := compileModuleString(t, ctx, "test/a", 0)
	assert.Contains(t, unlinked, "define i32 @test_sa_mget")
	assert.NotContains(t, unlinked, "define i32 @test_sb_mfortytwo")
	assert.Contains(t, unlinked, "declare")
}

func TestDiamondDependencyCompiledOnce(t *testing.T) {
	ctx := graph.NewContext(t.TempDir())

	buildNoopModule(t, ctx, "test/d")

	for _, name := range []string{"test/bb", "test/cc"} {
		mod, res := ctx.NewGraphModule(name)
		require.True(t, res.Success())
		require.True(t, mod.AddDependency("test/d").Success())
		fn, _ := mod.GetOrCreateFunction("noop", nil, nil, []string{"In"}, []string{"Out"})
		entry, res := fn.GetOrInsertEntryNode(0, 0, fixedID(30))
		require.True(t, res.Success())
		exitType, res := fn.CreateExitNodeType()
		require.True(t, res.Success())
		exit, res := fn.InsertNode(exitType, 0, 0, fixedID(31))
		require.True(t, res.Success())
		require.True(t, graph.ConnectExec(entry, 0, exit, 0).Success())
	}

	top, res := ctx.NewGraphModule("test/top")
	require.True(t, res.Success())
	require.True(t, top.AddDependency("test/bb").Success())
	require.True(t, top.AddDependency("test/cc").Success())
	fn, _ := top.GetOrCreateFunction("noop", nil, nil, []string{"In"}, []string{"Out"})
	entry, res := fn.GetOrInsertEntryNode(0, 0, fixedID(40))
	require.True(t, res.Success())
	exitType, res := fn.CreateExitNodeType()
	require.True(t, res.Success())
	exit, res := fn.InsertNode(exitType, 0, 0, fixedID(41))
	require.True(t, res.Success())
	require.True(t, graph.ConnectExec(entry, 0, exit, 0).Success())

	// the diamond's shared dependency is folded in exactly once
	irText := compileModuleString(t, ctx, "test/top", LinkDependencies)
	assert.Equal(t, 1, strings.Count(irText, "define i32 @test_sd_mnoop"))
}

func TestValidationFailureEmitsNothing(t *testing.T) {
	ctx := graph.NewContext(t.TempDir())

	mod, res := ctx.NewGraphModule("test/badpure")
	require.True(t, res.Success())

	i32 := ctx.LangModule().TypeFromName("i32")
	fn, _ := mod.GetOrCreateFunction("bad",
		nil, []graph.NamedDataType{{Name: "out", Type: i32}},
		[]string{"In"}, []string{"Out"})

	entry, res := fn.GetOrInsertEntryNode(0, 0, fixedID(1))
	require.True(t, res.Success())
	exitType, res := fn.CreateExitNodeType()
	require.True(t, res.Success())
	exit, res := fn.InsertNode(exitType, 0, 0, fixedID(2))
	require.True(t, res.Success())
	require.True(t, graph.ConnectExec(entry, 0, exit, 0).Success())

	// a pure cycle feeding the exit
	p1, res := fn.InsertNodeByName("lang", "i32+i32", nil, 0, 0, fixedID(3))
	require.True(t, res.Success())
	p2, res := fn.InsertNodeByName("lang", "i32+i32", nil, 0, 0, fixedID(4))
	require.True(t, res.Success())
	require.True(t, graph.ConnectData(p1, 0, p2, 0).Success())
	require.True(t, graph.ConnectData(p2, 0, p1, 0).Success())
	require.True(t, graph.ConnectData(p1, 0, exit, 0).Success())

	llmod := ir.NewModule()
	fc := NewFunctionCompiler(fn, llmod, nil, nil, mod.CreateLineNumberAssoc())

	initRes := fc.Initialize(true)
	require.False(t, initRes.Success())

	found := false
	for _, ent := range initRes.Entries {
		if ent.Code == "E25" {
			found = true
		}
	}
	assert.True(t, found, "pure cycle must fail with E25:\n%s", initRes.Dump())

	// no IR was emitted for the failed function
	assert.Empty(t, llmod.Funcs)
}

func TestEntryExecPortsDispatchToSameExit(t *testing.T) {
	ctx := graph.NewContext(t.TempDir())

	mod, res := ctx.NewGraphModule("test/multi")
	require.True(t, res.Success())

	fn, _ := mod.GetOrCreateFunction("route", nil, nil,
		[]string{"first", "second"}, []string{"Out"})

	entry, res := fn.GetOrInsertEntryNode(0, 0, fixedID(1))
	require.True(t, res.Success(), res.Dump())

	exitType, res := fn.CreateExitNodeType()
	require.True(t, res.Success())
	exit, res := fn.InsertNode(exitType, 0, 0, fixedID(2))
	require.True(t, res.Success())

	require.True(t, graph.ConnectExec(entry, 0, exit, 0).Success())
	require.True(t, graph.ConnectExec(entry, 1, exit, 0).Success())

	irText := compileModuleString(t, ctx, "test/multi", 0)

	// both entry exec ports dispatch through the switch
	assert.Contains(t, irText, "switch i32 %inputexec_id")
	assert.Contains(t, irText, "i32 0, label")
	assert.Contains(t, irText, "i32 1, label")
}
