package graph

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chi/report"
)

// hasCode reports whether any entry in res carries the given code.
func hasCode(res *report.Result, code string) bool {
	for _, ent := range res.Entries {
		if ent.Code == code {
			return true
		}
	}
	return false
}

// buildValidAddFunction wires the canonical entry -> exit add function.
func buildValidAddFunction(t *testing.T) (*Context, *GraphFunction) {
	t.Helper()

	ctx := NewContext(t.TempDir())
	mod := buildAddModule(t, ctx, "test/valid")
	return ctx, mod.FunctionFromName("add")
}

func TestValidateAcceptsWellFormedFunction(t *testing.T) {
	_, fn := buildValidAddFunction(t)

	res := ValidateFunction(fn)
	assert.True(t, res.Success(), res.Dump())
}

func TestValidateMissingEntry(t *testing.T) {
	ctx := NewContext(t.TempDir())
	mod, res := ctx.NewGraphModule("test/noentry")
	require.True(t, res.Success())

	fn, _ := mod.GetOrCreateFunction("f", nil, nil, []string{"In"}, []string{"Out"})

	exitType, res := fn.CreateExitNodeType()
	require.True(t, res.Success())
	_, res = fn.InsertNode(exitType, 0, 0, uuid.New())
	require.True(t, res.Success())

	vres := ValidateFunction(fn)
	require.False(t, vres.Success())
	assert.True(t, hasCode(vres, "E01"), vres.Dump())
}

func TestValidateUnconnectedDataInput(t *testing.T) {
	_, fn := buildValidAddFunction(t)

	// cut one input of the add node; the error must re-open cleanly
	add := fn.NodesWithType("lang", "i32+i32")[0]
	conn := add.InputDataConnections[0]
	require.True(t, DisconnectData(conn.Node, conn.Index, add).Success())

	res := ValidateFunction(fn)
	require.False(t, res.Success())
	assert.True(t, hasCode(res, "E27"), res.Dump())

	// the data structures stayed coherent: reconnecting fixes it
	require.True(t, ConnectData(conn.Node, conn.Index, add, 0).Success())
	assert.True(t, ValidateFunction(fn).Success())
}

func TestValidatePureCycle(t *testing.T) {
	_, _, fn := testFunction(t)

	entry, res := fn.GetOrInsertEntryNode(0, 0, uuid.New())
	require.True(t, res.Success())
	exitType, res := fn.CreateExitNodeType()
	require.True(t, res.Success())
	exit, res := fn.InsertNode(exitType, 0, 0, uuid.New())
	require.True(t, res.Success())
	require.True(t, ConnectExec(entry, 0, exit, 0).Success())

	// two pure adds feeding each other
	p1 := insertLangNode(t, fn, "i32+i32", "")
	p2 := insertLangNode(t, fn, "i32+i32", "")
	require.True(t, ConnectData(p1, 0, p2, 0).Success())
	require.True(t, ConnectData(p2, 0, p1, 0).Success())

	res = ValidateFunction(fn)
	require.False(t, res.Success())
	assert.True(t, hasCode(res, "E25"), res.Dump())
}

func TestValidateExecCycle(t *testing.T) {
	ctx := NewContext(t.TempDir())
	mod, res := ctx.NewGraphModule("test/execcycle")
	require.True(t, res.Success())

	i32 := ctx.LangModule().TypeFromName("i32")

	// a callee so we have a non-pure pass-through node to loop with
	callee, _ := mod.GetOrCreateFunction("callee", nil, nil, []string{"In"}, []string{"Out"})
	_ = callee

	fn, _ := mod.GetOrCreateFunction("looper",
		nil, []NamedDataType{{Name: "out", Type: i32}},
		[]string{"In"}, []string{"Out"})

	entry, res := fn.GetOrInsertEntryNode(0, 0, uuid.New())
	require.True(t, res.Success())

	call1, res := fn.InsertNodeByName("test/execcycle", "callee", nil, 0, 0, uuid.New())
	require.True(t, res.Success(), res.Dump())
	call2, res := fn.InsertNodeByName("test/execcycle", "callee", nil, 0, 0, uuid.New())
	require.True(t, res.Success())

	require.True(t, ConnectExec(entry, 0, call1, 0).Success())
	require.True(t, ConnectExec(call1, 0, call2, 0).Success())
	require.True(t, ConnectExec(call2, 0, call1, 0).Success())

	vres := ValidateFunction(fn)
	require.False(t, vres.Success())
	assert.True(t, hasCode(vres, "E26"), vres.Dump())
}

func TestValidateExitSignatureMismatch(t *testing.T) {
	ctx, fn := buildValidAddFunction(t)

	// an exit with the wrong ports
	badExit, res := ctx.NodeTypeFromModule("lang", "exit",
		[]byte(`{"data": [{"other": "lang:float"}], "exec": ["Out"]}`))
	require.True(t, res.Success(), res.Dump())

	_, insRes := fn.InsertNode(badExit, 0, 0, uuid.New())
	require.True(t, insRes.Success())

	vres := ValidateFunction(fn)
	assert.False(t, vres.Success())
}

func TestValidateDanglingExecOutput(t *testing.T) {
	_, fn := buildValidAddFunction(t)

	entry := fn.EntryNode()
	require.True(t, DisconnectExec(entry, 0).Success())

	res := ValidateFunction(fn)
	assert.False(t, res.Success(), "dangling exec output must fail validation")
}
