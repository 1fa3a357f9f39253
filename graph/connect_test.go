package graph

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testFunction builds a context, a test module, and a function with an i32
// input and an i32 output to hang nodes off of.
func testFunction(t *testing.T) (*Context, *GraphModule, *GraphFunction) {
	t.Helper()

	ctx := NewContext(t.TempDir())

	mod, res := ctx.NewGraphModule("test/mod")
	require.True(t, res.Success(), res.Dump())

	i32 := ctx.LangModule().TypeFromName("i32")
	fn, _ := mod.GetOrCreateFunction("fun",
		[]NamedDataType{{Name: "in", Type: i32}},
		[]NamedDataType{{Name: "out", Type: i32}},
		[]string{"In"}, []string{"Out"})

	return ctx, mod, fn
}

// insertLangNode inserts a lang node type by name.
func insertLangNode(t *testing.T, fn *GraphFunction, typeName string, data string) *NodeInstance {
	t.Helper()

	payload := []byte(data)
	if data == "" {
		payload = nil
	}

	inst, res := fn.InsertNodeByName("lang", typeName, payload, 0, 0, uuid.New())
	require.True(t, res.Success(), res.Dump())
	return inst
}

func TestConnectDataSymmetry(t *testing.T) {
	_, _, fn := testFunction(t)

	add := insertLangNode(t, fn, "i32+i32", "")
	add2 := insertLangNode(t, fn, "i32+i32", "")

	res := ConnectData(add, 0, add2, 0)
	require.True(t, res.Success(), res.Dump())

	require.Len(t, add.OutputDataConnections[0], 1)
	assert.Equal(t, add2, add.OutputDataConnections[0][0].Node)
	assert.Equal(t, 0, add.OutputDataConnections[0][0].Index)
	assert.Equal(t, add, add2.InputDataConnections[0].Node)
	assert.Equal(t, 0, add2.InputDataConnections[0].Index)
}

func TestConnectDataReplacesExisting(t *testing.T) {
	_, _, fn := testFunction(t)

	first := insertLangNode(t, fn, "const-int", "1")
	second := insertLangNode(t, fn, "const-int", "2")
	add := insertLangNode(t, fn, "i32+i32", "")

	require.True(t, ConnectData(first, 0, add, 0).Success())
	require.True(t, ConnectData(second, 0, add, 0).Success())

	// the new producer won and the old one no longer references add
	assert.Equal(t, second, add.InputDataConnections[0].Node)
	assert.Empty(t, first.OutputDataConnections[0])
	require.Len(t, second.OutputDataConnections[0], 1)
}

func TestConnectDataPortOutOfRange(t *testing.T) {
	_, _, fn := testFunction(t)

	a := insertLangNode(t, fn, "const-int", "1")
	b := insertLangNode(t, fn, "i32+i32", "")

	res := ConnectData(a, 3, b, 0)
	require.False(t, res.Success())
	assert.Equal(t, "E22", res.Entries[0].Code)

	res = ConnectData(a, 0, b, 9)
	require.False(t, res.Success())
	assert.Equal(t, "E23", res.Entries[0].Code)
}

func TestConnectDataTypeMismatch(t *testing.T) {
	_, _, fn := testFunction(t)

	intConst := insertLangNode(t, fn, "const-int", "1")
	floatAdd := insertLangNode(t, fn, "float+float", "")

	res := ConnectData(intConst, 0, floatAdd, 0)
	require.False(t, res.Success())
	assert.Equal(t, "E24", res.Entries[0].Code)

	// both nodes' connection vectors are untouched
	assert.Empty(t, intConst.OutputDataConnections[0])
	assert.Nil(t, floatAdd.InputDataConnections[0].Node)
	assert.Nil(t, floatAdd.InputDataConnections[1].Node)
}

func TestConnectExecSymmetryAndReplacement(t *testing.T) {
	_, _, fn := testFunction(t)

	entry, res := fn.GetOrInsertEntryNode(0, 0, uuid.New())
	require.True(t, res.Success(), res.Dump())

	exitType, res := fn.CreateExitNodeType()
	require.True(t, res.Success(), res.Dump())
	exit1, res := fn.InsertNode(exitType, 0, 0, uuid.New())
	require.True(t, res.Success())
	exit2, res := fn.InsertNode(exitType.Clone(), 0, 0, uuid.New())
	require.True(t, res.Success())

	require.True(t, ConnectExec(entry, 0, exit1, 0).Success())
	assert.Equal(t, exit1, entry.OutputExecConnections[0].Node)
	require.Len(t, exit1.InputExecConnections[0], 1)

	// replacement applies on the output side
	require.True(t, ConnectExec(entry, 0, exit2, 0).Success())
	assert.Equal(t, exit2, entry.OutputExecConnections[0].Node)
	assert.Empty(t, exit1.InputExecConnections[0])
	require.Len(t, exit2.InputExecConnections[0], 1)
}

func TestDisconnectMissingEdge(t *testing.T) {
	_, _, fn := testFunction(t)

	a := insertLangNode(t, fn, "const-int", "1")
	b := insertLangNode(t, fn, "i32+i32", "")

	res := DisconnectData(a, 0, b)
	require.False(t, res.Success())
	assert.Equal(t, "NoSuchEdge", res.Entries[0].Code)

	entry, insRes := fn.GetOrInsertEntryNode(0, 0, uuid.New())
	require.True(t, insRes.Success())

	res = DisconnectExec(entry, 0)
	require.False(t, res.Success())
	assert.Equal(t, "NoSuchEdge", res.Entries[0].Code)
}

func TestRemoveNodeSeversAllEdges(t *testing.T) {
	_, _, fn := testFunction(t)

	entry, res := fn.GetOrInsertEntryNode(0, 0, uuid.New())
	require.True(t, res.Success())

	exitType, res := fn.CreateExitNodeType()
	require.True(t, res.Success())
	exit, res := fn.InsertNode(exitType, 0, 0, uuid.New())
	require.True(t, res.Success())

	add := insertLangNode(t, fn, "i32+i32", "")
	require.True(t, ConnectExec(entry, 0, exit, 0).Success())
	require.True(t, ConnectData(entry, 0, add, 0).Success())
	require.True(t, ConnectData(entry, 0, add, 1).Success())
	require.True(t, ConnectData(add, 0, exit, 0).Success())

	require.True(t, fn.RemoveNode(add).Success())

	assert.Nil(t, fn.NodeByID(add.ID()))
	assert.Nil(t, exit.InputDataConnections[0].Node)
	assert.Empty(t, entry.OutputDataConnections[0])
	// the exec edge between entry and exit is untouched
	assert.Equal(t, exit, entry.OutputExecConnections[0].Node)
}
