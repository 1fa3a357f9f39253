package graph

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildAddModule builds the canonical two-input add function used by several
// tests: entry -> exit with a pure i32+i32 feeding the exit.
func buildAddModule(t *testing.T, ctx *Context, fullName string) *GraphModule {
	t.Helper()

	mod, res := ctx.NewGraphModule(fullName)
	require.True(t, res.Success(), res.Dump())

	i32 := ctx.LangModule().TypeFromName("i32")
	fn, _ := mod.GetOrCreateFunction("add",
		[]NamedDataType{{Name: "a", Type: i32}, {Name: "b", Type: i32}},
		[]NamedDataType{{Name: "s", Type: i32}},
		[]string{"In"}, []string{"Out"})

	entry, res := fn.GetOrInsertEntryNode(0, 0, uuid.New())
	require.True(t, res.Success(), res.Dump())

	exitType, res := fn.CreateExitNodeType()
	require.True(t, res.Success(), res.Dump())
	exit, res := fn.InsertNode(exitType, 10, 20, uuid.New())
	require.True(t, res.Success())

	add, res := fn.InsertNodeByName("lang", "i32+i32", nil, 5, 5, uuid.New())
	require.True(t, res.Success(), res.Dump())

	require.True(t, ConnectExec(entry, 0, exit, 0).Success())
	require.True(t, ConnectData(entry, 0, add, 0).Success())
	require.True(t, ConnectData(entry, 1, add, 1).Success())
	require.True(t, ConnectData(add, 0, exit, 0).Success())

	return mod
}

func TestGraphModuleJSONRoundTrip(t *testing.T) {
	ctx := NewContext(t.TempDir())
	mod := buildAddModule(t, ctx, "test/roundtrip")

	// give it a struct and a local too
	i32 := ctx.LangModule().TypeFromName("i32")
	f64 := ctx.LangModule().TypeFromName("float")
	s, _ := mod.GetOrCreateStruct("Vec")
	s.AddField(i32, "x", 0, false)
	s.AddField(f64, "y", 1, false)
	mod.FunctionFromName("add").GetOrCreateLocalVariable("tmp", i32)

	raw, err := json.Marshal(GraphModuleToJSON(mod))
	require.NoError(t, err)

	ctx2 := NewContext(t.TempDir())
	mod2, res := ctx2.AddModuleFromJSON("test/roundtrip", raw)
	require.True(t, res.Success(), res.Dump())

	// structural equality: same functions, structs, nodes (UUIDs
	// preserved), and connections
	assert.ElementsMatch(t, mod.NodeTypeNames(), mod2.NodeTypeNames())

	s2 := mod2.StructFromName("Vec")
	require.NotNil(t, s2)
	require.Len(t, s2.Fields(), 2)
	assert.Equal(t, "x", s2.Fields()[0].Name)
	assert.Equal(t, "lang:i32", s2.Fields()[0].Type.QualifiedName())

	fn := mod.FunctionFromName("add")
	fn2 := mod2.FunctionFromName("add")
	require.NotNil(t, fn2)
	assert.Equal(t, namedPairs(fn.DataInputs()), namedPairs(fn2.DataInputs()))
	assert.Equal(t, namedPairs(fn.DataOutputs()), namedPairs(fn2.DataOutputs()))
	assert.Equal(t, fn.ExecInputs(), fn2.ExecInputs())
	assert.Equal(t, fn.ExecOutputs(), fn2.ExecOutputs())
	assert.Equal(t, namedPairs(fn.LocalVariables()), namedPairs(fn2.LocalVariables()))

	require.Len(t, fn2.Nodes(), len(fn.Nodes()))
	for id, node := range fn.Nodes() {
		node2 := fn2.NodeByID(id)
		require.NotNil(t, node2, "node %s lost in round trip", id)
		assert.Equal(t, node.Type().QualifiedName(), node2.Type().QualifiedName())
		assert.Equal(t, node.X(), node2.X())
		assert.Equal(t, node.Y(), node2.Y())

		for port, conn := range node.InputDataConnections {
			conn2 := node2.InputDataConnections[port]
			if conn.Node == nil {
				assert.Nil(t, conn2.Node)
				continue
			}
			require.NotNil(t, conn2.Node)
			assert.Equal(t, conn.Node.ID(), conn2.Node.ID())
			assert.Equal(t, conn.Index, conn2.Index)
		}
		for port, conn := range node.OutputExecConnections {
			conn2 := node2.OutputExecConnections[port]
			if conn.Node == nil {
				assert.Nil(t, conn2.Node)
				continue
			}
			require.NotNil(t, conn2.Node)
			assert.Equal(t, conn.Node.ID(), conn2.Node.ID())
			assert.Equal(t, conn.Index, conn2.Index)
		}
	}

	// a second serialization is structurally identical
	raw2, err := json.Marshal(GraphModuleToJSON(mod2))
	require.NoError(t, err)
	assert.JSONEq(t, string(raw), string(raw2))
}

func TestSaveToDiskAndLoadModule(t *testing.T) {
	workspace := t.TempDir()
	require.NoError(t, writeWorkspaceMarker(workspace))

	ctx := NewContext(workspace)
	mod := buildAddModule(t, ctx, "test/saved")
	require.True(t, mod.SaveToDisk().Success())

	ctx2 := NewContext(workspace)
	loaded, res := ctx2.LoadModule("test/saved")
	require.True(t, res.Success(), res.Dump())
	require.NotNil(t, loaded)

	gm := loaded.(*GraphModule)
	require.NotNil(t, gm.FunctionFromName("add"))

	// loading again returns the same module value
	again, res := ctx2.LoadModule("test/saved")
	require.True(t, res.Success())
	assert.Same(t, loaded, again)
}
