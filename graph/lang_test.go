package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLangPrimitiveTypes(t *testing.T) {
	ctx := NewContext(t.TempDir())
	lang := ctx.LangModule()

	for _, name := range lang.TypeNames() {
		ty := lang.TypeFromName(name)
		assert.True(t, ty.Valid(), "lang:%s must be valid", name)
		assert.Equal(t, "lang:"+name, ty.QualifiedName())
	}

	assert.False(t, lang.TypeFromName("nope").Valid())
}

func TestLangNodeTypeCatalog(t *testing.T) {
	ctx := NewContext(t.TempDir())
	lang := ctx.LangModule()

	tests := []struct {
		name     string
		data     string
		pure     bool
		dataIns  int
		dataOuts int
		execIns  int
		execOuts int
	}{
		{"if", "", false, 1, 0, 1, 2},
		{"const-int", "42", true, 0, 1, 0, 0},
		{"const-float", "1.5", true, 0, 1, 0, 0},
		{"const-bool", "true", true, 0, 1, 0, 0},
		{"strliteral", `"hi"`, true, 0, 1, 0, 0},
		{"i32+i32", "", true, 2, 1, 0, 0},
		{"float/float", "", true, 2, 1, 0, 0},
		{"i32==i32", "", true, 2, 1, 0, 0},
		{"float!=float", "", true, 2, 1, 0, 0},
		{"inttofloat", "", true, 1, 1, 0, 0},
		{"floattoint", "", true, 1, 1, 0, 0},
	}

	for _, test := range tests {
		var payload []byte
		if test.data != "" {
			payload = []byte(test.data)
		}

		ty, res := lang.NodeTypeFromName(test.name, payload)
		require.True(t, res.Success(), "%s: %s", test.name, res.Dump())

		assert.Equal(t, test.pure, ty.Pure(), test.name)
		assert.Len(t, ty.DataInputs(), test.dataIns, test.name)
		assert.Len(t, ty.DataOutputs(), test.dataOuts, test.name)
		assert.Len(t, ty.ExecInputs(), test.execIns, test.name)
		assert.Len(t, ty.ExecOutputs(), test.execOuts, test.name)
		assert.Equal(t, "lang:"+test.name, ty.QualifiedName())

		// clones are independent equivalents
		clone := ty.Clone()
		assert.Equal(t, ty.QualifiedName(), clone.QualifiedName())
		assert.NotSame(t, ty, clone)
	}

	_, res := lang.NodeTypeFromName("definitely-not-a-node", nil)
	assert.False(t, res.Success())
}

func TestLangEntryExitHydration(t *testing.T) {
	ctx := NewContext(t.TempDir())

	entry, res := ctx.NodeTypeFromModule("lang", "entry",
		[]byte(`{"data": [{"a": "lang:i32"}, {"b": "lang:float"}], "exec": ["In"]}`))
	require.True(t, res.Success(), res.Dump())

	require.Len(t, entry.DataOutputs(), 2)
	assert.Equal(t, "a", entry.DataOutputs()[0].Name)
	assert.Equal(t, "lang:i32", entry.DataOutputs()[0].Type.QualifiedName())
	assert.Equal(t, []string{"In"}, entry.ExecOutputs())
	assert.Empty(t, entry.ExecInputs())

	// the JSON payload round-trips through hydration
	entry2, res := ctx.NodeTypeFromModule("lang", "entry", entry.JSON())
	require.True(t, res.Success(), res.Dump())
	assert.Equal(t, entry.DataOutputs()[1].Name, entry2.DataOutputs()[1].Name)

	exit, res := ctx.NodeTypeFromModule("lang", "exit",
		[]byte(`{"data": [{"out": "lang:i32"}], "exec": ["Out", "Error"]}`))
	require.True(t, res.Success(), res.Dump())
	assert.Equal(t, []string{"Out", "Error"}, exit.ExecInputs())
	require.Len(t, exit.DataInputs(), 1)
}

func TestStructSynthesis(t *testing.T) {
	ctx := NewContext(t.TempDir())
	mod, res := ctx.NewGraphModule("test/structs")
	require.True(t, res.Success())

	i32 := ctx.LangModule().TypeFromName("i32")
	f64 := ctx.LangModule().TypeFromName("float")

	s, created := mod.GetOrCreateStruct("Pair")
	assert.True(t, created)
	s.AddField(i32, "first", 0, false)
	s.AddField(f64, "second", 1, false)

	ty := s.DataType()
	require.True(t, ty.Valid())
	assert.Equal(t, "test/structs:Pair", ty.QualifiedName())
	assert.Same(t, ty.LLVMType(), s.DataType().LLVMType(), "DataType must be cached")

	// module surfaces the struct as a type and as node types
	assert.True(t, mod.TypeFromName("Pair").Valid())

	maker, res := mod.NodeTypeFromName("_make_Pair", nil)
	require.True(t, res.Success(), res.Dump())
	assert.True(t, maker.Pure())
	assert.Len(t, maker.DataInputs(), 2)
	require.Len(t, maker.DataOutputs(), 1)
	assert.Equal(t, "test/structs:Pair", maker.DataOutputs()[0].Type.QualifiedName())

	breaker, res := mod.NodeTypeFromName("_break_Pair", nil)
	require.True(t, res.Success(), res.Dump())
	assert.True(t, breaker.Pure())
	assert.Len(t, breaker.DataInputs(), 1)
	assert.Len(t, breaker.DataOutputs(), 2)

	// editing invalidates the cached type
	old := ty.LLVMType()
	s.AddField(i32, "third", 2, false)
	assert.NotSame(t, old, s.DataType().LLVMType())
}
