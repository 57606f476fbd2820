package facts

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

func TestFunctionsByFile_EncodeMsgpackSortsFiles(t *testing.T) {
	m := FunctionsByFile{}
	for _, f := range []string{"src/z.rs", "src/b.rs", "lib.rs", "src/a/m.rs", "src/a.rs", "main.rs"} {
		m[f] = []FunctionLine{{Name: "f", Line: 1}}
	}

	data, err := msgpack.Marshal(m)
	require.NoError(t, err)

	dec := msgpack.NewDecoder(bytes.NewReader(data))
	n, err := dec.DecodeMapLen()
	require.NoError(t, err)
	require.Equal(t, len(m), n)
	var keys []string
	for i := 0; i < n; i++ {
		k, err := dec.DecodeString()
		require.NoError(t, err)
		keys = append(keys, k)
		var lines []FunctionLine
		require.NoError(t, dec.Decode(&lines))
		assert.Equal(t, m[k], lines)
	}
	assert.Equal(t, []string{"lib.rs", "main.rs", "src/a.rs", "src/a/m.rs", "src/b.rs", "src/z.rs"}, keys)
}

func TestFunctionsByFile_MsgpackRoundTrip(t *testing.T) {
	rep := (&Report{Status: StatusSuccess}).Normalize()
	for i := 0; i < 10; i++ {
		rep.FunctionsByFile[fmt.Sprintf("src/m%d.rs", i)] = []FunctionLine{{Name: "f", Line: i + 1}}
	}

	first, err := msgpack.Marshal(rep)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := msgpack.Marshal(rep)
		require.NoError(t, err)
		require.Equal(t, first, again)
	}

	var back Report
	require.NoError(t, msgpack.Unmarshal(first, &back))
	assert.Equal(t, rep.FunctionsByFile, back.FunctionsByFile)
}
