package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommandTree(t *testing.T) {
	root := NewRootCommand()
	assert.Equal(t, "fulfillment", root.Use)

	for _, path := range [][]string{
		{"start"},
		{"migrate", "up"},
		{"migrate", "down"},
		{"seed"},
		{"tracking", "overview"},
		{"tracking", "detail"},
		{"tracking", "reconcile"},
		{"worker", "run"},
	} {
		cmd, _, err := root.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
}

func TestDetailRequiresOrderNumber(t *testing.T) {
	root := NewRootCommand()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"tracking", "detail"})

	assert.Error(t, root.Execute())
}

func TestPrintJSONIndents(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printJSON(&buf, map[string]int{"totalOrders": 3}))
	assert.Equal(t, "{\n  \"totalOrders\": 3\n}\n", buf.String())
}
