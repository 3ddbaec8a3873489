package parser

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/seuros/gopher-relay/src/ir"
)

// TestFixturesRoundTrip parses every fixture, prints it, and parses the
// printed form again. The two functions must be alpha-equal.
func TestFixturesRoundTrip(t *testing.T) {
	files, err := filepath.Glob(filepath.Join("testdata", "*.relay"))
	require.NoError(t, err)
	require.NotEmpty(t, files, "no fixtures found")

	parser, err := New()
	require.NoError(t, err)

	for _, file := range files {
		t.Run(filepath.Base(file), func(t *testing.T) {
			data, err := os.ReadFile(file)
			require.NoError(t, err)

			fn1, err := parser.Parse(string(data))
			require.NoError(t, err, "fixture should parse")

			printed := ir.Print(fn1)
			fn2, err := parser.Parse(printed)
			require.NoError(t, err, "printed form should parse:\n%s", printed)

			require.True(t, ir.AlphaEqual(fn1, fn2), "round trip changed structure:\n%s", printed)
			require.Equal(t, ir.StructuralHash(fn1), ir.StructuralHash(fn2))
			require.Equal(t, printed, ir.Print(fn2), "printing should be stable")
		})
	}
}
