package cmd

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pacerhq/pacer/internal/output"
)

func outputCommand(out *bytes.Buffer) *cobra.Command {
	c := &cobra.Command{Use: "test"}
	c.Flags().String("out", "", "")
	c.Flags().String("out-dir", "", "")
	c.SetOut(out)
	return c
}

func TestOpenOutputDefaultsToCommandStdout(t *testing.T) {
	var buf bytes.Buffer
	sink, err := openOutput(outputCommand(&buf), output.FormatTable, "simulate")
	require.NoError(t, err)
	defer func() { _ = sink.close() }()

	_, _ = fmt.Fprint(sink.writer, "hello")
	assert.Equal(t, "-", sink.path)
	assert.Equal(t, "hello", buf.String())
}

func TestOpenOutputWritesIntoDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")
	c := outputCommand(&bytes.Buffer{})
	require.NoError(t, c.Flags().Set("out-dir", dir))

	sink, err := openOutput(c, output.FormatJSON, "burst")
	require.NoError(t, err)
	_, _ = fmt.Fprint(sink.writer, "{}")
	require.NoError(t, sink.close())

	assert.Equal(t, filepath.Join(dir, "burst.json"), sink.path)
	data, err := os.ReadFile(sink.path)
	require.NoError(t, err)
	assert.Equal(t, "{}", string(data))
}

func TestOpenOutputRejectsBothTargets(t *testing.T) {
	c := outputCommand(&bytes.Buffer{})
	require.NoError(t, c.Flags().Set("out", "a.txt"))
	require.NoError(t, c.Flags().Set("out-dir", "b"))

	_, err := openOutput(c, output.FormatTable, "x")
	assert.ErrorContains(t, err, "mutually exclusive")
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "burst-at-start", sanitizeFilename(" Burst at start "))
	assert.Equal(t, "a.b_c", sanitizeFilename("a.b_c"))
	assert.Equal(t, "output", sanitizeFilename("..//.."))
}

func TestOutputExtension(t *testing.T) {
	assert.Equal(t, "json", outputExtension(output.FormatJSON))
	assert.Equal(t, "md", outputExtension(output.FormatMarkdown))
	assert.Equal(t, "txt", outputExtension(output.FormatTable))
}
