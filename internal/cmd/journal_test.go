package cmd

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pacerhq/pacer/internal/output"
)

func TestWriteJournalResetResult(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeJournalResetResult(output.FormatTable, &buf, 3, 0, true))
	require.Equal(t, "Would delete 3 journal entr(ies)\n", buf.String())

	buf.Reset()
	require.NoError(t, writeJournalResetResult(output.FormatTable, &buf, 3, 2, false))
	require.Equal(t, "Deleted 2/3 journal entr(ies)\n", buf.String())

	buf.Reset()
	require.NoError(t, writeJournalResetResult(output.FormatJSON, &buf, 4, 4, false))
	var decoded journalResetResult
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Equal(t, journalResetResult{Matched: 4, Deleted: 4}, decoded)
}
