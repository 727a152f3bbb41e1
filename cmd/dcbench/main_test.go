package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunLocal(t *testing.T) {
	tracePath := filepath.Join(t.TempDir(), "trace.sqlog")
	require.NoError(t, run([]string{
		"-role", "local",
		"-duration", "500ms",
		"-tick", "10ms",
		"-window", "100ms",
		"-rate", "100000",
		"-metrics", "localhost:0",
		"-trace", tracePath,
		"-log-level", "none",
	}))

	for _, path := range []string{tracePath, tracePath + ".echo"} {
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		require.Equal(t, byte(0x1e), data[0])
		require.Contains(t, string(data), `"title":"dcbench"`)
	}
	data, err := os.ReadFile(tracePath)
	require.NoError(t, err)
	require.Positive(t, bytes.Count(data, []byte("sender_stats")))
}

func TestRunInvalidFlags(t *testing.T) {
	require.Error(t, run([]string{"-role", "foo"}))
	require.Error(t, run([]string{"-log-level", "verbose"}))
	require.NoError(t, run([]string{"-h"}))
}
