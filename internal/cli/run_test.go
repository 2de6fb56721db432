package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/choreo/internal/value"
)

func formatAll(vals []value.Value) string {
	return value.Format(value.Args(vals...))
}

func TestRun_Greet(t *testing.T) {
	out, err := execute(t, testOptions(), "--db", tempDB(t), "run", "greet", "Bob")
	require.NoError(t, err)
	assert.Equal(t, "greet (pid 0) completed: \"Hi Bob\"\n", out)
}

func TestRun_SumJSON(t *testing.T) {
	out, err := execute(t, testOptions(), "--db", tempDB(t), "--format", "json", "run", "sum", "1", "2", "3")
	require.NoError(t, err)

	var resp struct {
		Status string    `json:"status"`
		Data   RunResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "sum", resp.Data.Procedure)
	assert.Equal(t, float64(12), resp.Data.Result)
}

func TestRun_UnknownProcedure(t *testing.T) {
	out, err := execute(t, testOptions(), "--db", tempDB(t), "run", "nope")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "UNKNOWN_PROCEDURE")
}

func TestRun_FailingProcedure(t *testing.T) {
	out, err := execute(t, testOptions(), "--db", tempDB(t), "run", "boom", "7")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "Error [ERROR] pid 0: boom: [7]")
}

func TestRun_TimeoutLeavesProcessPersisted(t *testing.T) {
	db := tempDB(t)

	_, err := execute(t, testOptions(), "--db", db, "run", "--timeout", "50ms", "hold")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "did not finish")

	out, err := execute(t, testOptions(), "--db", db, "ps")
	require.NoError(t, err)
	assert.Contains(t, out, "hold")
}

func TestRun_BadArgument(t *testing.T) {
	_, err := execute(t, testOptions(), "--db", tempDB(t), "run", "double", "1.5")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRun_ConfigFileDrivers(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name   string
		config string
	}{
		{"serial executor", "store:\n  path: " + filepath.Join(dir, "serial.db") + "\nexecutor:\n  kind: serial\n"},
		{"bolt store", "store:\n  driver: bolt\n  path: " + filepath.Join(dir, "c.bolt") + "\n"},
		{"memory store", "store:\n  driver: memory\nexecutor:\n  kind: inline\n"},
		{"goroutines", "store:\n  path: " + filepath.Join(dir, "go.db") + "\nexecutor:\n  kind: go\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "choreo.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.config), 0644))

			out, err := execute(t, testOptions(), "--config", path, "run", "sum", "2", "5")
			require.NoError(t, err)
			assert.Equal(t, "sum (pid 0) completed: 14\n", out)
		})
	}
}

func TestRun_BadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "choreo.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store:\n  driver: postgres\n"), 0644))

	_, err := execute(t, testOptions(), "--config", path, "run", "greet", "Bob")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to load config")
}
