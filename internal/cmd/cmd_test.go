package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pikicariks/modbus-driver-synthesis-agent/internal/models"
	"github.com/pikicariks/modbus-driver-synthesis-agent/internal/store"
)

// execute runs the CLI with args against a fresh root command and returns
// combined output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	buf := &bytes.Buffer{}
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

// tempDB returns a database path in a temp dir plus the flag to use it.
func tempDB(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "synthd.db")
}

// seedTask inserts a task directly into the database at dbPath.
func seedTask(t *testing.T, dbPath string, mutate func(*models.Task)) models.Task {
	t.Helper()
	task := models.NewTask("Sungrow SG5K", []byte("# Register map\n\n40001 AC power"), models.LanguagePython, 5)
	if mutate != nil {
		mutate(&task)
	}
	s, err := store.NewStore(dbPath)
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.AddTask(context.Background(), task))
	return task
}

func writeDatasheet(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// reloadTask reads a task back from the database at dbPath.
func reloadTask(t *testing.T, dbPath, id string) models.Task {
	t.Helper()
	s, err := store.NewStore(dbPath)
	require.NoError(t, err)
	defer s.Close()
	task, err := s.GetTask(context.Background(), id)
	require.NoError(t, err)
	return task
}

// seedArtifact stores a driver artifact for taskID.
func seedArtifact(t *testing.T, dbPath, taskID, content string, version int) models.DriverArtifact {
	t.Helper()
	s, err := store.NewStore(dbPath)
	require.NoError(t, err)
	defer s.Close()
	art := models.NewDriverArtifact(taskID, content, version)
	require.NoError(t, s.SaveArtifact(context.Background(), art))
	return art
}

// seedAttemptLog appends an attempt log for taskID.
func seedAttemptLog(t *testing.T, dbPath string, log models.AttemptLog) {
	t.Helper()
	s, err := store.NewStore(dbPath)
	require.NoError(t, err)
	defer s.Close()
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	require.NoError(t, s.AddAttemptLog(context.Background(), &log))
}
