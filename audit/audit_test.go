package audit_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aleksey-mikhaylov/sailfish-secrets/audit"
)

func TestNewLoggerDisabledReturnsNoOp(t *testing.T) {
	logger, err := audit.NewLogger(&audit.Config{Enabled: false})
	require.NoError(t, err)
	assert.IsType(t, &audit.NoOpLogger{}, logger)

	require.NoError(t, logger.Log("CreateCollection", true, nil))
}

func TestNewLoggerNilConfigReturnsNoOp(t *testing.T) {
	logger, err := audit.NewLogger(nil)
	require.NoError(t, err)
	assert.IsType(t, &audit.NoOpLogger{}, logger)
}

func TestNewLoggerUnknownTypeErrors(t *testing.T) {
	_, err := audit.NewLogger(&audit.Config{Enabled: true, Type: audit.ConfigType("bogus")})
	assert.Error(t, err)
}

func TestFileLoggerWritesAndQueriesEvents(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "secretsd-audit.jsonl")

	logger, err := audit.NewLogger(&audit.Config{
		Enabled: true,
		Type:    audit.FileAuditType,
		Options: map[string]interface{}{"file_path": logPath},
	})
	require.NoError(t, err)
	defer logger.Close()

	require.NoError(t, logger.Log("CreateCollection", true, map[string]interface{}{
		"collection": "wallet",
	}))
	require.NoError(t, logger.Log("DeleteCollection", false, nil))

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "CreateCollection")
	assert.Contains(t, string(data), "DeleteCollection")

	result, err := logger.Query(audit.QueryOptions{Action: "DeleteCollection"})
	require.NoError(t, err)
	require.Len(t, result.Events, 1)
	assert.False(t, result.Events[0].Success)
}

func TestFileLoggerRequiresFilePath(t *testing.T) {
	_, err := audit.NewFileLogger(&audit.Config{Enabled: true, Type: audit.FileAuditType})
	assert.Error(t, err)
}

func TestFileLoggerQueryFiltersBySuccess(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "audit.jsonl")

	logger, err := audit.NewFileLogger(&audit.Config{
		Enabled: true,
		Options: map[string]interface{}{"file_path": logPath},
	})
	require.NoError(t, err)
	defer logger.Close()

	require.NoError(t, logger.Log("SetCollectionSecret", true, nil))
	require.NoError(t, logger.Log("SetCollectionSecret", false, nil))

	failed := false
	result, err := logger.Query(audit.QueryOptions{Success: &failed})
	require.NoError(t, err)
	require.Len(t, result.Events, 1)
	assert.Equal(t, "SetCollectionSecret", result.Events[0].Action)
}
