package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xelth-com/datalake/internal/app"
	"github.com/xelth-com/datalake/internal/config"
	"github.com/xelth-com/datalake/internal/models"
	"github.com/xelth-com/datalake/internal/reader"
	datasync "github.com/xelth-com/datalake/internal/sync"
	"github.com/xelth-com/datalake/internal/testutil"
	"gorm.io/gorm"
)

// testOpener serves one stub connection over an in-memory database
func testOpener(t *testing.T) (Opener, *gorm.DB) {
	t.Helper()
	db := testutil.NewTestDB(t)
	syncCfg := testutil.SyncConfig()
	logger, _ := test.NewNullLogger()

	open := func(ctx context.Context, logOut io.Writer, verbose bool) (*app.App, error) {
		orch, err := app.BuildOrchestrator(db, config.ConnectionConfig{
			OrganizationID: "org-1",
			ConnectionID:   "conn-1",
			Type:           "stub",
		}, testutil.NewStubConnector(), app.OrchestratorDeps{Sync: syncCfg, Logger: logger})
		if err != nil {
			return nil, err
		}
		manager := datasync.NewManager()
		if err := manager.Add(orch); err != nil {
			return nil, err
		}
		rd, err := reader.New(db, syncCfg)
		if err != nil {
			return nil, err
		}
		return &app.App{Sync: syncCfg, Log: logger, Manager: manager, Reader: rd}, nil
	}
	return open, db
}

func execute(t *testing.T, open Opener, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommandWith(open)
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "datalakectl", cmd.Use)
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"sync", "stats", "freshness", "connections", "version"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	conn := cmd.PersistentFlags().Lookup("connection")
	require.NotNil(t, conn)
	assert.Equal(t, "c", conn.Shorthand)

	format := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, format)
	assert.Equal(t, "text", format.DefValue)
}

func TestInvalidFormat(t *testing.T) {
	open, _ := testOpener(t)
	_, err := execute(t, open, "connections", "--format", "yaml")
	assert.ErrorContains(t, err, `invalid format "yaml"`)
}

func TestSyncCommandMirrorsData(t *testing.T) {
	open, db := testOpener(t)

	out, err := execute(t, open, "sync", "full", "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Status string        `json:"status"`
		Data   []SyncOutcome `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "conn-1", resp.Data[0].ConnectionID)
	require.NotNil(t, resp.Data[0].Result)
	assert.Equal(t, datasync.TierFull, resp.Data[0].Result.Tier)
	assert.Len(t, resp.Data[0].Result.Entities, len(datasync.EntityKinds))

	var transports int64
	require.NoError(t, db.Model(&models.Transport{}).Where("connection_id = ?", "conn-1").Count(&transports).Error)
	assert.Equal(t, int64(1), transports)

	out, err = execute(t, open, "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "conn-1 (stub)")
	assert.Contains(t, out, "transports")
}

func TestSyncCommandRejectsBadInput(t *testing.T) {
	open, _ := testOpener(t)

	_, err := execute(t, open, "sync", "hourly")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.True(t, errors.Is(err, datasync.ErrUnknownTier))

	_, err = execute(t, open, "sync", "periodic", "--connection", "nope")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.ErrorContains(t, err, `unknown connection "nope"`)
}

func TestFreshnessCommand(t *testing.T) {
	open, _ := testOpener(t)
	_, err := execute(t, open, "sync", "transports", "-c", "conn-1")
	require.NoError(t, err)

	out, err := execute(t, open, "freshness", "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Data map[string]map[string]reader.Freshness `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Contains(t, resp.Data, "conn-1")
	assert.True(t, resp.Data["conn-1"]["transports"].IsFresh)
	assert.False(t, resp.Data["conn-1"]["invoices"].IsFresh)
}

func TestConnectionsAndVersion(t *testing.T) {
	open, _ := testOpener(t)

	out, err := execute(t, open, "connections")
	require.NoError(t, err)
	assert.Contains(t, out, "CONNECTION")
	assert.Contains(t, out, "conn-1")
	assert.Contains(t, out, "stub")

	out, err = execute(t, open, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "datalakectl unknown")
}

func TestOpenFailureIsCommandError(t *testing.T) {
	failing := func(ctx context.Context, logOut io.Writer, verbose bool) (*app.App, error) {
		return nil, errors.New("no database")
	}
	_, err := execute(t, failing, "stats")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
