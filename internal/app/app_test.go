package app

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xelth-com/datalake/internal/config"
	"github.com/xelth-com/datalake/internal/testutil"
)

func TestConnectorsRegistry(t *testing.T) {
	assert.Equal(t, []string{"dashdoc", "odoo"}, Connectors().Types())
}

func TestAssembleBuildsOneOrchestratorPerActiveConnection(t *testing.T) {
	db := testutil.NewTestDB(t)
	logger, _ := test.NewNullLogger()

	syncCfg := testutil.SyncConfig(
		config.ConnectionConfig{OrganizationID: "org-1", ConnectionID: "dd-1", Type: "dashdoc", APIToken: "secret"},
		config.ConnectionConfig{OrganizationID: "org-1", ConnectionID: "odoo-1", Type: "odoo", BaseURL: "http://odoo.local", Database: "prod"},
		config.ConnectionConfig{OrganizationID: "org-2", ConnectionID: "off", Type: "dashdoc", Disabled: true},
	)

	a, err := assemble(db, &config.Config{}, syncCfg, logger)
	require.NoError(t, err)

	list := a.Manager.List()
	require.Len(t, list, 2)
	assert.Equal(t, "dd-1", list[0].ConnectionID())
	assert.Equal(t, "dashdoc", list[0].ConnectorName())
	assert.Equal(t, "odoo", list[1].ConnectorName())
	assert.NotNil(t, a.Reader.Transports)
	assert.NotNil(t, a.Hub)

	_, err = list[0].Prepare(context.Background())
	require.NoError(t, err)
	stats, err := list[0].GetStats(context.Background())
	require.NoError(t, err)
	assert.False(t, stats.IsRunning)
	assert.Zero(t, stats.Collections["transports"])

	require.NoError(t, a.Shutdown(context.Background()))
}

func TestAssembleRejectsBadConnections(t *testing.T) {
	db := testutil.NewTestDB(t)
	logger, _ := test.NewNullLogger()

	_, err := assemble(db, &config.Config{}, testutil.SyncConfig(
		config.ConnectionConfig{ConnectionID: "x", Type: "shippeo"},
	), logger)
	assert.ErrorContains(t, err, "connector shippeo not found")

	_, err = assemble(db, &config.Config{}, testutil.SyncConfig(
		config.ConnectionConfig{ConnectionID: "dd", Type: "dashdoc"},
	), logger)
	assert.ErrorContains(t, err, "missing api token")
}
