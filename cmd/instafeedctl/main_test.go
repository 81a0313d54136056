package main

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"instafeed/internal/models"
	"instafeed/internal/service"
	"instafeed/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunSeed_Demo(t *testing.T) {
	db := testutil.NewTestDB(t)
	var out bytes.Buffer

	require.NoError(t, runSeed(context.Background(), db, "demo", false, &out))
	assert.Contains(t, out.String(), "seeded 4 users")

	// --clean makes a second run possible without unique violations.
	out.Reset()
	require.NoError(t, runSeed(context.Background(), db, "demo", true, &out))

	var n int64
	require.NoError(t, db.Model(&models.Account{}).Count(&n).Error)
	assert.Equal(t, int64(4), n)
}

func TestRunSeed_DuplicateWithoutClean(t *testing.T) {
	db := testutil.NewTestDB(t)
	require.NoError(t, runSeed(context.Background(), db, "demo", false, &bytes.Buffer{}))
	assert.Error(t, runSeed(context.Background(), db, "demo", false, &bytes.Buffer{}))
}

func TestRunSeed_UnknownScenario(t *testing.T) {
	db := testutil.NewTestDB(t)
	assert.Error(t, runSeed(context.Background(), db, "missing", false, &bytes.Buffer{}))
}

func TestRunReconcile(t *testing.T) {
	db := testutil.NewTestDB(t)
	require.NoError(t, runSeed(context.Background(), db, "demo", false, &bytes.Buffer{}))
	require.NoError(t, db.Model(&models.Account{}).Where("username = ?", "ada").
		Update("followers_count", 42).Error)

	var out bytes.Buffer
	require.NoError(t, runReconcile(context.Background(), db, true, &out))

	var report service.ReconcileReport
	require.NoError(t, json.Unmarshal(out.Bytes(), &report))
	assert.Equal(t, int64(1), report.Accounts)
	assert.Zero(t, report.Posts)

	var ada models.Account
	require.NoError(t, db.Where("username = ?", "ada").First(&ada).Error)
	assert.Equal(t, 3, ada.FollowersCount)

	out.Reset()
	require.NoError(t, runReconcile(context.Background(), db, false, &out))
	assert.Equal(t, "repaired 0 accounts, 0 posts\n", out.String())
}

func TestRootCommand_Subcommands(t *testing.T) {
	names := make([]string, 0, len(rootCmd.Commands()))
	for _, c := range rootCmd.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"migrate", "seed", "reconcile"}, names)

	f := seedCmd.Flags().Lookup("scenario")
	require.NotNil(t, f)
	assert.Equal(t, "demo", f.DefValue)
}
