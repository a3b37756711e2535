package postgres

import (
	"context"
	"math"
	"os"
	"testing"
	"time"

	"gocombine/domain/combination"
	"gocombine/domain/core"
	"gocombine/internal/migration"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPointPayload_ValueScan(t *testing.T) {
	best := combination.NewResult(nil, []int{0})
	best.Z = 1.7
	in := combination.PointResult{PointID: "m1", Ranked: []combination.Result{best}, Candidates: 3}

	v, err := pointPayload(in).Value()
	require.NoError(t, err)

	var out pointPayload
	require.NoError(t, out.Scan(v))
	assert.Equal(t, core.PointID("m1"), out.PointID)
	require.Len(t, out.Ranked, 1)
	assert.Equal(t, 1.7, out.Ranked[0].Z)
	assert.True(t, math.IsNaN(out.Ranked[0].ExpectedUL))

	assert.Error(t, out.Scan(42))
	assert.False(t, nullFloat(math.NaN()).Valid)
	assert.True(t, nullFloat(0).Valid)
}

// TestResultRepository_Postgres runs against a live database when
// TEST_DATABASE_URL is set.
func TestResultRepository_Postgres(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	db, err := sqlx.Connect("postgres", url)
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, migration.NewRunner().Run(ctx, db))

	repo := NewResultRepository(db)
	run := &combination.Run{
		ID:        core.NewRunID(),
		Mode:      combination.ModeCombine,
		Policy:    "conservative",
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
		Points: []combination.PointResult{
			{PointID: "m1", Candidates: 2},
			{PointID: "m2", Error: "no combination could be evaluated"},
		},
	}
	require.NoError(t, repo.SaveRun(ctx, run))
	require.NoError(t, repo.SaveRun(ctx, run), "saving twice replaces")

	got, err := repo.GetRun(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, got.Points, 2)
	assert.Equal(t, core.PointID("m2"), got.Points[1].PointID)
	assert.True(t, got.Points[1].Failed())

	list, err := repo.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.NotEmpty(t, list)

	require.NoError(t, repo.DeleteRun(ctx, run.ID))
	_, err = repo.GetRun(ctx, run.ID)
	assert.True(t, core.IsNotFoundError(err))
}
