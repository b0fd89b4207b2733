package schemes_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/AXLMRIN/activetigger-go/pkg/models"
	"github.com/AXLMRIN/activetigger-go/pkg/schemes"
	"github.com/AXLMRIN/activetigger-go/pkg/store"
)

// newTestStore starts a disposable PostgreSQL container, runs the real
// embedded migrations against it via store.Open, and seeds one project row
// so the schemes/annotations tables' foreign keys are satisfiable.
func newTestStore(t *testing.T, projectSlug string) *store.Store {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:17-alpine",
		postgres.WithDatabase("test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(1).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(pgContainer); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	st, err := store.Open(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	require.NoError(t, st.Projects.Add(ctx, &models.Project{
		Slug: projectSlug, Name: projectSlug, CreatedBy: "tester", ColText: "text",
	}))
	return st
}

// TestPushAnnotationIsMonotonic covers spec.md §8's "Annotation
// monotonicity": pushing a new annotation for the same (element, scheme,
// user) never rewrites or removes the prior record — it appends a new one,
// and History returns every one of them, newest first.
func TestPushAnnotationIsMonotonic(t *testing.T) {
	st := newTestStore(t, "monotonic-proj")
	ctx := context.Background()
	mgr := schemes.New("monotonic-proj", st.Schemes, st.Annotations)

	_, err := mgr.AddScheme(ctx, "sentiment", models.SchemeMulticlass, []string{"pos", "neg"}, "tester")
	require.NoError(t, err)

	pos, neg := "pos", "neg"
	_, err = mgr.PushAnnotation(ctx, "el1", "sentiment", &pos, "alice", models.PartitionTrain, "first pass")
	require.NoError(t, err)
	_, err = mgr.PushAnnotation(ctx, "el1", "sentiment", &neg, "alice", models.PartitionTrain, "changed my mind")
	require.NoError(t, err)

	history, err := mgr.History(ctx, "sentiment", "el1", 10)
	require.NoError(t, err)
	require.Len(t, history, 2, "both annotations must survive — the first is never overwritten")
	assert.Equal(t, "neg", *history[0].Annotation, "History is newest first")
	assert.Equal(t, "pos", *history[1].Annotation)

	latest, err := mgr.GetSchemeData(ctx, "sentiment", []models.Partition{models.PartitionTrain}, "")
	require.NoError(t, err)
	assert.Equal(t, "neg", *latest["el1"].Annotation, "the table view resolves to the most recent record")
}

// TestConvertLabelIsIdempotent covers spec.md §8's "Idempotent label
// conversion": running ConvertLabel a second time finds no remaining
// holders of oldLabel and appends nothing further.
func TestConvertLabelIsIdempotent(t *testing.T) {
	st := newTestStore(t, "convert-proj")
	ctx := context.Background()
	mgr := schemes.New("convert-proj", st.Schemes, st.Annotations)

	_, err := mgr.AddScheme(ctx, "topic", models.SchemeMulticlass, []string{"sports", "news", "politics"}, "tester")
	require.NoError(t, err)

	sports := "sports"
	_, err = mgr.PushAnnotation(ctx, "el1", "topic", &sports, "bob", models.PartitionTrain, "")
	require.NoError(t, err)
	_, err = mgr.PushAnnotation(ctx, "el2", "topic", &sports, "bob", models.PartitionTrain, "")
	require.NoError(t, err)

	require.NoError(t, mgr.ConvertLabel(ctx, "topic", "sports", "news", "admin"))

	latest, err := mgr.GetSchemeData(ctx, "topic", []models.Partition{models.PartitionTrain}, "")
	require.NoError(t, err)
	assert.Equal(t, "news", *latest["el1"].Annotation)
	assert.Equal(t, "news", *latest["el2"].Annotation)

	history1Before, err := mgr.History(ctx, "topic", "el1", 10)
	require.NoError(t, err)

	require.NoError(t, mgr.ConvertLabel(ctx, "topic", "sports", "news", "admin"))

	history1After, err := mgr.History(ctx, "topic", "el1", 10)
	require.NoError(t, err)
	assert.Len(t, history1After, len(history1Before), "a second pass over an already-converted label appends nothing")

	latestAgain, err := mgr.GetSchemeData(ctx, "topic", []models.Partition{models.PartitionTrain}, "")
	require.NoError(t, err)
	assert.Equal(t, "news", *latestAgain["el1"].Annotation)
}
