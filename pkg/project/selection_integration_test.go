package project_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/AXLMRIN/activetigger-go/pkg/errs"
	"github.com/AXLMRIN/activetigger-go/pkg/models"
	"github.com/AXLMRIN/activetigger-go/pkg/project"
	"github.com/AXLMRIN/activetigger-go/pkg/queue"
	"github.com/AXLMRIN/activetigger-go/pkg/store"
)

// newTestProject wires a real Postgres-backed Project rooted at a temp
// directory, with nTrain train rows and nTest test rows seeded directly
// into its raw store (bypassing Orchestrator.CreateProject, which this
// test doesn't need).
func newTestProject(t *testing.T, slug string, trainIDs, testIDs []string) *project.Project {
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

	meta := &models.Project{Slug: slug, Name: slug, CreatedBy: "tester", ColText: "text", NTrain: len(trainIDs), NTest: len(testIDs)}
	require.NoError(t, st.Projects.Add(ctx, meta))

	pool := queue.New(queue.Config{}, nil)
	t.Cleanup(pool.Stop)

	p, err := project.Open(meta, project.Deps{Store: st, Pool: pool, DataPath: t.TempDir()})
	require.NoError(t, err)

	order := append(append([]string(nil), trainIDs...), testIDs...)
	texts := make(map[string]string, len(order))
	contexts := make(map[string]map[string]string, len(order))
	partitions := make(map[string]models.Partition, len(order))
	for _, id := range trainIDs {
		texts[id] = "text for " + id
		partitions[id] = models.PartitionTrain
	}
	for _, id := range testIDs {
		texts[id] = "text for " + id
		partitions[id] = models.PartitionTest
	}
	p.Raw.Init(order, texts, contexts, partitions, nil)

	_, err = p.Schemes.AddScheme(ctx, "default", models.SchemeMulticlass, []string{"a", "b"}, "tester")
	require.NoError(t, err)

	return p
}

// TestSelectionTestOnlyServesUntaggedRows covers spec.md §8's "Selection
// soundness": test selection must only ever hand out a null-labeled test
// row, enforced inside the aggregate itself rather than trusted to a
// caller-supplied sample filter.
func TestSelectionTestOnlyServesUntaggedRows(t *testing.T) {
	p := newTestProject(t, "select-test-proj", []string{"tr1", "tr2"}, []string{"te1", "te2"})
	ctx := context.Background()

	// Ask for SampleAll — if enforcement lived only at the HTTP layer this
	// would let a tagged test row through.
	label := "a"
	_, err := p.Schemes.PushAnnotation(ctx, "te1", "default", &label, "reviewer", models.PartitionTest, "")
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		res, err := p.NextElement(ctx, project.NextElementRequest{
			Scheme: "default", Selection: models.SelectionTest, Sample: models.SampleAll, User: "reviewer",
		})
		require.NoError(t, err)
		assert.Equal(t, "te2", res.ElementID, "the already-tagged test row te1 must never be served")
	}

	// Once the only untagged test row is also tagged, selection must fail
	// rather than hand back a labeled test row.
	_, err = p.Schemes.PushAnnotation(ctx, "te2", "default", &label, "reviewer", models.PartitionTest, "")
	require.NoError(t, err)

	_, err = p.NextElement(ctx, project.NextElementRequest{
		Scheme: "default", Selection: models.SelectionTest, Sample: models.SampleAll, User: "reviewer",
	})
	require.Error(t, err)
	assert.Equal(t, errs.Unavailable, errs.KindOf(err))
}
