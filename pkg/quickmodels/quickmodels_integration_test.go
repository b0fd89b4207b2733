package quickmodels_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/AXLMRIN/activetigger-go/pkg/errs"
	"github.com/AXLMRIN/activetigger-go/pkg/features"
	"github.com/AXLMRIN/activetigger-go/pkg/models"
	"github.com/AXLMRIN/activetigger-go/pkg/quickmodels"
	"github.com/AXLMRIN/activetigger-go/pkg/queue"
	"github.com/AXLMRIN/activetigger-go/pkg/schemes"
	"github.com/AXLMRIN/activetigger-go/pkg/store"
)

// TestTrainRejectsNonDFMFeaturesForMultiNaiveBayes covers spec.md §4.5's
// "multi_naivebayes ... forces dfm features": training that model kind on
// a non-dfm column (here a plain regex feature) must fail before fitting,
// not merely disable standardization.
func TestTrainRejectsNonDFMFeaturesForMultiNaiveBayes(t *testing.T) {
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

	const project = "dfm-guard-proj"
	require.NoError(t, st.Projects.Add(ctx, &models.Project{Slug: project, Name: project, CreatedBy: "tester", ColText: "text"}))

	colStore, err := features.OpenColumnarStore(filepath.Join(t.TempDir(), "features.gob"))
	require.NoError(t, err)
	require.NoError(t, colStore.Init([]string{"el1", "el2", "el3", "el4"}, []models.Partition{
		models.PartitionTrain, models.PartitionTrain, models.PartitionTrain, models.PartitionTrain,
	}))

	pool := queue.New(queue.Config{}, nil)
	t.Cleanup(pool.Stop)
	featuresMgr := features.New(project, st.Features, colStore, pool, nil, nil)
	_, err = featuresMgr.ComputeRegex(ctx, "hasdigit", `\d`, "tester", map[string]string{
		"el1": "abc", "el2": "123", "el3": "a1b", "el4": "xyz",
	})
	require.NoError(t, err)

	schemesMgr := schemes.New(project, st.Schemes, st.Annotations)
	_, err = schemesMgr.AddScheme(ctx, "default", models.SchemeMulticlass, []string{"a", "b"}, "tester")
	require.NoError(t, err)
	a, b := "a", "b"
	_, err = schemesMgr.PushAnnotation(ctx, "el1", "default", &a, "tester", models.PartitionTrain, "")
	require.NoError(t, err)
	_, err = schemesMgr.PushAnnotation(ctx, "el2", "default", &b, "tester", models.PartitionTrain, "")
	require.NoError(t, err)

	mgr := quickmodels.New(project, st.Models, featuresMgr, schemesMgr, t.TempDir())
	_, err = mgr.Train(ctx, quickmodels.TrainRequest{
		Name: "bad-nb", Kind: models.ModelMultiNaiveBayes, Scheme: "default",
		Features: []string{"hasdigit__match"}, User: "tester",
	})
	require.Error(t, err)
	assert.Equal(t, errs.Invalid, errs.KindOf(err))
}
