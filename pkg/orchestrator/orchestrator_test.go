package orchestrator

import (
	"container/list"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AXLMRIN/activetigger-go/pkg/errs"
	"github.com/AXLMRIN/activetigger-go/pkg/models"
	"github.com/AXLMRIN/activetigger-go/pkg/project"
)

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"My Cool Project":     "my-cool-project",
		"  leading/trailing ": "leading-trailing",
		"Already-slug-42":     "already-slug-42",
		"__multi   dash--run": "multi-dash-run",
		"Émigré Corpus":       "migr-corpus",
	}
	for in, want := range cases {
		assert.Equalf(t, want, slugify(in), "slugify(%q)", in)
	}
}

func TestPartitionSizesDefaultsToOneFifth(t *testing.T) {
	nTrain, nTest := partitionSizes(100, 0)
	assert.Equal(t, 80, nTrain)
	assert.Equal(t, 20, nTest)
}

func TestPartitionSizesHonorsExplicitNTest(t *testing.T) {
	nTrain, nTest := partitionSizes(50, 10)
	assert.Equal(t, 40, nTrain)
	assert.Equal(t, 10, nTest)
}

func TestPartitionSizesClampsOversizedNTest(t *testing.T) {
	nTrain, nTest := partitionSizes(10, 999)
	assert.Equal(t, 0, nTrain)
	assert.Equal(t, 10, nTest)
}

func TestPartitionRowsPrefersLabeledIntoTrainTestOnlyFromUnlabeled(t *testing.T) {
	rows := []CorpusRow{
		{ID: "l1", Label: "pos"},
		{ID: "l2", Label: "neg"},
		{ID: "u1"},
		{ID: "u2"},
		{ID: "u3"},
	}
	order, partition, err := partitionRows(rows, 2, 2)
	require.NoError(t, err)

	// u3 is needed by neither train (already filled by the 2 labeled rows)
	// nor test (already filled by u1/u2), so it is left unused.
	assert.Equal(t, []string{"l1", "l2", "u1", "u2"}, order)
	assert.Equal(t, models.PartitionTrain, partition["l1"])
	assert.Equal(t, models.PartitionTrain, partition["l2"])
	assert.Equal(t, models.PartitionTest, partition["u1"])
	assert.Equal(t, models.PartitionTest, partition["u2"])
	_, u3Used := partition["u3"]
	assert.False(t, u3Used)
}

func TestPartitionRowsSurplusLabeledRowsAreLeftUnusedNotRoutedToTest(t *testing.T) {
	rows := []CorpusRow{
		{ID: "l1", Label: "a"},
		{ID: "l2", Label: "b"},
		{ID: "l3", Label: "c"},
		{ID: "u1"},
		{ID: "u2"},
	}
	order, partition, err := partitionRows(rows, 1, 2)
	require.NoError(t, err)

	assert.Equal(t, models.PartitionTrain, partition["l1"])
	_, l2Used := partition["l2"]
	_, l3Used := partition["l3"]
	assert.False(t, l2Used, "surplus labeled row must be left unused, not placed in test")
	assert.False(t, l3Used, "surplus labeled row must be left unused, not placed in test")
	assert.Equal(t, models.PartitionTest, partition["u1"])
	assert.Equal(t, models.PartitionTest, partition["u2"])
	assert.Equal(t, []string{"l1", "u1", "u2"}, order)

	for _, id := range order {
		if partition[id] == models.PartitionTest {
			assert.NotContainsf(t, []string{"l1", "l2", "l3"}, id, "no labeled row may end up in test")
		}
	}
}

func TestPartitionRowsErrorsWhenNotEnoughUnlabeledForTest(t *testing.T) {
	rows := []CorpusRow{
		{ID: "l1", Label: "a"},
		{ID: "l2", Label: "b"},
		{ID: "l3", Label: "c"},
	}
	_, _, err := partitionRows(rows, 1, 5)
	require.Error(t, err)
	assert.Equal(t, errs.Invalid, errs.KindOf(err))
}

func TestPartitionCode(t *testing.T) {
	assert.Equal(t, 0.0, partitionCode(models.PartitionTrain))
	assert.Equal(t, 1.0, partitionCode(models.PartitionValid))
	assert.Equal(t, 2.0, partitionCode(models.PartitionTest))
	assert.Equal(t, 3.0, partitionCode(models.PartitionExternal))
}

func TestEvictOverflowLockedRemovesLeastRecentlyUsed(t *testing.T) {
	o := New(nil, nil, t.TempDir(), 2, nil, nil)

	push := func(slug string) {
		el := o.lru.PushFront(&lruEntry{slug: slug, proj: &project.Project{}})
		o.loaded[slug] = el
		o.evictOverflowLocked()
	}

	push("a")
	push("b")
	assert.Equal(t, 2, o.LoadedCount())

	push("c") // over cap, "a" is least recently used and should be evicted
	assert.Equal(t, 2, o.LoadedCount())
	_, aStillLoaded := o.loaded["a"]
	assert.False(t, aStillLoaded)
	_, cLoaded := o.loaded["c"]
	assert.True(t, cLoaded)
}

func TestGetProjectReturnsCachedEntryWithoutStoreLookup(t *testing.T) {
	o := New(nil, nil, t.TempDir(), 4, nil, nil)
	p := &project.Project{}
	el := o.lru.PushFront(&lruEntry{slug: "cached", proj: p})
	o.loaded["cached"] = el

	got, err := o.GetProject(context.Background(), "cached")
	assert.NoError(t, err)
	assert.Same(t, p, got)
	assert.Equal(t, el, o.lru.Front())
}

func TestNewDefaultsMaxLoaded(t *testing.T) {
	o := New(nil, nil, t.TempDir(), 0, nil, nil)
	assert.Equal(t, 10, o.maxLoaded)
	assert.NotNil(t, o.lru)
	assert.IsType(t, &list.List{}, o.lru)
}
