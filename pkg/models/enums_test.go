package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParsePartition(t *testing.T) {
	p, err := ParsePartition("train")
	assert.NoError(t, err)
	assert.Equal(t, PartitionTrain, p)

	_, err = ParsePartition("bogus")
	assert.Error(t, err)
}

func TestParseSchemeKind(t *testing.T) {
	for _, valid := range []string{"multiclass", "multilabel", "hierarchical"} {
		k, err := ParseSchemeKind(valid)
		assert.NoError(t, err)
		assert.Equal(t, SchemeKind(valid), k)
	}
	_, err := ParseSchemeKind("")
	assert.Error(t, err)
}

func TestFeatureKindAsync(t *testing.T) {
	async := []FeatureKind{FeatureSBERT, FeatureFastText, FeatureDFM}
	for _, k := range async {
		assert.Truef(t, k.Async(), "%s should be async", k)
	}
	sync := []FeatureKind{FeatureRegex, FeatureDataset}
	for _, k := range sync {
		assert.Falsef(t, k.Async(), "%s should not be async", k)
	}
}

func TestParseFeatureKindRejectsUnknown(t *testing.T) {
	_, err := ParseFeatureKind("word2vec")
	assert.Error(t, err)
}

func TestParseSelectionModeAndSampleFilter(t *testing.T) {
	m, err := ParseSelectionMode("active")
	assert.NoError(t, err)
	assert.Equal(t, SelectionActive, m)

	f, err := ParseSampleFilter("tagged")
	assert.NoError(t, err)
	assert.Equal(t, SampleTagged, f)

	_, err = ParseSelectionMode("greedy")
	assert.Error(t, err)
	_, err = ParseSampleFilter("everything")
	assert.Error(t, err)
}

func TestParseQuickModelKind(t *testing.T) {
	k, err := ParseQuickModelKind("knn")
	assert.NoError(t, err)
	assert.Equal(t, ModelKNN, k)

	_, err = ParseQuickModelKind("xgboost")
	assert.Error(t, err)
}
