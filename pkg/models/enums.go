package models

import "github.com/AXLMRIN/activetigger-go/pkg/errs"

// Partition is one of the closed dataset partitions an element or feature
// row can belong to.
type Partition string

const (
	PartitionTrain    Partition = "train"
	PartitionValid    Partition = "valid"
	PartitionTest     Partition = "test"
	PartitionExternal Partition = "external"
	PartitionAll      Partition = "all"
)

func ParsePartition(s string) (Partition, error) {
	switch Partition(s) {
	case PartitionTrain, PartitionValid, PartitionTest, PartitionExternal, PartitionAll:
		return Partition(s), nil
	default:
		return "", errs.Invalidf("unknown partition %q", s)
	}
}

// SchemeKind is the label-space shape of a Scheme.
type SchemeKind string

const (
	SchemeMulticlass   SchemeKind = "multiclass"
	SchemeMultilabel   SchemeKind = "multilabel"
	SchemeHierarchical SchemeKind = "hierarchical"
)

func ParseSchemeKind(s string) (SchemeKind, error) {
	switch SchemeKind(s) {
	case SchemeMulticlass, SchemeMultilabel, SchemeHierarchical:
		return SchemeKind(s), nil
	default:
		return "", errs.Invalidf("unknown scheme kind %q", s)
	}
}

// FeatureKind is the closed set of feature computation strategies.
type FeatureKind string

const (
	FeatureSBERT    FeatureKind = "sbert"
	FeatureFastText FeatureKind = "fasttext"
	FeatureDFM      FeatureKind = "dfm"
	FeatureRegex    FeatureKind = "regex"
	FeatureDataset  FeatureKind = "dataset"
)

func ParseFeatureKind(s string) (FeatureKind, error) {
	switch FeatureKind(s) {
	case FeatureSBERT, FeatureFastText, FeatureDFM, FeatureRegex, FeatureDataset:
		return FeatureKind(s), nil
	default:
		return "", errs.Invalidf("unknown feature kind %q", s)
	}
}

// Async reports whether this feature kind must route through the queue.
func (k FeatureKind) Async() bool {
	switch k {
	case FeatureSBERT, FeatureFastText, FeatureDFM:
		return true
	default:
		return false
	}
}

// QuickModelKind is the closed set of small classifiers the core trains.
type QuickModelKind string

const (
	ModelLiblinear       QuickModelKind = "liblinear"
	ModelLasso           QuickModelKind = "lasso"
	ModelKNN             QuickModelKind = "knn"
	ModelRandomForest    QuickModelKind = "randomforest"
	ModelMultiNaiveBayes QuickModelKind = "multi_naivebayes"
)

func ParseQuickModelKind(s string) (QuickModelKind, error) {
	switch QuickModelKind(s) {
	case ModelLiblinear, ModelLasso, ModelKNN, ModelRandomForest, ModelMultiNaiveBayes:
		return QuickModelKind(s), nil
	default:
		return "", errs.Invalidf("unknown quick model kind %q", s)
	}
}

// SelectionMode drives next_element's candidate ordering.
type SelectionMode string

const (
	SelectionDeterministic SelectionMode = "deterministic"
	SelectionRandom        SelectionMode = "random"
	SelectionMaxProb       SelectionMode = "maxprob"
	SelectionActive        SelectionMode = "active"
	SelectionTest          SelectionMode = "test"
)

func ParseSelectionMode(s string) (SelectionMode, error) {
	switch SelectionMode(s) {
	case SelectionDeterministic, SelectionRandom, SelectionMaxProb, SelectionActive, SelectionTest:
		return SelectionMode(s), nil
	default:
		return "", errs.Invalidf("unknown selection mode %q", s)
	}
}

// SampleFilter narrows the candidate pool by tagging state before
// selection runs.
type SampleFilter string

const (
	SampleUntagged SampleFilter = "untagged"
	SampleTagged   SampleFilter = "tagged"
	SampleAll      SampleFilter = "all"
)

func ParseSampleFilter(s string) (SampleFilter, error) {
	switch SampleFilter(s) {
	case SampleUntagged, SampleTagged, SampleAll:
		return SampleFilter(s), nil
	default:
		return "", errs.Invalidf("unknown sample filter %q", s)
	}
}

// TaskQueueKind selects which worker pool a task runs on.
type TaskQueueKind string

const (
	QueueCPU TaskQueueKind = "cpu"
	QueueGPU TaskQueueKind = "gpu"
)

// TaskStatus is the monotonic lifecycle of a queued task.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskDone      TaskStatus = "done"
	TaskFailed    TaskStatus = "failed"
	TaskCancelled TaskStatus = "cancelled"
)

// ModelStatus is the lifecycle of a language model.
type ModelStatus string

const (
	ModelQueued   ModelStatus = "queued"
	ModelTraining ModelStatus = "training"
	ModelTrained  ModelStatus = "trained"
	ModelFailed   ModelStatus = "failed"
)

// AuthStatus is a user's role within a project.
type AuthStatus string

const (
	AuthManager   AuthStatus = "manager"
	AuthAnnotator AuthStatus = "annotator"
	// AuthRoot is the operator account provisioned by the CLI at first boot.
	AuthRoot AuthStatus = "root"
)

// Action is one of the five authorization verbs checked against AuthStatus.
type Action string

const (
	ActionAdd          Action = "ADD"
	ActionUpdate       Action = "UPDATE"
	ActionDelete       Action = "DELETE"
	ActionGet          Action = "GET"
	ActionManageServer Action = "MANAGE_SERVER"
)
