// Package models holds the plain-data types shared across every core
// package: the wire-independent shape of projects, schemes, annotations,
// features, models, tasks and users.
package models

import "time"

// Project is the aggregate root's persisted record. The in-memory
// aggregate that composes sub-managers lives in pkg/project.
type Project struct {
	Slug         string
	Name         string
	CreatedBy    string
	TimeCreated  time.Time
	TimeModified *time.Time
	ColText      string
	ColsContext  []string
	NTrain       int
	NValid       int
	NTest        int
	ColLabel     string
}

// Label is one ordered entry in a Scheme's label space.
type Label struct {
	Value string
}

// Scheme is a named label space within a project.
type Scheme struct {
	ID          int64
	Project     string
	Name        string
	Kind        SchemeKind
	Labels      []string
	Codebook    string
	CreatedBy   string
	TimeCreated time.Time
}

// Annotation is one append-only history record. The "current" label for
// (Project, ElementID, Scheme, User) is always the row with the largest
// Time among matching rows — there is no separate current-label table.
type Annotation struct {
	ID         int64
	Time       time.Time
	Dataset    Partition
	User       string
	Project    string
	ElementID  string
	Scheme     string
	Annotation *string // nil represents a cleared / null label
	Comment    string
}

// Feature is a named group of columns in a project's feature store.
type Feature struct {
	ID          int64
	Project     string
	Name        string
	Kind        FeatureKind
	User        string
	Params      map[string]any
	Columns     []string
	TimeCreated time.Time
}

// Metrics holds the scoring breakdown produced by a training run.
type Metrics struct {
	Accuracy   float64            `json:"accuracy"`
	F1Macro    float64            `json:"f1_macro"`
	Precision  map[string]float64 `json:"precision,omitempty"`
	Recall     map[string]float64 `json:"recall,omitempty"`
	F1PerClass map[string]float64 `json:"f1_per_class,omitempty"`
	N          int                `json:"n"`
}

// MetricsSet breaks Metrics down per evaluation partition, mirroring
// QuickModel's {train, valid, test, cv10, outofsample} invariant.
type MetricsSet struct {
	Train       *Metrics `json:"train,omitempty"`
	Valid       *Metrics `json:"valid,omitempty"`
	Test        *Metrics `json:"test,omitempty"`
	CV10        *Metrics `json:"cv10,omitempty"`
	OutOfSample *Metrics `json:"outofsample,omitempty"`
}

// QuickModel is a trained-or-training small classifier.
type QuickModel struct {
	ID            int64
	Project       string
	Name          string
	Scheme        string
	User          string
	Kind          QuickModelKind
	Hyperparams   map[string]any
	Features      []string
	Standardize   bool
	CV10          bool
	Metrics       MetricsSet
	ArtifactPath  string
	TimeCreated   time.Time
	TimeModified  *time.Time
}

// LanguageModel mirrors QuickModel's shape with an explicit lifecycle
// status, since training always runs on the queue.
type LanguageModel struct {
	ID           int64
	Project      string
	Name         string
	Scheme       string
	User         string
	BaseModel    string
	Hyperparams  map[string]any
	Status       ModelStatus
	Metrics      MetricsSet
	ArtifactPath string
	Error        string
	TimeCreated  time.Time
	TimeModified *time.Time
}

// Task is the queue's bookkeeping record for one submitted job.
type Task struct {
	UniqueID    string
	Kind        string
	Project     string
	User        string
	Queue       TaskQueueKind
	Status      TaskStatus
	SubmittedAt time.Time
	StartedAt   *time.Time
	EndedAt     *time.Time
	Progress    string
	Error       string
}

// User is an account row; PasswordHash is never serialized to JSON.
type User struct {
	Name         string
	PasswordHash string `json:"-"`
	CreatedBy    string
	TimeCreated  time.Time
	DeactivatedAt *time.Time
}

// ProjectAuth is one (user, project) role grant.
type ProjectAuth struct {
	User      string
	Project   string
	Status    AuthStatus
	CreatedBy string
}

// LogEntry is one append-only audit row.
type LogEntry struct {
	ID      int64
	Time    time.Time
	User    string
	Project string
	Action  string
}

// Token is an issued auth token's bookkeeping row (issuance/verification
// lives outside this core — see spec.md §1 Non-goals).
type Token struct {
	ID          int64
	Token       string
	Status      string
	TimeCreated time.Time
	TimeRevoked *time.Time
}

// Generation is one prompt/answer pair recorded from the (external)
// generative-API collaborator.
type Generation struct {
	ID        int64
	Time      time.Time
	User      string
	Project   string
	ElementID string
	Endpoint  string
	Prompt    string
	Answer    string
}
