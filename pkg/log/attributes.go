// Package log defines standard attribute keys.
//
// Using these keys keeps the JSON output of every component filterable with
// the same names ("model.name", "selection.round", ...).

package log

// Model and Operation Context
const (
	// ModelNameKey identifies the type of machine learning model.
	// Examples: "RandomForestClassifier", "StandardScaler"
	ModelNameKey = "model.name"

	// OperationKey specifies the machine learning operation being performed.
	// Standard values: "fit", "predict", "transform", "score"
	OperationKey = "ml.operation"

	// ComponentKey identifies which component or package is performing the operation.
	ComponentKey = "ml.component"

	// PhaseKey indicates the phase of model lifecycle.
	PhaseKey = "ml.phase"
)

// Data Shape and Characteristics
const (
	// SamplesKey indicates the number of samples (rows) in the dataset.
	SamplesKey = "data.samples"

	// FeaturesKey indicates the number of features (columns) in the dataset.
	FeaturesKey = "data.features"

	// CohortKey names the cohort ("Train" or "Test") a message refers to.
	CohortKey = "data.cohort"

	// PathKey records an input or output file path.
	PathKey = "data.path"
)

// Performance Metrics
const (
	// DurationMsKey records the execution time of an operation in milliseconds.
	DurationMsKey = "perf.duration_ms"

	// AUCKey records ROC AUC on the held-out cohort.
	AUCKey = "metrics.auc"

	// CVAUCKey records the mean cross-validated ROC AUC.
	CVAUCKey = "metrics.cv_auc"

	// RecallKey records recall of the positive class.
	RecallKey = "metrics.recall"

	// AccuracyKey records the fraction of correctly predicted labels.
	AccuracyKey = "metrics.accuracy"

	// LossKey records loss value during training or evaluation.
	LossKey = "metrics.loss"

	// IterationKey records the current iteration number during iterative processes.
	IterationKey = "training.iteration"
)

// Feature selection
const (
	// RunIDKey identifies one selection run.
	RunIDKey = "selection.run_id"

	// RoundKey is the subset size k of a selection round.
	RoundKey = "selection.round"

	// CandidatesKey is the size of the candidate pool a round starts from.
	CandidatesKey = "selection.candidates"

	// StageKey names the step of a round that produced the message.
	// Values: "depth_forest", "depth_profile", "tuning"
	StageKey = "selection.stage"

	// SelectedKey is the list of selected feature names.
	SelectedKey = "selection.features"

	// TruncatedKey is true when fewer than k features had a depth profile.
	TruncatedKey = "selection.truncated"

	// PolicyKey is the failure policy ("skip" or "abort").
	PolicyKey = "selection.policy"
)

// Error and Hyperparameter Context
const (
	// ErrorTypeKey categorizes the type of error encountered.
	ErrorTypeKey = "error.type"

	// StacktraceKey contains stack trace information for debugging.
	StacktraceKey = "error.stacktrace"

	// HyperParamsKey contains model hyperparameters as a structured object.
	HyperParamsKey = "model.hyperparams"

	// RegularizationKey records regularization strength.
	RegularizationKey = "hyperparams.regularization"

	// RandomSeedKey records the random seed for reproducibility.
	RandomSeedKey = "config.random_seed"

	// WorkerIDKey identifies a worker in a bounded pool.
	WorkerIDKey = "infra.worker_id"
)

// Standard attribute value constants for common operations.
const (
	OperationFit       = "fit"
	OperationPredict   = "predict"
	OperationTransform = "transform"
	OperationScore     = "score"

	PhaseTraining      = "training"
	PhaseValidation    = "validation"
	PhaseTesting       = "testing"
	PhasePreprocessing = "preprocessing"
)
