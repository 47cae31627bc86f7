package dataset

import (
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/mindepth/pkg/errors"
	"github.com/YuminosukeSato/mindepth/pkg/log"
	"github.com/YuminosukeSato/mindepth/preprocessing"
	"github.com/YuminosukeSato/mindepth/sklearn/model_selection"
)

// Cohort names.
const (
	TrainCohort = "Train"
	TestCohort  = "Test"
)

// DefaultLabel is the label column used when none is configured.
const DefaultLabel = "Group"

// Cohort is one side of the split: a feature matrix and its labels.
type Cohort struct {
	Name string
	X    *mat.Dense
	Y    []float64 // 0/1, 1 is the positive class
	RawY []float64 // labels as read
}

// Rows returns the number of samples.
func (c *Cohort) Rows() int {
	r, _ := c.X.Dims()
	return r
}

// YMatrix returns Y as an (n, 1) column.
func (c *Cohort) YMatrix() *mat.Dense {
	return mat.NewDense(len(c.Y), 1, c.Y)
}

// Dataset holds both cohorts over a shared, ordered feature list.
type Dataset struct {
	Features      []string
	Label         string
	Train         *Cohort
	Test          *Cohort
	PositiveLabel float64
	NegativeLabel float64
	Scaled        bool
}

// Load reads both cohort files and validates them.
func Load(trainPath, testPath, label string) (*Dataset, error) {
	train, err := ReadTable(trainPath)
	if err != nil {
		return nil, err
	}
	test, err := ReadTable(testPath)
	if err != nil {
		return nil, err
	}
	return FromTables(train, test, label)
}

// FromTables builds a Dataset from raw tables. Feature columns are every
// numeric column except the label, ordered as in the Train header.
func FromTables(train, test *Table, label string) (*Dataset, error) {
	if label == "" {
		label = DefaultLabel
	}
	trainCols, err := featureColumns(train, label, TrainCohort)
	if err != nil {
		return nil, err
	}
	testCols, err := featureColumns(test, label, TestCohort)
	if err != nil {
		return nil, err
	}
	if err := sameFeatures(nameSet(train, trainCols), nameSet(test, testCols)); err != nil {
		return nil, err
	}

	features := make([]string, len(trainCols))
	for i, c := range trainCols {
		features[i] = train.Header[c]
	}

	trainCohort, err := buildCohort(TrainCohort, train, features, label)
	if err != nil {
		return nil, err
	}
	testCohort, err := buildCohort(TestCohort, test, features, label)
	if err != nil {
		return nil, err
	}

	ds := &Dataset{
		Features: features,
		Label:    label,
		Train:    trainCohort,
		Test:     testCohort,
	}
	if err := ds.Validate(); err != nil {
		return nil, err
	}

	log.GetLoggerWithName("dataset").Info("cohorts loaded",
		log.FeaturesKey, len(features),
		"train_samples", trainCohort.Rows(),
		"test_samples", testCohort.Rows(),
		"positive_label", ds.PositiveLabel,
	)
	return ds, nil
}

func featureColumns(t *Table, label, cohort string) ([]int, error) {
	labelIdx := t.Column(label)
	if labelIdx < 0 {
		return nil, errors.NewDataShapeError(cohort, "label column %q not found in %s", label, t.Path)
	}
	var cols []int
	seen := make(map[string]bool)
	for _, j := range t.NumericColumns() {
		if j == labelIdx {
			continue
		}
		name := t.Header[j]
		if seen[name] {
			return nil, errors.NewDataShapeError(cohort, "duplicated column %q", name)
		}
		seen[name] = true
		cols = append(cols, j)
	}
	if len(cols) == 0 {
		return nil, errors.NewDataShapeError(cohort, "no numeric feature columns")
	}
	return cols, nil
}

func nameSet(t *Table, cols []int) map[string]bool {
	set := make(map[string]bool, len(cols))
	for _, c := range cols {
		set[t.Header[c]] = true
	}
	return set
}

func sameFeatures(trainCols, testCols map[string]bool) error {
	var onlyTrain, onlyTest []string
	for name := range trainCols {
		if !testCols[name] {
			onlyTrain = append(onlyTrain, name)
		}
	}
	for name := range testCols {
		if !trainCols[name] {
			onlyTest = append(onlyTest, name)
		}
	}
	if len(onlyTrain)+len(onlyTest) == 0 {
		return nil
	}
	sort.Strings(onlyTrain)
	sort.Strings(onlyTest)
	return errors.NewDataShapeError("", "feature columns differ: only in Train [%s], only in Test [%s]",
		strings.Join(onlyTrain, ", "), strings.Join(onlyTest, ", "))
}

func buildCohort(name string, t *Table, features []string, label string) (*Cohort, error) {
	labelIdx := t.Column(label)
	idx := make([]int, len(features))
	for i, f := range features {
		idx[i] = t.Column(f)
	}

	X := mat.NewDense(len(t.Rows), len(features), nil)
	raw := make([]float64, len(t.Rows))
	for i, row := range t.Rows {
		v, ok := parseCell(cell(row, labelIdx))
		if !ok || math.IsNaN(v) {
			return nil, errors.NewDataShapeError(name, "row %d: label %q is not numeric", i+1, cell(row, labelIdx))
		}
		raw[i] = v
		for j, c := range idx {
			x, _ := parseCell(cell(row, c))
			X.Set(i, j, x)
		}
	}
	return &Cohort{Name: name, X: X, RawY: raw}, nil
}

// Validate checks the cohort invariants and fills the 0/1 labels: the
// union of labels has exactly two values (the larger is positive), each
// cohort holds both classes and every feature value is finite.
func (d *Dataset) Validate() error {
	for _, c := range []*Cohort{d.Train, d.Test} {
		if c == nil || c.X == nil || c.Rows() == 0 {
			return errors.NewDataShapeError("", "both cohorts must hold at least one row")
		}
		if _, cols := c.X.Dims(); cols != len(d.Features) {
			return errors.NewDataShapeError(c.Name, "expected %d feature columns, got %d", len(d.Features), cols)
		}
		r, cols := c.X.Dims()
		for i := 0; i < r; i++ {
			for j := 0; j < cols; j++ {
				if v := c.X.At(i, j); math.IsNaN(v) || math.IsInf(v, 0) {
					return errors.NewDataShapeError(c.Name, "non-finite value in row %d column %q", i+1, d.Features[j])
				}
			}
		}
	}

	distinct := make(map[float64]bool)
	for _, c := range []*Cohort{d.Train, d.Test} {
		for _, v := range c.RawY {
			distinct[v] = true
		}
	}
	if len(distinct) != 2 {
		labels := make([]float64, 0, len(distinct))
		for v := range distinct {
			labels = append(labels, v)
		}
		sort.Float64s(labels)
		return errors.NewDataShapeError("", "label %q must take exactly two values, got %v", d.Label, labels)
	}
	d.NegativeLabel, d.PositiveLabel = math.Inf(1), math.Inf(-1)
	for v := range distinct {
		d.NegativeLabel = math.Min(d.NegativeLabel, v)
		d.PositiveLabel = math.Max(d.PositiveLabel, v)
	}

	for _, c := range []*Cohort{d.Train, d.Test} {
		c.Y = make([]float64, len(c.RawY))
		pos := 0
		for i, v := range c.RawY {
			if v == d.PositiveLabel {
				c.Y[i] = 1
				pos++
			}
		}
		if pos == 0 || pos == len(c.Y) {
			return errors.NewDataShapeError(c.Name, "cohort lacks one of the two classes (%d of %d positive)", pos, len(c.Y))
		}
	}
	return nil
}

// Scale returns a copy of the dataset where each cohort is standardized
// with its own mean and population standard deviation.
func (d *Dataset) Scale() (*Dataset, error) {
	nTrain, nTest := d.Train.Rows(), d.Test.Rows()
	stacked := mat.NewDense(nTrain+nTest, len(d.Features), nil)
	stacked.Slice(0, nTrain, 0, len(d.Features)).(*mat.Dense).Copy(d.Train.X)
	stacked.Slice(nTrain, nTrain+nTest, 0, len(d.Features)).(*mat.Dense).Copy(d.Test.X)

	groups := make([]string, nTrain+nTest)
	for i := range groups {
		if i < nTrain {
			groups[i] = TrainCohort
		} else {
			groups[i] = TestCohort
		}
	}

	scaled, err := preprocessing.NewGroupScaler().FitTransform(stacked, groups)
	if err != nil {
		return nil, errors.Wrap(err, "scaling cohorts")
	}

	out := *d
	out.Train = &Cohort{Name: TrainCohort, X: mat.DenseCopyOf(scaled.Slice(0, nTrain, 0, len(d.Features))), Y: d.Train.Y, RawY: d.Train.RawY}
	out.Test = &Cohort{Name: TestCohort, X: mat.DenseCopyOf(scaled.Slice(nTrain, nTrain+nTest, 0, len(d.Features))), Y: d.Test.Y, RawY: d.Test.RawY}
	out.Scaled = true
	return &out, nil
}

// Indices maps feature names to column positions.
func (d *Dataset) Indices(names []string) ([]int, error) {
	pos := make(map[string]int, len(d.Features))
	for i, f := range d.Features {
		pos[f] = i
	}
	idx := make([]int, len(names))
	for i, n := range names {
		j, ok := pos[n]
		if !ok {
			return nil, errors.NewValueError("Dataset.Indices", "unknown feature "+n)
		}
		idx[i] = j
	}
	return idx, nil
}

// Subset returns a dataset restricted to the named features, in that order.
func (d *Dataset) Subset(names []string) (*Dataset, error) {
	idx, err := d.Indices(names)
	if err != nil {
		return nil, err
	}
	out := *d
	out.Features = append([]string(nil), names...)
	out.Train = &Cohort{Name: TrainCohort, X: model_selection.TakeColumns(d.Train.X, idx), Y: d.Train.Y, RawY: d.Train.RawY}
	out.Test = &Cohort{Name: TestCohort, X: model_selection.TakeColumns(d.Test.X, idx), Y: d.Test.Y, RawY: d.Test.RawY}
	return &out, nil
}
