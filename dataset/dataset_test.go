package dataset

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/mindepth/pkg/errors"
)

const trainCSV = `ID,GeneA,GeneB,Note,Group
s1,1.0,10,x,1
s2,2.0,20,y,1
s3,3.0,30,z,2
s4,4.0,40,w,2
`

const testCSV = `ID,GeneB,GeneA,Group
t1,5,0.5,1
t2,15,1.5,2
t3,25,2.5,2
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_CSV(t *testing.T) {
	ds, err := Load(writeFile(t, "train.csv", trainCSV), writeFile(t, "test.csv", testCSV), "")
	require.NoError(t, err)

	// ID and Note are not numeric; the label is excluded.
	assert.Equal(t, []string{"GeneA", "GeneB"}, ds.Features)
	assert.Equal(t, "Group", ds.Label)
	assert.Equal(t, 2.0, ds.PositiveLabel)
	assert.Equal(t, 1.0, ds.NegativeLabel)

	assert.Equal(t, []float64{0, 0, 1, 1}, ds.Train.Y)
	assert.Equal(t, []float64{0, 1, 1}, ds.Test.Y)

	// Test columns are aligned by name.
	assert.Equal(t, []float64{0.5, 5}, mat.Row(nil, 0, ds.Test.X))
	assert.Equal(t, 4, ds.Train.Rows())
}

func TestLoad_XLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "train.xlsx")
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	rows := [][]interface{}{
		{"GeneA", "GeneB", "Group"},
		{1.0, 10.0, 0},
		{2.0, 20.0, 0},
		{3.0, 30.0, 1},
		{4.0, 40.0, 1},
	}
	for i, row := range rows {
		cellRef, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cellRef, &row))
	}
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	table, err := ReadTable(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"GeneA", "GeneB", "Group"}, table.Header)
	assert.Len(t, table.Rows, 4)

	test := writeFile(t, "test.csv", "GeneA,GeneB,Group\n1,2,0\n3,4,1\n")
	ds, err := Load(path, test, "Group")
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 1, 1}, ds.Train.Y)
}

func TestLoad_DataShapeErrors(t *testing.T) {
	tests := []struct {
		name  string
		train string
		test  string
		label string
	}{
		{
			name:  "columns differ",
			train: "A,B,Group\n1,2,0\n3,4,1\n",
			test:  "A,C,Group\n1,2,0\n3,4,1\n",
		},
		{
			name:  "test lacks a class",
			train: "A,Group\n1,0\n2,1\n",
			test:  "A,Group\n1,0\n2,0\n",
		},
		{
			name:  "three labels",
			train: "A,Group\n1,0\n2,1\n",
			test:  "A,Group\n1,0\n2,2\n",
		},
		{
			name:  "missing value",
			train: "A,Group\n1,0\n,1\n",
			test:  "A,Group\n1,0\n2,1\n",
		},
		{
			name:  "label column missing",
			train: "A,Group\n1,0\n2,1\n",
			test:  "A,Group\n1,0\n2,1\n",
			label: "Status",
		},
		{
			name:  "non-numeric label",
			train: "A,Group\n1,yes\n2,no\n",
			test:  "A,Group\n1,0\n2,1\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, "train.csv", tt.train), writeFile(t, "test.csv", tt.test), tt.label)
			var shapeErr *errors.DataShapeError
			require.Error(t, err)
			assert.True(t, errors.As(err, &shapeErr), "got %v", err)
		})
	}
}

func TestReadTable_Errors(t *testing.T) {
	_, err := ReadTable(filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)

	_, err = ReadTable(writeFile(t, "header.csv", "A,B\n"))
	assert.Error(t, err)

	records, err := ReadCSV(strings.NewReader("a,b\n1,2,3\n"))
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestScale_PerCohort(t *testing.T) {
	ds, err := Load(writeFile(t, "train.csv", trainCSV), writeFile(t, "test.csv", testCSV), "Group")
	require.NoError(t, err)

	scaled, err := ds.Scale()
	require.NoError(t, err)
	assert.True(t, scaled.Scaled)
	assert.False(t, ds.Scaled)

	for _, c := range []*Cohort{scaled.Train, scaled.Test} {
		r, cols := c.X.Dims()
		for j := 0; j < cols; j++ {
			col := mat.Col(nil, j, c.X)
			mean, ss := 0.0, 0.0
			for _, v := range col {
				mean += v
			}
			mean /= float64(r)
			for _, v := range col {
				ss += (v - mean) * (v - mean)
			}
			assert.InDelta(t, 0, mean, 1e-12, "%s column %d mean", c.Name, j)
			assert.InDelta(t, 1, math.Sqrt(ss/float64(r)), 1e-12, "%s column %d std", c.Name, j)
		}
	}

	// Scaling is deterministic.
	again, err := ds.Scale()
	require.NoError(t, err)
	assert.True(t, mat.Equal(scaled.Train.X, again.Train.X))
	assert.True(t, mat.Equal(scaled.Test.X, again.Test.X))
}

func TestScale_SingleRowCohort(t *testing.T) {
	ds, err := Load(writeFile(t, "train.csv", trainCSV), writeFile(t, "test.csv", "GeneA,GeneB,Group\n1,2,1\n"), "")
	// A one-row Test cohort cannot hold both classes.
	require.Error(t, err)
	assert.Nil(t, ds)

	ds, err = Load(writeFile(t, "train.csv", trainCSV), writeFile(t, "test.csv", testCSV), "")
	require.NoError(t, err)
	ds.Test.X = mat.NewDense(1, 2, []float64{1, 2})
	_, err = ds.Scale()
	var cfgErr *errors.ConfigurationError
	assert.True(t, errors.As(err, &cfgErr), "got %v", err)
}

func TestSubset(t *testing.T) {
	ds, err := Load(writeFile(t, "train.csv", trainCSV), writeFile(t, "test.csv", testCSV), "")
	require.NoError(t, err)

	sub, err := ds.Subset([]string{"GeneB"})
	require.NoError(t, err)
	assert.Equal(t, []string{"GeneB"}, sub.Features)
	assert.Equal(t, []float64{10, 20, 30, 40}, mat.Col(nil, 0, sub.Train.X))
	assert.Equal(t, ds.Train.Y, sub.Train.Y)

	_, err = ds.Subset([]string{"Nope"})
	assert.Error(t, err)
}
