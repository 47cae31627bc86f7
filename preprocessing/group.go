package preprocessing

import (
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/mindepth/pkg/errors"
	"github.com/YuminosukeSato/mindepth/pkg/log"
)

// GroupScaler はグループ（コホート）ごとに独立したStandardScalerを学習・適用する。
// 各グループの行はそのグループの統計量のみで標準化され、行の順序と数は保持される。
type GroupScaler struct {
	// Scalers はグループ名から学習済みスケーラーへの対応
	Scalers map[string]*StandardScaler

	logger log.Logger
}

// NewGroupScaler は新しいGroupScalerを作成する
func NewGroupScaler() *GroupScaler {
	return &GroupScaler{
		Scalers: make(map[string]*StandardScaler),
		logger:  log.GetLoggerWithName("preprocessing"),
	}
}

// FitTransform は groups[i] が X の i 行目の所属グループを表すとして、
// グループごとに標準化した新しい行列を返す。
//
// 行数が2未満のグループは ConfigurationError になる。
func (g *GroupScaler) FitTransform(X mat.Matrix, groups []string) (*mat.Dense, error) {
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return nil, errors.NewModelError("GroupScaler.FitTransform", "empty data", errors.ErrEmptyData)
	}
	if len(groups) != r {
		return nil, errors.NewDimensionError("GroupScaler.FitTransform", r, len(groups), 0)
	}
	if !isFinite(X) {
		return nil, errors.NewValueError("GroupScaler.FitTransform", "input contains NaN or Inf")
	}

	rowsByGroup := make(map[string][]int)
	for i, grp := range groups {
		rowsByGroup[grp] = append(rowsByGroup[grp], i)
	}
	names := make([]string, 0, len(rowsByGroup))
	for name := range rowsByGroup {
		names = append(names, name)
	}
	sort.Strings(names)

	out := mat.NewDense(r, c, nil)
	g.Scalers = make(map[string]*StandardScaler, len(names))
	for _, name := range names {
		rows := rowsByGroup[name]
		if len(rows) < 2 {
			return nil, errors.NewConfigurationError("scaler_group", "each group needs at least 2 rows", name)
		}

		sub := mat.NewDense(len(rows), c, nil)
		for k, i := range rows {
			for j := 0; j < c; j++ {
				sub.Set(k, j, X.At(i, j))
			}
		}

		scaler := NewStandardScalerDefault()
		scaled, err := scaler.FitTransform(sub)
		if err != nil {
			return nil, errors.Wrapf(err, "scaling group %q", name)
		}
		for k, i := range rows {
			for j := 0; j < c; j++ {
				out.Set(i, j, scaled.At(k, j))
			}
		}
		g.Scalers[name] = scaler

		g.logger.Debug("group scaled",
			log.CohortKey, name,
			log.SamplesKey, len(rows),
			log.FeaturesKey, c,
		)
	}

	return out, nil
}
