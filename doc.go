// Package mindepth finds the smallest feature subset of a binary classifier
// that keeps its discriminative performance, by stepwise minimal-depth
// elimination in random forests.
//
// A run has three stages:
//
//   - Prefilter: an L1 logistic regression with cross-validated C keeps the
//     features with a non-zero coefficient.
//   - Selection loop: for k from the prefilter's selection size down to a
//     floor, a fixed forest ranks the candidates by the mean depth of their
//     shallowest split, the k shallowest are kept, and a randomized search
//     tunes a forest on them. The held-out AUC of each round is recorded and
//     the kept features become the next round's candidates.
//   - Report: every round's importances, path attributions and metrics are
//     written to disk, along with a summary and the best model.
//
// # Quick Start
//
//	mdselect run --train train.xlsx --test test.xlsx --label Group --out results
//
// or, from Go:
//
//	ds, err := dataset.Load("train.csv", "test.csv", dataset.DefaultLabel)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	scaled, err := ds.Scale()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	sel, err := selection.NewSelector(selection.DefaultOptions(), nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	history, err := sel.Run(context.Background(), scaled)
//
// # Packages
//
//   - dataset: CSV/XLSX cohorts, validation, per-cohort scaling
//   - selection: prefilter, depth analyzer, tuner and the elimination loop
//   - report: file and console observers of a run
//   - config: defaults, .env, MDSELECT_* environment, YAML search space
//   - sklearn/tree, sklearn/ensemble: CART and random forests
//   - sklearn/linear_model: LogisticRegression, LogisticRegressionCV
//   - sklearn/model_selection: StratifiedKFold, RandomizedSearchCV
//   - metrics: AUC, recall and other binary metrics
//   - preprocessing: StandardScaler and GroupScaler
//   - core/model, core/parallel: estimator state, persistence, worker pools
//   - pkg/errors, pkg/log: structured errors and zerolog-backed logging
//
// All randomness is derived from one seed; results do not depend on the
// number of workers.
package mindepth
