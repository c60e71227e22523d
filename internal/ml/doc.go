// Package ml holds the tabular estimators and the numerical plumbing used to
// train churn and lifetime-value models: imputation, scaling, train/test
// splitting, k-fold cross-validation and evaluation metrics.
//
// Column medians ignore missing values, the scaler uses the population
// standard deviation and maps a zero deviation to 1, and unshuffled
// stratified k-fold assigns samples to folds class by class in row order.
//
// # Thread Safety
//
// Fit is not safe to call concurrently with anything else on the same
// estimator. Once fitted, PredictProba and Predict only read model state and
// may be called from many goroutines.
//
// Every estimator is gob-encodable; fitted state lives in exported fields.
package ml
