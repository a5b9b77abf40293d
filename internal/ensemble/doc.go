// Package ensemble learns how much to trust each forecast source and fuses
// their forecasts into one estimate.
//
// The flow is: documents from every source are aligned on a shared label
// axis (Intersect or Union), producing a Bundle with one sources x labels
// matrix per feature. An Estimator reduces the distance between each source
// row and the truth into weights that sum to 1, and later combines new
// bundles with those weights. Validate reports the residual error of any
// bundle against the truth.
//
// Missing values are NaN from extraction onward and count as 0 when
// learning or combining.
package ensemble
