// Package factor implements the geometric factors of a relation classifier:
// scorers that turn per-box geometric features into relation class scores.
//
// GeometricFactor applies a configurable feed-forward network to the box
// features. GeometricFactorPairwise additionally builds, for every box, the
// signed differences between all ordered pairs of its feature scalars,
// projects and normalizes them, squares the result and fuses it with the
// normalized raw box features before a final aggregation layer.
//
// Both scorers read their input from Features["box"], a [B, BoxFeatSize]
// tensor, and return [B, OutDim] scores.
package factor
