// Package store groups the lot store backends. The everylot.Store
// interface they implement lives in internal/everylot; this package tree
// holds the concrete drivers: sqlite for the shipped single-file
// dataset, postgres for shared deployments, memory for tests and dry
// runs. Each backend makes MarkPosted a single atomic compare-and-set.
package store
