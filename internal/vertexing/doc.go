// Package vertexing clusters one-dimensional track positions into proto-vertices.
//
// The clustering is a DBSCAN variant built for a cooperating group of workers:
// every job runs as a fixed sequence of passes (histogram fill, neighbour
// counting, seed assignment, path compression, edge absorption, labeling) and
// the passes are separated by group-wide barriers. Each worker owns the track
// slots it visits through rank striding; the only shared counter is the
// found-cluster counter, updated with an atomic add.
//
// Key types: Track, Params, Result, Clusterer, Workspace.
package vertexing
