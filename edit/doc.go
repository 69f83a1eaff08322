// Package edit provides adaptive feedback for approximate-text-match editing
// capabilities: a per-path rolling success/failure monitor and a fuzzy
// replacement helper built on diff-match-patch similarity scoring.
//
// The monitor is a read-only side channel. It never blocks an edit; it only
// informs the caller, which may surface recommendations to the backend.
package edit
