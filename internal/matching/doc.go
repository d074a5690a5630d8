// Package matching ranks candidate pros for a job.
//
// The ordering defined by Compare is shared by dispatch offers and the quick match
// recommendation view, so both always agree on which pro comes first.
package matching
