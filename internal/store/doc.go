// Package store provides SQLite-backed persistence for keyvault's core data.
//
// It contains the concrete implementation of every domain storage interface:
// the identity account, pairwise and group ratchet sessions, device lists and
// cross-signing trust, withheld notices, the outgoing key request state
// machine, the gossip audit trail and the encryption policy flags.
//
// A single logical writer is assumed; concurrent readers get snapshot reads
// and reactive Watch subscriptions that emit on each committed change. Room
// policy flags derived from sync state buffer inside a BeginBatch/EndBatch
// bracket and commit atomically at EndBatch.
package store
