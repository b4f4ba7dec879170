// Package gossip coordinates key request bookkeeping: issuing and merging
// outgoing requests, attaching forwarded-key replies, and recording every
// gossip event in the audit trail.
package gossip
