// Package commands defines the keyvault CLI and wires dependencies for
// subcommands.
//
// Commands
//
//   - init      Create the local identity account
//   - status    Print account fingerprint and backup progress
//   - sessions  Inspect stored group sessions
//   - devices   Inspect and verify tracked devices
//   - requests  List, cancel and prune outgoing key requests
//   - audit     Page through the gossip audit trail
//   - backup    Inspect and rotate key backup state
//   - policy    Show and change encryption policy flags
//   - wipe      Delete the store from disk
//
// # Implementation
//
// Subcommands that touch the store build the dependency graph on first use
// through ensureWire, so commands like wipe can run without opening the
// database they are about to delete.
package commands
