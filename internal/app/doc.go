// Package app wires application dependencies for the CLI.
//
// It loads configuration, opens the encrypted store and builds the
// high-level services from Config, exposing them via the Wire struct for
// commands to use.
package app
