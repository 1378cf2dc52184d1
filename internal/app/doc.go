// Package app wires application dependencies for the CLI.
//
// It builds the database, the stores, the key clock and the transport data
// façade from Config, exposing them via the Wire struct for commands to
// use. Every component is constructed exactly once here; nothing below this
// package reaches for globals.
package app
