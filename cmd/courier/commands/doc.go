// Package commands defines the courier CLI and wires dependencies for
// subcommands.
//
// Commands
//
//   - init    Bootstrap the local identity, device and configuration
//   - status  Show the local identity and queue depths
//   - feed    Create and inspect feeds
//   - gc      Delete processed ciphertexts past the retention window
//
// # Implementation
//
// The root command loads configuration before any subcommand runs. init
// builds the raw wiring so it can work against an empty store; every other
// command opens the initialized app, which requires a bootstrapped identity.
package commands
