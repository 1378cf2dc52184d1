// Package domain defines the shared types and contracts of the transport
// substrate: identities and their devices, rotating key material, cached
// channel secrets, the encoded-message and object queues, capability-addressed
// feeds, and the store interfaces each component implements.
//
// The package has no dependencies beyond the standard library so every other
// package can import it freely.
package domain
