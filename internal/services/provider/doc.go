// Package provider assembles the transport data façade: the single contract
// the external encode/decode engine consumes.
//
// The façade combines the key clock, the IBE scheme boundary and every
// store, and adds the explicit Begin/Succeed/End bracket so the engine can
// scope one full encode-or-decode operation atomically. It owns the local
// identity and device handles, established once by Initialize rather than
// lazily on first access.
package provider
