// Package ibe is the boundary to the identity-based encryption provider.
//
// The substrate never runs the IBE math itself; it only caches the results.
// DevScheme is a stand-in used by tests and the development CLI: it derives
// every key from a shared master secret with HKDF, which gives the right
// shape (public material derivable from principal+epoch, private material
// "extracted" on demand) with none of the security. Production deployments
// supply a real domain.Scheme.
package ibe
