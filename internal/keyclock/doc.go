// Package keyclock maps an identity and a timestamp to a key-rotation epoch.
//
// Epochs are fixed-width time buckets, but each identity's buckets are
// shifted by a phase offset derived from its principal hash, so the
// population does not rotate keys in lockstep and refresh load on the
// identity provider is spread across the window.
package keyclock
