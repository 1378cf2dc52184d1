// Package capability derives and resolves the unguessable tokens that
// address feeds.
//
// A fixed feed's token is folded deterministically from its member set, so
// any device holding the same group of identities resolves the same feed
// without coordination. An expanding feed's token is random, letting its
// membership grow without the feed changing identity.
package capability
