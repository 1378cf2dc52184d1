package domain

import (
	"errors"
	"fmt"
)

// NeedsKeyError reports that key material for a particular epoch is not in
// the local store and must be fetched from the external identity provider.
// It is an expected, recoverable signal, not a fault: the carrier tells the
// caller exactly which generation to request.
type NeedsKeyError struct {
	Kind  KeyKind
	Epoch Epoch
}

// Error implements error.
func (e *NeedsKeyError) Error() string {
	return fmt.Sprintf("needs %s key for epoch %d", e.Kind, e.Epoch)
}

// AsNeedsKey unwraps err into a NeedsKeyError if it carries one.
func AsNeedsKey(err error) (*NeedsKeyError, bool) {
	var nk *NeedsKeyError
	if errors.As(err, &nk) {
		return nk, true
	}
	return nil, false
}

var (
	// ErrNoOwnedIdentity indicates an operation that requires at least one
	// owned identity found none.
	ErrNoOwnedIdentity = errors.New("no owned identity")

	// ErrTxNotOpen reports Succeed or End on a closed transaction bracket.
	ErrTxNotOpen = errors.New("no transaction open")
)
