// Package apperr defines the sentinel errors shared across services,
// repositories and handlers. Callers classify failures with errors.Is.
package apperr

import "errors"

var (
	// ErrConfiguration signals missing or invalid key material or other
	// startup configuration. Fatal at startup, never per-request.
	ErrConfiguration = errors.New("invalid configuration")

	// ErrDecryption signals corrupt or foreign ciphertext. Callers recover
	// by treating the affected field as absent.
	ErrDecryption = errors.New("decryption failed")

	// ErrInvalidCredentials is returned on login failure. It deliberately
	// does not distinguish an unknown user from a wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrNotFound marks an absent mission, organization, role or state.
	// Handlers map it to an empty "no content" response.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a roster mutation could not be
	// serialized against concurrent writers within the retry budget.
	// Clients may retry the request.
	ErrConflict = errors.New("conflicting concurrent update")
)
