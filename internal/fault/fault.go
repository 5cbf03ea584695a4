// Package fault defines the error taxonomy shared across minne's services.
//
// Three sentinel categories cover every failure the HTTP layer needs to
// distinguish:
//
//   - ErrNotFound:   user-correctable absence (no draft, no model configured)
//   - ErrBadRequest: rejected input before any work begins (empty note)
//   - ErrInternal:   everything else; surfaced generically to the caller
//
// Services wrap sentinels with context:
//
//	fmt.Errorf("%w: no draft note available to save", fault.ErrNotFound)
//
// and the API layer maps them with errors.Is.
package fault

import "errors"

var (
	// ErrNotFound indicates a missing resource the user can correct
	// (no open draft, no chat or embedding model chosen).
	ErrNotFound = errors.New("not found")

	// ErrBadRequest indicates invalid input rejected before any
	// embedding or storage work starts.
	ErrBadRequest = errors.New("bad request")

	// ErrInternal indicates an unexpected failure (embedding exhausted
	// retries, malformed vector data, storage errors). Logged with full
	// context, surfaced generically.
	ErrInternal = errors.New("internal error")
)
