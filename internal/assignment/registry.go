// Package assignment answers whether an auditing firm is currently
// authorized to audit a collection agency. The roster itself is managed by
// an external system; the workflow only consumes the lookup.
package assignment

import "context"

// Registry is the lookup contract used by audit creation.
type Registry interface {
	Assigned(ctx context.Context, agencyID, firmID string) (bool, error)
}
