// Package compiler talks to the theorem compiler service that turns a
// theorem statement into candidate proof source.
package compiler

import (
	"context"

	"prooffarm/internal/farm/model"
)

// TheoremCompiler generates proof source for a theorem. The farm treats
// the compiler as opaque: the returned source is checked inside the
// sandbox, never trusted.
type TheoremCompiler interface {
	// GenerateProof returns candidate proof source for the theorem.
	GenerateProof(ctx context.Context, theorem model.Theorem, options model.ProofOptions) (string, error)

	// Ping verifies the compiler service is reachable.
	Ping(ctx context.Context) error
}
