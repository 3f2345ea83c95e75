// Package cs implements the constraint-system frontend of the proving stack:
// the Term/Constraint polynomial algebra, variable allocation and deferred
// witness binding, the invariant registry, the gadget library and the
// execute-all-choose-one optimization context.
//
// A circuit description is accumulated into a [Builder]; the air package
// consumes the builder in a single layout-compilation pass and produces an
// immutable compiled artifact. All construction errors (degree violations,
// boolean view misuse, double finalization) are programmer errors and panic
// at the call site; air.Compile recovers them at its boundary.
package cs
