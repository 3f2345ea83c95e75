// Package gnarkair compiles RISC-V machine semantics (and delegation
// co-processor circuits) into an AIR: an algebraic constraint system over a
// 31-bit prime field, consumed by a STARK prover.
//
// The packages of interest are:
//   - field: the prime-field abstraction and its babybear/koalabear instances
//   - cs: the Term/Constraint algebra, deferred invariants, witness binding,
//     gadgets, the optimization context and the memory access records
//   - air: the layout compiler producing an immutable, serializable
//     CompiledCircuitArtifact
//   - machine: the RISC-V cycle circuit and its delegation co-processors
package gnarkair

import (
	"github.com/blang/semver/v4"
)

// Version of the gnark-air module. Serialized artifacts embed it and the
// deserializer rejects artifacts from another major version; see
// air.CompiledCircuitArtifact.
var Version = semver.MustParse("0.1.0")
