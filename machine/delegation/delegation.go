// Package delegation builds the co-processor circuits the main machine's
// csrrw instruction delegates to. Each processor is its own row circuit
// over the same constraint system and shuffle-argument shapes: an exec
// multiplicity bit, a base pointer read from the ABI register, indirect
// accesses into the ABI page, and the computation itself. Compiling one
// yields a processor description the cross-chunk stitching logic consumes
// next to the main artifact.
package delegation

import (
	"github.com/consensys/gnark-air/air"
	"github.com/consensys/gnark-air/cs"
	"github.com/consensys/gnark-air/field"
)

// Delegation type ids, the values machine code writes to the delegation csr.
const (
	TypeBlake2Round uint32 = 1991
	TypeBigIntOps   uint32 = 1994
)

// abiPointerReg holds the base address of a processor's ABI page; bigint
// additionally reads its control word from abiControlReg.
const (
	abiPointerReg = 10
	abiControlReg = 11
)

// State is the mutable per-row input of a delegation circuit, the
// co-processor's view of the machine state at the delegated cycle.
type State struct {
	Exec bool
	Regs [32]uint32
	Mem  map[uint32]uint32
}

// Circuit is one constructed and compiled delegation processor.
type Circuit[F field.Element[F]] struct {
	Description *air.DelegationProcessorDescription[F]
	In          *State

	b    *cs.Builder[F]
	exec cs.Boolean
}

// Builder exposes the underlying builder, for solving rows.
func (c *Circuit[F]) Builder() *cs.Builder[F] { return c.b }

// Exec exposes the multiplicity bit column.
func (c *Circuit[F]) Exec() cs.Boolean { return c.exec }

// gadgets carries the small helpers shared by the processors.
type gadgets[F field.Element[F]] struct {
	b  *cs.Builder[F]
	in *State
}

func (g *gadgets[F]) bindUints(outputs []cs.Variable, fn func(in, out []uint64), inputs ...cs.Variable) {
	g.b.SetValues(outputs, func(in, out []F) error {
		iv := make([]uint64, len(in))
		for i := range in {
			iv[i] = in[i].Uint64()
		}
		ov := make([]uint64, len(out))
		fn(iv, ov)
		for i := range ov {
			out[i] = field.Uint64[F](ov[i])
		}
		return nil
	}, inputs...)
}

// execBit allocates and binds the row's multiplicity bit.
func (g *gadgets[F]) execBit() cs.Boolean {
	exec := g.b.AddBooleanVariable()
	in := g.in
	g.b.SetValues([]cs.Variable{exec.Variable()}, func(_, out []F) error {
		if in.Exec {
			out[0] = field.One[F]()
		} else {
			out[0] = field.Zero[F]()
		}
		return nil
	})
	return exec
}

// readPointer reads an ABI register and binds its limbs from the register
// file. The address column is masked by exec so padding rows keep the whole
// record at zero.
func (g *gadgets[F]) readPointer(reg uint32, localTs int, exec cs.Boolean) cs.ShuffleRamAccess[F] {
	b := g.b
	addr := b.Masked(exec, cs.ConstantConstraint(field.Uint64[F](uint64(reg))))
	access := cs.ShuffleRamAccess[F]{
		Address:        [2]cs.Term[F]{cs.VariableTerm[F](addr), cs.UintTerm[F](0)},
		IsRegister:     true,
		LocalTimestamp: localTs,
		ReadValue:      [2]cs.Variable{b.AddVariableWithRangeCheck(16), b.AddVariableWithRangeCheck(16)},
		Exec:           exec,
	}
	b.AddShuffleRamAccess(access)
	in := g.in
	g.bindUints(access.ReadValue[:], func(vals, out []uint64) {
		if vals[0] == 0 {
			return
		}
		v := in.Regs[reg]
		out[0] = uint64(v & 0xffff)
		out[1] = uint64(v >> 16)
	}, exec.Variable())
	return access
}

// bindPageReads binds the read limbs of ABI page accesses from memory. The
// offsets must match the accesses' own, in order.
func (g *gadgets[F]) bindPageReads(base [2]cs.Variable, exec cs.Boolean, offsets []uint32, accesses []cs.ShuffleRamAccess[F]) {
	outs := make([]cs.Variable, 0, 2*len(accesses))
	for _, a := range accesses {
		outs = append(outs, a.ReadValue[0], a.ReadValue[1])
	}
	in := g.in
	g.bindUints(outs, func(vals, out []uint64) {
		if vals[0] == 0 {
			return
		}
		addr := uint32(vals[1] + vals[2]<<16)
		for i, off := range offsets {
			v := in.Mem[addr+off]
			out[2*i] = uint64(v & 0xffff)
			out[2*i+1] = uint64(v >> 16)
		}
	}, exec.Variable(), base[0], base[1])
}

// add32 enforces one 32-bit addition with a dropped final carry and returns
// the pooled sum limbs; inactive rows yield zero.
func (g *gadgets[F]) add32(xLo, xHi, yLo, yHi cs.Constraint[F], flag cs.Boolean) [2]cs.Variable {
	o := cs.NewOptimizationContext(g.b)
	lo, carry := o.AppendAddRelation(xLo, yLo, flag)
	hi, _ := o.AppendAddRelation(xHi.AddTerm(cs.VariableTerm[F](carry)), yHi, flag)
	o.EnforceAll()
	return [2]cs.Variable{lo, hi}
}

// xor32 enforces four byte-wise xor lookups; inactive rows degrade to the
// zero-entry table.
func (g *gadgets[F]) xor32(x, y [4]cs.Constraint[F], flag cs.Boolean) [4]cs.Variable {
	o := cs.NewOptimizationContext(g.b)
	var out [4]cs.Variable
	for k := range out {
		out[k] = o.AppendLookupRelation(cs.TableXor, x[k], y[k], flag)
	}
	o.EnforceAll()
	return out
}

// bytesOf splits a bound limb pair into four range-checked bytes.
func (g *gadgets[F]) bytesOf(limbs [2]cs.Variable) [4]cs.Variable {
	var bs [4]cs.Variable
	for i := range bs {
		bs[i] = g.b.AddVariableWithRangeCheck(8)
	}
	twoPow8 := field.TwoPowN[F](8)
	for half := 0; half < 2; half++ {
		lo, hi := bs[2*half], bs[2*half+1]
		g.b.AddConstraint(cs.ConstraintFromVariable[F](limbs[half]).
			SubTerm(cs.VariableTerm[F](lo)).
			SubTerm(cs.ScaledVariableTerm(twoPow8, hi)))
		g.bindUints([]cs.Variable{lo, hi}, func(in, out []uint64) {
			out[0] = in[0] & 0xff
			out[1] = in[0] >> 8
		}, limbs[half])
	}
	return bs
}

// narrowTo enforces v < 2^width for widths below 8 by range-checking the
// scaled copy 2^(8−width)·v to 8 bits.
func (g *gadgets[F]) narrowTo(v cs.Variable, width uint8) {
	scaled := g.b.AddVariableWithRangeCheck(8)
	k := field.TwoPowN[F](uint(8 - width))
	g.b.AddConstraint(cs.ScaledVariableTerm(k, v).Sub(cs.VariableTerm[F](scaled)))
	g.b.SetValues([]cs.Variable{scaled}, func(in, out []F) error {
		out[0] = in[0].Mul(k)
		return nil
	}, v)
}

// nibblesOf splits four bound bytes into low/high nibbles, each pinned below
// 16 through a scaled range check.
func (g *gadgets[F]) nibblesOf(bytes [4]cs.Variable) (low, high [4]cs.Variable) {
	sixteen := field.TwoPowN[F](4)
	for k := 0; k < 4; k++ {
		low[k] = g.b.AddVariable()
		high[k] = g.b.AddVariable()
		g.b.AddConstraint(cs.ConstraintFromVariable[F](bytes[k]).
			SubTerm(cs.VariableTerm[F](low[k])).
			SubTerm(cs.ScaledVariableTerm(sixteen, high[k])))
		g.bindUints([]cs.Variable{low[k], high[k]}, func(in, out []uint64) {
			out[0] = in[0] & 0xf
			out[1] = in[0] >> 4
		}, bytes[k])
		g.narrowTo(low[k], 4)
		g.narrowTo(high[k], 4)
	}
	return low, high
}

// assignAs pins an already-allocated column (typically a record's write
// limb) to a bound source variable.
func (g *gadgets[F]) assignAs(dst, src cs.Variable) {
	g.b.AddConstraint(cs.ConstraintFromVariable[F](dst).SubTerm(cs.VariableTerm[F](src)))
	g.bindUints([]cs.Variable{dst}, func(in, out []uint64) {
		out[0] = in[0]
	}, src)
}

func describe[F field.Element[F]](b *cs.Builder[F], delegationType uint32) (*air.DelegationProcessorDescription[F], error) {
	artifact, err := air.Compile(b)
	if err != nil {
		return nil, err
	}
	return &air.DelegationProcessorDescription[F]{
		DelegationType:     delegationType,
		TraceLen:           1 << 20,
		RequestsPerCircuit: 1<<20 - 1,
		Artifact:           artifact,
	}, nil
}
