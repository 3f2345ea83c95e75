// Package machine builds the per-cycle RISC-V row circuit: decode one rv32
// instruction, touch the register file and RAM through the shared shuffle
// argument, run every opcode family through the optimization context and
// select the one active result. Compiling the row yields the main circuit
// artifact; delegation co-processors live in the delegation subpackage.
package machine

import (
	"github.com/consensys/gnark-air/air"
	"github.com/consensys/gnark-air/cs"
	"github.com/consensys/gnark-air/field"
)

// InputState is the mutable per-row input the circuit reads through its
// witness closures. Callers keep a reference, overwrite the fields between
// solves and obtain one witness row per machine cycle.
type InputState struct {
	// Exec clears to zero for padding rows; the closures then output zero
	// for every argument column regardless of the other fields.
	Exec  bool
	Pc    uint32
	Instr uint32
	Regs  [32]uint32
	Mem   map[uint32]uint32

	LazyInit LazyInitInput
}

// LazyInitInput is the row's slice of the chunk-global lazy-init table: the
// address this row introduces, the previous row's address for the
// monotonicity gadget, and the matching teardown entry.
type LazyInitInput struct {
	Enable            bool
	Address           uint32
	PrevAddress       uint32
	InitValue         uint32
	TeardownValue     uint32
	TeardownTimestamp uint64
}

// Machine is one constructed row template. The exported fields expose the
// row's interface columns: program counter limbs, the next-pc limbs linked
// to the successor row, and the access records feeding the memory argument.
type Machine[F field.Element[F]] struct {
	b  *cs.Builder[F]
	in *InputState

	Exec   cs.Boolean
	Pc     [2]cs.Variable
	Instr  [2]cs.Variable
	PcNext [2]cs.Variable

	Rs1Read cs.ShuffleRamAccess[F]
	Rs2Read cs.ShuffleRamAccess[F]
	RdWrite cs.ShuffleRamAccess[F]
	Load    cs.ShuffleRamAccess[F]
	Store   cs.ShuffleRamAccess[F]

	Delegation cs.DelegationRequest[F]
	Lazy       cs.LazyInitSlot

	dec decoded

	rs1Val, rs2Val, op2 [2]cs.Variable
	rs1Bytes, op2Bytes  [4]cs.Variable

	// pooled optimization-context outputs
	aluOut   [2]cs.Variable
	aluCarry [2]cs.Variable
	bitOut   [4]cs.Variable
	partials [8][2]cs.Variable
	cmpCarry cs.Variable

	// shift and multiply/divide operands and results
	shamt, pow2Lo, pow2Hi cs.Variable
	mulOperand, divisor   [2]cs.Variable
	q, r                  [2]cs.Variable
	qBytes                [4]cs.Variable
	res                   [2]cs.Variable
	resCarry0, resCarry1  cs.Variable

	// control flow
	eq32, taken            cs.Boolean
	tSeq, tPcImm, tRs1Imm  cs.Boolean
	link, auipcRes         [2]cs.Variable
	rdWriteExec            cs.Boolean
}

// New constructs the full row over the builder. The input state is captured
// by the witness closures; it must outlive every Solve call.
func New[F field.Element[F]](b *cs.Builder[F], in *InputState) *Machine[F] {
	m := &Machine[F]{b: b, in: in}
	m.bindInputs()
	m.decode()
	m.readRegisters()
	m.selectOperands()
	m.prepareShift()
	m.prepareMulDiv()

	o := cs.NewOptimizationContext(b)
	m.registerAluRelations(o)
	m.registerMulRelations(o)
	m.registerBitwiseRelations(o)
	o.EnforceAll()

	m.checkMulDiv()
	m.resolveControl()
	m.accessMemory()
	m.writeBack()
	m.requestDelegation()
	m.bindLazyInit()
	return m
}

// Builder exposes the underlying builder, for solving rows after compilation.
func (m *Machine[F]) Builder() *cs.Builder[F] { return m.b }

// Compile builds one machine row over a fresh builder and compiles it. The
// input state stays referenced by the closures: mutate it and re-solve the
// builder to produce successive witness rows.
func Compile[F field.Element[F]](in *InputState) (*Machine[F], *air.CompiledCircuitArtifact[F], error) {
	b := cs.NewBuilder[F](1 << 10)
	m := New(b, in)
	artifact, err := air.Compile(b)
	if err != nil {
		return nil, nil, err
	}
	return m, artifact, nil
}

func (m *Machine[F]) bindInputs() {
	m.Exec = m.b.AddBooleanVariable()
	m.Pc = [2]cs.Variable{m.b.AddVariableWithRangeCheck(16), m.b.AddVariableWithRangeCheck(16)}
	m.Instr = [2]cs.Variable{m.b.AddVariableWithRangeCheck(16), m.b.AddVariableWithRangeCheck(16)}
	in := m.in
	m.b.SetValues([]cs.Variable{m.Exec.Variable(), m.Pc[0], m.Pc[1], m.Instr[0], m.Instr[1]},
		func(_, out []F) error {
			if !in.Exec {
				for i := range out {
					out[i] = field.Zero[F]()
				}
				return nil
			}
			out[0] = field.One[F]()
			out[1] = field.Uint64[F](uint64(in.Pc & 0xffff))
			out[2] = field.Uint64[F](uint64(in.Pc >> 16))
			out[3] = field.Uint64[F](uint64(in.Instr & 0xffff))
			out[4] = field.Uint64[F](uint64(in.Instr >> 16))
			return nil
		})
}

func (m *Machine[F]) bindLazyInit() {
	m.Lazy = m.b.AddLazyInitSlot()
	in := m.in
	slot := m.Lazy
	m.b.SetValues([]cs.Variable{
		slot.Enable.Variable(),
		slot.Address[0], slot.Address[1],
		slot.PrevAddress[0], slot.PrevAddress[1],
		slot.InitValue[0], slot.InitValue[1],
		slot.TeardownValue[0], slot.TeardownValue[1],
		slot.TeardownTimestamp[0], slot.TeardownTimestamp[1],
	}, func(_, out []F) error {
		li := in.LazyInit
		if !li.Enable {
			for i := range out {
				out[i] = field.Zero[F]()
			}
			return nil
		}
		out[0] = field.One[F]()
		out[1], out[2] = split32[F](li.Address)
		out[3], out[4] = split32[F](li.PrevAddress)
		out[5], out[6] = split32[F](li.InitValue)
		out[7], out[8] = split32[F](li.TeardownValue)
		out[9] = field.Uint64[F](li.TeardownTimestamp & 0xffff)
		out[10] = field.Uint64[F](li.TeardownTimestamp >> 16)
		return nil
	})
}

// and materializes the conjunction of two positive boolean views.
func (m *Machine[F]) and(x, y cs.Boolean) cs.Boolean {
	out := m.b.AddBooleanVariable()
	m.b.AddConstraint(cs.BooleanConstraint[F](x).Mul(cs.BooleanConstraint[F](y)).
		SubTerm(cs.BooleanTerm[F](out)))
	m.b.SetValues([]cs.Variable{out.Variable()}, func(in, o []F) error {
		o[0] = in[0].Mul(in[1])
		return nil
	}, x.Variable(), y.Variable())
	return out
}

// andNot materializes x·(1−y) for positive boolean views.
func (m *Machine[F]) andNot(x, y cs.Boolean) cs.Boolean {
	out := m.b.AddBooleanVariable()
	one := cs.ConstantConstraint(field.One[F]())
	m.b.AddConstraint(cs.BooleanConstraint[F](x).
		Mul(one.Sub(cs.BooleanConstraint[F](y))).
		SubTerm(cs.BooleanTerm[F](out)))
	m.b.SetValues([]cs.Variable{out.Variable()}, func(in, o []F) error {
		o[0] = in[0].Mul(field.One[F]().Sub(in[1]))
		return nil
	}, x.Variable(), y.Variable())
	return out
}

// anyOf materializes the sum of mutually exclusive flags. Exclusivity is the
// decoder's contract; the sum of a one-hot subset is itself boolean.
func (m *Machine[F]) anyOf(flags ...cs.Boolean) cs.Boolean {
	out := m.b.AddBooleanVariable()
	acc := cs.EmptyConstraint[F]()
	vars := make([]cs.Variable, len(flags))
	for i, f := range flags {
		acc = acc.AddTerm(cs.BooleanTerm[F](f))
		vars[i] = f.Variable()
	}
	m.b.AddConstraint(acc.SubTerm(cs.BooleanTerm[F](out)))
	m.b.SetValues([]cs.Variable{out.Variable()}, func(in, o []F) error {
		s := field.Zero[F]()
		for _, v := range in {
			s = s.Add(v)
		}
		o[0] = s
		return nil
	}, vars...)
	return out
}

// narrowTo enforces v < 2^width for widths below 8 by range-checking the
// scaled copy 2^(8−width)·v to 8 bits.
func (m *Machine[F]) narrowTo(v cs.Variable, width uint8) {
	scaled := m.b.AddVariableWithRangeCheck(8)
	k := field.TwoPowN[F](uint(8 - width))
	m.b.AddConstraint(cs.ScaledVariableTerm(k, v).Sub(cs.VariableTerm[F](scaled)))
	m.b.SetValues([]cs.Variable{scaled}, func(in, out []F) error {
		out[0] = in[0].Mul(k)
		return nil
	}, v)
}

// bindUints registers a closure working in plain uint64 arithmetic.
func (m *Machine[F]) bindUints(outputs []cs.Variable, fn func(in, out []uint64), inputs ...cs.Variable) {
	m.b.SetValues(outputs, func(in, out []F) error {
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

func split32[F field.Element[F]](v uint32) (lo, hi F) {
	return field.Uint64[F](uint64(v & 0xffff)), field.Uint64[F](uint64(v >> 16))
}
