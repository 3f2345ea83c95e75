package machine

import (
	"github.com/consensys/gnark-air/cs"
	"github.com/consensys/gnark-air/field"
)

// decoded holds the instruction word split into its rv32 fields plus the
// one-hot family/type flags and the derived sub-opcode flags. Every field is
// a witness column bound by the decoder closure; the bit decompositions and
// the opcode-decode lookup pin their values to the instruction word.
type decoded struct {
	// raw fields of the instruction word
	opcode cs.Variable // 7 bits
	rd     cs.Variable // 5 bits
	f3     cs.Variable // 3 bits
	rs2f   cs.Variable // 5 bits, the rs2/shamt field
	funct7 cs.Variable // 7 bits

	// sub-splits feeding register indices and immediates
	bit15  cs.Boolean  // instr[15], low bit of rs1
	rs1Hi4 cs.Variable // instr[19:16]
	rdBit0 cs.Boolean
	rdHi4  cs.Variable
	rs2Bit0 cs.Boolean
	rs2Hi4  cs.Variable
	f7Low6  cs.Variable
	sign    cs.Boolean // instr[31]

	fam [numFamilies]cs.Boolean
	typ [numTypes]cs.Boolean

	imm [2]cs.Variable

	// sub-opcode flags, each already conjoined with its family flag so the
	// flag is zero on every other row
	isAddAny, isSubR                cs.Boolean
	xorAny, orAny, andAny           cs.Boolean
	isSllAny, isSrlAny              cs.Boolean
	isMulR, isDivuR                 cs.Boolean
	mulPath, divPath                cs.Boolean
	shiftAny, shiftImm              cs.Boolean
	aluAddSub, bitwiseAny           cs.Boolean
	isBeq, isBne, isBltu, isBgeu    cs.Boolean
	isJalr, isLw, isSw, isCsr       cs.Boolean
	usesRs1, usesRs2, writesRd      cs.Boolean
	memAny, linkWrite               cs.Boolean
}

func (m *Machine[F]) decode() {
	b := m.b
	d := &m.dec

	d.opcode = b.AddVariable()
	d.rd = b.AddVariable()
	d.f3 = b.AddVariable()
	d.rs2f = b.AddVariable()
	d.funct7 = b.AddVariable()
	d.bit15 = b.AddBooleanVariable()
	d.rs1Hi4 = b.AddVariable()
	d.rdBit0 = b.AddBooleanVariable()
	d.rdHi4 = b.AddVariable()
	d.rs2Bit0 = b.AddBooleanVariable()
	d.rs2Hi4 = b.AddVariable()
	d.f7Low6 = b.AddVariable()
	d.sign = b.AddBooleanVariable()
	for i := range d.fam {
		d.fam[i] = b.AddBooleanVariable()
	}
	for i := range d.typ {
		d.typ[i] = b.AddBooleanVariable()
	}
	famIdx := b.AddVariable()
	typIdx := b.AddVariable()

	// instrLow = opcode + 2⁷·rd + 2¹²·f3 + 2¹⁵·bit15
	b.AddConstraint(cs.ConstraintFromVariable[F](m.Instr[0]).
		SubTerm(cs.VariableTerm[F](d.opcode)).
		SubTerm(cs.ScaledVariableTerm(field.TwoPowN[F](7), d.rd)).
		SubTerm(cs.ScaledVariableTerm(field.TwoPowN[F](12), d.f3)).
		SubTerm(cs.ScaledVariableTerm(field.TwoPowN[F](15), d.bit15.Variable())))
	// instrHigh = rs1Hi4 + 2⁴·rs2f + 2⁹·funct7
	b.AddConstraint(cs.ConstraintFromVariable[F](m.Instr[1]).
		SubTerm(cs.VariableTerm[F](d.rs1Hi4)).
		SubTerm(cs.ScaledVariableTerm(field.TwoPowN[F](4), d.rs2f)).
		SubTerm(cs.ScaledVariableTerm(field.TwoPowN[F](9), d.funct7)))
	// funct7 = f7Low6 + 2⁶·sign, rd = rdBit0 + 2·rdHi4, rs2f = rs2Bit0 + 2·rs2Hi4
	b.AddConstraint(cs.ConstraintFromVariable[F](d.funct7).
		SubTerm(cs.VariableTerm[F](d.f7Low6)).
		SubTerm(cs.ScaledVariableTerm(field.TwoPowN[F](6), d.sign.Variable())))
	b.AddConstraint(cs.ConstraintFromVariable[F](d.rd).
		SubTerm(cs.BooleanTerm[F](d.rdBit0)).
		SubTerm(cs.ScaledVariableTerm(field.TwoPowN[F](1), d.rdHi4)))
	b.AddConstraint(cs.ConstraintFromVariable[F](d.rs2f).
		SubTerm(cs.BooleanTerm[F](d.rs2Bit0)).
		SubTerm(cs.ScaledVariableTerm(field.TwoPowN[F](1), d.rs2Hi4)))

	// exactly one family and one type on executed rows, none on padding
	famSum := cs.EmptyConstraint[F]()
	famIdxExpr := cs.EmptyConstraint[F]()
	for i, f := range d.fam {
		famSum = famSum.AddTerm(cs.BooleanTerm[F](f))
		famIdxExpr = famIdxExpr.AddTerm(cs.ScaledVariableTerm(field.Uint64[F](uint64(i)), f.Variable()))
	}
	b.AddConstraint(famSum.SubTerm(cs.BooleanTerm[F](m.Exec)))
	b.AddConstraint(famIdxExpr.SubTerm(cs.VariableTerm[F](famIdx)))
	typSum := cs.EmptyConstraint[F]()
	typIdxExpr := cs.EmptyConstraint[F]()
	for i, t := range d.typ {
		typSum = typSum.AddTerm(cs.BooleanTerm[F](t))
		typIdxExpr = typIdxExpr.AddTerm(cs.ScaledVariableTerm(field.Uint64[F](uint64(i)), t.Variable()))
	}
	b.AddConstraint(typSum.SubTerm(cs.BooleanTerm[F](m.Exec)))
	b.AddConstraint(typIdxExpr.SubTerm(cs.VariableTerm[F](typIdx)))

	// the decode lookup pins (opcode, family, type) to a supported opcode;
	// padding rows degrade to the zero-entry table
	tid := b.Masked(m.Exec, cs.TableConstant[F](TableOpcodeDecode).AsConstraint())
	b.EnforceLookup(cs.VariableTerm[F](tid), [cs.LookupTupleWidth]cs.Term[F]{
		cs.VariableTerm[F](d.opcode),
		cs.VariableTerm[F](famIdx),
		cs.VariableTerm[F](typIdx),
	})

	outs := []cs.Variable{
		d.opcode, d.rd, d.f3, d.rs2f, d.funct7,
		d.bit15.Variable(), d.rs1Hi4,
		d.rdBit0.Variable(), d.rdHi4,
		d.rs2Bit0.Variable(), d.rs2Hi4,
		d.f7Low6, d.sign.Variable(),
		famIdx, typIdx,
	}
	for _, f := range d.fam {
		outs = append(outs, f.Variable())
	}
	for _, t := range d.typ {
		outs = append(outs, t.Variable())
	}
	m.bindUints(outs, func(in, out []uint64) {
		if in[2] == 0 { // exec
			return
		}
		instr := in[0] + in[1]<<16
		out[0] = instr & 0x7f
		out[1] = instr >> 7 & 0x1f
		out[2] = instr >> 12 & 0x7
		out[3] = instr >> 20 & 0x1f
		out[4] = instr >> 25 & 0x7f
		out[5] = instr >> 15 & 1
		out[6] = instr >> 16 & 0xf
		out[7] = out[1] & 1
		out[8] = out[1] >> 1
		out[9] = out[3] & 1
		out[10] = out[3] >> 1
		out[11] = out[4] & 0x3f
		out[12] = instr >> 31 & 1
		if row, ok := opcodeRows[out[0]]; ok {
			out[13], out[14] = row[0], row[1]
			out[15+row[0]] = 1
			out[15+numFamilies+row[1]] = 1
		}
		// an unsupported opcode leaves every family flag clear; the one-hot
		// sum then contradicts the exec bit and the row is unsatisfiable
	}, m.Instr[0], m.Instr[1], m.Exec.Variable())

	// width pins come after the decoder closure so their scaled copies read
	// bound fields
	m.narrowTo(d.opcode, 7)
	m.narrowTo(d.rd, 5)
	m.narrowTo(d.f3, 3)
	m.narrowTo(d.rs2f, 5)
	m.narrowTo(d.funct7, 7)
	m.narrowTo(d.rs1Hi4, 4)
	m.narrowTo(d.rdHi4, 4)
	m.narrowTo(d.rs2Hi4, 4)
	m.narrowTo(d.f7Low6, 6)

	m.assembleImmediate()
	m.deriveSubOps()
}

// assembleImmediate selects the sign-extended low/high immediate limbs from
// the instruction type. Each variant is a linear reshuffle of the decoded
// bit fields; with the R type (or a padding row) active the selection
// degrades to zero.
func (m *Machine[F]) assembleImmediate() {
	d := &m.dec
	c := func(v cs.Variable, k uint64) cs.Term[F] { return cs.ScaledVariableTerm(field.Uint64[F](k), v) }

	// sign extension folds the sign bit's own position and the extension
	// bits into a single coefficient
	immLoI := cs.NewConstraint(
		cs.VariableTerm[F](d.rs2f),
		c(d.f7Low6, 1<<5),
		c(d.sign.Variable(), 0xf800),
	)
	immLoS := cs.NewConstraint(
		cs.VariableTerm[F](d.rd),
		c(d.f7Low6, 1<<5),
		c(d.sign.Variable(), 0xf800),
	)
	immLoB := cs.NewConstraint(
		c(d.rdHi4, 1<<1),
		c(d.f7Low6, 1<<5),
		c(d.rdBit0.Variable(), 1<<11),
		c(d.sign.Variable(), 0xf000),
	)
	immLoU := cs.NewConstraint(
		c(d.f3, 1<<12),
		c(d.bit15.Variable(), 1<<15),
	)
	immLoJ := cs.NewConstraint(
		c(d.rs2Hi4, 1<<1),
		c(d.f7Low6, 1<<5),
		c(d.rs2Bit0.Variable(), 1<<11),
		c(d.f3, 1<<12),
		c(d.bit15.Variable(), 1<<15),
	)

	signExt := cs.NewConstraint(c(d.sign.Variable(), 0xffff))
	immHiJ := cs.NewConstraint(
		cs.VariableTerm[F](d.rs1Hi4),
		c(d.sign.Variable(), 0xfff0),
	)
	immHiU := cs.ConstraintFromVariable[F](m.Instr[1])

	flags := []cs.Boolean{d.typ[typeI], d.typ[typeS], d.typ[typeB], d.typ[typeU], d.typ[typeJ]}
	d.imm[0] = m.b.ChooseFromOrthogonalVariants(flags,
		[]cs.Constraint[F]{immLoI, immLoS, immLoB, immLoU, immLoJ})
	d.imm[1] = m.b.ChooseFromOrthogonalVariants(flags,
		[]cs.Constraint[F]{signExt, signExt, signExt, immHiU, immHiJ})
}

// deriveSubOps builds the per-instruction flags from f3/funct7 equality and
// conjoins each with its family flag. The per-family completeness sums make
// any unsupported f3/funct7 combination unsatisfiable.
func (m *Machine[F]) deriveSubOps() {
	b := m.b
	d := &m.dec

	eq3 := func(k uint64) cs.Boolean {
		return b.EqualsTo(cs.ConstraintFromVariable[F](d.f3), cs.ConstantConstraint(field.Uint64[F](k)))
	}
	eq7 := func(k uint64) cs.Boolean {
		return b.EqualsTo(cs.ConstraintFromVariable[F](d.funct7), cs.ConstantConstraint(field.Uint64[F](k)))
	}
	f7Zero, f7Sub, f7Mul := eq7(0), eq7(0x20), eq7(1)

	// register-register family, split on f3 then funct7
	r0 := m.and(d.fam[famOp], eq3(0))
	r1 := m.and(d.fam[famOp], eq3(1))
	r4 := m.and(d.fam[famOp], eq3(4))
	r5 := m.and(d.fam[famOp], eq3(5))
	r6 := m.and(d.fam[famOp], eq3(6))
	r7 := m.and(d.fam[famOp], eq3(7))
	isAddR := m.and(r0, f7Zero)
	d.isSubR = m.and(r0, f7Sub)
	d.isMulR = m.and(r0, f7Mul)
	isSllR := m.and(r1, f7Zero)
	isXorR := m.and(r4, f7Zero)
	isSrlR := m.and(r5, f7Zero)
	d.isDivuR = m.and(r5, f7Mul)
	isOrR := m.and(r6, f7Zero)
	isAndR := m.and(r7, f7Zero)
	m.completeness(d.fam[famOp], isAddR, d.isSubR, d.isMulR, isSllR, isXorR, isSrlR, d.isDivuR, isOrR, isAndR)

	// register-immediate family
	isAddI := m.and(d.fam[famOpImm], eq3(0))
	isXorI := m.and(d.fam[famOpImm], eq3(4))
	isOrI := m.and(d.fam[famOpImm], eq3(6))
	isAndI := m.and(d.fam[famOpImm], eq3(7))
	isSlli := m.and(m.and(d.fam[famOpImm], eq3(1)), f7Zero)
	isSrli := m.and(m.and(d.fam[famOpImm], eq3(5)), f7Zero)
	m.completeness(d.fam[famOpImm], isAddI, isXorI, isOrI, isAndI, isSlli, isSrli)

	d.isBeq = m.and(d.fam[famBranch], eq3(0))
	d.isBne = m.and(d.fam[famBranch], eq3(1))
	d.isBltu = m.and(d.fam[famBranch], eq3(6))
	d.isBgeu = m.and(d.fam[famBranch], eq3(7))
	m.completeness(d.fam[famBranch], d.isBeq, d.isBne, d.isBltu, d.isBgeu)

	d.isLw = m.and(d.fam[famLoad], eq3(2))
	m.completeness(d.fam[famLoad], d.isLw)
	d.isSw = m.and(d.fam[famStore], eq3(2))
	m.completeness(d.fam[famStore], d.isSw)
	d.isJalr = m.and(d.fam[famJalr], eq3(0))
	m.completeness(d.fam[famJalr], d.isJalr)
	d.isCsr = m.and(d.fam[famCsr], eq3(1))
	m.completeness(d.fam[famCsr], d.isCsr)

	d.isAddAny = m.anyOf(isAddR, isAddI)
	d.xorAny = m.anyOf(isXorR, isXorI)
	d.orAny = m.anyOf(isOrR, isOrI)
	d.andAny = m.anyOf(isAndR, isAndI)
	d.isSllAny = m.anyOf(isSllR, isSlli)
	d.isSrlAny = m.anyOf(isSrlR, isSrli)
	d.shiftImm = m.anyOf(isSlli, isSrli)
	d.shiftAny = m.anyOf(d.isSllAny, d.isSrlAny)
	d.mulPath = m.anyOf(d.isMulR, d.isSllAny)
	d.divPath = m.anyOf(d.isDivuR, d.isSrlAny)
	d.aluAddSub = m.anyOf(d.isAddAny, d.isSubR)
	d.bitwiseAny = m.anyOf(d.xorAny, d.orAny, d.andAny)
	d.memAny = m.anyOf(d.isLw, d.isSw)
	d.linkWrite = m.anyOf(d.fam[famJal], d.isJalr)

	d.usesRs1 = m.anyOf(d.fam[famOp], d.fam[famOpImm], d.fam[famLoad], d.fam[famStore],
		d.fam[famBranch], d.fam[famJalr], d.fam[famCsr])
	d.usesRs2 = m.anyOf(d.fam[famOp], d.fam[famBranch], d.fam[famStore])
	d.writesRd = m.anyOf(d.fam[famOp], d.fam[famOpImm], d.fam[famJal], d.fam[famJalr],
		d.fam[famLui], d.fam[famAuipc], d.fam[famLoad], d.fam[famCsr])
}

// completeness pins the family flag to the sum of its sub-opcode flags: a
// family row whose f3/funct7 matches no supported instruction cannot
// satisfy the circuit.
func (m *Machine[F]) completeness(fam cs.Boolean, subs ...cs.Boolean) {
	acc := cs.EmptyConstraint[F]()
	for _, s := range subs {
		acc = acc.AddTerm(cs.BooleanTerm[F](s))
	}
	m.b.AddConstraint(acc.SubTerm(cs.BooleanTerm[F](fam)))
}

// rs1Index and rs2Index are the register indices as linear expressions over
// the decoded fields.
func (m *Machine[F]) rs1Index() cs.Constraint[F] {
	return cs.NewConstraint(
		cs.BooleanTerm[F](m.dec.bit15),
		cs.ScaledVariableTerm(field.TwoPowN[F](1), m.dec.rs1Hi4),
	)
}

func (m *Machine[F]) rs2Index() cs.Constraint[F] {
	return cs.ConstraintFromVariable[F](m.dec.rs2f)
}
