package cs

import (
	"fmt"

	"github.com/consensys/gnark-air/field"
)

// Local timestamps order the memory touches within one cycle. Every access
// in a row carries one of these slots; the global timestamp of an access is
// cycle·NumLocalTimestamps + slot.
const (
	TimestampRs1        = 0
	TimestampRs2        = 1
	TimestampRd         = 2
	TimestampDelegation = 3

	NumLocalTimestamps = 4
)

// ShuffleRamAccess is a single register or RAM touch, the shape shared by
// ordinary opcodes and delegation co-processors: address limbs, a read
// value, and for writes the new value. All accesses across a proving chunk
// feed one shuffle argument; the record is created once by the opcode or
// delegation logic that needs it and never mutated afterwards.
type ShuffleRamAccess[F field.Element[F]] struct {
	// Address holds the low/high 16-bit halves of the byte address. Register
	// accesses live in a dedicated sub-space: low = register index, high = 0.
	Address    [2]Term[F]
	IsRegister bool
	IsWrite    bool
	// LocalTimestamp is one of the Timestamp* slots.
	LocalTimestamp int
	// ReadValue observes the value before the access; for writes this is the
	// overwritten value, which the shuffle argument still needs.
	ReadValue [2]Variable
	// WriteValue is set for writes only.
	WriteValue [2]Variable
	// Exec masks the access on padding rows: with Exec = 0 every column of
	// the record must evaluate to zero.
	Exec Boolean
}

// IndirectAccess is a RAM access whose address derives from a base register
// value plus a constant offset, with an explicit carry between the 16-bit
// halves. Delegation co-processors use it to address their ABI pages.
type IndirectAccess[F field.Element[F]] struct {
	Access  ShuffleRamAccess[F]
	Base    [2]Variable
	Offset  uint32
	Carry   Boolean
	AddrLow Variable
	AddrHi  Variable
}

// DelegationRequest is the per-cycle record of a co-processor call: the
// delegation type and the ABI memory page, both zero unless Exec is set.
type DelegationRequest[F field.Element[F]] struct {
	Exec          Boolean
	Type          Term[F]
	MemOffsetHigh Term[F]
}

// LazyInitSlot is the per-row bookkeeping of the memory argument: one
// lazy-initialization entry (the value the first read of Address observes)
// and the matching teardown entry (the final value and write timestamp the
// next chunk must observe). Addresses across enabled rows are strictly
// increasing, enforced by the borrow gadget below; padding rows hold
// pre-padded zero addresses with Enable = 0, which disables the comparison
// without special-casing it.
type LazyInitSlot struct {
	Enable            Boolean
	Address           [2]Variable
	PrevAddress       [2]Variable
	InitValue         [2]Variable
	TeardownValue     [2]Variable
	TeardownTimestamp [2]Variable

	// borrow gadget internals: diffLow = low − prevLow − 1 + 2¹⁶·borrow and
	// diffHigh = high − prevHigh − borrow, both range-checked, which pins
	// (high, low) strictly above (prevHigh, prevLow) lexicographically.
	Borrow   Boolean
	DiffLow  Variable
	DiffHigh Variable
}

// AddShuffleRamAccess validates and records an access. Address terms must be
// linear; writes must carry a write value.
func (b *Builder[F]) AddShuffleRamAccess(a ShuffleRamAccess[F]) {
	b.mutable()
	if a.LocalTimestamp < 0 || a.LocalTimestamp >= NumLocalTimestamps {
		panic(fmt.Sprintf("cs: local timestamp %d out of range", a.LocalTimestamp))
	}
	for _, t := range a.Address {
		if t.Degree() > 1 {
			panic(fmt.Sprintf("cs: access address %s is not linear", t))
		}
		b.markReferenced(t.Variables()...)
	}
	for _, v := range a.ReadValue {
		if v.IsPlaceholder() {
			panic("cs: access without read value variables")
		}
	}
	if a.IsWrite {
		for _, v := range a.WriteValue {
			if v.IsPlaceholder() {
				panic("cs: write access without write value variables")
			}
		}
		b.markReferenced(a.WriteValue[0], a.WriteValue[1])
	} else {
		// reads carry no write columns; the placeholder keeps the record
		// canonical so equal circuits produce equal artifacts
		a.WriteValue = [2]Variable{placeholderVariable, placeholderVariable}
	}
	b.markReferenced(a.ReadValue[0], a.ReadValue[1])
	if !a.Exec.IsConstant() {
		b.markReferenced(a.Exec.Variable())
	}
	b.ramAccesses = append(b.ramAccesses, a)
}

// RamAccesses returns the recorded access records in registration order.
func (b *Builder[F]) RamAccesses() []ShuffleRamAccess[F] { return b.ramAccesses }

// AddRegisterAccess allocates the value limbs for a register touch and
// records the access. The caller binds the limb values; both limbs carry
// 16-bit range checks.
func (b *Builder[F]) AddRegisterAccess(reg uint32, localTs int, isWrite bool, exec Boolean) ShuffleRamAccess[F] {
	if reg >= 32 {
		panic(fmt.Sprintf("cs: register index %d out of range", reg))
	}
	a := ShuffleRamAccess[F]{
		Address:        [2]Term[F]{UintTerm[F](uint64(reg)), UintTerm[F](0)},
		IsRegister:     true,
		IsWrite:        isWrite,
		LocalTimestamp: localTs,
		ReadValue:      b.addValueLimbs(),
		WriteValue:     [2]Variable{placeholderVariable, placeholderVariable},
		Exec:           exec,
	}
	if isWrite {
		a.WriteValue = b.addValueLimbs()
	}
	b.AddShuffleRamAccess(a)
	return a
}

// AddRamAccess records a RAM touch at an address the caller already
// materialized (for loads and stores, the rs1+imm adder's output limbs).
func (b *Builder[F]) AddRamAccess(address [2]Term[F], localTs int, isWrite bool, exec Boolean) ShuffleRamAccess[F] {
	a := ShuffleRamAccess[F]{
		Address:        address,
		IsWrite:        isWrite,
		LocalTimestamp: localTs,
		ReadValue:      b.addValueLimbs(),
		WriteValue:     [2]Variable{placeholderVariable, placeholderVariable},
		Exec:           exec,
	}
	if isWrite {
		a.WriteValue = b.addValueLimbs()
	}
	b.AddShuffleRamAccess(a)
	return a
}

// AddIndirectAccess derives address = base + offset with carry tracking and
// records the access. The offset must be 4-byte aligned and below 2¹⁶; the
// derived limbs are masked by exec so padding rows keep zero address
// columns. A base that overflows the 32-bit address space makes the
// range-checked high limb unsatisfiable.
func (b *Builder[F]) AddIndirectAccess(base [2]Variable, offset uint32, localTs int, isWrite bool, exec Boolean) IndirectAccess[F] {
	if offset%4 != 0 {
		panic(fmt.Sprintf("cs: indirect access offset %d is not 4-byte aligned", offset))
	}
	if offset >= 1<<16 {
		panic(fmt.Sprintf("cs: indirect access offset %d exceeds 16 bits", offset))
	}
	carry := b.AddBooleanVariable()
	addrLow := b.AddVariableWithRangeCheck(16)
	addrHi := b.AddVariableWithRangeCheck(16)

	execC := BooleanConstraint[F](exec)
	baseLowPlusOffset := ConstraintFromVariable[F](base[0]).
		AddTerm(UintTerm[F](uint64(offset)))
	b.AddConstraint(execC.Mul(baseLowPlusOffset).
		SubTerm(VariableTerm[F](addrLow)).
		SubTerm(ScaledVariableTerm(field.TwoPowN[F](16), carry.Variable())))
	b.AddConstraint(execC.Mul(ConstraintFromVariable[F](base[1]).AddTerm(BooleanTerm[F](carry))).
		SubTerm(VariableTerm[F](addrHi)))

	// the base limbs are bound by whoever produced them, possibly after this
	// call returns; deferring keeps the closure behind every user binding
	in := newClosureInputs()
	execSpan := spanOfBoolean[F](exec, in)
	baseLowIdx := in.indexOf(base[0])
	baseHiIdx := in.indexOf(base[1])
	b.Defer(func(b *Builder[F]) error {
		b.SetValues([]Variable{addrLow, carry.Variable(), addrHi}, func(inputs, outputs []F) error {
			if !execSpan.eval(inputs).IsOne() {
				outputs[0] = field.Zero[F]()
				outputs[1] = field.Zero[F]()
				outputs[2] = field.Zero[F]()
				return nil
			}
			low := inputs[baseLowIdx].Uint64() + uint64(offset)
			outputs[0] = field.Uint64[F](low & 0xffff)
			outputs[1] = field.Uint64[F](low >> 16)
			outputs[2] = field.Uint64[F](inputs[baseHiIdx].Uint64() + low>>16)
			return nil
		}, in.vars...)
		return nil
	})

	access := ShuffleRamAccess[F]{
		Address:        [2]Term[F]{VariableTerm[F](addrLow), VariableTerm[F](addrHi)},
		IsWrite:        isWrite,
		LocalTimestamp: localTs,
		ReadValue:      b.addValueLimbs(),
		WriteValue:     [2]Variable{placeholderVariable, placeholderVariable},
		Exec:           exec,
	}
	if isWrite {
		access.WriteValue = b.addValueLimbs()
	}
	b.AddShuffleRamAccess(access)
	return IndirectAccess[F]{
		Access:  access,
		Base:    base,
		Offset:  offset,
		Carry:   carry,
		AddrLow: addrLow,
		AddrHi:  addrHi,
	}
}

// AssertAligned4 enforces that a 16-bit value is a multiple of 4, through
// the quotient decomposition v = 4·q with q range-checked: both v and q
// below 2¹⁶ force q < 2¹⁴.
func (b *Builder[F]) AssertAligned4(v Variable) {
	q := b.AddVariableWithRangeCheck(16)
	b.AddConstraint(ConstraintFromVariable[F](v).
		SubTerm(ScaledVariableTerm(field.Uint64[F](4), q)))
	b.Defer(func(b *Builder[F]) error {
		b.SetValues([]Variable{q}, func(inputs, outputs []F) error {
			outputs[0] = field.Uint64[F](inputs[0].Uint64() / 4)
			return nil
		}, v)
		return nil
	})
}

// AddDelegationRequest records the cycle's co-processor call descriptor.
func (b *Builder[F]) AddDelegationRequest(r DelegationRequest[F]) {
	b.mutable()
	if r.Type.Degree() > 1 || r.MemOffsetHigh.Degree() > 1 {
		panic("cs: delegation request terms must be linear")
	}
	b.markReferenced(r.Type.Variables()...)
	b.markReferenced(r.MemOffsetHigh.Variables()...)
	if !r.Exec.IsConstant() {
		b.markReferenced(r.Exec.Variable())
	}
	b.delegation = append(b.delegation, r)
}

// DelegationRequests returns the recorded requests in registration order.
func (b *Builder[F]) DelegationRequests() []DelegationRequest[F] { return b.delegation }

// AddLazyInitSlot allocates the row's lazy-init/teardown bookkeeping and
// emits the strict-monotonicity borrow gadget over (PrevAddress, Address),
// masked by Enable. Each row template carries exactly one slot; the caller
// binds Enable, the addresses and the init/teardown payload, the gadget
// binds its own borrow and difference columns.
func (b *Builder[F]) AddLazyInitSlot() LazyInitSlot {
	b.mutable()
	if b.lazyInitSlot != nil {
		panic("cs: lazy-init slot already allocated for this row")
	}

	slot := LazyInitSlot{
		Enable:            b.AddBooleanVariable(),
		Address:           b.addValueLimbs(),
		PrevAddress:       b.addValueLimbs(),
		InitValue:         b.addValueLimbs(),
		TeardownValue:     b.addValueLimbs(),
		TeardownTimestamp: b.addValueLimbs(),
		Borrow:            b.AddBooleanVariable(),
		DiffLow:           b.AddVariableWithRangeCheck(16),
		DiffHigh:          b.AddVariableWithRangeCheck(16),
	}

	// PrevAddress mirrors the previous row's Address; the chunk boundary
	// pins the chain ends.
	b.AddLinkage(slot.Address[0], slot.PrevAddress[0])
	b.AddLinkage(slot.Address[1], slot.PrevAddress[1])

	// the payload columns feed the shuffle argument directly
	b.markReferenced(slot.InitValue[0], slot.InitValue[1])
	b.markReferenced(slot.TeardownValue[0], slot.TeardownValue[1])
	b.markReferenced(slot.TeardownTimestamp[0], slot.TeardownTimestamp[1])

	enable := BooleanConstraint[F](slot.Enable)
	twoPow16 := field.TwoPowN[F](16)

	// Enable·(low − prevLow − 1 + 2¹⁶·borrow) = diffLow
	lowDelta := ConstraintFromVariable[F](slot.Address[0]).
		SubTerm(VariableTerm[F](slot.PrevAddress[0])).
		SubTerm(ConstantTerm(field.One[F]())).
		AddTerm(ScaledVariableTerm(twoPow16, slot.Borrow.Variable()))
	b.AddConstraint(enable.Mul(lowDelta).SubTerm(VariableTerm[F](slot.DiffLow)))

	// Enable·(high − prevHigh − borrow) = diffHigh
	highDelta := ConstraintFromVariable[F](slot.Address[1]).
		SubTerm(VariableTerm[F](slot.PrevAddress[1])).
		SubTerm(BooleanTerm[F](slot.Borrow))
	b.AddConstraint(enable.Mul(highDelta).SubTerm(VariableTerm[F](slot.DiffHigh)))

	// the slot's own addresses are caller-bound after this returns
	in := newClosureInputs()
	enableIdx := in.indexOf(slot.Enable.Variable())
	lowIdx := in.indexOf(slot.Address[0])
	highIdx := in.indexOf(slot.Address[1])
	prevLowIdx := in.indexOf(slot.PrevAddress[0])
	prevHighIdx := in.indexOf(slot.PrevAddress[1])
	b.Defer(func(b *Builder[F]) error {
		b.SetValues([]Variable{slot.Borrow.Variable(), slot.DiffLow, slot.DiffHigh}, func(inputs, outputs []F) error {
			if !inputs[enableIdx].IsOne() {
				outputs[0] = field.Zero[F]()
				outputs[1] = field.Zero[F]()
				outputs[2] = field.Zero[F]()
				return nil
			}
			borrow := field.Zero[F]()
			if inputs[lowIdx].Uint64() <= inputs[prevLowIdx].Uint64() {
				borrow = field.One[F]()
			}
			// diffs are computed in the field so the constraints always hold;
			// a non-increasing address pair surfaces as a failed range check
			outputs[0] = borrow
			outputs[1] = inputs[lowIdx].Sub(inputs[prevLowIdx]).Sub(field.One[F]()).
				Add(borrow.Mul(twoPow16))
			outputs[2] = inputs[highIdx].Sub(inputs[prevHighIdx]).Sub(borrow)
			return nil
		}, in.vars...)
		return nil
	})

	b.lazyInitSlot = &slot
	return slot
}

// LazyInit returns the row's lazy-init slot, or nil if none was allocated.
func (b *Builder[F]) LazyInit() *LazyInitSlot { return b.lazyInitSlot }

// addValueLimbs allocates a 32-bit value as two range-checked 16-bit limbs.
func (b *Builder[F]) addValueLimbs() [2]Variable {
	return [2]Variable{
		b.AddVariableWithRangeCheck(16),
		b.AddVariableWithRangeCheck(16),
	}
}
