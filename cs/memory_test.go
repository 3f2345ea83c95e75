package cs

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func bindLimbs(b *Builder[fr], limbs [2]Variable, low, high uint64) {
	bindConst(b, limbs[0], low)
	bindConst(b, limbs[1], high)
}

func TestRegisterAccess(t *testing.T) {
	assert := require.New(t)
	b := NewBuilder[fr](16)

	exec := b.AddBooleanVariable()
	bindConst(b, exec.Variable(), 1)

	read := b.AddRegisterAccess(5, TimestampRs1, false, exec)
	write := b.AddRegisterAccess(10, TimestampRd, true, exec)
	bindLimbs(b, read.ReadValue, 0x1234, 0x0001)
	bindLimbs(b, write.ReadValue, 0, 0)
	bindLimbs(b, write.WriteValue, 0xbeef, 0xdead)

	accesses := b.RamAccesses()
	assert.Len(accesses, 2)
	assert.True(accesses[0].IsRegister)
	assert.False(accesses[0].IsWrite)
	assert.True(accesses[1].IsWrite)

	a := solveAndCheck(t, b)
	value := func(v Variable) fr { return a.MustGet(v) }
	assert.Equal(uint64(5), accesses[0].Address[0].AsConstraint().Evaluate(value).Uint64())
	assert.True(accesses[0].Address[1].AsConstraint().Evaluate(value).IsZero())
	assert.Equal(uint64(0xbeef), a.MustGet(accesses[1].WriteValue[0]).Uint64())
}

func TestRegisterAccessValidation(t *testing.T) {
	assert := require.New(t)
	b := NewBuilder[fr](16)
	exec := ConstantBool(true)

	assert.Panics(func() { b.AddRegisterAccess(32, TimestampRs1, false, exec) })
	assert.Panics(func() { b.AddRegisterAccess(0, NumLocalTimestamps, false, exec) })
	assert.Panics(func() { b.AddRegisterAccess(0, -1, false, exec) })

	// a write record without write value limbs is malformed
	assert.Panics(func() {
		b.AddShuffleRamAccess(ShuffleRamAccess[fr]{
			Address:   [2]Term[fr]{UintTerm[fr](0), UintTerm[fr](0)},
			IsWrite:   true,
			ReadValue: b.addValueLimbs(),
			Exec:      exec,
		})
	})
	// and so is one without read value limbs
	assert.Panics(func() {
		b.AddShuffleRamAccess(ShuffleRamAccess[fr]{
			Address: [2]Term[fr]{UintTerm[fr](0), UintTerm[fr](0)},
			Exec:    exec,
		})
	})
	// address terms must be linear
	x := b.AddVariable()
	quad := VariableTerm[fr](x).Mul(VariableTerm[fr](x))
	assert.Panics(func() {
		b.AddShuffleRamAccess(ShuffleRamAccess[fr]{
			Address:   [2]Term[fr]{quad, UintTerm[fr](0)},
			ReadValue: b.addValueLimbs(),
			Exec:      exec,
		})
	})
}

func TestIndirectAccess(t *testing.T) {
	cases := []struct {
		name      string
		baseLow   uint64
		baseHigh  uint64
		offset    uint32
		exec      uint64
		wantLow   uint64
		wantCarry uint64
		wantHigh  uint64
	}{
		{"no carry", 0x8000, 0x0001, 8, 1, 0x8008, 0, 0x0001},
		{"carry", 0xfffc, 0x0001, 8, 1, 0x0004, 1, 0x0002},
		{"masked", 0xfffc, 0x0001, 8, 0, 0, 0, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert := require.New(t)
			b := NewBuilder[fr](32)

			exec := b.AddBooleanVariable()
			bindConst(b, exec.Variable(), tc.exec)

			base := b.addValueLimbs()
			bindLimbs(b, base, tc.baseLow, tc.baseHigh)

			ind := b.AddIndirectAccess(base, tc.offset, TimestampDelegation, false, exec)
			bindLimbs(b, ind.Access.ReadValue, 0, 0)

			a := solveAndCheck(t, b)
			assert.Equal(tc.wantLow, a.MustGet(ind.AddrLow).Uint64())
			assert.Equal(tc.wantCarry, a.MustGet(ind.Carry.Variable()).Uint64())
			assert.Equal(tc.wantHigh, a.MustGet(ind.AddrHi).Uint64())
		})
	}
}

func TestIndirectAccessValidation(t *testing.T) {
	assert := require.New(t)
	b := NewBuilder[fr](16)
	base := b.addValueLimbs()
	exec := ConstantBool(true)

	assert.Panics(func() { b.AddIndirectAccess(base, 3, TimestampDelegation, false, exec) })
	assert.Panics(func() { b.AddIndirectAccess(base, 1<<16, TimestampDelegation, false, exec) })
}

func TestAssertAligned4(t *testing.T) {
	assert := require.New(t)

	b := NewBuilder[fr](8)
	v := b.AddVariableWithRangeCheck(16)
	bindConst(b, v, 8)
	b.AssertAligned4(v)
	solveAndCheck(t, b)

	// a misaligned value violates the quotient constraint
	b2 := NewBuilder[fr](8)
	w := b2.AddVariableWithRangeCheck(16)
	bindConst(b2, w, 6)
	b2.AssertAligned4(w)
	assert.NoError(b2.RunDeferred())
	a, err := b2.Solve()
	assert.NoError(err)
	assert.False(constraintsHold(b2, a))
}

func TestDelegationRequest(t *testing.T) {
	assert := require.New(t)
	b := NewBuilder[fr](16)

	exec := b.AddBooleanVariable()
	page := b.AddVariableWithRangeCheck(16)
	b.AddDelegationRequest(DelegationRequest[fr]{
		Exec:          exec,
		Type:          UintTerm[fr](0x12),
		MemOffsetHigh: VariableTerm[fr](page),
	})

	reqs := b.DelegationRequests()
	assert.Len(reqs, 1)
	assert.Equal(uint64(0x12), reqs[0].Type.Coeff().Uint64())

	x := b.AddVariable()
	quad := VariableTerm[fr](x).Mul(VariableTerm[fr](x))
	assert.Panics(func() {
		b.AddDelegationRequest(DelegationRequest[fr]{Exec: exec, Type: quad, MemOffsetHigh: UintTerm[fr](0)})
	})
}

func bindSlotPayload(b *Builder[fr], slot LazyInitSlot) {
	for i := 0; i < 2; i++ {
		bindConst(b, slot.InitValue[i], 0)
		bindConst(b, slot.TeardownValue[i], 0)
		bindConst(b, slot.TeardownTimestamp[i], 0)
	}
}

func TestLazyInitSlotMonotonicity(t *testing.T) {
	cases := []struct {
		name       string
		prev, addr [2]uint64 // {low, high}
		ok         bool
	}{
		{"low increase", [2]uint64{5, 0}, [2]uint64{6, 0}, true},
		{"high increase with low wrap", [2]uint64{0xffff, 0}, [2]uint64{0, 1}, true},
		{"wide gap", [2]uint64{4, 1}, [2]uint64{0xfff0, 7}, true},
		{"equal addresses", [2]uint64{6, 0}, [2]uint64{6, 0}, false},
		{"low decrease", [2]uint64{7, 3}, [2]uint64{6, 3}, false},
		{"high decrease", [2]uint64{1, 4}, [2]uint64{2, 3}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert := require.New(t)
			b := NewBuilder[fr](64)

			slot := b.AddLazyInitSlot()
			bindConst(b, slot.Enable.Variable(), 1)
			bindConst(b, slot.Address[0], tc.addr[0])
			bindConst(b, slot.Address[1], tc.addr[1])
			bindConst(b, slot.PrevAddress[0], tc.prev[0])
			bindConst(b, slot.PrevAddress[1], tc.prev[1])
			bindSlotPayload(b, slot)

			assert.NoError(b.RunDeferred())
			a, err := b.Solve()
			assert.NoError(err)

			// the closure mirrors the constraints exactly; ordering violations
			// surface as failed range checks on the difference columns
			assert.True(constraintsHold(b, a))
			assert.Equal(tc.ok, invariantsHold(b, a))
		})
	}
}

func TestLazyInitSlotDisabledRow(t *testing.T) {
	assert := require.New(t)
	b := NewBuilder[fr](64)

	// the all-zero padding row: disabled slot, pre-padded zero addresses
	slot := b.AddLazyInitSlot()
	bindConst(b, slot.Enable.Variable(), 0)
	bindLimbs(b, slot.Address, 0, 0)
	bindLimbs(b, slot.PrevAddress, 0, 0)
	bindSlotPayload(b, slot)

	a := solveAndCheck(t, b)
	assert.True(a.MustGet(slot.Borrow.Variable()).IsZero())
	assert.True(a.MustGet(slot.DiffLow).IsZero())
	assert.True(a.MustGet(slot.DiffHigh).IsZero())
}

func TestLazyInitSlotLinkage(t *testing.T) {
	assert := require.New(t)
	b := NewBuilder[fr](64)

	slot := b.AddLazyInitSlot()

	var links []Invariant
	for _, inv := range b.Invariants() {
		if inv.Kind == InvariantLinkage {
			links = append(links, inv)
		}
	}
	assert.Len(links, 2, "address low and high are both chained")
	assert.Equal(slot.Address[0], links[0].Src)
	assert.Equal(slot.PrevAddress[0], links[0].Dst)
	assert.Equal(slot.Address[1], links[1].Src)
	assert.Equal(slot.PrevAddress[1], links[1].Dst)

	assert.Panics(func() { b.AddLazyInitSlot() }, "one slot per row template")
	assert.NotNil(b.LazyInit())
}
