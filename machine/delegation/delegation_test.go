package delegation_test

import (
	"bytes"
	"math/bits"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/consensys/gnark-air/air"
	"github.com/consensys/gnark-air/field/babybear"
	"github.com/consensys/gnark-air/machine/delegation"
)

type fr = babybear.Element

const blakeBase = uint32(0x8000)

func blakeState(a, b, c, d, m0, m1 uint32) *delegation.State {
	s := &delegation.State{
		Exec: true,
		Mem: map[uint32]uint32{
			blakeBase:      a,
			blakeBase + 4:  b,
			blakeBase + 8:  c,
			blakeBase + 12: d,
			blakeBase + 16: m0,
			blakeBase + 20: m1,
		},
	}
	s.Regs[10] = blakeBase
	return s
}

// gRef is the blake2s mixing function, straight off the pseudocode.
func gRef(a, b, c, d, m0, m1 uint32) (uint32, uint32, uint32, uint32) {
	a = a + b + m0
	d = bits.RotateLeft32(d^a, -16)
	c = c + d
	b = bits.RotateLeft32(b^c, -12)
	a = a + b + m1
	d = bits.RotateLeft32(d^a, -8)
	c = c + d
	b = bits.RotateLeft32(b^c, -7)
	return a, b, c, d
}

// writtenValue picks the write event at the given RAM address.
func writtenValue(t *testing.T, events []air.AccessEvent, addr uint32) uint32 {
	t.Helper()
	for _, ev := range events {
		if ev.IsWrite && !ev.IsRegister && ev.Address == uint64(addr) {
			return uint32(ev.WriteValue)
		}
	}
	t.Fatalf("no write event at address %#x", addr)
	return 0
}

func TestBlake2Round(t *testing.T) {
	cases := []struct {
		name               string
		a, b, c, d, m0, m1 uint32
	}{
		{"zero state", 0, 0, 0, 0, 0, 0},
		{"iv quarter", 0x6a09e667, 0xbb67ae85, 0x3c6ef372, 0xa54ff53a, 0x03020100, 0x07060504},
		{"carry heavy", 0xffffffff, 0xffffffff, 0xffffffff, 0xffffffff, 0xffffffff, 0xffffffff},
		{"top bit wrap", 0x80000001, 0x40000000, 0x80000000, 0x7fffffff, 0x00000001, 0x80000000},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := blakeState(tc.a, tc.b, tc.c, tc.d, tc.m0, tc.m1)
			circ, err := delegation.CompileBlake2Round[fr](in)
			require.NoError(t, err)

			row, err := circ.Builder().Solve()
			require.NoError(t, err)
			require.NoError(t, circ.Description.Artifact.CheckSatisfied(row))

			wantA, wantB, wantC, wantD := gRef(tc.a, tc.b, tc.c, tc.d, tc.m0, tc.m1)
			events := circ.Description.Artifact.AccessEvents(0, row)
			require.Equal(t, wantA, writtenValue(t, events, blakeBase))
			require.Equal(t, wantB, writtenValue(t, events, blakeBase+4))
			require.Equal(t, wantC, writtenValue(t, events, blakeBase+8))
			require.Equal(t, wantD, writtenValue(t, events, blakeBase+12))
		})
	}
}

func TestBlake2RoundPadding(t *testing.T) {
	in := &delegation.State{Mem: map[uint32]uint32{}}
	circ, err := delegation.CompileBlake2Round[fr](in)
	require.NoError(t, err)

	row, err := circ.Builder().Solve()
	require.NoError(t, err)
	require.NoError(t, circ.Description.Artifact.CheckSatisfied(row))
	require.Empty(t, circ.Description.Artifact.AccessEvents(0, row))
}

const bigintBase = uint32(0x10000)

func bigintState(a, b [8]uint32, sub bool) *delegation.State {
	s := &delegation.State{Exec: true, Mem: map[uint32]uint32{}}
	s.Regs[10] = bigintBase
	if sub {
		s.Regs[11] = 1
	}
	for w := 0; w < 8; w++ {
		s.Mem[bigintBase+uint32(4*w)] = a[w]
		s.Mem[bigintBase+32+uint32(4*w)] = b[w]
		s.Mem[bigintBase+64+uint32(4*w)] = 0xdeadbeef // overwritten
	}
	return s
}

// bigRef computes a ± b over eight little-endian words, mod 2^256.
func bigRef(a, b [8]uint32, sub bool) [8]uint32 {
	var out [8]uint32
	var carry uint64
	if sub {
		carry = 1
	}
	for w := 0; w < 8; w++ {
		o := uint64(b[w])
		if sub {
			o = ^uint64(b[w]) & 0xffffffff
		}
		t := uint64(a[w]) + o + carry
		out[w] = uint32(t)
		carry = t >> 32
	}
	return out
}

func TestBigIntOps(t *testing.T) {
	a := [8]uint32{0xffffffff, 0x00000001, 0x80000000, 0x7fffffff, 0, 0xffffffff, 0x12345678, 0x9abcdef0}
	b := [8]uint32{0x00000001, 0xffffffff, 0x80000000, 0x80000001, 1, 0x00000000, 0x87654321, 0x0fedcba9}

	for _, sub := range []bool{false, true} {
		name := "add"
		if sub {
			name = "sub"
		}
		t.Run(name, func(t *testing.T) {
			in := bigintState(a, b, sub)
			circ, err := delegation.CompileBigIntOps[fr](in)
			require.NoError(t, err)

			row, err := circ.Builder().Solve()
			require.NoError(t, err)
			require.NoError(t, circ.Description.Artifact.CheckSatisfied(row))

			want := bigRef(a, b, sub)
			events := circ.Description.Artifact.AccessEvents(0, row)
			for w := 0; w < 8; w++ {
				require.Equal(t, want[w], writtenValue(t, events, bigintBase+64+uint32(4*w)), "word %d", w)
			}
		})
	}
}

func TestBigIntOpsPadding(t *testing.T) {
	circ, err := delegation.CompileBigIntOps[fr](&delegation.State{Mem: map[uint32]uint32{}})
	require.NoError(t, err)

	row, err := circ.Builder().Solve()
	require.NoError(t, err)
	require.NoError(t, circ.Description.Artifact.CheckSatisfied(row))
	require.Empty(t, circ.Description.Artifact.AccessEvents(0, row))
}

func TestDescriptionRoundTrip(t *testing.T) {
	circ, err := delegation.CompileBlake2Round[fr](blakeState(1, 2, 3, 4, 5, 6))
	require.NoError(t, err)
	require.Equal(t, delegation.TypeBlake2Round, circ.Description.DelegationType)

	var buf bytes.Buffer
	_, err = circ.Description.WriteTo(&buf)
	require.NoError(t, err)

	var got air.DelegationProcessorDescription[fr]
	_, err = got.ReadFrom(&buf)
	require.NoError(t, err)
	require.Equal(t, circ.Description.DelegationType, got.DelegationType)
	require.Equal(t, circ.Description.TraceLen, got.TraceLen)

	wantFp, err := circ.Description.Artifact.Fingerprint()
	require.NoError(t, err)
	gotFp, err := got.Artifact.Fingerprint()
	require.NoError(t, err)
	require.Equal(t, wantFp, gotFp)
}
