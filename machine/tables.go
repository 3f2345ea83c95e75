package machine

import (
	"github.com/consensys/gnark-air/cs"
)

// Machine-specific lookup tables, registered next to the builtin range and
// byte-op tables. Ids continue the cs.TableType sequence.
const (
	// TableOpcodeDecode holds (opcode, familyIndex, typeIndex) for every
	// supported 7-bit opcode. Membership is what makes an unsupported
	// instruction unsatisfiable rather than an error: the decoder closure
	// outputs no matching family and the lookup has no row to land on.
	TableOpcodeDecode cs.TableType = iota + 6
	// TablePow2 holds (s, lo, hi) with lo + 2¹⁶·hi = 2^s for s < 32. Shifts
	// select a power of two here and reuse the multiply/divide limb
	// machinery.
	TablePow2
)

// instruction families, in decode-table order
const (
	famOp      = iota // register-register ALU, opcode 0x33
	famOpImm          // register-immediate ALU, opcode 0x13
	famLoad           // 0x03
	famStore          // 0x23
	famBranch         // 0x63
	famJal            // 0x6f
	famJalr           // 0x67
	famLui            // 0x37
	famAuipc          // 0x17
	famCsr            // 0x73, the delegation entry point

	numFamilies
)

// instruction types, in decode-table order
const (
	typeR = iota
	typeI
	typeS
	typeB
	typeU
	typeJ

	numTypes
)

// opcodeRow fixes family and immediate type per opcode.
var opcodeRows = map[uint64][2]uint64{
	0x33: {famOp, typeR},
	0x13: {famOpImm, typeI},
	0x03: {famLoad, typeI},
	0x23: {famStore, typeS},
	0x63: {famBranch, typeB},
	0x6f: {famJal, typeJ},
	0x67: {famJalr, typeI},
	0x37: {famLui, typeU},
	0x17: {famAuipc, typeU},
	0x73: {famCsr, typeI},
}

func init() {
	cs.RegisterTable(TableOpcodeDecode, cs.TableDef{
		Name:  "opcode-decode",
		Arity: 3,
		Size:  uint64(len(opcodeRows)),
		Contains: func(tuple [cs.LookupTupleWidth]uint64) bool {
			row, ok := opcodeRows[tuple[0]]
			return ok && row == [2]uint64{tuple[1], tuple[2]}
		},
	})
	cs.RegisterTable(TablePow2, cs.TableDef{
		Name:  "pow2",
		Arity: 3,
		Size:  32,
		Contains: func(tuple [cs.LookupTupleWidth]uint64) bool {
			s := tuple[0]
			if s >= 32 {
				return false
			}
			p := uint64(1) << s
			return tuple[1] == p&0xffff && tuple[2] == p>>16
		},
	})
}
