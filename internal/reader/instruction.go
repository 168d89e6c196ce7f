package reader

// Instruction is one 32-bit code word, decoded every way a consumer might
// need it (spec.md §3): as an (op, a, b, c) byte tuple, or as (op, a, bx)
// / (op, a, sbx) with the low half-word read as an unsigned or signed
// 16-bit integer. An instruction flagged by HasAuxiliaryWord is followed
// by one more Instruction slot in Prototype.Code whose Encoded value is
// used directly as a 32-bit payload (a constant-pool index, in every case
// this reader cares about) rather than through its Op/A/B/C fields.
type Instruction struct {
	Encoded uint32
	Op      Op
	A       byte
	B       byte
	C       byte
	Bx      uint16
	SBx     int16
}

func decodeInstruction(word uint32) Instruction {
	lo16 := uint16(word >> 16)
	return Instruction{
		Encoded: word,
		Op:      Op(byte(word)),
		A:       byte(word >> 8),
		B:       byte(word >> 16),
		C:       byte(word >> 24),
		Bx:      lo16,
		SBx:     int16(lo16),
	}
}
