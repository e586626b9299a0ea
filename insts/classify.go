package insts

// LinkReg is the ARM64 procedure-call link register, X30. The BTB's
// call/return ABI convention keys off this register: a direct/indirect
// call writes it as the destination, and a return reads it (as Rn) and
// discards it as a destination.
const LinkReg uint8 = 30

// BranchKind classifies a branch for BTB bookkeeping and the core's
// checkpoint/recovery logic. It mirrors btb_branch_type_e from the
// original microarchitecture simulator this spec is modeled on.
type BranchKind uint8

const (
	BranchNone BranchKind = iota
	BranchCond
	BranchDirect
	BranchCallDirect
	BranchIndirect
	BranchCallIndirect
	BranchReturn
)

// IsBranch reports whether the instruction is any kind of branch.
func (i *Instruction) IsBranch() bool {
	switch i.Op {
	case OpB, OpBL, OpBCond, OpBR, OpBLR, OpRET, OpTBZ, OpTBNZ, OpCBZ, OpCBNZ:
		return true
	default:
		return false
	}
}

// Kind classifies a branch instruction per the BTB's call/return ABI
// convention: a call is any branch whose destination register is the
// link register (X30); a return is BR/BLR-shaped but discards its
// destination (RET never writes a register). TBZ/TBNZ/CBZ/CBNZ carry
// their own register-test condition rather than the flags-based Cond
// field, but behave like BranchCond for prediction and recovery
// purposes: conditionally taken, direct-targeted, no link-register write.
func (i *Instruction) Kind() BranchKind {
	switch i.Op {
	case OpBCond, OpTBZ, OpTBNZ, OpCBZ, OpCBNZ:
		return BranchCond
	case OpB:
		return BranchDirect
	case OpBL:
		return BranchCallDirect
	case OpBR:
		return BranchIndirect
	case OpBLR:
		return BranchCallIndirect
	case OpRET:
		return BranchReturn
	default:
		return BranchNone
	}
}

// IsIndirect reports whether the branch's target is not known until
// execute (BR/BLR/RET) — the BTB cannot supply these targets.
func (k BranchKind) IsIndirect() bool {
	return k == BranchIndirect || k == BranchCallIndirect || k == BranchReturn
}

// IsCall reports whether the branch kind writes the link register.
func (k BranchKind) IsCall() bool {
	return k == BranchCallDirect || k == BranchCallIndirect
}

// IsConditional reports whether the branch kind is a conditional branch.
func (k BranchKind) IsConditional() bool {
	return k == BranchCond
}

// DestReg returns the logical destination register written by a branch,
// and whether the branch has one at all (calls write the link register;
// conditional/unconditional direct/indirect jumps and returns do not).
func (i *Instruction) DestReg() (reg uint8, valid bool) {
	if i.Kind().IsCall() {
		return LinkReg, true
	}
	return 0, false
}

// IsSerializing flags instructions the retire machine must treat like an
// AMO or CSR write: executed at retire, one at a time, behind a checkpoint.
// This ARM64 subset has no atomic-memory-operation or system-register
// opcodes of its own; OpSVC is the one naturally-decoded instruction that
// needs the same checkpoint-trigger and serialized-execution treatment.
func (i *Instruction) IsSerializing() bool {
	return i.Op == OpSVC
}
