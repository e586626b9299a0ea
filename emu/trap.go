package emu

// TrapKind enumerates the trap taxonomy from the error-handling design:
// fetch traps, execute (load/store) traps, and the privileged/CSR class
// posted at retire.
type TrapKind uint8

const (
	TrapNone TrapKind = iota
	TrapMisalignedFetch
	TrapFetchAccessFault
	TrapMisalignedLoadStore
	TrapAccessFault
	TrapSupervisor
	TrapPrivileged
	TrapFPDisabled
	TrapIllegal
	TrapSyscall
	TrapBreakpoint
	TrapCSRSync
)

func (k TrapKind) String() string {
	switch k {
	case TrapNone:
		return "none"
	case TrapMisalignedFetch:
		return "misaligned-fetch"
	case TrapFetchAccessFault:
		return "fetch-access-fault"
	case TrapMisalignedLoadStore:
		return "misaligned-load-store"
	case TrapAccessFault:
		return "access-fault"
	case TrapSupervisor:
		return "supervisor-call"
	case TrapPrivileged:
		return "privileged-instruction"
	case TrapFPDisabled:
		return "fp-disabled"
	case TrapIllegal:
		return "illegal-instruction"
	case TrapSyscall:
		return "syscall"
	case TrapBreakpoint:
		return "breakpoint"
	case TrapCSRSync:
		return "csr-sync"
	default:
		return "unknown-trap"
	}
}

// Trap latches the first-posted fault for a payload slot. Cause is
// TrapNone until Post succeeds once; subsequent Post calls are no-ops,
// matching the "first-posted wins" rule.
type Trap struct {
	Cause    TrapKind
	BadVAddr uint64
	PC       uint64
}

// Posted reports whether a trap has already been latched.
func (t *Trap) Posted() bool {
	return t.Cause != TrapNone
}

// Post latches cause/badvaddr/pc if no trap has been posted yet. Returns
// true if this call actually posted the trap.
func (t *Trap) Post(cause TrapKind, badVAddr, pc uint64) bool {
	if t.Posted() {
		return false
	}
	t.Cause = cause
	t.BadVAddr = badVAddr
	t.PC = pc
	return true
}

// Translate models the MMU contract the core depends on: for a typed
// load or store of the given width at addr it reports whether the access
// may proceed and, if not, the trap kind; it returns no data. Instruction
// fetches use TranslateFetch. Real
// translation/paging is out of scope (see spec §1); this implementation
// only checks natural alignment, which is the one MMU behavior the core's
// trap taxonomy must observe.
func Translate(addr uint64, size int) (ok bool, kind TrapKind) {
	if uint64(size) > 1 && addr%uint64(size) != 0 {
		return false, TrapMisalignedLoadStore
	}
	return true, TrapNone
}

// TranslateFetch checks instruction-fetch alignment (4-byte fixed width).
func TranslateFetch(pc uint64) (ok bool, kind TrapKind) {
	if pc%4 != 0 {
		return false, TrapMisalignedFetch
	}
	return true, TrapNone
}
