// Package lanes implements the execution lanes: parallel rr->ex[0..depth-1]->wb
// pipeline chains that instructions flow through between issue and writeback.
// Each lane has a fixed execute depth; a functional-unit-type steering mask
// determines which lanes are eligible to host a given instruction.
package lanes

import (
	"github.com/sarchlab/cprsim/insts"
	"github.com/sarchlab/cprsim/timing/latency"
)

// FUType classifies a decoded instruction by which functional-unit steering
// mask and latency apply to it. The seven types and their ordering mirror
// the reference model's FU_LANE_MATRIX/FU_LAT tables.
type FUType int

const (
	FUBranch FUType = iota
	FULoadStore
	FUIntSimple
	FUIntComplex
	FUFPLoadStore
	FUFPArith
	FUMoveToFP
	numFUTypes
)

func (t FUType) String() string {
	switch t {
	case FUBranch:
		return "branch"
	case FULoadStore:
		return "load/store"
	case FUIntSimple:
		return "int-simple"
	case FUIntComplex:
		return "int-complex"
	case FUFPLoadStore:
		return "fp-load/store"
	case FUFPArith:
		return "fp-arith"
	case FUMoveToFP:
		return "move-to-fp"
	default:
		return "unknown"
	}
}

// Classify maps a decoded instruction to its functional-unit class, grounded
// on the same Op groupings latency.Table already uses to price instructions.
func Classify(inst *insts.Instruction, lat *latency.Table) FUType {
	if inst == nil {
		return FUIntSimple
	}

	switch {
	case lat.IsBranchOp(inst):
		return FUBranch
	case inst.Op == insts.OpMADD || inst.Op == insts.OpMSUB:
		return FUIntComplex
	case inst.Op == insts.OpVMOV:
		return FUMoveToFP
	case lat.IsSIMDOp(inst) && lat.IsMemoryOp(inst):
		return FUFPLoadStore
	case lat.IsSIMDOp(inst):
		return FUFPArith
	case lat.IsMemoryOp(inst):
		return FULoadStore
	default:
		return FUIntSimple
	}
}

// Config holds the per-FU-type steering mask (eligible lane bit-vector) and
// latency (execute-stage depth), set through the "lanes" block of the JSON
// configuration; the CLI has no --lane=/--lat= flags.
type Config struct {
	Mask    [numFUTypes]uint32
	Latency [numFUTypes]uint64
}

// DefaultConfig returns the reference model's default 16-lane steering
// matrix: fast 1-cycle lanes carry branch/int-simple/move-to-fp, slow
// 3-cycle lanes split between plain load/store and the complex/FP classes.
func DefaultConfig() *Config {
	return &Config{
		Mask: [numFUTypes]uint32{
			FUBranch:      0x5A5A,
			FULoadStore:   0x2121,
			FUIntSimple:   0x5A5A,
			FUIntComplex:  0x8484,
			FUFPLoadStore: 0x2121,
			FUFPArith:     0x8484,
			FUMoveToFP:    0x5A5A,
		},
		Latency: [numFUTypes]uint64{
			FUBranch:      1,
			FULoadStore:   3,
			FUIntSimple:   1,
			FUIntComplex:  3,
			FUFPLoadStore: 3,
			FUFPArith:     3,
			FUMoveToFP:    1,
		},
	}
}

// stage is one pipeline register within a lane: empty, or carrying one
// in-flight instruction's payload index and checkpoint id.
type stage struct {
	Valid        bool
	PayloadIdx   int
	CheckpointID int
}

// Lane is one rr->ex[0..depth-1]->wb chain. Depth is fixed for the lane's
// lifetime; which FU types may dispatch into it is determined externally by
// Lanes.Dispatch consulting the steering Config.
type Lane struct {
	Depth uint64
	RR    stage
	EX    []stage
	WB    stage
}

func newLane(depth uint64) *Lane {
	if depth == 0 {
		depth = 1
	}
	return &Lane{Depth: depth, EX: make([]stage, depth)}
}

// Lanes owns every execution lane and the steering configuration that routes
// instructions into them. Number of lanes equals issue_width.
type Lanes struct {
	cfg      *Config
	lanes    []*Lane
	rrBusy   []bool
	nextLane [numFUTypes]int // round-robin cursor per FU type for issue-time steering
}

// New creates a Lanes with the given width, giving each lane the fixed
// execute depth of the first FU type (in FUType order) whose steering
// mask includes that lane. A lane no mask includes takes a depth
// round-robin from the depth classes present in cfg.
func New(width int, cfg *Config) *Lanes {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	depths := distinctDepths(cfg)
	lanes := make([]*Lane, width)
	for i := 0; i < width; i++ {
		depth := depths[i%len(depths)]
		for fu := FUType(0); fu < numFUTypes; fu++ {
			if cfg.Mask[fu]&(1<<uint(i)) != 0 {
				depth = cfg.Latency[fu]
				break
			}
		}
		lanes[i] = newLane(depth)
	}

	return &Lanes{cfg: cfg, lanes: lanes, rrBusy: make([]bool, width)}
}

func distinctDepths(cfg *Config) []uint64 {
	seen := map[uint64]bool{}
	var out []uint64
	for _, lat := range cfg.Latency {
		if !seen[lat] {
			seen[lat] = true
			out = append(out, lat)
		}
	}
	if len(out) == 0 {
		out = []uint64{1}
	}
	return out
}

// Width returns the number of lanes.
func (l *Lanes) Width() int { return len(l.lanes) }

// Lane returns the i-th lane, for stage-inspection by the caller (e.g.
// register-read to decide 1-cycle-producer wakeup).
func (l *Lanes) Lane(i int) *Lane { return l.lanes[i] }

// eligible reports whether lane i may host fu, per the steering mask, and
// whether its depth matches the FU type's configured latency.
func (l *Lanes) eligible(i int, fu FUType) bool {
	if l.cfg.Mask[fu]&(1<<uint(i)) == 0 {
		return false
	}
	return l.lanes[i].Depth == l.cfg.Latency[fu]
}

// Dispatch steers a freshly-issued instruction into an eligible, currently
// empty lane's RR stage. preferredLane >= 0 fixes the lane (dispatch-time
// pre-steering, the `-a` option); otherwise eligible lanes are tried
// round-robin. Returns the chosen lane index, or -1 if none is free.
func (l *Lanes) Dispatch(fu FUType, payloadIdx, checkpointID, preferredLane int) int {
	if preferredLane >= 0 {
		if l.eligible(preferredLane, fu) && !l.rrBusy[preferredLane] {
			l.install(preferredLane, payloadIdx, checkpointID)
			return preferredLane
		}
		return -1
	}

	n := len(l.lanes)
	start := l.nextLane[fu]
	for step := 0; step < n; step++ {
		i := (start + step) % n
		if l.eligible(i, fu) && !l.rrBusy[i] {
			l.install(i, payloadIdx, checkpointID)
			l.nextLane[fu] = (i + 1) % n
			return i
		}
	}
	return -1
}

func (l *Lanes) install(i, payloadIdx, checkpointID int) {
	l.lanes[i].RR = stage{Valid: true, PayloadIdx: payloadIdx, CheckpointID: checkpointID}
	l.rrBusy[i] = true
}

// HasFreeSlot reports whether any lane eligible for fu currently has an
// empty RR stage, for the issue queue's select-width accounting.
func (l *Lanes) HasFreeSlot(fu FUType) bool {
	for i := range l.lanes {
		if l.eligible(i, fu) && !l.rrBusy[i] {
			return true
		}
	}
	return false
}

// Completion reports one lane's writeback-stage occupant for the cycle.
type Completion struct {
	PayloadIdx   int
	CheckpointID int
	Lane         int
}

// Writeback collects every lane whose wb stage is occupied and clears it.
// Call before Advance, so that reverse-pipeline-order processing (writeback
// runs before register-read/execute in the same cycle) observes the value
// produced by the previous cycle's Advance.
func (l *Lanes) Writeback() []Completion {
	var out []Completion
	for i, lane := range l.lanes {
		if lane.WB.Valid {
			out = append(out, Completion{PayloadIdx: lane.WB.PayloadIdx, CheckpointID: lane.WB.CheckpointID, Lane: i})
		}
		lane.WB = stage{}
	}
	return out
}

// Advance shifts every lane one stage: rr->ex[0], ex[k]->ex[k+1], the last
// ex slot -> wb. Call after Writeback has drained the prior wb occupant.
func (l *Lanes) Advance() {
	for i, lane := range l.lanes {
		lane.WB = lane.EX[len(lane.EX)-1]
		for k := len(lane.EX) - 1; k > 0; k-- {
			lane.EX[k] = lane.EX[k-1]
		}
		lane.EX[0] = lane.RR
		lane.RR = stage{}
		l.rrBusy[i] = false
	}
}

// Flush invalidates every pipeline register in every lane whose payload
// index fails keep, for a full or selective squash.
func (l *Lanes) Flush(keep func(payloadIdx int) bool) {
	for i, lane := range l.lanes {
		if lane.RR.Valid && !keep(lane.RR.PayloadIdx) {
			lane.RR = stage{}
			l.rrBusy[i] = false
		}
		for k := range lane.EX {
			if lane.EX[k].Valid && !keep(lane.EX[k].PayloadIdx) {
				lane.EX[k] = stage{}
			}
		}
		if lane.WB.Valid && !keep(lane.WB.PayloadIdx) {
			lane.WB = stage{}
		}
	}
}
