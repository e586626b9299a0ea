// Package tracelog configures the structured execution trace the timing
// core emits as it retires instructions and recovers from squashes —
// one zerolog event per retire/squash, fields keyed by cycle, checkpoint
// id, and PC rather than a formatted string, so a trace can be filtered
// or aggregated instead of just read top to bottom.
package tracelog

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// New creates a Logger writing to w at the given level. A nil w defaults
// to os.Stderr.
func New(w io.Writer, level zerolog.Level) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// Discard is a Logger that drops every event, the default for a core
// constructed without an explicit trace sink (the common case in tests).
var Discard = zerolog.Nop()

// Retire logs one committed instruction.
func Retire(log *zerolog.Logger, cycle uint64, checkpointID int, pc uint64, isBranch bool) {
	log.Debug().
		Uint64("cycle", cycle).
		Int("checkpoint", checkpointID).
		Hex("pc", uint64ToBytes(pc)).
		Bool("branch", isBranch).
		Msg("retire")
}

// Squash logs a recovery, full or selective.
func Squash(log *zerolog.Logger, cycle uint64, jumpPC uint64, selective bool, mask uint64) {
	log.Warn().
		Uint64("cycle", cycle).
		Hex("jump_pc", uint64ToBytes(jumpPC)).
		Bool("selective", selective).
		Uint64("squash_mask", mask).
		Msg("squash")
}

func uint64ToBytes(v uint64) []byte {
	b := make([]byte, 8)
	for i := range b {
		b[7-i] = byte(v)
		v >>= 8
	}
	return b
}
