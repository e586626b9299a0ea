// Package config bundles the structural knobs a Core is built from —
// pipeline widths, checkpoint/queue sizes, the cache hierarchy, the
// execution-lane steering matrix, and per-opcode latencies — into one
// JSON-serializable document, the way timing/latency.TimingConfig does
// for latencies alone.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/Masterminds/semver/v3"

	"github.com/sarchlab/cprsim/timing/cache"
	"github.com/sarchlab/cprsim/timing/fetch"
	"github.com/sarchlab/cprsim/timing/lanes"
	"github.com/sarchlab/cprsim/timing/latency"
)

// SchemaVersion is the config document version this build understands.
// Load rejects a file whose schema_version isn't satisfied by
// SchemaConstraint, so an older or newer config on disk fails loudly
// instead of silently picking up zero-valued fields it doesn't know
// about.
const SchemaVersion = "1.0.0"

// SchemaConstraint is the semver range of config-file versions this
// build accepts. Widened (e.g. to "^1") once a later 1.x addition is
// known to stay backward compatible.
const SchemaConstraint = "1.0.0"

// Pipeline holds the structural sizing that isn't owned by one of the
// component configs below: queue depths, checkpoint count, and the
// physical-register file size renaming draws from.
type Pipeline struct {
	IssueWidth                int `json:"issue_width"`
	RetireWidth               int `json:"retire_width"`
	PayloadEntries            int `json:"payload_entries"`
	IssueQueueEntries         int `json:"issue_queue_entries"`
	NumPhysicalRegs           int `json:"num_physical_regs"`
	NumCheckpoints            int `json:"num_checkpoints"`
	MaxInstrsBetweenCheckpoints uint64 `json:"max_instrs_between_checkpoints"`
	LQEntries                 int `json:"lq_entries"`
	SQEntries                 int `json:"sq_entries"`
	MDPEntries                int `json:"mdp_entries"`
	MaxInstructions           uint64 `json:"max_instructions"` // 0 = unbounded
}

// Config is the complete document a Core is constructed from.
type Config struct {
	SchemaVersion string                `json:"schema_version"`
	Pipeline      Pipeline              `json:"pipeline"`
	Fetch         fetch.Config          `json:"fetch"`
	Hierarchy     cache.HierarchyConfig `json:"hierarchy"`
	Lanes         *lanes.Config         `json:"lanes"`
	Timing        *latency.TimingConfig `json:"timing"`
}

// Default returns the built-in configuration: single-issue, a 16-entry
// checkpoint ring, and small front-end structures, chosen to keep a
// default run's miss-chain depth (and therefore wall-clock cycle count)
// modest rather than matching a real M2's full-size structures.
func Default() *Config {
	return &Config{
		SchemaVersion: SchemaVersion,
		Pipeline: Pipeline{
			IssueWidth:                  1,
			RetireWidth:                 4,
			PayloadEntries:               64,
			IssueQueueEntries:            32,
			NumPhysicalRegs:              96,
			NumCheckpoints:               16,
			MaxInstrsBetweenCheckpoints:  32,
			LQEntries:                    16,
			SQEntries:                    16,
			MDPEntries:                   64,
			MaxInstructions:              0,
		},
		Fetch: fetch.Config{
			Width:        1,
			CondPCBits:   10,
			CondBHRBits:  8,
			IndirPCBits:  8,
			IndirBHRBits: 6,
			RASEntries:   16,
			BTBEntries:   256,
			BTBBanks:     1,
			BTBAssoc:     4,
			TraceMode:    0,
			TraceSets:    64,
			TraceWays:    2,
		},
		Hierarchy: cache.HierarchyConfig{
			L1I:           cache.DefaultL1IConfig(),
			L1D:           cache.DefaultL1DConfig(),
			HasL2:         false,
			HasL3:         false,
			MHSRsI:        4,
			MHSRsD:        8,
			MemoryLatency: 12,
		},
		Lanes:  lanes.DefaultConfig(),
		Timing: latency.DefaultTimingConfig(),
	}
}

// Load reads a Config document from path, starting from Default() so an
// incomplete file only overrides the fields it sets.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the Config document to path as indented JSON.
func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks the schema version against SchemaConstraint and the
// pipeline sizing fields for internal consistency (e.g. enough physical
// registers to rename every logical register at least once over).
func (c *Config) Validate() error {
	constraint, err := semver.NewConstraint(SchemaConstraint)
	if err != nil {
		return fmt.Errorf("invalid schema constraint %q: %w", SchemaConstraint, err)
	}
	version, err := semver.NewVersion(c.SchemaVersion)
	if err != nil {
		return fmt.Errorf("invalid schema_version %q: %w", c.SchemaVersion, err)
	}
	if !constraint.Check(version) {
		return fmt.Errorf("config schema_version %s does not satisfy %s", version, SchemaConstraint)
	}

	p := c.Pipeline
	if p.IssueWidth <= 0 || p.RetireWidth <= 0 {
		return fmt.Errorf("issue_width and retire_width must be > 0")
	}
	if p.NumPhysicalRegs <= 32 {
		return fmt.Errorf("num_physical_regs must exceed the 32 logical registers")
	}
	if p.NumCheckpoints < 1 || p.NumCheckpoints > 64 {
		return fmt.Errorf("num_checkpoints must be in [1, 64]")
	}
	if p.PayloadEntries <= 0 || p.IssueQueueEntries <= 0 || p.LQEntries <= 0 || p.SQEntries <= 0 {
		return fmt.Errorf("payload/issue-queue/LQ/SQ sizes must be > 0")
	}
	if err := c.Timing.Validate(); err != nil {
		return fmt.Errorf("timing config: %w", err)
	}
	return nil
}

// Clone returns a deep copy, so a caller can derive a variant config
// (e.g. for a batch sweep) without mutating a shared default.
func (c *Config) Clone() *Config {
	cp := *c
	timing := *c.Timing
	cp.Timing = &timing
	lanesCfg := *c.Lanes
	cp.Lanes = &lanesCfg
	return &cp
}
