// Package params defines the protocol constants every service reads:
// proof validity, presence windows, RPC deadlines and queue bounds. The
// active config is process-wide; services must not cache individual values
// across an override.
package params

import (
	"time"
)

// Config holds the tunable protocol constants. Durations are expressed in
// seconds so the yaml override file stays flat and explicit.
type Config struct {
	ConfigName string `yaml:"CONFIG_NAME"`

	// Authentication.
	ValidityWindow    uint64 `yaml:"VALIDITY_WINDOW"`      // proof freshness bound and replay TTL, seconds
	AuthRatePerMinute int64  `yaml:"AUTH_RATE_PER_MINUTE"` // per-device authentication attempts
	AuthBurstCapacity int64  `yaml:"AUTH_BURST_CAPACITY"`  // leaky bucket capacity
	MaxDeviceIDLength int    `yaml:"MAX_DEVICE_ID_LENGTH"` // bytes
	MaxPayloadBytes   int    `yaml:"MAX_PAYLOAD_BYTES"`    // telemetry payload bound
	MaxMetadataLength int    `yaml:"MAX_METADATA_LENGTH"`  // anchor metadata bound

	// Presence.
	LiveWindow            uint64 `yaml:"LIVE_WINDOW"`             // seconds
	IdleWindow            uint64 `yaml:"IDLE_WINDOW"`             // seconds
	PresenceSweepInterval uint64 `yaml:"PRESENCE_SWEEP_INTERVAL"` // seconds

	// Chain access.
	RPCTimeout     uint64 `yaml:"RPC_TIMEOUT"`      // per attempt, seconds
	ConfirmTimeout uint64 `yaml:"CONFIRM_TIMEOUT"`  // receipt watcher bound, seconds
	MaxRPCBackoff  uint64 `yaml:"MAX_RPC_BACKOFF"`  // backoff cap, seconds
	MaxRPCAttempts int    `yaml:"MAX_RPC_ATTEMPTS"` // attempts before reclassifying as permanent

	// Proposals.
	ProposalTTL           uint64 `yaml:"PROPOSAL_TTL"`            // seconds until expiry
	ProposalSweepInterval uint64 `yaml:"PROPOSAL_SWEEP_INTERVAL"` // seconds

	// Persistence.
	CASMaxRetries int `yaml:"CAS_MAX_RETRIES"`

	// Event bus.
	MaxSubQueue  int `yaml:"MAX_SUB_QUEUE"`
	EventHistory int `yaml:"EVENT_HISTORY"`
}

// ValidityWindowDuration returns the proof validity window.
func (c *Config) ValidityWindowDuration() time.Duration {
	return time.Duration(c.ValidityWindow) * time.Second
}

// LiveWindowDuration returns the window within which a device counts as online.
func (c *Config) LiveWindowDuration() time.Duration {
	return time.Duration(c.LiveWindow) * time.Second
}

// IdleWindowDuration returns the window within which a device counts as idle.
func (c *Config) IdleWindowDuration() time.Duration {
	return time.Duration(c.IdleWindow) * time.Second
}

// PresenceSweepDuration returns the presence sweeper cadence.
func (c *Config) PresenceSweepDuration() time.Duration {
	return time.Duration(c.PresenceSweepInterval) * time.Second
}

// RPCTimeoutDuration returns the per-attempt RPC deadline.
func (c *Config) RPCTimeoutDuration() time.Duration {
	return time.Duration(c.RPCTimeout) * time.Second
}

// ConfirmTimeoutDuration returns the receipt watcher deadline.
func (c *Config) ConfirmTimeoutDuration() time.Duration {
	return time.Duration(c.ConfirmTimeout) * time.Second
}

// MaxRPCBackoffDuration returns the backoff cap between RPC retries.
func (c *Config) MaxRPCBackoffDuration() time.Duration {
	return time.Duration(c.MaxRPCBackoff) * time.Second
}

// ProposalTTLDuration returns the proposal lifetime.
func (c *Config) ProposalTTLDuration() time.Duration {
	return time.Duration(c.ProposalTTL) * time.Second
}

// ProposalSweepDuration returns the expiry sweeper cadence.
func (c *Config) ProposalSweepDuration() time.Duration {
	return time.Duration(c.ProposalSweepInterval) * time.Second
}

// Copy returns an independent copy of the config.
func (c *Config) Copy() *Config {
	config := *c
	return &config
}
