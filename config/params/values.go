package params

// DefaultConfig returns the production defaults.
func DefaultConfig() *Config {
	return &Config{
		ConfigName: "default",

		ValidityWindow:    300,
		AuthRatePerMinute: 60,
		AuthBurstCapacity: 10,
		MaxDeviceIDLength: 64,
		MaxPayloadBytes:   1 << 16,
		MaxMetadataLength: 256,

		LiveWindow:            60,
		IdleWindow:            300,
		PresenceSweepInterval: 15,

		RPCTimeout:     20,
		ConfirmTimeout: 180,
		MaxRPCBackoff:  30,
		MaxRPCAttempts: 5,

		ProposalTTL:           7 * 24 * 3600,
		ProposalSweepInterval: 60,

		CASMaxRetries: 5,

		MaxSubQueue:  256,
		EventHistory: 100,
	}
}

// MinimalTestConfig returns a config with windows shrunk to values that
// keep tests fast. Not for production use.
func MinimalTestConfig() *Config {
	c := DefaultConfig()
	c.ConfigName = "minimal-test"
	c.ValidityWindow = 5
	c.LiveWindow = 2
	c.IdleWindow = 4
	c.PresenceSweepInterval = 1
	c.ProposalTTL = 10
	c.ProposalSweepInterval = 1
	c.ConfirmTimeout = 2
	c.MaxRPCBackoff = 1
	return c
}

var protocolConfig = DefaultConfig()

// Protocol retrieves the active protocol config.
func Protocol() *Config {
	return protocolConfig
}

// OverrideProtocolConfig replaces the active config. The preferred pattern
// is to call Protocol().Copy(), change the specific parameters, and then
// call OverrideProtocolConfig with the result.
func OverrideProtocolConfig(c *Config) {
	protocolConfig = c
}

// UseMinimalTestConfig activates the shrunk config for tests.
func UseMinimalTestConfig() {
	protocolConfig = MinimalTestConfig()
}

// UseDefaultConfig restores the production defaults.
func UseDefaultConfig() {
	protocolConfig = DefaultConfig()
}
