package params

import (
	"io/ioutil"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

// LoadConfigFile reads a yaml override file, applies it on top of the
// defaults and activates the result. Unknown keys are an error so typos in
// override files surface instead of silently using defaults.
func LoadConfigFile(path string) error {
	yamlFile, err := ioutil.ReadFile(path) // #nosec G304 -- operator supplied path
	if err != nil {
		return errors.Wrap(err, "could not read config file")
	}
	conf := DefaultConfig().Copy()
	if err := yaml.UnmarshalStrict(yamlFile, conf); err != nil {
		return errors.Wrap(err, "could not parse config file")
	}
	if err := validate(conf); err != nil {
		return err
	}
	log.WithField("config", conf.ConfigName).Info("Loaded protocol config file")
	OverrideProtocolConfig(conf)
	return nil
}

func validate(c *Config) error {
	if c.ValidityWindow == 0 {
		return errors.New("VALIDITY_WINDOW must be positive")
	}
	if c.LiveWindow == 0 || c.IdleWindow <= c.LiveWindow {
		return errors.New("IDLE_WINDOW must exceed LIVE_WINDOW and both must be positive")
	}
	if c.MaxRPCAttempts < 1 {
		return errors.New("MAX_RPC_ATTEMPTS must be at least 1")
	}
	if c.CASMaxRetries < 1 {
		return errors.New("CAS_MAX_RETRIES must be at least 1")
	}
	if c.MaxSubQueue < 1 || c.EventHistory < 1 {
		return errors.New("MAX_SUB_QUEUE and EVENT_HISTORY must be at least 1")
	}
	return nil
}
