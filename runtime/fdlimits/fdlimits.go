// Package fdlimits raises the process file descriptor limit to the maximum
// allowed value using go-ethereum's fdlimit helpers.
package fdlimits

import (
	"github.com/ethereum/go-ethereum/common/fdlimit"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("prefix", "fdlimits")

// SetMaxFdLimits sets the file descriptor limit of the process at the
// maximum value the operating system allows.
func SetMaxFdLimits() error {
	curr, err := fdlimit.Current()
	if err != nil {
		return err
	}
	max, err := fdlimit.Maximum()
	if err != nil {
		return err
	}
	raisedVal, err := fdlimit.Raise(uint64(max))
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"previous": curr,
		"updated":  raisedVal,
	}).Debug("Updated file descriptor limit")
	return nil
}
