// Package journald provides automatic and seamless integration of logrus
// with the systemd journal.
package journald

import (
	"github.com/wercker/journalhook"
)

// Enable hooks the systemd journal into logrus as a log output.
func Enable() error {
	journalhook.Enable()
	return nil
}
