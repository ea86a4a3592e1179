// Package file provides the filesystem helpers shared by the data
// directory, config loaders, and secret files. Everything the process
// writes is owner-only readable.
package file

import (
	"io/ioutil"
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("prefix", "fileutil")

const (
	// ReadWritePermissions used for files written by the process.
	ReadWritePermissions os.FileMode = 0600
	// ReadWriteExecutePermissions used for directories created by the process.
	ReadWriteExecutePermissions os.FileMode = 0700
)

// ExpandPath expands a tilde prefix and environment variables in p and
// returns a cleaned absolute path.
func ExpandPath(p string) (string, error) {
	if strings.HasPrefix(p, "~/") || strings.HasPrefix(p, "~\\") {
		if home := HomeDir(); home != "" {
			p = home + p[1:]
		}
	}
	return filepath.Abs(filepath.Clean(os.ExpandEnv(p)))
}

// HomeDir returns the home directory of the current user.
func HomeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	return ""
}

// MkdirAll creates dirPath and any missing parents, refusing a directory
// that already exists with permissions wider than 0700.
func MkdirAll(dirPath string) error {
	exists, err := HasDir(dirPath)
	if err != nil {
		return err
	}
	if exists {
		info, err := os.Stat(dirPath)
		if err != nil {
			return err
		}
		if info.Mode().Perm() != ReadWriteExecutePermissions {
			return errors.Errorf("dir already exists without proper 0700 permissions: %s", dirPath)
		}
		return nil
	}
	return os.MkdirAll(dirPath, ReadWriteExecutePermissions)
}

// HandleBackupDir takes an input directory path and either alters its
// permissions to be usable or creates it if it does not exist.
func HandleBackupDir(dirPath string, permissionOverride bool) error {
	expanded, err := ExpandPath(dirPath)
	if err != nil {
		return err
	}
	exists, err := HasDir(expanded)
	if err != nil {
		return err
	}
	if exists {
		if permissionOverride {
			if err := os.Chmod(expanded, ReadWriteExecutePermissions); err != nil {
				return err
			}
		}
		info, err := os.Stat(expanded)
		if err != nil {
			return err
		}
		if info.Mode().Perm() != ReadWriteExecutePermissions {
			return errors.New("dir already exists without proper 0700 permissions")
		}
	}
	return os.MkdirAll(expanded, ReadWriteExecutePermissions)
}

// WriteFile writes data to fileName, refusing a file that already exists
// with permissions wider than 0600.
func WriteFile(fileName string, data []byte) error {
	if FileExists(fileName) {
		info, err := os.Stat(fileName)
		if err != nil {
			return err
		}
		if info.Mode().Perm() != ReadWritePermissions {
			return errors.Errorf("file already exists without proper 0600 permissions: %s", fileName)
		}
	}
	return ioutil.WriteFile(fileName, data, ReadWritePermissions)
}

// FileExists reports whether a regular file exists at fileName.
func FileExists(fileName string) bool {
	info, err := os.Stat(fileName)
	if err != nil {
		if !os.IsNotExist(err) {
			log.WithError(err).Info("Checking for file existence returned an error")
		}
		return false
	}
	return info != nil && !info.IsDir()
}

// HasDir reports whether a directory exists at dirPath.
func HasDir(dirPath string) (bool, error) {
	info, err := os.Stat(dirPath)
	if os.IsNotExist(err) {
		return false, nil
	}
	if info == nil {
		return false, err
	}
	return info.IsDir(), err
}

// ReadFileAsBytes expands fileName and reads its contents.
func ReadFileAsBytes(fileName string) ([]byte, error) {
	expanded, err := ExpandPath(fileName)
	if err != nil {
		return nil, errors.Wrapf(err, "could not expand path %s", fileName)
	}
	return ioutil.ReadFile(expanded) // #nosec G304
}
