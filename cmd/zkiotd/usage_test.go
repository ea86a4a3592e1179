package main

import (
	"testing"

	"github.com/urfave/cli/v2"
)

func TestAllFlagsExistInHelp(t *testing.T) {
	// If this test is failing, it is because you've recently added/removed a
	// flag in the main.go flag catalog, but did not add/remove it in the
	// usage.go flag grouping (appHelpFlagGroups).

	var helpFlags []cli.Flag
	for _, group := range appHelpFlagGroups {
		helpFlags = append(helpFlags, group.Flags...)
	}

	for _, f := range appFlags {
		if !doesFlagExist(f, helpFlags) {
			t.Errorf("Failed to find %s in help flag groups. Please add it to usage.go.", f.Names())
		}
	}

	for _, f := range helpFlags {
		if !doesFlagExist(f, appFlags) {
			t.Errorf("Failed to find %s in main.go. Please add it to main.go.", f.Names())
		}
	}
}

func doesFlagExist(f cli.Flag, flags []cli.Flag) bool {
	for _, candidate := range flags {
		if candidate.String() == f.String() {
			return true
		}
	}
	return false
}
