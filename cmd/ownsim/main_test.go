// Package main provides tests for the ownsim CLI.
package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/leapstack-labs/ownsim/internal/cli"
	"github.com/leapstack-labs/ownsim/internal/cli/config"
)

func TestVersionCommand(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Cleanup(config.ResetConfig)

	cmd := cli.NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"version"})

	if err := cmd.Execute(); err != nil {
		t.Errorf("version command error = %v", err)
	}

	output := buf.String()
	if !strings.Contains(output, "ownsim v"+cli.Version) {
		t.Errorf("version output should contain the version, got: %s", output)
	}
}

func TestDemoCommand(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Cleanup(config.ResetConfig)

	cmd := cli.NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"demo", "ownership", "-o", "text"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("demo command error = %v", err)
	}
	if !strings.Contains(buf.String(), "s2 = hello, s3 = hello") {
		t.Errorf("demo output missing clone line, got: %s", buf.String())
	}
}
