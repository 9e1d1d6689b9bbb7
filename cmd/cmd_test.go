package cmd

import (
	"bytes"
	"strings"
	"testing"
)

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs([]string{"version"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("version command: %v", err)
	}
	if !strings.Contains(out.String(), "metropolia "+Version) {
		t.Errorf("version output = %q, want it to contain %q", out.String(), "metropolia "+Version)
	}
}

func TestIngestArgumentValidation(t *testing.T) {
	run := func(args ...string) error {
		var out bytes.Buffer
		rootCmd.SetOut(&out)
		rootCmd.SetErr(&out)
		rootCmd.SetArgs(args)
		defer func() {
			rootCmd.SetOut(nil)
			rootCmd.SetErr(nil)
			rootCmd.SetArgs(nil)
			ingestSite = ""
		}()
		return rootCmd.Execute()
	}

	if err := run("ingest"); err == nil {
		t.Error("ingest with neither URLs nor --site succeeded")
	}
	if err := run("ingest", "--site", "https://example.fi", "https://example.fi/en"); err == nil {
		t.Error("ingest with both --site and URLs succeeded")
	}
}

func TestSubcommandsRegistered(t *testing.T) {
	want := map[string]bool{"serve": false, "ingest": false, "migrate": false, "version": false}
	for _, c := range rootCmd.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("subcommand %q is not registered", name)
		}
	}
}
