package cmd

import (
	"bytes"
	"strings"
	"testing"
)

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	cmd := versionCmd
	cmd.SetOut(&out)
	cmd.Run(cmd, nil)

	got := out.String()
	if !strings.Contains(got, "movebot") {
		t.Errorf("version output = %q, want app name", got)
	}
	if !strings.Contains(got, AppVersion) {
		t.Errorf("version output = %q, want version %q", got, AppVersion)
	}
}

func TestRootCommandRegistration(t *testing.T) {
	names := map[string]bool{}
	for _, sub := range rootCmd.Commands() {
		names[sub.Name()] = true
	}
	for _, want := range []string{"ingest", "ask", "version"} {
		if !names[want] {
			t.Errorf("subcommand %q not registered", want)
		}
	}
}

func TestAskRequiresArgs(t *testing.T) {
	if err := askCmd.Args(askCmd, nil); err == nil {
		t.Error("ask with no args = nil error, want error")
	}
	if err := askCmd.Args(askCmd, []string{"what", "is", "move"}); err != nil {
		t.Errorf("ask with args error = %v", err)
	}
}
