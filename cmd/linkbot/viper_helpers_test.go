package main

import (
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func TestFlagOrViperDurationPrecedence(t *testing.T) {
	defer viper.Reset()

	cmd := &cobra.Command{}
	cmd.Flags().Duration("correlate-wait", 5*time.Second, "")

	if got := flagOrViperDuration(cmd, "correlate-wait", "correlate.wait"); got != 5*time.Second {
		t.Fatalf("flag default: got %v, want 5s", got)
	}

	viper.Set("correlate.wait", 9*time.Second)
	if got := flagOrViperDuration(cmd, "correlate-wait", "correlate.wait"); got != 9*time.Second {
		t.Fatalf("viper value: got %v, want 9s", got)
	}

	// An explicitly set flag beats the config value.
	if err := cmd.Flags().Set("correlate-wait", "2s"); err != nil {
		t.Fatal(err)
	}
	if got := flagOrViperDuration(cmd, "correlate-wait", "correlate.wait"); got != 2*time.Second {
		t.Fatalf("changed flag: got %v, want 2s", got)
	}
}
