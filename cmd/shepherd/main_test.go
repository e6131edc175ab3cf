package main

import (
	"context"
	"testing"
)

func TestRootCommandRegistersAllModes(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"submit", "status", "__prepare", "__transfer"} {
		if !names[want] {
			t.Fatalf("expected %q to be registered under root, got %v", want, names)
		}
	}
}

func TestInternalModesAreHidden(t *testing.T) {
	if !prepareCmd.Hidden {
		t.Fatalf("expected __prepare to be hidden from --help")
	}
	if !transferCmd.Hidden {
		t.Fatalf("expected __transfer to be hidden from --help")
	}
}

func TestSubmitRequiresExactlyTwoArgs(t *testing.T) {
	if err := submitCmd.Args(submitCmd, []string{"only-one"}); err == nil {
		t.Fatalf("expected an error for a single argument")
	}
	if err := submitCmd.Args(submitCmd, []string{"fofn", "subcollection"}); err != nil {
		t.Fatalf("expected two arguments to be accepted, got %v", err)
	}
}

func TestRunSubmitFailsLoudlyOnMissingEnvironment(t *testing.T) {
	for _, v := range []string{"PG_HOST", "PG_DATABASE", "PG_USERNAME", "PG_PASSWORD", "LSF_GROUP", "PREP_QUEUE", "TRANSFER_QUEUE"} {
		t.Setenv(v, "")
	}
	if err := runSubmit(context.Background(), "fofn", "subcollection"); err == nil {
		t.Fatalf("expected an error when required environment variables are unset")
	}
}
