package config

import (
	"strings"
	"testing"
)

func TestDefaultConfigDefaults(t *testing.T) {
	c := DefaultConfig()

	if c.HTTPAddr != "127.0.0.1:42424" {
		t.Fatalf("unexpected HTTPAddr: %s", c.HTTPAddr)
	}
	if c.MaxRestarts != 10 {
		t.Fatalf("unexpected MaxRestarts: %d", c.MaxRestarts)
	}
	if c.BackoffMultiplier != 2.0 {
		t.Fatalf("unexpected BackoffMultiplier: %v", c.BackoffMultiplier)
	}
	if !strings.HasSuffix(c.TokenPath, "/.pryx/admin.token") {
		t.Fatalf("unexpected TokenPath: %s", c.TokenPath)
	}
}

func TestChildEnvironContainsContractVars(t *testing.T) {
	c := DefaultConfig()
	c.ChildEnv["FOO"] = "bar"

	env := c.ChildEnviron()

	want := []string{"PRYX_LISTEN_ADDR=127.0.0.1:0", "PRYX_DB_PATH=" + c.DBPath, "PRYX_HOST_RPC=1", "FOO=bar"}
	for _, w := range want {
		found := false
		for _, e := range env {
			if e == w {
				found = true
				break
			}
		}
		if !found {
			t.Fatalf("expected env to contain %q, got %v", w, env[:4])
		}
	}
}
