package models

import "testing"

func TestCapabilitySetAllows(t *testing.T) {
	set := NewCapabilitySet([]Capability{
		{ActionTag: "activate_pending", Domain: "queue"},
		{ActionTag: "rebalance", Domain: "queue"},
	})

	if !set.Allows(NewAction("activate_pending")) {
		t.Error("expected declared action to be allowed")
	}
	if set.Allows(NewAction("teleport")) {
		t.Error("expected undeclared action to be rejected")
	}
}

func TestCapabilitySetAlwaysAllowsControlActions(t *testing.T) {
	set := NewCapabilitySet(nil)

	if !set.Allows(Wait(100)) {
		t.Error("expected wait to always be allowed")
	}
	if !set.Allows(Defer("memory")) {
		t.Error("expected defer to always be allowed")
	}
}

func TestCapabilitySetReplacesDuplicates(t *testing.T) {
	set := NewCapabilitySet([]Capability{
		{ActionTag: "consolidate", Description: "first"},
		{ActionTag: "consolidate", Description: "second"},
	})

	if len(set) != 1 {
		t.Fatalf("expected 1 capability, got %d", len(set))
	}
	if set["consolidate"].Description != "second" {
		t.Errorf("expected later entry to win, got %q", set["consolidate"].Description)
	}
}
