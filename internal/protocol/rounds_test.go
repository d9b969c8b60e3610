package protocol

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestSelectKeeperDeterministic(t *testing.T) {
	sorted := []common.Address{
		common.HexToAddress("0x01"),
		common.HexToAddress("0x02"),
		common.HexToAddress("0x03"),
		common.HexToAddress("0x04"),
	}

	first := SelectKeeper("deadbeef", sorted)
	second := SelectKeeper("deadbeef", sorted)
	if first != second {
		t.Fatalf("same randomness must select the same keeper")
	}

	// 0xdeadbeef = 3735928559, 3735928559 % 4 = 3。
	if first != sorted[3] {
		t.Fatalf("expected keeper %s, got %s", sorted[3].Hex(), first.Hex())
	}

	// 带 0x 前缀的信标值等价。
	if got := SelectKeeper("0xdeadbeef", sorted); got != first {
		t.Fatalf("prefixed randomness must select the same keeper")
	}
}

func TestSelectKeeperNonHexFallsBackToHash(t *testing.T) {
	sorted := []common.Address{
		common.HexToAddress("0x01"),
		common.HexToAddress("0x02"),
	}
	first := SelectKeeper("not hex at all", sorted)
	second := SelectKeeper("not hex at all", sorted)
	if first != second {
		t.Fatalf("non-hex randomness must still be deterministic")
	}
	found := false
	for _, p := range sorted {
		if p == first {
			found = true
		}
	}
	if !found {
		t.Fatalf("selected keeper %s is not a participant", first.Hex())
	}
}

func TestTransitionsCoverRecoveryPaths(t *testing.T) {
	cases := []struct {
		round string
		event Event
		want  string
	}{
		{RoundStrategyEvaluation, EventDone, RoundEnterRandomness},
		{RoundStrategyEvaluation, EventWait, RoundResetAndPause},
		{RoundEnterValidation, EventDone, RoundExitRandomness},
		{RoundEnterValidation, EventNegative, RoundEnterRandomness},
		{RoundEnterSend, EventRoundTimeout, RoundEnterRandomness},
		{RoundExitValidation, EventDone, RoundResetAndPause},
		{RoundExitValidation, EventNegative, RoundExitRandomness},
		{RoundExitSend, EventError, RoundExitRandomness},
		{RoundResetAndPause, EventDone, RoundStrategyEvaluation},
		{RoundResetAndPause, EventError, RoundResetAndPause},
		{RoundDeploySafeValidation, EventDone, RoundStrategyEvaluation},
		{RoundDeploySafeValidation, EventNegative, RoundDeploySafeRandomness},
	}
	for _, tc := range cases {
		got, ok := NextRound(tc.round, tc.event)
		if !ok {
			t.Fatalf("no transition for (%s, %s)", tc.round, tc.event)
		}
		if got != tc.want {
			t.Fatalf("(%s, %s) -> %s, want %s", tc.round, tc.event, got, tc.want)
		}
	}
}

func TestTransitionsRejectUnknownEvent(t *testing.T) {
	if _, ok := NextRound(RoundEnterSignature, EventNegative); ok {
		t.Fatalf("signature round has no negative outcome")
	}
	if _, ok := NextRound("no_such_round", EventDone); ok {
		t.Fatalf("unknown round must not transition")
	}
}

func TestEveryTransitionTargetIsRegistered(t *testing.T) {
	phases := buildPhases()
	for round, targets := range transitions {
		if _, ok := phases[round]; !ok {
			t.Fatalf("round %s has transitions but no phase", round)
		}
		for event, next := range targets {
			if _, ok := phases[next]; !ok {
				t.Fatalf("(%s, %s) leads to unregistered round %s", round, event, next)
			}
		}
	}
}
