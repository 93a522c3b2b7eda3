package config_test

import (
	"strings"
	"testing"

	"steward/internal/config"
	"steward/internal/phase"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	sum := 0
	for _, p := range phase.Working() {
		sum += cfg.Weight(p)
	}
	if sum != 100 {
		t.Fatalf("default weights sum to %d", sum)
	}
}

func TestWeightsMustSumTo100(t *testing.T) {
	cfg := config.Default()
	cfg.Phases.Weights[phase.ExecImplementation] = 50
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "sum to 100") {
		t.Fatalf("expected sum error, got %v", err)
	}
}

func TestWeightsMustCoverAllPhases(t *testing.T) {
	cfg := config.Default()
	delete(cfg.Phases.Weights, phase.PlanVerification)
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected missing phase error")
	}
}

func TestUnknownPhaseRejected(t *testing.T) {
	cfg := config.Default()
	cfg.Phases.Weights["RETRO"] = 0
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected unknown phase error")
	}
}

func TestFromYAMLRejectsBadThreshold(t *testing.T) {
	data := strings.Replace(config.GenerateDefault(), "pass_threshold: 70", "pass_threshold: 0", 1)
	if _, err := config.FromYAML([]byte(data)); err == nil {
		t.Fatalf("expected threshold error")
	}
}
