package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather error: %v", err)
	}
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		var total float64
		for _, metric := range family.GetMetric() {
			total += metric.GetCounter().GetValue()
		}
		return total
	}
	t.Fatalf("metric %s not found", name)
	return 0
}

func TestVoteCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordVoteCast()
	c.RecordVoteCast()
	c.RecordVoteRejected("already_voted")
	c.RecordVoteRejected("admin_cannot_vote")

	if got := counterValue(t, reg, "votingapp_votes_cast_total"); got != 2 {
		t.Fatalf("votes_cast_total = %v, want 2", got)
	}
	if got := counterValue(t, reg, "votingapp_votes_rejected_total"); got != 2 {
		t.Fatalf("votes_rejected_total = %v, want 2", got)
	}
}

func TestAuthCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordSignup()
	c.RecordLogin("ok")
	c.RecordLogin("invalid_credentials")

	if got := counterValue(t, reg, "votingapp_signups_total"); got != 1 {
		t.Fatalf("signups_total = %v, want 1", got)
	}
	if got := counterValue(t, reg, "votingapp_logins_total"); got != 2 {
		t.Fatalf("logins_total = %v, want 2", got)
	}
}
