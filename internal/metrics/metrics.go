// Package metrics collects and exposes Prometheus counters for the voting
// service.
package metrics

import "github.com/prometheus/client_golang/prometheus"

type Collector struct {
	signups       prometheus.Counter
	logins        *prometheus.CounterVec
	votesCast     prometheus.Counter
	votesRejected *prometheus.CounterVec
}

func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		signups: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "votingapp_signups_total",
			Help: "Total number of accepted signups.",
		}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "votingapp_logins_total",
			Help: "Total number of login attempts by result.",
		}, []string{"result"}),
		votesCast: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "votingapp_votes_cast_total",
			Help: "Total number of committed votes.",
		}),
		votesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "votingapp_votes_rejected_total",
			Help: "Total number of rejected votes by reason.",
		}, []string{"reason"}),
	}

	reg.MustRegister(c.signups, c.logins, c.votesCast, c.votesRejected)
	return c
}

func (c *Collector) RecordSignup() {
	c.signups.Inc()
}

func (c *Collector) RecordLogin(result string) {
	c.logins.WithLabelValues(result).Inc()
}

func (c *Collector) RecordVoteCast() {
	c.votesCast.Inc()
}

func (c *Collector) RecordVoteRejected(reason string) {
	c.votesRejected.WithLabelValues(reason).Inc()
}
