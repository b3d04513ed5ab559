package issuer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	loginsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "parley",
		Subsystem: "auth",
		Name:      "logins_total",
		Help:      "Login attempts by outcome.",
	}, []string{"outcome"})

	rotationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "parley",
		Subsystem: "auth",
		Name:      "refresh_rotations_total",
		Help:      "Refresh-token rotations by outcome.",
	}, []string{"outcome"})

	breachesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "parley",
		Subsystem: "auth",
		Name:      "token_reuse_breaches_total",
		Help:      "Refresh-token reuse events that triggered a full revocation.",
	})
)
