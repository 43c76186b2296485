package transaction

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pollAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sharemybook_poll_attempts_total",
		Help: "Relay result polls, labeled by what the relay answered",
	}, []string{"result"})

	transactionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sharemybook_transactions_total",
		Help: "Finished transactions, labeled by side, action and outcome",
	}, []string{"side", "action", "outcome"})
)
