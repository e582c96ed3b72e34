package fetch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	urlChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tilefetch_url_checks_total",
		Help: "Total URL existence checks by result",
	}, []string{"result"}) // "ok", "failed"

	redirectsFollowedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tilefetch_redirects_followed_total",
		Help: "Total permanent redirects followed by URL checks",
	})

	loadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tilefetch_loads_total",
		Help: "Total single-resource loads by result",
	}, []string{"result"}) // "ok", "failed"
)
