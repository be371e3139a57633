package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

var (
	TokensIssuedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ebook_tokens_issued_total",
		Help: "Total number of reading tokens issued.",
	})
	AccessGrantedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ebook_access_granted_total",
		Help: "Total number of successful access validations.",
	})
	AccessDeniedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ebook_access_denied_total",
		Help: "Total number of denied access validations, by denial code.",
	}, []string{"reason"})
	HeartbeatsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ebook_heartbeats_total",
		Help: "Total number of reader heartbeats received.",
	})
	ActiveSessionsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ebook_active_sessions",
		Help: "Reading sessions with activity inside the session window.",
	})
	ExpiredTokensSweptTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ebook_expired_tokens_swept_total",
		Help: "Expired reading tokens removed by the background sweep.",
	})
)

// Register attaches all custom collectors to the given registerer. Call once
// at startup.
func Register(reg prometheus.Registerer) {
	collectors := []prometheus.Collector{
		TokensIssuedTotal,
		AccessGrantedTotal,
		AccessDeniedTotal,
		HeartbeatsTotal,
		ActiveSessionsGauge,
		ExpiredTokensSweptTotal,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			log.Warn().Err(err).Msg("Failed to register metric collector")
		}
	}
}
