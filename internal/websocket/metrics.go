package websocket

import "github.com/prometheus/client_golang/prometheus"

var (
	wsConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "care_support_ws_connections",
			Help: "Current number of active websocket connections.",
		},
	)
	wsStreams = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "care_support_ws_streams",
			Help: "Current number of open session streams.",
		},
	)
	wsEventsDelivered = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "care_support_ws_events_delivered_total",
			Help: "Total session events delivered to websocket clients.",
		},
	)
)

func init() {
	prometheus.MustRegister(wsConnections, wsStreams, wsEventsDelivered)
}

func incConnections() {
	wsConnections.Inc()
}

func decConnections() {
	wsConnections.Dec()
}

func setStreams(count int) {
	wsStreams.Set(float64(count))
}

func addDelivered(count int) {
	wsEventsDelivered.Add(float64(count))
}
