package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler exposes the default registry in Prometheus text exposition format.
func Handler() http.Handler {
	Default()
	return promhttp.Handler()
}

// HandlerFor exposes a dedicated registry.
func HandlerFor(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
