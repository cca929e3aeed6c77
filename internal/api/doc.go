// Package api serves SupplyGraph agents to downstream runtimes over HTTP:
// normalized run, status and result objects, agent manifests, re-emitted
// reasoning streams as server-sent events, health and Prometheus metrics.
package api
