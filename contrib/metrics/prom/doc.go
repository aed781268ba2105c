// Package prom provides a Prometheus client_golang implementation of the
// MetricsCollector interface, for services that already expose a
// prometheus.Registry.
//
//	reg := prometheus.NewRegistry()
//	collector, err := prom.New(reg, prom.WithConstLabels(prometheus.Labels{"service": "orders"}))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	registry, _ := tether.NewRegistry(factory, tether.WithMetrics(collector))
//	http.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
//
// Metric names match those of contrib/metrics/vm.
package prom
