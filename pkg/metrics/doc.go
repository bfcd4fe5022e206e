// Package metrics exposes session lifecycle counters to Prometheus.
//
// Collector implements session.Observer, so it is wired into the manager
// with session.WithObserver. Counters carry no tenant label: tenant counts
// are unbounded and would explode the series count. Per-tenant numbers come
// from the audit trail instead.
//
//	reg := prometheus.NewRegistry()
//	collector := metrics.NewCollector(reg)
//	mgr := session.New(store, auditor, session.WithObserver(collector))
//	http.Handle("/metrics", metrics.Handler(reg))
package metrics
