// Package httpserver runs the operational HTTP surface of a service:
// liveness, readiness and metrics endpoints behind a chi router, served by a
// Server that shuts down gracefully when its context ends.
//
//	router := httpserver.NewOpsRouter(httpserver.OpsRoutes{
//		Checks: []httpserver.Check{
//			{Name: "redis", Fn: redis.Healthcheck(client)},
//		},
//		Metrics: metrics.Handler(registry),
//	})
//	srv := httpserver.NewFromConfig(cfg, httpserver.WithLogger(log))
//	err := srv.Run(ctx, router) // returns after ctx is cancelled
//
// Run wraps listen errors with ErrStart and Shutdown wraps shutdown errors
// with ErrShutdown.
package httpserver
