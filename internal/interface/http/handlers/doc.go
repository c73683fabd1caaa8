// Package handlers contains reusable HTTP pieces: health checks and
// middleware.
//
// # Health Checks
//
// The HealthChecker interface allows registering named checks that run in
// parallel:
//
//	checker := handlers.NewCompositeHealthChecker("v0.1.0")
//	checker.AddCheck("store", handlers.NewPingCheck(store))
//
//	status := checker.Check(ctx)
//	if !status.Healthy {
//	    log.Warn("health check failed", logger.String("message", status.Message))
//	}
//
// # Middleware
//
// Middleware composes with Chain:
//
//	admin := handlers.NewAPIKeyAuth("X-API-Key", cfg.AdminAPIKey)
//	h := handlers.ChainHandler(mux,
//	    handlers.SecurityHeadersMiddleware,
//	    handlers.RequestSizeLimitMiddleware(1<<20),
//	)
//	mux.Handle("POST /api/v1/admin/allocations", admin.Middleware(allocate))
package handlers
