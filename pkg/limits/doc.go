// Package limits provides per-endpoint rate limiting for the booking API.
//
// # Overview
//
// A Manager maps endpoint names to fixed-window limiters from the ratelimit
// sub-package. Each limiter counts requests per caller key (client IP, JWT
// subject) and rejects callers that exhaust their window until it resets.
//
//   - ratelimit: fixed-window limiter, presets, memory and Redis stores
//
// # Usage
//
//	manager := limits.NewManager()
//	_ = manager.AddLimiter("auth", ratelimit.Auth)
//
//	res := manager.Admit(ctx, "auth", clientIP)
//	if !res.Allowed {
//	    return limits.Reject("auth", clientIP, manager.Message("auth"), res)
//	}
//	// ... handle login ...
//	manager.Settle(ctx, "auth", clientIP, res, loginSucceeded)
//
// Endpoints without a limiter are unlimited; their results report Limit -1.
//
// # Reload
//
// Sync replaces the endpoint table in one step, which is how configuration
// reloads are applied. Limiters whose configuration did not change keep
// their counters.
//
// # Thread Safety
//
// All Manager methods are safe for concurrent use.
package limits
