// Package ratelimit implements fixed-window request limiting keyed by caller.
//
// # Overview
//
// A FixedWindow counts requests per key over a fixed interval and rejects
// once the configured maximum is reached, reporting when the window resets
// and how long the caller should wait.
//
// Limits are plain Config values. The built-in presets (strict, standard,
// auth, booking, lenient) are named Configs, not special cases:
//
//	limiter := ratelimit.NewFixedWindow(ratelimit.Auth)
//	res := limiter.Admit(ctx, clientIP)
//	if !res.Allowed {
//	    // 429 with Retry-After: res.RetryAfterSeconds()
//	}
//	// ... handle request ...
//	limiter.Settle(ctx, clientIP, res, status < 400)
//
// # Storage
//
// Counters live in a Store:
//
//   - MemoryStore: a bounded LRU (DefaultMaxKeys entries). Evicting a key
//     forgets its history, which is equivalent to a fresh window for that
//     key. Memory stays bounded regardless of caller cardinality.
//   - RedisStore: a shared counter evaluated by a Lua script, for running
//     several instances behind one budget.
//
// Admit counts every admitted request, including for presets that only
// count one outcome. Settle refunds the request once its outcome is known
// to be skipped.
//
// Store failures fail open and are logged.
package ratelimit
