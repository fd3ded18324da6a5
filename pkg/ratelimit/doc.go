// Package ratelimit throttles metered requests with fixed-window counters.
//
// Each request is charged against a window identified by (bucket, key).
// The first request opens the window with count 1 and resetAt = now+window.
// Later requests inside the window increment the count until it reaches the
// limit, after which they are denied with a Retry-After of
// ceil((resetAt-now)/1s). A request at or after resetAt reopens the window
// from scratch.
//
// Windows are fixed, not sliding: a client can spend the full limit at the
// end of one window and again at the start of the next, so up to 2×limit
// requests may land within any span of one window length. This is accepted.
//
// MemoryStore also bounds every bucket to a fixed number of keys (see
// WithMaxKeys). When a bucket is full, the least recently used key loses its
// window even if it has not expired, so a client already at its limit can be
// allowed again early. This only happens under more distinct keys than the
// bound in one window; the live evictions are counted so the bound can be
// raised, or RedisStore used, before it matters.
//
// A Policy groups the rules for one action (for example an hourly and a
// daily rule for "generate"). Rules are checked in order and the first
// denial wins; each rule has its own bucket named "<bucket>:<rule>".
//
// The Limiter is created once at process start and shared by all requests.
// Its Store decides where windows live: MemoryStore keeps them in process
// (state is lost on restart), RedisStore shares them between replicas.
// Both apply check-and-increment atomically per key.
package ratelimit
