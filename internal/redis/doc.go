// Package redis implements the Redis-backed primitives of the pipeline.
//
// Provides RankedSet (capacity-bounded sorted set with random tie-break
// eviction and weighted sampling), MemberSet (per-item membership sets),
// PayloadStore (JSON payload records), ExpiryMarkers (TTL companion keys),
// ListQueue/BufferGroup (inbound and per-project batch queues) and
// DailyCounts. Correctness relies on Redis per-command atomicity; there
// are no cross-key transactions.
package redis
