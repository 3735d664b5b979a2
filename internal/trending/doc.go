// Package trending maintains the popularity working sets.
//
// TweetsTracker ranks retweeted originals with TTL-bounded membership.
// TopicsTracker ranks extracted tokens across three parallel views and
// derives multi-metric velocities from hourly history held in the
// external time-series sink. Both are fed one item at a time and perform
// no background timing of their own; periodic sweeps are driven by the
// ingest scheduler.
package trending
