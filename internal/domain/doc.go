// Package domain holds the core data model of the ingest pipeline.
//
// Items are raw firehose posts, Records are their projected/redacted form
// sent to the index and archive sinks, and ProjectDescriptors describe the
// monitoring projects items are matched against. The package depends on
// nothing but the standard library.
package domain
