// Package ingest glues the pipeline together: consumer workers pull raw
// items off the shared inbound queue, the pipeline routes each item
// through matching, archiving, trending and annotation, and the scheduler
// drives the periodic sweeps. No ranking logic of its own lives here.
package ingest
