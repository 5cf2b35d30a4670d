// Package healing remembers which action bindings recovered which targets.
//
// A Memory is a small JSON-document table of HealingRecords keyed by
// (target key, URL, selector). Each record carries success and failure counts,
// a confidence derived from them, and the Evidence that justified the heal.
// Lookups prefer records from the same domain as the current page.
//
// The document is loaded lazily on first use and cached for the lifetime of
// the Memory. Every mutation rewrites the whole document atomically. Documents
// written before evidence and confidence were tracked are migrated in memory
// at load time and only persisted by the next mutation.
//
// At most one process should write a given store path; concurrent writers are
// not isolated from each other.
package healing
