// Package retriever implements hybrid retrieval over the current payer
// rules.
//
// A query runs through two phases: a semantic phase that embeds the query
// and ranks rules by cosine similarity against their stored vectors, and a
// keyword phase that derives lexical terms (payer-name tokens and canonical
// phrases) and scores matching rules by query occurrence density. The two
// scores blend with a configurable semantic weight, default 0.7. If the
// embedding provider is down, retrieval degrades to the keyword phase
// instead of failing.
//
// Responses are cached in an LRU with a TTL; ingestion invalidates the cache
// so a rule change is visible to the next query.
package retriever
