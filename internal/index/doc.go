// Package index backfills vector embeddings for rules in the knowledge
// base. Ingestion stores rules without vectors; the backfill sweeps the
// current rules missing one, embeds them in provider-sized batches and tags
// each row with the "<provider>:<model>" that produced its vector.
package index
