// Package embedder generates vector embeddings for payer rule text and
// search queries.
//
// Three providers are supported: OpenAI and Jina AI via their HTTP embedding
// APIs, and a local provider that derives deterministic vectors from a hash
// of the text. The provider is picked from the environment:
//
//	PAYERWATCH_EMBEDDING_PROVIDER  explicit choice (openai, jina, local)
//	OPENAI_API_KEY / JINA_API_KEY  auto-detected when no explicit choice
//
// With neither set the local provider is used, so the server always starts.
// All providers share an LRU cache keyed by SHA-256 of the text, and the
// HTTP providers retry transient failures with exponential backoff.
package embedder
