// Package embedder generates vector embeddings for fragments and queries.
//
// Three providers implement the Embedder interface:
//
//   - OpenAIProvider calls the OpenAI embeddings endpoint through go-openai
//   - JinaProvider calls the Jina AI HTTP API
//   - LocalProvider hashes words into a fixed-size vector with no network
//
// # Basic Usage
//
//	emb, err := embedder.NewFromEnv()
//	if err != nil {
//	    return err
//	}
//	defer emb.Close()
//
//	svc := embedder.NewService(emb, embedder.DefaultBatchSize, logger)
//	vectors, err := svc.EmbedMany(ctx, texts) // split into provider-sized batches
//	query, err := svc.EmbedOne(ctx, "where is the config parsed")
//
// # Provider Selection
//
//  1. If CODERAG_EMBEDDING_PROVIDER is set → use specified provider
//  2. Else if OPENAI_API_KEY is set → use OpenAI
//  3. Else if JINA_API_KEY is set → use Jina AI
//  4. Else → local provider (offline mode)
//
// # Caching
//
// Providers share an LRU cache keyed by the SHA-256 of the text, so
// re-indexing unchanged fragments does not call the API again.
//
// # Error Handling
//
// Network failures, 429 rate limits and 5xx responses are retried with
// exponential backoff. Authentication failures (ErrAuth) and exhausted quota
// (ErrQuota) are returned on the first attempt:
//
//	if errors.Is(err, embedder.ErrAuth) {
//	    // fix the API key; retrying will not help
//	}
//
// Every provider failure also matches ErrProviderFailed.
package embedder
