// Package embedder generates vector embeddings for content chunks and search
// queries.
//
// Two providers are available: OpenAI (or any gateway exposing the same
// embeddings API, selected with a base URL) and a local hashed bag-of-words
// provider that works offline. Both cache embeddings by content hash.
//
// # Basic Usage
//
//	emb, err := embedder.New(embedder.Config{Provider: "openai", APIKey: key})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer emb.Close()
//
//	result, err := emb.GenerateEmbedding(ctx, embedder.EmbeddingRequest{
//	    Text: embedder.SanitizeText(query),
//	})
//
// # Batch Processing
//
// EmbedAll splits a long list into provider-sized batches, sends them one at
// a time and returns the embeddings in input order with the summed token
// usage:
//
//	resp, err := embedder.EmbedAll(ctx, emb, texts, 50)
//	for i, vector := range resp.Vectors() {
//	    // vector belongs to texts[i]
//	}
//
// # Provider Selection
//
// New builds the provider named by Config.Provider: "openai" (APIKey
// required, BaseURL overrides the endpoint) or "local", the default.
//
// # Error Handling
//
// Rate limits, server errors and transient network failures are retried with
// the configured retry.Policy. Exhausted retries surface as ErrProviderFailed:
//
//	if errors.Is(err, embedder.ErrProviderFailed) {
//	    // record a status error and carry on
//	}
package embedder
