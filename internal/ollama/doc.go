// Package ollama is an HTTP client for a local Ollama server, covering the
// embeddings, generate, and chat endpoints.
//
// # Basic Usage
//
//	client := ollama.New(ollama.Config{
//	    Host:  "http://localhost:11434",
//	    Model: "gpt-oss:20b",
//	}, nil)
//	defer client.Close()
//
//	res, err := client.Generate(ctx, ollama.GenerateRequest{
//	    Prompt: "Explain chunking in one sentence.",
//	})
//	fmt.Println(res.ResponseText)
//
// # Streaming
//
// Generation and chat support newline-delimited JSON streaming through a
// callback; the full text is still accumulated and returned:
//
//	res, err := client.GenerateStream(ctx, req, func(token string) error {
//	    fmt.Print(token)
//	    return nil
//	})
//
// # Embedding Cache
//
// When constructed with a VectorCache, EmbedTexts consults it before calling
// the server and writes fresh vectors back, so re-ingesting unchanged content
// costs no API calls.
//
// # Rate Limiting and Retries
//
// Config.CallsPerMinute applies a client-side token bucket across all
// endpoints (0 disables it). Non-streaming calls retry transient failures
// (connection errors, 429, 5xx) with exponential backoff and jitter;
// streaming calls fail fast.
package ollama
