// Live tests against a local Ollama. Set OLLAMA_INTEGRATION=1 to run them;
// OLLAMA_HOST, DEFAULT_MODEL and DEFAULT_EMBED_MODEL are honoured.

package integration

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"ai-chat-relay-be/pkg/embedding"
	"ai-chat-relay-be/pkg/llm"
	"ai-chat-relay-be/pkg/llm/ollama"
	"ai-chat-relay-be/pkg/rag/index"
	"ai-chat-relay-be/pkg/rag/ingest"
	"ai-chat-relay-be/pkg/rag/loader"
	"ai-chat-relay-be/pkg/rag/retrieval"
	"ai-chat-relay-be/pkg/thinktag"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func requireOllama(t *testing.T) (host, model, embedModel string) {
	t.Helper()
	_ = godotenv.Load("../../.env")
	if os.Getenv("OLLAMA_INTEGRATION") == "" {
		t.Skip("Skipping integration test: OLLAMA_INTEGRATION not set")
	}
	return envOr("OLLAMA_HOST", "http://localhost:11434"),
		envOr("DEFAULT_MODEL", "llama3.2:latest"),
		envOr("DEFAULT_EMBED_MODEL", "nomic-embed-text:latest")
}

// TestOllamaListModels verifies Ollama is running and reports its catalog
func TestOllamaListModels(t *testing.T) {
	host, model, _ := requireOllama(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	models, err := ollama.NewOllamaProvider(host, model).ListModels(ctx)
	require.NoError(t, err)
	for _, m := range models {
		assert.NotEmpty(t, m.Name())
	}
	t.Logf("✅ Ollama is running at %s with %d models", host, len(models))
}

// TestOllamaStreamMatchesChat checks that a streamed reply decodes cleanly
func TestOllamaStreamMatchesChat(t *testing.T) {
	host, model, _ := requireOllama(t)
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	p := ollama.NewOllamaProvider(host, model)
	history := []llm.Message{{Role: llm.RoleUser, Content: "Say 'Ollama works!' in one sentence."}}

	s, err := p.ChatStream(ctx, history)
	require.NoError(t, err)
	defer s.Close()

	dec := thinktag.NewDecoder()
	var answer strings.Builder
	fragments := 0
	for s.Next() {
		fragments++
		for _, seg := range dec.Write([]byte(s.Fragment())) {
			if seg.Kind == thinktag.Answer {
				answer.WriteString(seg.Text)
			}
		}
	}
	require.NoError(t, s.Err())
	for _, seg := range dec.Flush() {
		if seg.Kind == thinktag.Answer {
			answer.WriteString(seg.Text)
		}
	}

	assert.Positive(t, fragments)
	assert.NotEmpty(t, strings.TrimSpace(answer.String()))
	t.Logf("✅ Response (%d fragments): %s", fragments, answer.String())
}

// TestOllamaRAGRoundTrip ingests a small document and retrieves from it
func TestOllamaRAGRoundTrip(t *testing.T) {
	host, _, embedModel := requireOllama(t)
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	embedder := embedding.NewOllamaProvider(host, embedModel)
	pipeline := ingest.New(embedder, index.MemoryBuilder{})

	res, err := pipeline.Ingest(ctx, []ingest.File{
		ingest.BytesFile("zebra.txt", loader.TypeText, []byte("Zebras have black and white stripes that confuse biting flies.")),
		ingest.BytesFile("kernel.txt", loader.TypeText, []byte("The Linux kernel scheduler balances runnable tasks across CPUs.")),
	})
	require.NoError(t, err)
	require.NotNil(t, res.Index)

	docContext, err := retrieval.BuildContext(ctx, "Why do zebras have stripes?", res.Index, embedder, 1)
	require.NoError(t, err)
	assert.Contains(t, docContext, "Zebras")
}
