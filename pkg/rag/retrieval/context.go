package retrieval

import (
	"context"
	"fmt"
	"strings"

	"ai-chat-relay-be/pkg/embedding"
	"ai-chat-relay-be/pkg/rag/index"
)

const (
	DefaultTopK = 3

	separator = "\n\n"

	promptTemplate = "You are an assistant for question-answering tasks. Use the following context to answer the question. \n" +
		"If you don't know the answer, say you don't know. Be concise and helpful.\n\n" +
		"Context: %s\n\n" +
		"Question: %s\n\n" +
		"Answer:"
)

// BuildContext embeds query and joins the texts of the k most similar windows,
// best first. It returns "" without calling the embedder when there is no
// index to search.
func BuildContext(ctx context.Context, query string, searcher index.Searcher, embedder embedding.EmbeddingProvider, k int) (string, error) {
	if searcher == nil || searcher.Len() == 0 || k <= 0 {
		return "", nil
	}

	res, err := embedder.Generate(ctx, query)
	if err != nil {
		return "", fmt.Errorf("embed query: %w", err)
	}

	hits, err := searcher.Search(ctx, res.Embedding.Values, k)
	if err != nil {
		return "", fmt.Errorf("search index: %w", err)
	}

	texts := make([]string, len(hits))
	for i, h := range hits {
		texts[i] = h.Window.Text
	}
	return strings.Join(texts, separator), nil
}

// AugmentPrompt wraps question in the question-answering template. An empty
// context leaves the question untouched.
func AugmentPrompt(context, question string) string {
	if context == "" {
		return question
	}
	return fmt.Sprintf(promptTemplate, context, question)
}
