package provider

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/openai/openai-go"

	apperrors "github.com/meetwise/streamcore/internal/errors"
	"github.com/meetwise/streamcore/internal/resilience"
	"github.com/meetwise/streamcore/internal/trace"
)

// OpenAIEmbedder implements Embedder over the OpenAI embeddings API with a
// circuit breaker on the hot path. The client reads OPENAI_API_KEY itself.
type OpenAIEmbedder struct {
	client  openai.Client
	model   string
	breaker *resilience.Breaker
	retry   resilience.RetryConfig
}

// NewOpenAIEmbedder creates an embedder for the given model.
func NewOpenAIEmbedder(model string) *OpenAIEmbedder {
	return &OpenAIEmbedder{
		client:  openai.NewClient(),
		model:   model,
		breaker: resilience.New(resilience.FastConfig()),
		retry:   resilience.DefaultRetryConfig(),
	}
}

// Embed returns the embedding for one text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string, normalize bool) ([]float32, error) {
	vecs, err := e.EmbedMany(ctx, []string{text}, normalize)
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedMany embeds a batch of texts in one call.
func (e *OpenAIEmbedder) EmbedMany(ctx context.Context, texts []string, normalize bool) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	ctx, span := trace.StartSpan(ctx, "embed_many")
	defer span.End()
	span.SetAttr("count", len(texts))

	var resp *openai.CreateEmbeddingResponse
	err := e.breaker.Execute(func() error {
		return resilience.Retry(ctx, e.retry, func() error {
			var callErr error
			resp, callErr = e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
				Model: openai.EmbeddingModel(e.model),
				Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
			})
			return callErr
		})
	})
	if err != nil {
		span.SetAttr("error", err.Error())
		return nil, apperrors.Wrap(err, apperrors.CodeEmbeddingUnavailable, "embedding call failed")
	}
	if len(resp.Data) != len(texts) {
		return nil, apperrors.Newf(apperrors.CodeEmbeddingUnavailable, "expected %d embeddings, got %d", len(texts), len(resp.Data))
	}

	out := make([][]float32, len(texts))
	for i, d := range resp.Data {
		vec := make([]float32, len(d.Embedding))
		for j, x := range d.Embedding {
			vec[j] = float32(x)
		}
		if normalize && !Normalize(vec) {
			return nil, apperrors.New(apperrors.CodeEmbeddingUnavailable, "provider returned zero vector")
		}
		out[i] = vec
	}
	return out, nil
}

// OpenAIExtractor implements Extractor via a streamed chat completion with a
// structured-output schema, then replays the parsed candidates in order.
type OpenAIExtractor struct {
	client  openai.Client
	model   string
	breaker *resilience.Breaker
	retry   resilience.RetryConfig
	schema  map[string]interface{}
}

// NewOpenAIExtractor creates an extractor for the given chat model.
func NewOpenAIExtractor(model string) *OpenAIExtractor {
	return &OpenAIExtractor{
		client:  openai.NewClient(),
		model:   model,
		breaker: resilience.New(resilience.DefaultConfig()),
		retry:   resilience.ExtractionRetryConfig(),
		schema:  GenerateSchema[batchWire](),
	}
}

// Extract runs the model over accumulated context and emits each candidate.
func (x *OpenAIExtractor) Extract(ctx context.Context, req ExtractRequest, emit func(json.RawMessage) error) error {
	ctx, span := trace.StartSpan(ctx, "extract_insights")
	defer span.End()
	span.SetAttr("chunks", len(req.Context))

	var content string
	err := x.breaker.Execute(func() error {
		return resilience.Retry(ctx, x.retry, func() error {
			var callErr error
			content, callErr = x.complete(ctx, req)
			return callErr
		})
	})
	if err != nil {
		span.SetAttr("error", err.Error())
		return apperrors.Wrap(err, apperrors.CodeExtractionFailed, "extraction call failed")
	}

	var batch struct {
		Candidates []json.RawMessage `json:"candidates"`
	}
	if err := json.Unmarshal([]byte(content), &batch); err != nil {
		return apperrors.Wrap(err, apperrors.CodeExtractionFailed, "extraction output is not valid JSON")
	}

	span.SetAttr("candidates", len(batch.Candidates))
	for _, raw := range batch.Candidates {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := emit(raw); err != nil {
			return err
		}
	}
	return nil
}

func (x *OpenAIExtractor) complete(ctx context.Context, req ExtractRequest) (string, error) {
	stream := x.client.Chat.Completions.NewStreaming(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(x.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(extractSystemPrompt),
			openai.UserMessage(buildExtractPrompt(req)),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:        "insight_batch",
					Description: openai.String("Questions, actions, updates, and answers detected in the transcript"),
					Schema:      x.schema,
					Strict:      openai.Bool(true),
				},
			},
		},
	})

	acc := openai.ChatCompletionAccumulator{}
	for stream.Next() {
		acc.AddChunk(stream.Current())
	}
	if err := stream.Err(); err != nil {
		return "", err
	}
	if len(acc.Choices) == 0 {
		return "", apperrors.New(apperrors.CodeExtractionFailed, "model returned no choices")
	}
	return acc.Choices[0].Message.Content, nil
}

func buildExtractPrompt(req ExtractRequest) string {
	var b strings.Builder
	b.WriteString("Transcript segment:\n")
	for _, chunk := range req.Context {
		b.WriteString(chunk)
		b.WriteString("\n")
	}
	if len(req.ActiveQuestions) > 0 {
		b.WriteString("\nOpen questions already tracked (reference these verbatim in question_text when answering):\n")
		for _, q := range req.ActiveQuestions {
			b.WriteString("- " + q + "\n")
		}
	}
	if len(req.ActiveActions) > 0 {
		b.WriteString("\nAction items already tracked (reference these verbatim in action_text when updating):\n")
		for _, a := range req.ActiveActions {
			b.WriteString("- " + a + "\n")
		}
	}
	return b.String()
}
