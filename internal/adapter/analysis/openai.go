package analysis

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const (
	// DefaultModel is the chat model used for cluster summaries.
	DefaultModel = "gpt-4o-mini"

	defaultMaxRetries = 3
	defaultRetryDelay = 2 * time.Second
)

// Summarizer asks a chat model to characterize a cluster from sampled record
// texts. Transient API failures are retried with a fixed delay.
type Summarizer struct {
	client     *openai.Client
	model      string
	maxRetries int
	retryDelay time.Duration
}

// NewSummarizer creates a summarizer reading its API key from the given
// environment variable.
func NewSummarizer(apiKeyEnv, model string) (*Summarizer, error) {
	apiKey := os.Getenv(apiKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("API key not found in environment variable: %s", apiKeyEnv)
	}
	if model == "" {
		model = DefaultModel
	}
	return &Summarizer{
		client:     openai.NewClient(apiKey),
		model:      model,
		maxRetries: defaultMaxRetries,
		retryDelay: defaultRetryDelay,
	}, nil
}

// Summarize prompts the model for a brief title and three-sentence summary of
// the cluster, given its sampled record texts.
func (s *Summarizer) Summarize(ctx context.Context, clusterNum int, samples []string) (string, error) {
	var sb strings.Builder
	for i, sample := range samples {
		fmt.Fprintf(&sb, "Record #%d:\n%s\n\n", i, sample)
	}

	prompt := fmt.Sprintf(`I have a cluster (Cluster #%d) of resume data. Here are %d sample resumes from this cluster:

%s
Based on only these samples, please analyze and identify:
- Common skills, experiences, or qualifications in this cluster
- The likely job roles or industries these resumes target
- Any other notable patterns or similarities

Format your response as a concise, direct, three sentence summary of the cluster.
Three sentences maximum for the whole response.
Give a brief title for the cluster, then give two newlines, then give the summary.
Do not use markdown for the summary.`, clusterNum, len(samples), sb.String())

	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(s.retryDelay):
			}
		}

		resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: s.model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleUser, Content: prompt},
			},
		})
		if err != nil {
			lastErr = err
			continue
		}
		if len(resp.Choices) == 0 {
			lastErr = fmt.Errorf("chat completion returned no choices")
			continue
		}
		return resp.Choices[0].Message.Content, nil
	}

	return "", fmt.Errorf("chat completion failed after %d attempts: %w", s.maxRetries+1, lastErr)
}

// ModelName returns the chat model in use.
func (s *Summarizer) ModelName() string {
	return s.model
}
