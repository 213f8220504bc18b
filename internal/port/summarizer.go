package port

import "context"

// Summarizer produces a short natural-language summary of a cluster from a
// sample of its records.
type Summarizer interface {
	// Summarize analyzes the sampled record texts of one cluster and
	// returns a brief title plus summary.
	Summarize(ctx context.Context, clusterNum int, samples []string) (string, error)

	// ModelName returns the name of the model.
	ModelName() string
}
