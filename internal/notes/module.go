package notes

import (
	"go.uber.org/fx"

	config "github.com/tigerroll/notepipe/pkg/batch/core/config"
	metrics "github.com/tigerroll/notepipe/pkg/batch/core/metrics"
)

// ClientParams defines the dependencies of the model clients.
type ClientParams struct {
	fx.In
	Config   *config.Config
	Recorder metrics.MetricRecorder `optional:"true"`
}

// NewCompletionClientProvider provides the completion client configured under
// notepipe.clients.completion.
func NewCompletionClientProvider(p ClientParams) (*CompletionClient, error) {
	return NewCompletionClient(p.Config.Notepipe.Clients.Completion, ClientOptions{Recorder: p.Recorder})
}

// NewEmbeddingClientProvider provides the embedding client configured under
// notepipe.clients.embedding.
func NewEmbeddingClientProvider(p ClientParams) (*EmbeddingClient, error) {
	return NewEmbeddingClient(p.Config.Notepipe.Clients.Embedding, ClientOptions{Recorder: p.Recorder})
}

// Module provides both model clients, each also exposed through its worker-facing interface.
var Module = fx.Options(
	fx.Provide(
		NewCompletionClientProvider,
		NewEmbeddingClientProvider,
		func(c *CompletionClient) Completer { return c },
		func(c *EmbeddingClient) Embedder { return c },
	),
)
