package embed

import "fmt"

// Config selects and configures an embedding Provider.
type Config struct {
	// Provider names the backend: "openai-compatible", "voyageai-compatible", or "mock".
	Provider string
	// Endpoint is the HTTP base URL to POST embedding requests to.
	Endpoint string
	// Model is the provider-specific model name sent in each request.
	Model string
	// APIKeyEnv names the environment variable holding the bearer credential.
	APIKeyEnv string
	// Dimensions is the expected output vector width, validated against the
	// provider's first response.
	Dimensions int
	// BatchSize caps how many texts are sent per HTTP request.
	BatchSize int
}

// NewProvider builds a Provider from Config.
func NewProvider(cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "openai-compatible":
		return newHTTPProvider(cfg, openAIRequestShape{})
	case "voyageai-compatible":
		return newHTTPProvider(cfg, voyageAIRequestShape{})
	case "mock", "":
		return NewMockProvider(cfg.Dimensions), nil
	default:
		return nil, fmt.Errorf("embed: unsupported provider %q (supported: openai-compatible, voyageai-compatible, mock)", cfg.Provider)
	}
}
