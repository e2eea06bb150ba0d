// Package provider selects and constructs LLM backend implementations at
// runtime. Supported backends: Ollama, OpenAI, Azure OpenAI, AWS Bedrock,
// Google Gemini.
package provider

import (
	"fmt"
	"strings"
)

// Backend enumerates the supported LLM inference providers.
type Backend string

const (
	// BackendOllama selects a locally running Ollama instance.
	BackendOllama Backend = "ollama"
	// BackendOpenAI selects the OpenAI API.
	BackendOpenAI Backend = "openai"
	// BackendAzure selects Azure OpenAI Service.
	BackendAzure Backend = "azure"
	// BackendBedrock selects AWS Bedrock.
	BackendBedrock Backend = "bedrock"
	// BackendGemini selects Google Gemini via Vertex AI or AI Studio.
	BackendGemini Backend = "gemini"
)

// ProviderOllama holds Ollama-specific settings.
type ProviderOllama struct {
	// Host is the Ollama server base URL (e.g. "http://localhost:11434").
	Host string
	// Model is the model name to run (e.g. "llama3").
	Model string
}

// ProviderOpenAI holds OpenAI-specific settings.
type ProviderOpenAI struct {
	// APIKey is the OpenAI API key.
	APIKey string
	// Model is the model name (e.g. "gpt-4o").
	Model string
}

// ProviderAzureOpenAI holds Azure OpenAI Service settings.
type ProviderAzureOpenAI struct {
	// APIKey is the Azure OpenAI key.
	APIKey string
	// Endpoint is the resource endpoint (e.g. "https://my.openai.azure.com").
	Endpoint string
	// Deployment is the deployment name to invoke.
	Deployment string
	// APIVersion is the REST API version (e.g. "2024-02-01").
	APIVersion string
}

// ProviderBedrock holds AWS Bedrock settings. Credentials are resolved via
// the standard AWS SDK chain, never through this struct.
type ProviderBedrock struct {
	// AWSRegion is the region hosting the Bedrock endpoint.
	AWSRegion string
	// ModelID is the Bedrock model identifier (e.g. "anthropic.claude-3").
	ModelID string
	// Endpoint optionally overrides the Bedrock-compatible base URL.
	Endpoint string
	// APIKey is the bearer token for Bedrock API-key auth, when used.
	APIKey string
}

// ProviderGemini holds Google Gemini settings.
type ProviderGemini struct {
	// APIKey is the AI Studio API key.
	APIKey string
	// Model is the model name (e.g. "gemini-1.5-pro").
	Model string
}

// SharedTuning holds generation parameters common to all backends.
type SharedTuning struct {
	// MaxTokens caps the number of tokens the model may generate per response.
	MaxTokens int
	// Temperature controls response randomness (0.0–1.0).
	Temperature float32
}

// Config holds all provider-level configuration resolved from environment
// variables or explicit caller-supplied values. Only the section matching
// Backend is consulted.
type Config struct {
	// Backend identifies which inference provider to use.
	Backend Backend

	Ollama      ProviderOllama
	OpenAI      ProviderOpenAI
	AzureOpenAI ProviderAzureOpenAI
	Bedrock     ProviderBedrock
	Gemini      ProviderGemini

	// Tuning holds shared generation parameters.
	Tuning SharedTuning
}

// Validate checks that the section matching cfg.Backend carries the required
// fields, returning an error naming the missing environment variable.
func (cfg *Config) Validate() error {
	switch cfg.Backend {
	case BackendOllama:
		if cfg.Ollama.Model == "" {
			return fmt.Errorf("provider: OLLAMA_MODEL is required for ollama backend")
		}
	case BackendOpenAI:
		if cfg.OpenAI.APIKey == "" {
			return fmt.Errorf("provider: OPENAI_API_KEY is required for openai backend")
		}
		if cfg.OpenAI.Model == "" {
			return fmt.Errorf("provider: OPENAI_MODEL is required for openai backend")
		}
	case BackendAzure:
		if cfg.AzureOpenAI.APIKey == "" {
			return fmt.Errorf("provider: AZURE_OPENAI_API_KEY is required for azure backend")
		}
		if cfg.AzureOpenAI.Endpoint == "" {
			return fmt.Errorf("provider: AZURE_OPENAI_ENDPOINT is required for azure backend")
		}
		if cfg.AzureOpenAI.Deployment == "" {
			return fmt.Errorf("provider: AZURE_OPENAI_DEPLOYMENT is required for azure backend")
		}
	case BackendBedrock:
		if cfg.Bedrock.ModelID == "" {
			return fmt.Errorf("provider: BEDROCK_MODEL_ID is required for bedrock backend")
		}
		if cfg.Bedrock.AWSRegion == "" {
			return fmt.Errorf("provider: AWS_REGION is required for bedrock backend")
		}
	case BackendGemini:
		if cfg.Gemini.APIKey == "" {
			return fmt.Errorf("provider: GOOGLE_API_KEY is required for gemini backend")
		}
		if cfg.Gemini.Model == "" {
			return fmt.Errorf("provider: GEMINI_MODEL is required for gemini backend")
		}
	default:
		return fmt.Errorf("provider: unknown backend %q — valid values: ollama, openai, azure, bedrock, gemini", cfg.Backend)
	}
	return nil
}

// isAzureReasoningModel reports whether the Azure deployment name refers to an
// o-series or codex-class reasoning model. These reject the temperature
// parameter, so backends must omit it.
func isAzureReasoningModel(deployment string) bool {
	d := strings.ToLower(deployment)
	if strings.HasPrefix(d, "codex") {
		return true
	}
	for _, series := range []string{"o1", "o3", "o4"} {
		if d == series || strings.HasPrefix(d, series+"-") {
			return true
		}
	}
	return false
}
