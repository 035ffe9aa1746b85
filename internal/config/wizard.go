package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/manifoldco/promptui"
)

// RunWizard runs an interactive configuration wizard and returns the
// resulting Config. It also saves the config to path.
func RunWizard(path string) (*Config, error) {
	fmt.Println("Welcome to lanne! Let's configure the assistant.")
	fmt.Println()

	cfg := DefaultConfig()

	// 1. Generation provider.
	providerPrompt := promptui.Select{
		Label: "Select LLM provider",
		Items: []string{ProviderOllama, ProviderOpenAI, ProviderOpenRouter, ProviderOpenAICompatible},
	}
	_, provider, err := providerPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("provider selection: %w", err)
	}
	preset := GetPreset(provider)

	// 2. Model.
	modelPrompt := promptui.Prompt{
		Label:   "Model",
		Default: preset.Model,
	}
	model, err := modelPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("model: %w", err)
	}

	// 3. Endpoint, for self-hosted providers only.
	var baseURL string
	if provider == ProviderOllama || provider == ProviderOpenAICompatible {
		def := ""
		if provider == ProviderOpenAICompatible {
			def = "http://localhost:8000/v1"
		}
		urlPrompt := promptui.Prompt{
			Label:    "Endpoint URL (blank for default)",
			Default:  def,
			Validate: validateOptionalURL,
		}
		if baseURL, err = urlPrompt.Run(); err != nil {
			return nil, fmt.Errorf("endpoint: %w", err)
		}
	}

	// 4. Knowledge-base files.
	includePrompt := promptui.Prompt{
		Label:   "Knowledge-base include patterns (comma-separated globs)",
		Default: strings.Join(cfg.Ingest.Include, ","),
	}
	includeStr, err := includePrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("include patterns: %w", err)
	}

	// 5. Remote Linux agent.
	agentPrompt := promptui.Prompt{
		Label:    "Linux agent URL (blank to disable)",
		Validate: validateOptionalURL,
	}
	agentURL, err := agentPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("agent url: %w", err)
	}

	// 6. Web search.
	webPrompt := promptui.Select{
		Label: "Enable Tavily web search",
		Items: []string{"yes", "no"},
	}
	webIdx, _, err := webPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("web search: %w", err)
	}

	cfg.LLM.Provider = provider
	cfg.LLM.Model = model
	cfg.LLM.BaseURL = strings.TrimSpace(baseURL)
	cfg.Embedding.Provider = preset.EmbeddingProvider
	cfg.Embedding.Model = preset.EmbeddingModel
	cfg.Embedding.Dimensions = preset.Dimensions
	if agentURL = strings.TrimSpace(agentURL); agentURL != "" {
		cfg.Agent.Enabled = true
		cfg.Agent.URL = agentURL
	}
	cfg.WebSearch.Enabled = webIdx == 0
	if include := splitAndTrim(includeStr); len(include) > 0 {
		cfg.Ingest.Include = include
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	for _, envVar := range missingEnv(cfg) {
		fmt.Printf("\nNote: Set %s in your environment before running lanne server.\n", envVar)
	}

	if err := cfg.Save(path); err != nil {
		return nil, fmt.Errorf("saving config: %w", err)
	}

	fmt.Printf("\nConfiguration saved to %s\n", path)
	return cfg, nil
}

// missingEnv lists the secrets the configuration needs that are not set.
func missingEnv(cfg *Config) []string {
	var out []string
	seen := map[string]bool{}
	need := func(name string) {
		if name != "" && !seen[name] && os.Getenv(name) == "" {
			seen[name] = true
			out = append(out, name)
		}
	}
	if cfg.LLM.Provider != ProviderOpenAICompatible {
		need(APIKeyEnvVar(cfg.LLM.Provider))
	}
	need(APIKeyEnvVar(cfg.Embedding.Provider))
	if cfg.WebSearch.Enabled {
		need("TAVILY_API_KEY")
	}
	if cfg.Agent.Enabled {
		need("LANNE_AGENT_TOKEN")
	}
	if cfg.Auth.Enabled {
		need("LANNE_AUTH_SECRET")
	}
	return out
}

func validateOptionalURL(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if !strings.HasPrefix(s, "http://") && !strings.HasPrefix(s, "https://") {
		return fmt.Errorf("must start with http:// or https://")
	}
	return nil
}

// splitAndTrim splits a comma-separated string and trims whitespace.
func splitAndTrim(s string) []string {
	var result []string
	for _, part := range strings.Split(s, ",") {
		if token := strings.TrimSpace(part); token != "" {
			result = append(result, token)
		}
	}
	return result
}
