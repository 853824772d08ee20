package llm

import (
	"fmt"
	"sort"
	"strings"
)

// Provider is a preset for a known OpenAI-compatible backend.
type Provider struct {
	Name         string
	APIURL       string
	DefaultModel string
	// EnvKey is the environment variable holding the credential.
	// Empty means the backend needs none.
	EnvKey string
}

var providers = map[string]Provider{
	"perplexity": {
		Name:         "perplexity",
		APIURL:       "https://api.perplexity.ai/chat/completions",
		DefaultModel: "sonar",
		EnvKey:       "PERPLEXITY_API_KEY",
	},
	"openai": {
		Name:         "openai",
		APIURL:       "https://api.openai.com/v1/chat/completions",
		DefaultModel: "gpt-4o-mini",
		EnvKey:       "OPENAI_API_KEY",
	},
	"groq": {
		Name:         "groq",
		APIURL:       "https://api.groq.com/openai/v1/chat/completions",
		DefaultModel: "llama-3.3-70b-versatile",
		EnvKey:       "GROQ_API_KEY",
	},
	"ollama": {
		Name:         "ollama",
		APIURL:       "http://localhost:11434/v1/chat/completions",
		DefaultModel: "llama3.1",
	},
}

// LookupProvider returns the preset for name (case-insensitive).
func LookupProvider(name string) (Provider, error) {
	p, ok := providers[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Provider{}, fmt.Errorf("unknown provider %q (known: %s)", name, strings.Join(ProviderNames(), ", "))
	}
	return p, nil
}

// ProviderNames lists known providers in name order.
func ProviderNames() []string {
	names := make([]string, 0, len(providers))
	for n := range providers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// IsPlaceholderKey reports whether key is a template value such as
// "pplx-xxx" or "sk-xxxx" left in an example environment file.
func IsPlaceholderKey(key string) bool {
	k := strings.ToLower(strings.TrimSpace(key))
	if k == "" {
		return true
	}
	if i := strings.IndexByte(k, '-'); i >= 0 {
		k = k[i+1:]
	}
	return strings.Trim(k, "x.") == "" || k == "your_api_key" || k == "changeme"
}
