package config

import (
	"os"
	"strings"
)

// DefaultAPIKeyFile is consulted when no environment key is set.
const DefaultAPIKeyFile = "gpt-api.txt"

// ResolveOpenAIAPIKey returns the first non-empty key from the environment
// (OPENAI_API_KEY, then ELITES_OPENAI_API_KEY), falling back to the key
// file. Returns "" when none is available.
func ResolveOpenAIAPIKey(apiKeyFile string) string {
	for _, env := range []string{"OPENAI_API_KEY", "ELITES_OPENAI_API_KEY"} {
		if val := strings.TrimSpace(os.Getenv(env)); val != "" {
			return val
		}
	}
	if apiKeyFile == "" {
		apiKeyFile = DefaultAPIKeyFile
	}
	data, err := os.ReadFile(apiKeyFile)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
