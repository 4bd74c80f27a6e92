package config

import "os"

// modelAliasVars are the environment variable names the hosted-Claude CLI
// reads for its four model aliases. All four are mapped to the single
// configured model, per SPEC_FULL.md §6.
var modelAliasVars = []string{
	"ANTHROPIC_DEFAULT_OPUS_MODEL",
	"ANTHROPIC_DEFAULT_SONNET_MODEL",
	"ANTHROPIC_DEFAULT_HAIKU_MODEL",
	"CLAUDE_CODE_SUBAGENT_MODEL",
}

// BuildCoderEnv composes the environment for the code-executor adapter's
// child process: the caller's process environment overlaid with the coder
// auth token, base URL, model aliases, and any user-supplied [coder.env]
// extras.
func (c *CoderConfig) BuildCoderEnv() []string {
	base := os.Environ()
	overlay := map[string]string{
		"ANTHROPIC_AUTH_TOKEN": c.APIToken,
		"ANTHROPIC_BASE_URL":   c.BaseURL,
	}
	for _, v := range modelAliasVars {
		overlay[v] = c.Model
	}
	for k, v := range c.Env {
		overlay[k] = v
	}
	return mergeEnv(base, overlay)
}

// mergeEnv overlays key=value pairs from overlay onto base (in os.Environ
// form), with overlay keys taking precedence over any same-named base entry.
func mergeEnv(base []string, overlay map[string]string) []string {
	seen := make(map[string]bool, len(overlay))
	result := make([]string, 0, len(base)+len(overlay))

	for _, kv := range base {
		key := splitEnvKey(kv)
		if v, ok := overlay[key]; ok {
			if !seen[key] {
				result = append(result, key+"="+v)
				seen[key] = true
			}
			continue
		}
		result = append(result, kv)
	}
	for k, v := range overlay {
		if !seen[k] {
			result = append(result, k+"="+v)
			seen[k] = true
		}
	}
	return result
}

func splitEnvKey(kv string) string {
	for i := 0; i < len(kv); i++ {
		if kv[i] == '=' {
			return kv[:i]
		}
	}
	return kv
}
