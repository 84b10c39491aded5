package registry

import (
	_ "embed"
	"fmt"
	"strings"
)

//go:embed catalog.json
var defaultCatalogJSON []byte

// LoadDefault builds a Catalog from the embedded default provider list,
// overlaid with userPath if it exists. Mirrors pkg/config's
// home-directory-relative load for other user-local files.
func LoadDefault(userPath string) (*Catalog, error) {
	return Load(defaultCatalogJSON, userPath)
}

// ResolveModel finds the first catalog entry, among ids instantiable given
// env, whose Models list contains model or a model sharing its dotted
// prefix (picked via PickLatestModel).
func (c *Catalog) ResolveModel(model string, env map[string]string) (Entry, error) {
	for _, id := range c.Available(env) {
		e := c.Entries[id]
		for _, m := range e.Models {
			if m == model {
				return e, nil
			}
		}
		if picked := PickLatestModel(e.Models, model); picked != "" {
			return e, nil
		}
	}
	return Entry{}, fmt.Errorf("registry: no instantiable provider serves model %q", model)
}

// ProviderIDFromModel guesses a provider id from a model name's vendor
// prefix when ResolveModel finds no catalog match (e.g. a brand new model
// release not yet listed). Falls back to the empty string.
func ProviderIDFromModel(model string) string {
	switch {
	case strings.HasPrefix(model, "claude-"):
		return "anthropic"
	case strings.HasPrefix(model, "gemini-"):
		return "google"
	case strings.HasPrefix(model, "gpt-") || strings.HasPrefix(model, "o1") || strings.HasPrefix(model, "o3") || strings.HasPrefix(model, "o4"):
		return "openai"
	default:
		return ""
	}
}
