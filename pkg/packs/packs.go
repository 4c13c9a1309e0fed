// Package packs holds the compliance pack catalog and per-organization
// enablement. The catalog is compiled in; versions change with releases,
// not at runtime.
package packs

// Check is one regulatory check inside a pack.
type Check struct {
	CheckID     string `json:"checkId"`
	Name        string `json:"name"`
	Severity    string `json:"severity"`
	Description string `json:"description"`
}

// Pack is a versioned set of compliance checks for one jurisdiction.
type Pack struct {
	PackID       string   `json:"pack_id"`
	Name         string   `json:"name"`
	Jurisdiction string   `json:"jurisdiction"`
	Version      string   `json:"version"`
	Tier         string   `json:"tier"`
	Frameworks   []string `json:"frameworks"`
	Checks       []Check  `json:"checks"`
}

// Summary is the public listing shape: everything but the checks themselves.
type Summary struct {
	PackID       string   `json:"pack_id"`
	Name         string   `json:"name"`
	Jurisdiction string   `json:"jurisdiction"`
	Version      string   `json:"version"`
	Tier         string   `json:"tier"`
	Frameworks   []string `json:"frameworks"`
	ChecksCount  int      `json:"checks_count"`
}

// All returns the catalog in its stable declaration order.
func All() []Pack { return catalog }

// CatalogVersion is the release tag shared by every pack in the catalog.
func CatalogVersion() string { return catalogVersion }

// ByID returns the pack and whether it exists.
func ByID(packID string) (Pack, bool) {
	for _, p := range catalog {
		if p.PackID == packID {
			return p, true
		}
	}
	return Pack{}, false
}

// Summaries lists every pack without its check bodies.
func Summaries() []Summary {
	out := make([]Summary, 0, len(catalog))
	for _, p := range catalog {
		out = append(out, Summary{
			PackID:       p.PackID,
			Name:         p.Name,
			Jurisdiction: p.Jurisdiction,
			Version:      p.Version,
			Tier:         p.Tier,
			Frameworks:   p.Frameworks,
			ChecksCount:  len(p.Checks),
		})
	}
	return out
}
