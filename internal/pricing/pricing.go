package pricing

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// TokenPricing converts a network's smallest unit into its token and USD.
type TokenPricing struct {
	MistPerToken uint64  `yaml:"mist_per_token"`
	USDPerToken  float64 `yaml:"usd_per_token"`
}

type Table struct {
	Networks map[string]TokenPricing
}

func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading pricing file: %w", err)
	}
	var networks map[string]TokenPricing
	if err := yaml.Unmarshal(data, &networks); err != nil {
		return nil, fmt.Errorf("parsing pricing file: %w", err)
	}
	for name, p := range networks {
		if p.MistPerToken == 0 {
			return nil, fmt.Errorf("pricing for %q: mist_per_token must be positive", name)
		}
	}
	return &Table{Networks: networks}, nil
}

// Has reports whether the table prices network.
func (t *Table) Has(network string) bool {
	if t == nil || t.Networks == nil {
		return false
	}
	_, ok := t.Networks[network]
	return ok
}

// Cost converts an amount in MIST to USD. Negative amounts (net rebates)
// stay negative. Unknown networks cost 0.
func (t *Table) Cost(network string, mist float64) float64 {
	if !t.Has(network) {
		return 0
	}
	p := t.Networks[network]
	return mist / float64(p.MistPerToken) * p.USDPerToken
}
