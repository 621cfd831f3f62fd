package llmprovider

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"agentforge/chat-api/internal/domain/auth"
	"agentforge/chat-api/internal/domain/llm"
)

//go:embed default_models.yaml
var defaultCatalog []byte

// ModelEntry is one model in the catalog file.
type ModelEntry struct {
	ID               string `yaml:"id"`
	Name             string `yaml:"name"`
	Description      string `yaml:"description"`
	Provider         string `yaml:"provider"`
	UpstreamModel    string `yaml:"upstreamModel"`
	BaseURL          string `yaml:"baseURL"`
	APIKeyEnv        string `yaml:"apiKeyEnv"`
	ContextLength    int    `yaml:"contextLength"`
	Reasoning        bool   `yaml:"reasoning"`
	Tier             string `yaml:"tier"`
	PricePer1kInput  string `yaml:"pricePer1kInput"`
	PricePer1kOutput string `yaml:"pricePer1kOutput"`
}

type catalogFile struct {
	Models []ModelEntry `yaml:"models"`
}

// LoadCatalog reads the catalog at path, or the embedded default when path is empty.
func LoadCatalog(path string) ([]ModelEntry, error) {
	data := defaultCatalog
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read model catalog: %w", err)
		}
		data = raw
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes and validates catalog YAML.
func ParseCatalog(data []byte) ([]ModelEntry, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode model catalog: %w", err)
	}
	if len(file.Models) == 0 {
		return nil, fmt.Errorf("model catalog is empty")
	}
	seen := make(map[string]struct{}, len(file.Models))
	for i := range file.Models {
		m := &file.Models[i]
		if strings.TrimSpace(m.ID) == "" {
			return nil, fmt.Errorf("model %d: id is required", i)
		}
		if _, dup := seen[m.ID]; dup {
			return nil, fmt.Errorf("model %q: duplicate id", m.ID)
		}
		seen[m.ID] = struct{}{}
		if m.UpstreamModel == "" {
			m.UpstreamModel = m.ID
		}
		if m.Name == "" {
			m.Name = m.ID
		}
		if m.Provider == "" {
			m.Provider = "openai"
		}
		if m.Tier == "" {
			m.Tier = auth.TierFree
		}
		if m.Tier != auth.TierFree && m.Tier != auth.TierPro {
			return nil, fmt.Errorf("model %q: unknown tier %q", m.ID, m.Tier)
		}
		if _, err := m.info(); err != nil {
			return nil, err
		}
	}
	return file.Models, nil
}

func (m ModelEntry) info() (llm.ModelInfo, error) {
	in, err := parsePrice(m.PricePer1kInput)
	if err != nil {
		return llm.ModelInfo{}, fmt.Errorf("model %q: input price: %w", m.ID, err)
	}
	out, err := parsePrice(m.PricePer1kOutput)
	if err != nil {
		return llm.ModelInfo{}, fmt.Errorf("model %q: output price: %w", m.ID, err)
	}
	return llm.ModelInfo{
		ID:               m.ID,
		Name:             m.Name,
		Description:      m.Description,
		Provider:         m.Provider,
		UpstreamModel:    m.UpstreamModel,
		ContextLength:    m.ContextLength,
		Reasoning:        m.Reasoning,
		Tier:             m.Tier,
		PricePer1kInput:  in,
		PricePer1kOutput: out,
	}, nil
}

func parsePrice(s string) (decimal.Decimal, error) {
	if strings.TrimSpace(s) == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, err
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("negative price %s", s)
	}
	return d, nil
}
