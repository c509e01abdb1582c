// Package knowledge loads the static nutrition knowledge base. The data is
// read once and never mutated, so a Base is safe for concurrent use.
package knowledge

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/nutrimama/nutrimama/internal/domain"
	"gopkg.in/yaml.v3"
)

//go:embed nutrition.yaml
var defaultYAML []byte

var ErrEmptyKnowledgeBase = errors.New("knowledge base lists no foods")

type NutrientInfo struct {
	Role               string             `yaml:"role" json:"role"`
	DeficiencySymptoms []domain.SymptomID `yaml:"deficiency_symptoms" json:"deficiency_symptoms"`
}

type document struct {
	Nutrients map[domain.NutrientID]NutrientInfo `yaml:"nutrients"`
	Foods     []domain.FoodInfo                  `yaml:"foods"`
	Rules     domain.SafetyRules                 `yaml:"rules"`
}

// Base is an in-memory knowledge base.
type Base struct {
	nutrients  map[domain.NutrientID]NutrientInfo
	foods      map[domain.FoodID]domain.FoodInfo
	byNutrient map[domain.NutrientID][]domain.FoodInfo
	rules      domain.SafetyRules
}

// Default returns the knowledge base compiled into the binary.
func Default() *Base {
	b, err := Parse(defaultYAML)
	if err != nil {
		panic(fmt.Sprintf("knowledge: embedded nutrition.yaml is invalid: %v", err))
	}
	return b
}

// Load reads a YAML knowledge base from path. An empty path yields Default.
func Load(path string) (*Base, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read knowledge base: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Base, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse knowledge base: %w", err)
	}
	if len(doc.Foods) == 0 {
		return nil, ErrEmptyKnowledgeBase
	}

	b := &Base{
		nutrients:  doc.Nutrients,
		foods:      make(map[domain.FoodID]domain.FoodInfo, len(doc.Foods)),
		byNutrient: make(map[domain.NutrientID][]domain.FoodInfo),
		rules:      doc.Rules,
	}
	for _, f := range doc.Foods {
		f.ID = domain.NormalizeFood(string(f.ID))
		if f.ID == "" {
			return nil, fmt.Errorf("parse knowledge base: food without id")
		}
		for n := range f.Nutrients {
			if !domain.ValidNutrient(string(n)) {
				return nil, fmt.Errorf("parse knowledge base: food %s lists unknown nutrient %q", f.ID, n)
			}
		}
		for _, s := range f.SafeDuring {
			if !domain.ValidStage(string(s)) {
				return nil, fmt.Errorf("parse knowledge base: food %s lists unknown stage %q", f.ID, s)
			}
		}
		b.foods[f.ID] = f
		for n := range f.Nutrients {
			b.byNutrient[n] = append(b.byNutrient[n], f)
		}
	}
	for n, foods := range b.byNutrient {
		sort.Slice(foods, func(i, j int) bool {
			ri, rj := richness(foods[i].Nutrients[n]), richness(foods[j].Nutrients[n])
			if ri != rj {
				return ri > rj
			}
			return foods[i].ID < foods[j].ID
		})
	}
	return b, nil
}

func (b *Base) Food(id domain.FoodID) (domain.FoodInfo, bool) {
	f, ok := b.foods[id]
	return f, ok
}

// FoodsFor lists foods providing n, richest first.
func (b *Base) FoodsFor(n domain.NutrientID) []domain.FoodInfo {
	return append([]domain.FoodInfo(nil), b.byNutrient[n]...)
}

func (b *Base) Rules() domain.SafetyRules {
	return b.rules
}

func (b *Base) Nutrient(n domain.NutrientID) (NutrientInfo, bool) {
	info, ok := b.nutrients[n]
	return info, ok
}

func richness(level string) int {
	switch level {
	case "high":
		return 3
	case "medium":
		return 2
	case "low":
		return 1
	}
	return 0
}

var _ domain.KnowledgeBase = (*Base)(nil)
