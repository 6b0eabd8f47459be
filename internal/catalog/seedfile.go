package catalog

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// seedFile is the YAML layout read by the seeder:
//
//	items:
//	  - code: MLD-TRT
//	    description: Mold treatment
//	    category: WDR
//	    unit: SF
//	    labor: 1.10
//	    material: 0.40
//	    tier: INSURANCE   # omitted: every requested tier
type seedFile struct {
	Items []seedFileItem `yaml:"items"`
}

type seedFileItem struct {
	Code        string `yaml:"code"`
	Description string `yaml:"description"`
	Category    string `yaml:"category"`
	Unit        string `yaml:"unit"`
	Labor       string `yaml:"labor"`
	Material    string `yaml:"material"`
	Equipment   string `yaml:"equipment"`
	UnitPrice   string `yaml:"unitPrice"`
	Tier        string `yaml:"tier"`
}

// LoadSeedFile reads a YAML catalog from path. See ReadSeedFile.
func LoadSeedFile(path string, tiers ...Tier) ([]CreateInput, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadSeedFile(f, tiers...)
}

// ReadSeedFile decodes a YAML catalog. Items without a tier are expanded to
// every tier in tiers (all tiers when none are given); items naming a tier
// outside tiers are dropped. Amounts are kept as exact decimals.
func ReadSeedFile(r io.Reader, tiers ...Tier) ([]CreateInput, error) {
	if len(tiers) == 0 {
		tiers = Tiers
	}
	var doc seedFile
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode seed file: %w", err)
	}

	var out []CreateInput
	for i, row := range doc.Items {
		in, err := row.input()
		if err != nil {
			return nil, fmt.Errorf("seed item %d (%s): %w", i+1, row.Code, err)
		}
		targets := tiers
		if strings.TrimSpace(row.Tier) != "" {
			tier, err := ParseTier(row.Tier)
			if err != nil {
				return nil, fmt.Errorf("seed item %d (%s): %w", i+1, row.Code, err)
			}
			if !slices.Contains(tiers, tier) {
				continue
			}
			targets = []Tier{tier}
		}
		for _, tier := range targets {
			in.PricingTier = string(tier)
			out = append(out, in)
		}
	}
	return out, nil
}

func (row seedFileItem) input() (CreateInput, error) {
	in := CreateInput{
		Code:          row.Code,
		Description:   row.Description,
		Category:      row.Category,
		UnitOfMeasure: row.Unit,
	}
	fields := []struct {
		name string
		raw  string
		dst  **decimal.Decimal
	}{
		{"labor", row.Labor, &in.LaborCostPerUnit},
		{"material", row.Material, &in.MaterialCostPerUnit},
		{"equipment", row.Equipment, &in.EquipmentCostPerUnit},
		{"unitPrice", row.UnitPrice, &in.UnitPrice},
	}
	for _, f := range fields {
		raw := strings.TrimSpace(f.raw)
		if raw == "" {
			continue
		}
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return CreateInput{}, fmt.Errorf("%s: %w", f.name, err)
		}
		*f.dst = &d
	}
	return in, nil
}
