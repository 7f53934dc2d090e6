package memory

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	domain "github.com/Zhima-Mochi/minishop-checkout/app/internal/domain/product"

	"github.com/shopspring/decimal"
)

type seedProduct struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
}

// ReadSeed decodes a JSON array of products.
func ReadSeed(r io.Reader) ([]*domain.Product, error) {
	var raw []seedProduct
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("seed: decode: %w", err)
	}

	out := make([]*domain.Product, 0, len(raw))
	for i, s := range raw {
		if s.ID == "" {
			return nil, fmt.Errorf("seed: product %d has no id", i)
		}
		p, err := domain.New(s.ID, s.Name, s.Price, s.Stock)
		if err != nil {
			return nil, fmt.Errorf("seed: product %s: %w", s.ID, err)
		}
		p.Description = s.Description
		out = append(out, p)
	}
	return out, nil
}

// LoadSeedFile reads products from path; an empty path yields no products.
func LoadSeedFile(path string) ([]*domain.Product, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("seed: %w", err)
	}
	defer f.Close()
	return ReadSeed(f)
}
