/*
Package factory provides JSON to Go unit catalog conversion.

PURPOSE:
  Converts a JSON unit-of-measure catalog into the ledger.UnitTable the
  quantity validator reads. Warehouses add units (bags, pallets, tonnes)
  without a code change by pointing UNITS_FILE at their own catalog.

JSON SCHEMA:
  {
    "unknown_kind": "",
    "units": [
      {"name": "kg", "kind": "weight", "aliases": ["kq", "kilogram"]},
      {"name": "piece", "kind": "piece", "aliases": ["pcs", "ədəd"]}
    ]
  }

  kind is one of piece, weight, length. unknown_kind, when set, is applied
  to units that appear on products but not in the catalog.

USAGE:
  f := NewUnitFactory()
  cat, err := f.Load(cfg.UnitsFile)   // "" loads the embedded default
  v := cat.Validator()

SEE ALSO:
  - ledger/quantity.go: Validator and the per-kind rules
*/
package factory

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/azenco/stock-ledger/ledger"
)

//go:embed units.json
var defaultCatalog []byte

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// CatalogJSON is the JSON representation of a unit catalog.
type CatalogJSON struct {
	UnknownKind string     `json:"unknown_kind,omitempty"`
	Units       []UnitJSON `json:"units"`
}

// UnitJSON is one unit and the spellings it is known by.
type UnitJSON struct {
	Name    string   `json:"name"`
	Kind    string   `json:"kind"`
	Aliases []string `json:"aliases,omitempty"`
}

// Catalog is a parsed unit catalog.
type Catalog struct {
	Units       ledger.UnitTable
	UnknownKind ledger.UnitKind
}

// Validator returns a literal-rule validator over the catalog.
func (c *Catalog) Validator() *ledger.Validator {
	v := ledger.NewValidator(c.Units)
	v.UnknownUnitKind = c.UnknownKind
	return v
}

// =============================================================================
// UNIT FACTORY
// =============================================================================

// UnitFactory converts JSON unit catalogs to ledger unit tables.
type UnitFactory struct{}

func NewUnitFactory() *UnitFactory {
	return &UnitFactory{}
}

// Default parses the embedded catalog.
func (f *UnitFactory) Default() (*Catalog, error) {
	return f.Parse(defaultCatalog)
}

// Load reads a catalog file. An empty path returns the embedded default.
func (f *UnitFactory) Load(path string) (*Catalog, error) {
	if path == "" {
		return f.Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read unit catalog: %w", err)
	}
	return f.Parse(data)
}

// Parse parses a JSON catalog.
func (f *UnitFactory) Parse(data []byte) (*Catalog, error) {
	var cj CatalogJSON
	if err := json.Unmarshal(data, &cj); err != nil {
		return nil, fmt.Errorf("failed to parse unit catalog JSON: %w", err)
	}
	return f.FromJSON(cj)
}

// FromJSON converts CatalogJSON to a Catalog. A name or alias claimed by
// two units is an error.
func (f *UnitFactory) FromJSON(cj CatalogJSON) (*Catalog, error) {
	if len(cj.Units) == 0 {
		return nil, fmt.Errorf("unit catalog has no units")
	}

	c := &Catalog{Units: ledger.UnitTable{}}
	if cj.UnknownKind != "" {
		k, err := parseKind(cj.UnknownKind)
		if err != nil {
			return nil, fmt.Errorf("unknown_kind: %w", err)
		}
		c.UnknownKind = k
	}

	for _, u := range cj.Units {
		kind, err := parseKind(u.Kind)
		if err != nil {
			return nil, fmt.Errorf("unit %q: %w", u.Name, err)
		}
		for _, name := range append([]string{u.Name}, u.Aliases...) {
			key := strings.ToLower(strings.TrimSpace(name))
			if key == "" {
				return nil, fmt.Errorf("unit %q: empty name", u.Name)
			}
			if _, dup := c.Units[key]; dup {
				return nil, fmt.Errorf("unit name %q declared twice", key)
			}
			c.Units[key] = kind
		}
	}
	return c, nil
}

// ToJSON converts a Catalog back to its JSON form. Every spelling becomes
// its own unit entry.
func (f *UnitFactory) ToJSON(c *Catalog) CatalogJSON {
	cj := CatalogJSON{UnknownKind: string(c.UnknownKind)}
	for name, kind := range c.Units {
		cj.Units = append(cj.Units, UnitJSON{Name: name, Kind: string(kind)})
	}
	return cj
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

func parseKind(s string) (ledger.UnitKind, error) {
	switch ledger.UnitKind(strings.ToLower(s)) {
	case ledger.UnitPiece:
		return ledger.UnitPiece, nil
	case ledger.UnitWeight:
		return ledger.UnitWeight, nil
	case ledger.UnitLength:
		return ledger.UnitLength, nil
	default:
		return "", fmt.Errorf("unknown unit kind %q", s)
	}
}
