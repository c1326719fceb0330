package bank

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
)

//go:embed institutions.toml
var defaultCatalogTOML string

// GenericCode is the institution code of the no-op fallback adapter.
const GenericCode = "generic"

// Institution describes a bank or aggregator the engine can talk to.
type Institution struct {
	Code        string   `toml:"code"`
	Name        string   `toml:"name"`
	Kind        string   `toml:"kind"`
	Auth        string   `toml:"auth"`
	BaseURL     string   `toml:"base_url"`
	Credentials []string `toml:"credentials"`
}

// Catalog is the set of institutions keyed by code.
type Catalog map[string]Institution

type catalogFile struct {
	Institution []Institution `toml:"institution"`
}

// DefaultCatalog returns the embedded institution catalog.
func DefaultCatalog() (Catalog, error) {
	return ParseCatalog(defaultCatalogTOML)
}

// ParseCatalog decodes a TOML institution list.
func ParseCatalog(data string) (Catalog, error) {
	var f catalogFile
	if _, err := toml.Decode(data, &f); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	c := make(Catalog, len(f.Institution))
	for _, inst := range f.Institution {
		code := NormalizeCode(inst.Code)
		if code == "" {
			return nil, fmt.Errorf("catalog: institution without code")
		}
		if _, dup := c[code]; dup {
			return nil, fmt.Errorf("catalog: duplicate institution %q", code)
		}
		inst.Code = code
		c[code] = inst
	}
	return c, nil
}

// WithBaseURLs returns a copy of c with base URLs replaced for the given codes.
func (c Catalog) WithBaseURLs(urls map[string]string) Catalog {
	out := make(Catalog, len(c))
	for k, v := range c {
		if u := strings.TrimSpace(urls[k]); u != "" {
			v.BaseURL = u
		}
		out[k] = v
	}
	return out
}

// NormalizeCode lower-cases and trims an institution code.
func NormalizeCode(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}
