package profile

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed product.yaml
var productYAML []byte

// ProductMessage is one declared definition: which message, which local
// number, and which fields in wire order.
type ProductMessage struct {
	Name         string   `yaml:"name"`
	LocalNumber  uint8    `yaml:"local_number"`
	Fields       []string `yaml:"fields"`
	Architecture string   `yaml:"architecture,omitempty"` // "little" (default) or "big"
}

// Product is the declarative message-definition list used when a file is
// built from scratch.
type Product struct {
	Name     string           `yaml:"name"`
	Messages []ProductMessage `yaml:"messages"`
}

var defaultProduct = sync.OnceValue(func() *Product {
	p, err := LoadProduct(bytes.NewReader(productYAML))
	if err != nil {
		panic("profile: embedded product definitions are invalid: " + err.Error())
	}
	return p
})

// DefaultProduct returns the embedded local-activity layout.
func DefaultProduct() *Product {
	return defaultProduct()
}

// LoadProduct parses a product definition document.
func LoadProduct(r io.Reader) (*Product, error) {
	var p Product
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("decode product definitions: %w", err)
	}
	if len(p.Messages) == 0 {
		return nil, errors.New("product defines no messages")
	}
	seen := make(map[string]struct{}, len(p.Messages))
	for _, m := range p.Messages {
		if m.Name == "" {
			return nil, errors.New("product message without a name")
		}
		if _, dup := seen[m.Name]; dup {
			return nil, fmt.Errorf("product message %s declared twice", m.Name)
		}
		seen[m.Name] = struct{}{}
		if m.LocalNumber > 15 {
			return nil, fmt.Errorf("product message %s: local number %d out of range 0-15", m.Name, m.LocalNumber)
		}
		switch m.Architecture {
		case "", "little", "big":
		default:
			return nil, fmt.Errorf("product message %s: unknown architecture %q", m.Name, m.Architecture)
		}
		if len(m.Fields) == 0 {
			return nil, fmt.Errorf("product message %s declares no fields", m.Name)
		}
	}
	return &p, nil
}

// Message returns the declaration for a message name.
func (p *Product) Message(name string) (ProductMessage, bool) {
	for _, m := range p.Messages {
		if m.Name == name {
			return m, true
		}
	}
	return ProductMessage{}, false
}
