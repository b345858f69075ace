// Package approval decides whether a run's resolved endpoints may be called
// without explicit user approval.
//
// A Policy is a list of rules. Each rule names a URL pattern and, optionally,
// the HTTP methods it applies to. Patterns use path.Match syntax. A pattern
// that starts with "/" is matched against the URL path only; any other
// pattern is matched against scheme://host/path.
package approval

import (
	"fmt"
	"os"
	"path"
	"strings"

	"gopkg.in/yaml.v3"
)

// Rule marks matching endpoints as requiring approval.
type Rule struct {
	Name    string   `yaml:"name"`
	Pattern string   `yaml:"pattern"`
	Methods []string `yaml:"methods,omitempty"`
}

// Policy is the set of rules evaluated by a Gate.
type Policy struct {
	Rules []Rule `yaml:"rules"`
}

// DefaultPolicy is the reference policy for the demo commerce backend:
// adding to cart, placing orders and posting reviews need approval.
func DefaultPolicy() *Policy {
	return &Policy{Rules: []Rule{
		{Name: "cart-add", Pattern: "http://127.0.0.1:8000/cart/add"},
		{Name: "order-place", Pattern: "http://127.0.0.1:8000/orders/place"},
		{Name: "review-post", Pattern: "http://127.0.0.1:8000/reviews/post"},
	}}
}

// LoadPolicy reads a YAML policy file. An empty filename yields the default
// policy.
func LoadPolicy(filename string) (*Policy, error) {
	if filename == "" {
		return DefaultPolicy(), nil
	}
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read approval policy: %w", err)
	}
	return ParsePolicy(data)
}

// ParsePolicy decodes and validates a YAML policy document.
func ParsePolicy(data []byte) (*Policy, error) {
	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse approval policy: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks every rule has a well-formed pattern.
func (p *Policy) Validate() error {
	for i, r := range p.Rules {
		if strings.TrimSpace(r.Pattern) == "" {
			return fmt.Errorf("approval rule %d (%s): empty pattern", i, r.Name)
		}
		if _, err := path.Match(r.Pattern, ""); err != nil {
			return fmt.Errorf("approval rule %d (%s): %w", i, r.Name, err)
		}
	}
	return nil
}

// matches reports whether the rule covers a call. target is the full
// scheme://host/path form, urlPath its path alone.
func (r Rule) matches(target, urlPath, method string) bool {
	if len(r.Methods) > 0 {
		found := false
		for _, m := range r.Methods {
			if strings.EqualFold(m, method) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	subject := target
	if strings.HasPrefix(r.Pattern, "/") {
		subject = urlPath
	}
	ok, _ := path.Match(strings.TrimRight(r.Pattern, "/"), strings.TrimRight(subject, "/"))
	return ok
}
