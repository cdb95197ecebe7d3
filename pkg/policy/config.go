// Package policy implements the label-gated approval engine: configuration
// validation, label matching, review-state reduction, team-membership-based
// approval counting, and report rendering. It is pure: all GitHub access
// happens behind small interfaces supplied by the caller.
package policy

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Policy is the validated approval policy for one run. Immutable after
// validation; a run owns exactly one Policy.
type Policy struct {
	Domains                  map[string]string // domain key (label name) -> team slug
	Overrides                map[string]int    // domain key -> required approvals
	DefaultRequiredApprovals int
	IgnoreDraft              bool
	RetractOnUnlabeled       bool
}

// Required returns the approval quota for a domain key: the override value
// when one is configured, else the default.
func (p *Policy) Required(domainKey string) int {
	if n, ok := p.Overrides[domainKey]; ok {
		return n
	}
	return p.DefaultRequiredApprovals
}

// ConfigError reports a malformed configuration document, naming the
// offending key when one can be identified.
type ConfigError struct {
	Key    string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Key == "" {
		return "invalid config: " + e.Reason
	}
	return fmt.Sprintf("invalid config: %s: %s", e.Key, e.Reason)
}

// ParseConfig decodes a YAML policy document and validates it.
func ParseConfig(data []byte) (*Policy, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &ConfigError{Reason: fmt.Sprintf("not valid YAML: %v", err)}
	}
	return Validate(doc)
}

// Validate normalizes an untyped parsed document into a Policy. It is a pure
// function of its input and performs no I/O.
func Validate(doc any) (*Policy, error) {
	root, ok := asMap(doc)
	if !ok {
		return nil, &ConfigError{Reason: "document root must be a map"}
	}

	rawDomains, ok := root["domains"]
	if !ok {
		return nil, &ConfigError{Key: "domains", Reason: "required key is missing"}
	}
	domainsMap, ok := asMap(rawDomains)
	if !ok {
		return nil, &ConfigError{Key: "domains", Reason: "must be a map of label name to team slug"}
	}
	domains := make(map[string]string, len(domainsMap))
	for key, v := range domainsMap {
		slug, isString := v.(string)
		slug = strings.TrimSpace(slug)
		if !isString || slug == "" {
			return nil, &ConfigError{Key: "domains." + key, Reason: "team slug must be a non-empty string"}
		}
		domains[key] = slug
	}

	required := 1
	if raw, ok := root["requiredApprovals"]; ok {
		n, numeric := intFloor(raw)
		if !numeric || n < 1 {
			return nil, &ConfigError{Key: "requiredApprovals", Reason: "must be an integer >= 1"}
		}
		required = n
	}

	overrides := make(map[string]int)
	if raw, ok := root["overrides"]; ok {
		overridesMap, isMap := asMap(raw)
		if !isMap {
			return nil, &ConfigError{Key: "overrides", Reason: "must be a map"}
		}
		for key, v := range overridesMap {
			entry, isMap := asMap(v)
			if !isMap {
				return nil, &ConfigError{Key: "overrides." + key, Reason: "must be a map"}
			}
			rawRequired, present := entry["requiredApprovals"]
			if !present {
				// Entries with no recognized field are accepted but ignored.
				continue
			}
			n, numeric := intFloor(rawRequired)
			if !numeric || n < 1 {
				return nil, &ConfigError{Key: "overrides." + key + ".requiredApprovals", Reason: "must be an integer >= 1"}
			}
			overrides[key] = n
		}
	}

	p := &Policy{
		Domains:                  domains,
		Overrides:                overrides,
		DefaultRequiredApprovals: required,
		IgnoreDraft:              true,
		RetractOnUnlabeled:       true,
	}
	if raw, ok := root["ignoreDraft"]; ok {
		p.IgnoreDraft = truthy(raw)
	}
	if raw, ok := root["retractOnUnlabeled"]; ok {
		p.RetractOnUnlabeled = truthy(raw)
	}
	return p, nil
}

// asMap normalizes the two map shapes YAML decoders produce.
func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			key, ok := k.(string)
			if !ok {
				return nil, false
			}
			out[key] = val
		}
		return out, true
	default:
		return nil, false
	}
}

// intFloor coerces a scalar to an integer, flooring fractional values.
func intFloor(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case uint64:
		return int(n), true
	case float64:
		return int(math.Floor(n)), true
	case float32:
		return int(math.Floor(float64(n))), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return int(math.Floor(f)), true
	default:
		return 0, false
	}
}

// truthy coerces any scalar to a boolean.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		if b, err := strconv.ParseBool(strings.TrimSpace(t)); err == nil {
			return b
		}
		return t != ""
	case int:
		return t != 0
	case int64:
		return t != 0
	case float64:
		return t != 0
	default:
		return true
	}
}
