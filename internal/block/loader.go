package block

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load decodes a YAML document into a map of top-level block name -> *Block,
// preserving key order at every mapping level via yaml.Node traversal (plain
// map[string]interface{} decode does not guarantee order, so the ordered
// Block invariant requires walking the node tree directly).
func Load(data []byte) (map[string]*Block, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if len(root.Content) == 0 {
		return map[string]*Block{}, nil
	}
	doc := root.Content[0]
	if doc.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("document root must be a mapping of block names")
	}

	out := make(map[string]*Block, len(doc.Content)/2)
	for i := 0; i+1 < len(doc.Content); i += 2 {
		name := doc.Content[i].Value
		b, err := decodeBlock(doc.Content[i+1])
		if err != nil {
			return nil, fmt.Errorf("block %q: %w", name, err)
		}
		out[name] = b
	}
	return out, nil
}

func decodeBlock(node *yaml.Node) (*Block, error) {
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("expected mapping, got kind %d at line %d", node.Kind, node.Line)
	}
	b := New()
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i].Value
		step, err := decodeStep(key, node.Content[i+1])
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", key, err)
		}
		b.Append(key, step)
	}
	return b, nil
}

func decodeStep(key string, value *yaml.Node) (Step, error) {
	switch value.Kind {
	case yaml.ScalarNode:
		return ScalarStep(value.Value), nil
	case yaml.MappingNode:
		fields, err := decodeFields(value)
		if err != nil {
			return Step{}, err
		}
		if kind, dispatchFields, isDispatch := splitDispatch(fields); isDispatch {
			return DispatchStep(&DispatchObject{Kind: kind, Fields: dispatchFields}), nil
		}
		if shorthand, ok := applyShorthand(key, fields); ok {
			return shorthand, nil
		}
		nested, err := decodeBlock(value)
		if err != nil {
			return Step{}, err
		}
		if rbac, ok := fields["zRBAC"]; ok {
			req := parseRBAC(rbac)
			nested.Append("zRBAC", DispatchStep(&DispatchObject{Kind: "zRBAC", RBAC: req}))
		}
		return NestedStep(nested), nil
	default:
		// Sequences and other scalars are carried as a synthetic dispatch
		// object under a "value" field for uniform downstream handling.
		var raw interface{}
		if err := value.Decode(&raw); err != nil {
			return Step{}, fmt.Errorf("decode value: %w", err)
		}
		return DispatchStep(&DispatchObject{Kind: "", Fields: map[string]interface{}{"value": raw}}), nil
	}
}

// splitDispatch recognises the five tagged-dispatch shapes
// ({zDisplay:...},{zData:...},{zFunc:...},{zLink:...},{zDialog:...}) when
// they are the sole key of a one-entry mapping.
func splitDispatch(fields map[string]interface{}) (DispatchKind, map[string]interface{}, bool) {
	if len(fields) != 1 {
		return "", nil, false
	}
	for _, k := range []DispatchKind{KindDisplay, KindData, KindFunc, KindLink, KindDialog} {
		if v, ok := fields[string(k)]; ok {
			if m, ok := v.(map[string]interface{}); ok {
				return k, m, true
			}
			return k, map[string]interface{}{"value": v}, true
		}
	}
	return "", nil, false
}

func decodeFields(node *yaml.Node) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i].Value
		var v interface{}
		if err := node.Content[i+1].Decode(&v); err != nil {
			return nil, fmt.Errorf("decode field %q: %w", key, err)
		}
		out[key] = v
	}
	return out, nil
}

func parseRBAC(raw interface{}) *RBACRequirement {
	m, ok := raw.(map[string]interface{})
	if !ok {
		return &RBACRequirement{}
	}
	req := &RBACRequirement{}
	if b, ok := m["require_auth"].(bool); ok {
		req.RequireAuth = b
	}
	if b, ok := m["zGuest"].(bool); ok {
		req.ZGuest = b
	}
	req.RequireRole = toStringList(m["require_role"])
	req.RequirePermission = toStringList(m["require_permission"])
	return req
}

func toStringList(v interface{}) []string {
	switch t := v.(type) {
	case string:
		return []string{t}
	case []interface{}:
		out := make([]string, 0, len(t))
		for _, e := range t {
			out = append(out, fmt.Sprintf("%v", e))
		}
		return out
	default:
		return nil
	}
}

// applyShorthand rewrites shorthand keys (zH1..zH6, zText, zImage, zURL,
// zUL, zOL, zTable, zMD) to their canonical {zDisplay:{event:...}} dispatch
// form (spec.md §4.2.1 step 1). Plural shorthand (zURLs, zTexts, ...) passes
// through unchanged for the dispatcher to expand, matching the original
// Python's explicit "don't wrap" branch. Returns ok=false when key is not a
// recognised shorthand, leaving the caller to decode the value normally.
func applyShorthand(key string, fields map[string]interface{}) (Step, bool) {
	switch {
	case key == "zImage":
		return wrapDisplay("image", nil, fields), true
	case key == "zURL":
		return wrapDisplay("zURL", nil, fields), true
	case isHeaderShorthand(key):
		indent, _ := strconv.Atoi(string(key[2]))
		return wrapDisplay("header", map[string]interface{}{"indent": indent}, fields), true
	case key == "zText":
		return wrapDisplay("text", nil, fields), true
	case key == "zUL":
		if hasPluralShorthand(fields) {
			return Step{}, false
		}
		return wrapDisplay("list", map[string]interface{}{"style": "bullet"}, fields), true
	case key == "zOL":
		if hasPluralShorthand(fields) {
			return Step{}, false
		}
		return wrapDisplay("list", map[string]interface{}{"style": "number"}, fields), true
	case key == "zTable":
		return wrapDisplay("zTable", nil, fields), true
	case key == "zMD":
		return wrapDisplay("rich_text", nil, fields), true
	default:
		return Step{}, false
	}
}

func isHeaderShorthand(key string) bool {
	if len(key) != 3 || !strings.HasPrefix(key, "zH") {
		return false
	}
	n := key[2]
	return n >= '1' && n <= '6'
}

var pluralShorthands = []string{"zURLs", "zTexts", "zH1s", "zH2s", "zH3s", "zH4s", "zH5s", "zH6s", "zImages", "zMDs"}

func hasPluralShorthand(fields map[string]interface{}) bool {
	for _, ps := range pluralShorthands {
		if _, ok := fields[ps]; ok {
			return true
		}
	}
	return false
}

// wrapDisplay builds {zDisplay: {event, ...defaults, ...fields}}. fields
// (the user's own YAML values) win over defaults, matching the original
// Python dict-merge order (`{'event': ..., 'indent': N, **value}`).
func wrapDisplay(event string, defaults, fields map[string]interface{}) Step {
	merged := map[string]interface{}{"event": event}
	for k, v := range defaults {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return DispatchStep(&DispatchObject{Kind: KindDisplay, Fields: merged})
}

