package policy

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/GeekMasher/advanced-security-compliance/internal/severity"
)

var (
	documentKeys = keySet("version", "name", "general",
		string(CodeScanning), string(Dependabot), string(Licensing), string(Dependencies), string(SecretScanning))
	sectionKeys = keySet("level", "conditions", "warnings", "ignores", "remediate")
	blockKeys   = keySet("ids", "names", "imports")
	importKeys  = keySet("ids", "names", "replace")
)

func keySet(keys ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		out[k] = struct{}{}
	}
	return out
}

// validateNode walks the raw document and rejects keys the schema does not
// know before any decoding happens.
func validateNode(root *yaml.Node) error {
	if root == nil || root.Kind == 0 {
		return nil
	}
	if root.Kind == yaml.DocumentNode {
		if len(root.Content) == 0 {
			return nil
		}
		root = root.Content[0]
	}
	if isNull(root) {
		return nil
	}
	if root.Kind != yaml.MappingNode {
		return &SchemaError{Msg: "policy document must be a mapping"}
	}
	return eachPair(root, func(key string, value *yaml.Node) error {
		if _, ok := documentKeys[key]; !ok {
			return &SchemaError{Key: key, Msg: "unknown key"}
		}
		switch key {
		case "version", "name":
			if value.Kind != yaml.ScalarNode {
				return &SchemaError{Key: key, Msg: "must be a string"}
			}
			return nil
		default:
			return validateSection(key, value)
		}
	})
}

func validateSection(path string, node *yaml.Node) error {
	if isNull(node) {
		return nil
	}
	if node.Kind != yaml.MappingNode {
		return &SchemaError{Path: path, Msg: "section must be a mapping"}
	}
	return eachPair(node, func(key string, value *yaml.Node) error {
		if _, ok := sectionKeys[key]; !ok {
			return &SchemaError{Path: path, Key: key, Msg: "unknown key"}
		}
		switch key {
		case "level":
			if value.Kind != yaml.ScalarNode {
				return &SchemaError{Path: path, Key: key, Msg: "must be a string"}
			}
			if !isNull(value) && !severity.Known(value.Value) {
				return &SchemaError{Path: path, Key: key, Msg: fmt.Sprintf("unknown severity %q", value.Value)}
			}
			return nil
		case "remediate":
			return validateRemediate(path+".remediate", value)
		default:
			return validateBlock(path+"."+key, value)
		}
	})
}

func validateBlock(path string, node *yaml.Node) error {
	if isNull(node) {
		return nil
	}
	if node.Kind != yaml.MappingNode {
		return &SchemaError{Path: path, Msg: "block must be a mapping"}
	}
	return eachPair(node, func(key string, value *yaml.Node) error {
		if _, ok := blockKeys[key]; !ok {
			return &SchemaError{Path: path, Key: key, Msg: "unknown key"}
		}
		if key == "imports" {
			return validateImports(path+".imports", value)
		}
		if isNull(value) {
			return nil
		}
		if value.Kind != yaml.SequenceNode {
			return &SchemaError{Path: path, Key: key, Msg: "must be a list of strings"}
		}
		for _, item := range value.Content {
			if item.Kind != yaml.ScalarNode {
				return &SchemaError{Path: path, Key: key, Msg: "must be a list of strings"}
			}
		}
		return nil
	})
}

func validateImports(path string, node *yaml.Node) error {
	if isNull(node) {
		return nil
	}
	if node.Kind != yaml.MappingNode {
		return &SchemaError{Path: path, Msg: "imports must be a mapping"}
	}
	return eachPair(node, func(key string, value *yaml.Node) error {
		if key == "imports" {
			return &SchemaError{Path: path, Key: key, Msg: "circular import"}
		}
		if _, ok := importKeys[key]; !ok {
			return &SchemaError{Path: path, Key: key, Msg: "unknown key"}
		}
		if value.Kind != yaml.ScalarNode {
			return &SchemaError{Path: path, Key: key, Msg: "must be a scalar"}
		}
		return nil
	})
}

func validateRemediate(path string, node *yaml.Node) error {
	if isNull(node) {
		return nil
	}
	if node.Kind != yaml.MappingNode {
		return &SchemaError{Path: path, Msg: "remediate must be a mapping of severity to days"}
	}
	return eachPair(node, func(key string, value *yaml.Node) error {
		if !severity.Known(key) || strings.EqualFold(key, string(severity.None)) {
			return &SchemaError{Path: path, Key: key, Msg: "unknown severity"}
		}
		if value.Kind != yaml.ScalarNode || value.Tag != "!!int" {
			return &SchemaError{Path: path, Key: key, Msg: "must be a whole number of days"}
		}
		return nil
	})
}

func eachPair(node *yaml.Node, fn func(key string, value *yaml.Node) error) error {
	for i := 0; i+1 < len(node.Content); i += 2 {
		k := node.Content[i]
		if k.Kind != yaml.ScalarNode {
			return &SchemaError{Msg: fmt.Sprintf("non-scalar key at line %d", k.Line)}
		}
		if err := fn(k.Value, node.Content[i+1]); err != nil {
			return err
		}
	}
	return nil
}

func isNull(node *yaml.Node) bool {
	return node == nil || (node.Kind == yaml.ScalarNode && node.Tag == "!!null")
}
