package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// SetValue reads the config file, sets the scalar at the mapping path given
// by keys (e.g. "exec", "model"), and writes the file back preserving all
// other content and comments. Intermediate mappings are created when
// missing.
func SetValue(path, value string, keys ...string) error {
	if len(keys) == 0 {
		return fmt.Errorf("no key path given")
	}

	buf, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("read config: %w", err)
		}
		buf = []byte("{}\n")
	}

	var root yaml.Node
	if err := yaml.Unmarshal(buf, &root); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	if root.Kind == 0 {
		root = yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{
			{Kind: yaml.MappingNode},
		}}
	}

	node := ensureNode(&root, keys...)
	if node == nil {
		return fmt.Errorf("config is not a mapping at %s", strings.Join(keys, "."))
	}
	node.SetString(value)

	out, err := yaml.Marshal(&root)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	// yaml.Marshal adds a document separator; strip it if the original
	// didn't have one.
	outStr := string(out)
	if !strings.HasPrefix(string(buf), "---") && strings.HasPrefix(outStr, "---") {
		outStr = strings.TrimPrefix(outStr, "---\n")
	}

	if err := os.WriteFile(path, []byte(outStr), 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// ensureNode navigates a yaml.Node tree by map keys, creating empty mapping
// nodes along the way, and returns the value node for the final key. Returns
// nil when an intermediate node exists but is not a mapping.
func ensureNode(node *yaml.Node, keys ...string) *yaml.Node {
	if node == nil {
		return nil
	}
	if node.Kind == yaml.DocumentNode && len(node.Content) > 0 {
		return ensureNode(node.Content[0], keys...)
	}
	if len(keys) == 0 {
		return node
	}
	if node.Kind != yaml.MappingNode {
		return nil
	}
	key := keys[0]
	for i := 0; i < len(node.Content)-1; i += 2 {
		if node.Content[i].Value == key {
			return ensureNode(node.Content[i+1], keys[1:]...)
		}
	}
	child := &yaml.Node{Kind: yaml.MappingNode}
	if len(keys) == 1 {
		child = &yaml.Node{Kind: yaml.ScalarNode}
	}
	node.Content = append(node.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Value: key},
		child,
	)
	return ensureNode(child, keys[1:]...)
}
