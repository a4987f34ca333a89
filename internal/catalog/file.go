package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hyperengineering/shopfilter/internal/types"
)

// FileSource reads products from a JSON or YAML file. The file holds either a
// bare list of products or an object with a "products" list.
type FileSource struct {
	Path string
}

// Name returns the file path.
func (s *FileSource) Name() string {
	return "file:" + s.Path
}

// Load reads and decodes the file.
func (s *FileSource) Load(ctx context.Context) ([]types.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}
	return DecodeProducts(data, filepath.Ext(s.Path))
}

type productDocument struct {
	Products []types.Product `json:"products" yaml:"products"`
}

// DecodeProducts decodes a product file. ext selects YAML (".yaml", ".yml");
// anything else is decoded as JSON.
func DecodeProducts(data []byte, ext string) ([]types.Product, error) {
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		return decodeYAML(data)
	default:
		return decodeJSON(data)
	}
}

func decodeJSON(data []byte) ([]types.Product, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}
	if trimmed[0] == '[' {
		var products []types.Product
		if err := json.Unmarshal(trimmed, &products); err != nil {
			return nil, fmt.Errorf("parse catalog json: %w", err)
		}
		return products, nil
	}
	var doc productDocument
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return nil, fmt.Errorf("parse catalog json: %w", err)
	}
	return doc.Products, nil
}

func decodeYAML(data []byte) ([]types.Product, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("parse catalog yaml: %w", err)
	}
	if len(node.Content) == 0 {
		return nil, nil
	}
	root := node.Content[0]
	if root.Kind == yaml.SequenceNode {
		var products []types.Product
		if err := root.Decode(&products); err != nil {
			return nil, fmt.Errorf("parse catalog yaml: %w", err)
		}
		return products, nil
	}
	var doc productDocument
	if err := root.Decode(&doc); err != nil {
		return nil, fmt.Errorf("parse catalog yaml: %w", err)
	}
	return doc.Products, nil
}
