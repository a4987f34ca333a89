package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestFileSource_JSONArray(t *testing.T) {
	path := writeFile(t, "catalog.json", `[
		{"id":"p1","title":"Tee","price":20,"inStock":true,"subcategory":"t-shirts","color":"red","styleTags":["casual"]}
	]`)

	products, err := (&FileSource{Path: path}).Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(products) != 1 || !products[0].InStock || products[0].StyleTags[0] != "casual" {
		t.Errorf("products = %+v", products)
	}
}

func TestFileSource_JSONDocument(t *testing.T) {
	path := writeFile(t, "catalog.json", `{"products":[{"id":"p1","price":5},{"id":"p2","price":6}]}`)
	products, err := (&FileSource{Path: path}).Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(products) != 2 {
		t.Errorf("got %d products, want 2", len(products))
	}
}

func TestFileSource_YAML(t *testing.T) {
	path := writeFile(t, "catalog.yaml", `
products:
  - id: p1
    title: Boots
    price: 150
    in_stock: true
    subcategory: boots
    occasions: [outdoor]
`)
	products, err := (&FileSource{Path: path}).Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(products) != 1 || products[0].Price != 150 || !products[0].InStock || products[0].Occasions[0] != "outdoor" {
		t.Errorf("products = %+v", products)
	}
}

func TestFileSource_YAMLList(t *testing.T) {
	path := writeFile(t, "catalog.yml", "- id: a\n  price: 1\n- id: b\n  price: 2\n")
	products, err := (&FileSource{Path: path}).Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(products) != 2 {
		t.Errorf("got %d products, want 2", len(products))
	}
}

func TestFileSource_Errors(t *testing.T) {
	if _, err := (&FileSource{Path: filepath.Join(t.TempDir(), "missing.json")}).Load(context.Background()); err == nil {
		t.Error("expected error for missing file")
	}
	path := writeFile(t, "bad.json", `{"products": [`)
	if _, err := (&FileSource{Path: path}).Load(context.Background()); err == nil {
		t.Error("expected error for malformed json")
	}
}

func TestDecodeProducts_EmptyJSON(t *testing.T) {
	products, err := DecodeProducts([]byte("  "), ".json")
	if err != nil || len(products) != 0 {
		t.Errorf("DecodeProducts(empty) = %v, %v", products, err)
	}
}
