// Package catalog loads the label-to-URL product map the watcher is pointed
// at. The file is read once at startup and never re-read during a run.
package catalog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
)

// ErrNotFound marks a label the catalog does not carry. Fatal at startup.
var ErrNotFound = errors.New("product not in catalog")

type Catalog struct {
	products map[string]string
}

// Load reads a JSON object mapping product labels to product URLs. Files
// exported from Windows tools often carry a UTF-8 BOM; it is stripped.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}

	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})

	var products map[string]string
	if err := json.Unmarshal(data, &products); err != nil {
		return nil, fmt.Errorf("failed to parse catalog %s: %w", path, err)
	}
	if len(products) == 0 {
		return nil, fmt.Errorf("catalog %s is empty", path)
	}

	return &Catalog{products: products}, nil
}

// Lookup resolves a label to its product URL.
func (c *Catalog) Lookup(label string) (string, error) {
	url, ok := c.products[label]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrNotFound, label)
	}
	return url, nil
}

// Labels returns all product labels in sorted order.
func (c *Catalog) Labels() []string {
	labels := make([]string, 0, len(c.products))
	for label := range c.products {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}

func (c *Catalog) Len() int {
	return len(c.products)
}
