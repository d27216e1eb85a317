package cmd

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/cartwright/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// loadItems reads the shopping list from a file. Two formats are accepted:
// a JSON array of items, or one item per line as
//
//	name | description | quantity | key:value,key:value
//
// with everything after the name optional. Blank lines and #-comments are
// skipped.
func loadItems(path string) ([]schemas.ShoppingItem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read items file: %w", err)
	}
	return parseItems(data)
}

func parseItems(data []byte) ([]schemas.ShoppingItem, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("items file is empty")
	}

	if trimmed[0] == '[' {
		var items []schemas.ShoppingItem
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("failed to parse items JSON: %w", err)
		}
		return normalizeItems(items)
	}

	var items []schemas.ShoppingItem
	scanner := bufio.NewScanner(bytes.NewReader(trimmed))
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		item, err := parseItemLine(line)
		if err != nil {
			return nil, fmt.Errorf("items file line %d: %w", lineNo, err)
		}
		items = append(items, item)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan items file: %w", err)
	}
	return normalizeItems(items)
}

// parseItemLine parses "name | description | quantity | options".
func parseItemLine(line string) (schemas.ShoppingItem, error) {
	parts := strings.Split(line, "|")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	item := schemas.ShoppingItem{Name: parts[0]}
	if item.Name == "" {
		return item, fmt.Errorf("item name is required")
	}
	if len(parts) > 1 {
		item.Description = parts[1]
	}
	if len(parts) > 2 && parts[2] != "" {
		qty, err := strconv.Atoi(parts[2])
		if err != nil {
			return item, fmt.Errorf("invalid quantity %q", parts[2])
		}
		item.Quantity = qty
	}
	if len(parts) > 3 && parts[3] != "" {
		opts, err := parseItemOptions(parts[3])
		if err != nil {
			return item, err
		}
		item.Options = opts
	}
	return item, nil
}

// parseItemOptions parses "key:value,key:value".
func parseItemOptions(raw string) (map[string]string, error) {
	opts := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		kv := strings.SplitN(pair, ":", 2)
		if len(kv) != 2 || strings.TrimSpace(kv[0]) == "" {
			return nil, fmt.Errorf("invalid option %q, expected key:value", pair)
		}
		opts[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
	}
	if len(opts) == 0 {
		return nil, nil
	}
	return opts, nil
}

func normalizeItems(items []schemas.ShoppingItem) ([]schemas.ShoppingItem, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("items file contains no items")
	}
	for i := range items {
		if err := items[i].Normalize(); err != nil {
			return nil, err
		}
	}
	return items, nil
}
