// Package config defines the JSON pipeline configuration for the sales
// warehouse loader and small helpers for reading loosely-typed options.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Pipeline is the root configuration for one warehouse load run.
//
// The file is plain JSON. DSNs may reference environment variables using
// ${VAR} syntax; they are expanded at load time.
type Pipeline struct {
	Job       string    `json:"job"`
	Source    Source    `json:"source"`
	Parser    Parser    `json:"parser"`
	Cleanse   Cleanse   `json:"cleanse"`
	OLTP      OLTP      `json:"oltp"`
	Warehouse Warehouse `json:"warehouse"`
	Runtime   Runtime   `json:"runtime"`
}

type Source struct {
	Kind string      `json:"kind"` // "file"
	File *FileSource `json:"file,omitempty"`
}

type FileSource struct {
	Path string `json:"path"`
}

type Parser struct {
	// Kind selects the batch reader: "csv" | "xlsx" | "html".
	Kind    string  `json:"kind"`
	Options Options `json:"options"`
}

// Cleanse configures the cleansing stage.
type Cleanse struct {
	// DateLayout is the expected date format of the batch file, in Go
	// reference-time notation. Empty means ISO "2006-01-02".
	DateLayout string `json:"date_layout"`
}

// OLTP points at the transactional source system (read-only).
type OLTP struct {
	DSN string `json:"dsn"`
}

// Warehouse points at the dimensional store.
type Warehouse struct {
	// Kind selects the backend: "postgres" | "sqlite" | "mssql".
	Kind string `json:"kind"`
	DSN  string `json:"dsn"`

	// AutoCreateTables runs idempotent DDL for the star schema at startup.
	AutoCreateTables bool `json:"auto_create_tables"`
}

// Runtime controls execution behavior.
type Runtime struct {
	// BatchSize is the page size for bulk writes. <= 0 means the backend
	// default (1000).
	BatchSize int `json:"batch_size"`
}

// Load reads and decodes a pipeline config file, expanding ${ENV} references
// in the DSN fields.
func Load(path string) (Pipeline, error) {
	var p Pipeline

	f, err := os.Open(path)
	if err != nil {
		return p, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return p, fmt.Errorf("decode config: %w", err)
	}

	p.OLTP.DSN = os.ExpandEnv(p.OLTP.DSN)
	p.Warehouse.DSN = os.ExpandEnv(p.Warehouse.DSN)
	return p, nil
}

// Options is a loosely-typed option bag used by parser configs.
//
// Getters are forgiving about JSON's number/string typing; unknown or
// mistyped values fall back to the provided default.
type Options map[string]any

// String returns the named option as a string, or def when absent.
func (o Options) String(name, def string) string {
	v, ok := o[name]
	if !ok {
		return def
	}
	s, ok := v.(string)
	if !ok {
		return def
	}
	return s
}

// Bool returns the named option as a bool, or def when absent.
func (o Options) Bool(name string, def bool) bool {
	v, ok := o[name]
	if !ok {
		return def
	}
	b, ok := v.(bool)
	if !ok {
		return def
	}
	return b
}

// Int returns the named option as an int, or def when absent.
// JSON numbers decode as float64; both forms are accepted.
func (o Options) Int(name string, def int) int {
	v, ok := o[name]
	if !ok {
		return def
	}
	switch t := v.(type) {
	case float64:
		return int(t)
	case int:
		return t
	default:
		return def
	}
}

// Rune returns the first rune of the named string option, or def when the
// option is absent or empty. Used for CSV delimiters.
func (o Options) Rune(name string, def rune) rune {
	s := o.String(name, "")
	if s == "" {
		return def
	}
	return []rune(s)[0]
}

// StringMap returns the named option as a map[string]string. Non-string
// values are skipped.
func (o Options) StringMap(name string) map[string]string {
	out := map[string]string{}
	v, ok := o[name]
	if !ok {
		return out
	}
	m, ok := v.(map[string]any)
	if !ok {
		return out
	}
	for k, mv := range m {
		if s, ok := mv.(string); ok {
			out[k] = s
		}
	}
	return out
}

// ParserKinds lists the supported batch reader kinds.
var ParserKinds = []string{"csv", "xlsx", "html"}

// WarehouseKinds lists the supported warehouse backend kinds.
var WarehouseKinds = []string{"postgres", "sqlite", "mssql"}

func oneOf(v string, allowed []string) bool {
	for _, a := range allowed {
		if strings.EqualFold(v, a) {
			return true
		}
	}
	return false
}
