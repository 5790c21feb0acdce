package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"
)

// Formatter renders command results.
type Formatter interface {
	Format(data any) string
}

// NewFormatter returns a Formatter for "table" (default), "json" or "yaml".
func NewFormatter(format string) Formatter {
	switch strings.ToLower(format) {
	case "json":
		return &JSONFormatter{}
	case "yaml":
		return &YAMLFormatter{}
	default:
		return &TableFormatter{}
	}
}

var timeType = reflect.TypeOf(time.Time{})

// TableFormatter aligns slices of structs into columns and prints single
// structs and maps as key/value lines.
type TableFormatter struct{}

func (f *TableFormatter) Format(data any) string {
	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 4, 2, ' ', 0)

	v := indirect(reflect.ValueOf(data))
	switch {
	case !v.IsValid():
		fmt.Fprintln(w, "-")
	case v.Kind() == reflect.Slice:
		if v.Len() == 0 {
			return "No results.\n"
		}
		elem := indirect(v.Index(0))
		if elem.Kind() == reflect.Struct && elem.Type() != timeType {
			fields := columns(elem.Type())
			headers := make([]string, len(fields))
			for i, fld := range fields {
				headers[i] = strings.ToUpper(fld.name)
			}
			fmt.Fprintln(w, strings.Join(headers, "\t"))
			for i := range v.Len() {
				row := indirect(v.Index(i))
				vals := make([]string, len(fields))
				for j, fld := range fields {
					vals[j] = cell(row.Field(fld.index))
				}
				fmt.Fprintln(w, strings.Join(vals, "\t"))
			}
		} else {
			for i := range v.Len() {
				fmt.Fprintln(w, cell(v.Index(i)))
			}
		}
	case v.Kind() == reflect.Struct && v.Type() != timeType:
		for _, fld := range columns(v.Type()) {
			fmt.Fprintf(w, "%s:\t%s\n", fld.name, cell(v.Field(fld.index)))
		}
	case v.Kind() == reflect.Map:
		for _, k := range sortedKeys(v) {
			fmt.Fprintf(w, "%s:\t%s\n", k.String(), cell(v.MapIndex(k)))
		}
	default:
		fmt.Fprintln(w, cell(v))
	}

	w.Flush()
	return buf.String()
}

type column struct {
	name  string
	index int
}

// columns lists the exported fields of t, named after their JSON keys.
func columns(t reflect.Type) []column {
	var cols []column
	for i := range t.NumField() {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name := f.Name
		if tag := f.Tag.Get("json"); tag != "" {
			tagName, _, _ := strings.Cut(tag, ",")
			if tagName == "-" {
				continue
			}
			if tagName != "" {
				name = tagName
			}
		}
		cols = append(cols, column{name: name, index: i})
	}
	return cols
}

func indirect(v reflect.Value) reflect.Value {
	for v.IsValid() && (v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}

// sortedKeys returns the keys of a string-keyed map in order. Other maps
// yield nothing.
func sortedKeys(v reflect.Value) []reflect.Value {
	if v.Type().Key().Kind() != reflect.String {
		return nil
	}
	keys := v.MapKeys()
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys
}

// cell renders one value on a single line.
func cell(v reflect.Value) string {
	v = indirect(v)
	if !v.IsValid() {
		return "-"
	}
	if v.Type() == timeType {
		t := v.Interface().(time.Time)
		if t.IsZero() {
			return "-"
		}
		return t.Format(time.RFC3339)
	}
	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		if v.Len() == 0 {
			return "-"
		}
		parts := make([]string, v.Len())
		for i := range v.Len() {
			parts[i] = cell(v.Index(i))
		}
		return strings.Join(parts, ", ")
	case reflect.Map:
		keys := sortedKeys(v)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k.String() + "=" + cell(v.MapIndex(k))
		}
		return strings.Join(parts, " ")
	case reflect.String:
		if v.Len() == 0 {
			return "-"
		}
		return v.String()
	}
	if v.CanInterface() {
		if s, ok := v.Interface().(fmt.Stringer); ok {
			return s.String()
		}
		return fmt.Sprintf("%v", v.Interface())
	}
	return fmt.Sprintf("%v", v)
}

// JSONFormatter formats data as indented JSON.
type JSONFormatter struct{}

func (f *JSONFormatter) Format(data any) string {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("error formatting JSON: %v\n", err)
	}
	return string(b) + "\n"
}

// YAMLFormatter formats data as YAML. Values pass through JSON first so
// keys match the JSON output.
type YAMLFormatter struct{}

func (f *YAMLFormatter) Format(data any) string {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Sprintf("error formatting YAML: %v\n", err)
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return fmt.Sprintf("error formatting YAML: %v\n", err)
	}
	b, err := yaml.Marshal(generic)
	if err != nil {
		return fmt.Sprintf("error formatting YAML: %v\n", err)
	}
	return string(b)
}
