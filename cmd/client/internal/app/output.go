// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2026 Jared Redh. All rights reserved.

package app

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Output formats.
const (
	OutputText = "text"
	OutputJSON = "json"
	OutputYAML = "yaml"
)

// Render writes v to w in format.
func Render(w io.Writer, format string, v any) error {
	switch format {
	case OutputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case OutputYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	case OutputText, "":
		return renderText(w, v, "")
	default:
		return fmt.Errorf("unknown output format %q (want text, json or yaml)", format)
	}
}

func renderText(w io.Writer, v any, indent string) error {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			switch child := t[k].(type) {
			case map[string]any:
				fmt.Fprintf(w, "%s%s:\n", indent, k)
				if err := renderText(w, child, indent+"  "); err != nil {
					return err
				}
			default:
				fmt.Fprintf(w, "%s%s: %v\n", indent, k, child)
			}
		}
	case map[string]string:
		m := make(map[string]any, len(t))
		for k, s := range t {
			m[k] = s
		}
		return renderText(w, m, indent)
	case []LogEntry:
		for _, e := range t {
			fmt.Fprintf(w, "%s%s %-8s %s %s", indent, e.Time.Format("15:04:05"), e.Direction, e.Method, e.URL)
			if e.Status != 0 {
				fmt.Fprintf(w, " %d", e.Status)
			}
			fmt.Fprintln(w)
			if e.Encrypted != "" {
				fmt.Fprintf(w, "%s  cipher: %s\n", indent, e.Encrypted)
			}
			if e.Body != nil {
				b, _ := json.Marshal(e.Body)
				fmt.Fprintf(w, "%s  body:   %s\n", indent, b)
			}
			if n := credentialHeaders(e.Headers); n > 0 {
				fmt.Fprintf(w, "%s  credential headers: %d\n", indent, n)
			}
		}
	default:
		fmt.Fprintf(w, "%s%v\n", indent, v)
	}
	return nil
}

// credentialHeaders counts numbered headers.
func credentialHeaders(h map[string]string) int {
	n := 0
	for k := range h {
		if i := strings.IndexByte(k, '-'); i > 0 && strings.Trim(k[:i], "0123456789") == "" {
			n++
		}
	}
	return n
}
