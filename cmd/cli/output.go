package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"stacingest/internal/extension"
	"stacingest/internal/validation"
)

func writeResult(w io.Writer, format string, res validation.Result) error {
	switch format {
	case "json":
		out, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(out))
		return err
	case "table", "":
		_, err := w.Write(renderResult(res))
		return err
	}
	return fmt.Errorf("unknown output format %q", format)
}

func renderResult(res validation.Result) []byte {
	var buf bytes.Buffer
	if res.Valid() {
		buf.WriteString("valid\n")
	} else {
		t := table.NewWriter()
		t.SetOutputMirror(&buf)
		t.AppendHeader(table.Row{"Path", "Kind", "Message"})
		for _, e := range res.Errors {
			path := e.Path
			if path == "" {
				path = "(document)"
			}
			t.AppendRow(table.Row{path, e.Kind, e.Message})
		}
		t.SetColumnConfigs([]table.ColumnConfig{{Number: 1, AutoMerge: true}})
		style := table.StyleLight
		style.Options.DrawBorder = false
		t.SetStyle(style)
		t.Render()
	}
	if len(res.Additional) > 0 {
		fmt.Fprintf(&buf, "additional properties: %s\n", strings.Join(res.Additional, ", "))
	}
	return buf.Bytes()
}

func renderDescriptor(d extension.Descriptor) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s\n%s\n\n", d.Title, d.URL)
	t := table.NewWriter()
	t.SetOutputMirror(&buf)
	t.AppendHeader(table.Row{"Field", "Required"})
	for _, f := range d.Fields {
		t.AppendRow(table.Row{f.Name, f.Required})
	}
	style := table.StyleLight
	style.Options.DrawBorder = false
	t.SetStyle(style)
	t.Render()
	return buf.Bytes()
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func joinKeys(m map[string]any) string {
	return strings.Join(sortedKeys(m), ", ")
}
