package main

import (
	"encoding/json"
	"fmt"
	"io"

	"sigs.k8s.io/yaml"
)

const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

func checkFormat(format string, allowText bool) error {
	switch format {
	case formatJSON, formatYAML:
		return nil
	case formatText:
		if allowText {
			return nil
		}
	}
	return fmt.Errorf("unknown format %q", format)
}

func writeValue(w io.Writer, format string, v any) error {
	if format == formatYAML {
		out, err := yaml.Marshal(v)
		if err != nil {
			return err
		}
		_, err = w.Write(out)
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeJSONLine(w io.Writer, v any) error {
	return json.NewEncoder(w).Encode(v)
}
