package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/seuros/gopher-relay/src/engine"
	"github.com/seuros/gopher-relay/src/lowered"
	"github.com/seuros/gopher-relay/src/tensor"
)

// tensorRecord is the JSON form of one result tensor.
type tensorRecord struct {
	Name   string    `json:"name"`
	DType  string    `json:"dtype"`
	Shape  []int64   `json:"shape"`
	Values []float64 `json:"values"`
}

func writeTable(w io.Writer, header []string, rows [][]string) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	if len(header) > 0 {
		_, _ = fmt.Fprintln(tw, strings.Join(header, "\t"))
	}
	for _, row := range rows {
		_, _ = fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}

func writeTensors(w io.Writer, format string, names []string, results []*tensor.Tensor) error {
	switch strings.ToLower(format) {
	case "table":
		rows := make([][]string, 0, len(results))
		for i, r := range results {
			rows = append(rows, []string{names[i], r.DType.String(), tensor.FormatShape(r.Shape), stringifyValue(r.Data)})
		}
		return writeTable(w, []string{"output", "dtype", "shape", "values"}, rows)
	case "json":
		records := make([]tensorRecord, 0, len(results))
		for i, r := range results {
			shape := r.Shape
			if shape == nil {
				shape = []int64{}
			}
			records = append(records, tensorRecord{Name: names[i], DType: r.DType.String(), Shape: shape, Values: r.Data})
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	default:
		return usageErrorf(2, "Invalid --format: %s (expected table|json)", format)
	}
}

func writeObjects(w io.Writer, objs []engine.Object) error {
	rows := make([][]string, 0, len(objs)*4)
	for _, o := range objs {
		for _, f := range engine.Fields(o) {
			value := strings.Join(strings.Fields(stringifyValue(f.Value)), " ")
			rows = append(rows, []string{o.Kind().String(), f.Name, value})
		}
	}
	return writeTable(w, []string{"object", "field", "value"}, rows)
}

func stringifyValue(v interface{}) string {
	if v == nil {
		return "null"
	}

	switch x := v.(type) {
	case string:
		return x
	case fmt.Stringer:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	case []lowered.TensorDesc:
		parts := make([]string, len(x))
		for i, d := range x {
			parts[i] = d.String()
		}
		return "(" + strings.Join(parts, ", ") + ")"
	default:
		b, err := json.Marshal(v)
		if err == nil {
			return string(b)
		}
		return fmt.Sprint(v)
	}
}
