package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/seuros/gopher-relay/src/engine"
	"github.com/seuros/gopher-relay/src/lowered"
	"github.com/seuros/gopher-relay/src/parser"
	"github.com/seuros/gopher-relay/src/tensor"
)

func runCommand(args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	var opts options
	opts.register(fs)
	inputsFlag := fs.String("inputs", "", "Input values as a JSON array of flat arrays")
	inputsFileFlag := fs.String("inputs-file", "", "Path to JSON file containing input values")
	fillFlag := fs.Float64("fill", 1, "Value for every input element when --inputs is not given")
	formatFlag := fs.String("format", "table", "Output format: table|json")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return usageErrorf(2, "Usage: relayc run [flags] <file>")
	}

	values, err := resolveInputs(*inputsFlag, *inputsFileFlag)
	if err != nil {
		return err
	}

	s, err := opts.open()
	if err != nil {
		return err
	}
	defer s.close()

	p, err := parser.New()
	if err != nil {
		return err
	}
	fn, err := parseFile(p, fs.Arg(0))
	if err != nil {
		return err
	}

	key := engine.NewCacheKey(fn, s.target)
	cf, err := s.engine.Lower(key)
	if err != nil {
		return err
	}
	art, err := s.engine.JIT(key)
	if err != nil {
		return err
	}

	ins, err := buildInputs(cf.Inputs, values, *fillFlag)
	if err != nil {
		return err
	}
	results, err := art.Invoke(ins...)
	if err != nil {
		return err
	}

	names := make([]string, len(results))
	for i := range results {
		names[i] = fmt.Sprintf("out%d", i)
		if i < len(cf.Outputs) {
			names[i] = cf.Outputs[i].Name
		}
	}
	return writeTensors(os.Stdout, *formatFlag, names, results)
}

func resolveInputs(inputs, inputsFile string) ([][]float64, error) {
	if inputs != "" && inputsFile != "" {
		return nil, usageErrorf(2, "Use only one of --inputs or --inputs-file")
	}

	var raw []byte
	switch {
	case inputs != "":
		raw = []byte(inputs)
	case inputsFile != "":
		b, err := os.ReadFile(inputsFile)
		if err != nil {
			return nil, err
		}
		raw = b
	default:
		return nil, nil
	}

	var values [][]float64
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, usageErrorf(2, "Invalid inputs JSON: %v", err)
	}
	return values, nil
}

// buildInputs shapes values to descs, or fills every input with fill when
// values is nil.
func buildInputs(descs []lowered.TensorDesc, values [][]float64, fill float64) ([]*tensor.Tensor, error) {
	if values != nil && len(values) != len(descs) {
		return nil, usageErrorf(2, "Expected %d inputs, got %d", len(descs), len(values))
	}

	out := make([]*tensor.Tensor, len(descs))
	for i, d := range descs {
		if values == nil {
			t := tensor.New(d.DType, d.Shape...)
			for j := range t.Data {
				t.Data[j] = tensor.Round(d.DType, fill)
			}
			out[i] = t
			continue
		}
		t, err := tensor.FromValues(d.DType, d.Shape, values[i])
		if err != nil {
			return nil, usageErrorf(2, "Input %s: %v", d.Name, err)
		}
		out[i] = t
	}
	return out, nil
}
