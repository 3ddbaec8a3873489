package parser

import (
	"testing"
)

func TestBasicParsing(t *testing.T) {
	parser, err := New()
	if err != nil {
		t.Fatalf("failed to create parser: %v", err)
	}

	tests := []struct {
		name  string
		input string
		valid bool
	}{
		{
			name:  "identity",
			input: `fn (%x: Tensor[(3), float32]) { %x }`,
			valid: true,
		},
		{
			name:  "call with dotted operator",
			input: `fn (%a: Tensor[(3, 3), float32], %b: Tensor[(3, 3), float32]) { lnsconv.conv3x3(%a, %b) }`,
			valid: true,
		},
		{
			name:  "let chain with constants",
			input: `fn (%x: Tensor[(2), float32]) { let %y = multiply(%x, 2.5f); add(%y, 1.0f) }`,
			valid: true,
		},
		{
			name:  "type parameters",
			input: `fn [A, B] (%x: A, %y: B) -> (A, B) { (%x, %y) }`,
			valid: true,
		},
		{
			name:  "unknown variable",
			input: `fn (%x: Tensor[(3), float32]) { %y }`,
			valid: false,
		},
		{
			name:  "unknown type parameter",
			input: `fn (%x: T) { %x }`,
			valid: false,
		},
		{
			name:  "duplicate parameter",
			input: `fn (%x: Tensor[(3), float32], %x: Tensor[(3), float32]) { %x }`,
			valid: false,
		},
		{
			name:  "bad dtype",
			input: `fn (%x: Tensor[(3), float12]) { %x }`,
			valid: false,
		},
		{
			name:  "let value cannot see its own name",
			input: `fn (%x: Tensor[(3), float32]) { let %y = add(%y, %x); %y }`,
			valid: false,
		},
		{
			name:  "empty input",
			input: "   ",
			valid: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parser.Parse(tt.input)
			if tt.valid && err != nil {
				t.Errorf("expected valid function to parse, got error: %v", err)
			}
			if !tt.valid && err == nil {
				t.Errorf("expected invalid function to fail parsing")
			}
		})
	}
}

func TestGrammarIsAvailable(t *testing.T) {
	p := MustNew()
	if p.Grammar() == "" {
		t.Error("expected a non-empty grammar")
	}
}

func TestIdentifierHelpers(t *testing.T) {
	if !IsValidIdentifier("conv3x3") || IsValidIdentifier("3x3") {
		t.Error("unexpected identifier classification")
	}
	if !IsValidOpName("lnsconv.conv3x3") {
		t.Error("dotted operator names should be valid")
	}
	if IsValidOpName("let") || IsValidOpName("a..b") {
		t.Error("keywords and empty segments must be rejected")
	}
}
