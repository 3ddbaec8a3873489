package parser

import "regexp"

var (
	identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)
	opNamePattern     = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*(\.[a-zA-Z_][a-zA-Z0-9_]*)*$`)
)

var keywords = map[string]bool{
	"fn":     true,
	"let":    true,
	"if":     true,
	"else":   true,
	"Tensor": true,
}

func IsValidIdentifier(s string) bool {
	return identifierPattern.MatchString(s)
}

// IsValidOpName reports whether s can name an operator in a call.
func IsValidOpName(s string) bool {
	return opNamePattern.MatchString(s) && !keywords[s]
}

func isKeyword(s string) bool {
	return keywords[s]
}
