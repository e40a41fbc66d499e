package escrowd

import (
	"regexp"
	"strings"
)

// A qualified identifier is address::module::name; the address part is
// ::-free hex with an optional 0x prefix.
const qualifiedIdentPattern = `(?:0[xX])?[0-9a-fA-F]+::[A-Za-z_]\w*::[A-Za-z_]\w*`

var (
	escrowTypeRE = regexp.MustCompile(
		`Escrow<(` + qualifiedIdentPattern + `),\s*(` + qualifiedIdentPattern + `)>$`,
	)
	qualifiedIdentRE = regexp.MustCompile(`^` + qualifiedIdentPattern + `$`)
)

// ParseEscrowType extracts the deposit and payment type identifiers
// from a full escrow type string, e.g.
// 0xfe02..::simple_escrow::Escrow<0x2::sui::SUI, 0xfe02..::mock_zsui::MOCK_ZSUI>.
// The two parameters are captured verbatim. Anything other than
// exactly two well-formed parameters does not match.
func ParseEscrowType(s string) (TypeSignature, bool) {
	m := escrowTypeRE.FindStringSubmatch(s)
	if m == nil {
		return TypeSignature{}, false
	}

	return TypeSignature{Deposit: m[1], Payment: m[2]}, true
}

// NewTypeSignature builds a signature from a declared type-argument
// list, as found on a create call. Exactly two well-formed qualified
// identifiers are required.
func NewTypeSignature(args []string) (TypeSignature, bool) {
	if len(args) != 2 {
		return TypeSignature{}, false
	}

	if !qualifiedIdentRE.MatchString(args[0]) || !qualifiedIdentRE.MatchString(args[1]) {
		return TypeSignature{}, false
	}

	return TypeSignature{Deposit: args[0], Payment: args[1]}, true
}

// TypeArguments is the ordered list used when constructing a contract
// call. Always the verbatim parsed identifiers, never re-derived from
// a display label.
func (t TypeSignature) TypeArguments() []string {
	return []string{t.Deposit, t.Payment}
}

func (t TypeSignature) IsZero() bool {
	return t.Deposit == "" && t.Payment == ""
}

// ShortLabel is the trailing name segment of a qualified identifier,
// used for display. Falls back to the raw string when it has no
// :: separator, so malformed identifiers still render.
func ShortLabel(qualified string) string {
	if i := strings.LastIndex(qualified, "::"); i >= 0 {
		return qualified[i+2:]
	}

	return qualified
}
