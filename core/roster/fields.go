package roster

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/trezcool/roster/core"
)

const (
	utf8BOM = "\uFEFF"

	// minimum difflib ratio for an unknown header to get a suggestion
	suggestMinRatio = .75
)

// fieldAliases lists the accepted header tokens (english & arabic) of each canonical field.
var fieldAliases = map[Field][]string{
	FieldFullName: {"full_name", "name", "الاسم الكامل", "اسم"},
	FieldEmail:    {"email", "البريد الإلكتروني", "ايميل"},
	FieldPhone:    {"phone", "رقم الهاتف", "هاتف"},
	FieldPassword: {"password", "كلمة المرور"},
}

// headerAliases maps trimmed, lower-cased header tokens to canonical fields.
var headerAliases = func() map[string]Field {
	m := make(map[string]Field)
	for fld, aliases := range fieldAliases {
		for _, alias := range aliases {
			m[alias] = fld
		}
	}
	return m
}()

// HeaderMap maps each column index to its canonical field, FieldIgnore for unknown headers.
type HeaderMap []Field

// Has reports whether one of the columns maps to f.
func (hm HeaderMap) Has(f Field) bool {
	for _, fld := range hm {
		if fld == f {
			return true
		}
	}
	return false
}

// NormalizeHeader maps header cells to canonical fields.
// Matching is exact on the trimmed, lower-cased token; unknown headers are ignored and only
// reported as warnings, with a suggestion when a known alias is close enough.
func NormalizeHeader(cells []string) (HeaderMap, []string) {
	mapping := make(HeaderMap, len(cells))
	var warnings []string
	seen := make(map[Field]int, len(CanonicalFields))

	for i, cell := range cells {
		token := normalizeToken(cell)
		fld, ok := headerAliases[token]
		if !ok {
			mapping[i] = FieldIgnore
			if token != "" {
				warnings = append(warnings, unknownHeaderWarning(token))
			}
			continue
		}
		if prev, ok := seen[fld]; ok {
			warnings = append(warnings, fmt.Sprintf("column %q duplicates %s, the last one wins", strings.TrimSpace(cell), fld))
			mapping[prev] = FieldIgnore
		}
		seen[fld] = i
		mapping[i] = fld
	}
	return mapping, warnings
}

// Aliases returns the accepted header tokens of every canonical field.
func Aliases() map[Field][]string {
	out := make(map[Field][]string, len(fieldAliases))
	for fld, aliases := range fieldAliases {
		sorted := append([]string(nil), aliases...)
		sort.Strings(sorted)
		out[fld] = sorted
	}
	return out
}

func normalizeToken(s string) string {
	return core.CleanString(strings.TrimPrefix(s, utf8BOM), true /* lower */)
}

func unknownHeaderWarning(token string) string {
	if match, ok := suggestHeader(token); ok {
		return fmt.Sprintf("unknown column %q ignored (did you mean %q?)", token, match)
	}
	return fmt.Sprintf("unknown column %q ignored", token)
}

// suggestHeader returns the closest known alias of token, compared rune by rune.
func suggestHeader(token string) (string, bool) {
	var (
		best      string
		bestRatio float64
	)
	tokenRunes := strings.Split(token, "")
	for alias := range headerAliases {
		ratio := difflib.NewMatcher(tokenRunes, strings.Split(alias, "")).Ratio()
		if ratio > bestRatio || (ratio == bestRatio && alias < best) {
			best, bestRatio = alias, ratio
		}
	}
	return best, bestRatio >= suggestMinRatio
}
