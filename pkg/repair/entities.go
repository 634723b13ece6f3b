package repair

import (
	"regexp"
	"unicode/utf8"

	"golang.org/x/net/html"
)

// entityRef matches named, decimal and hexadecimal character references.
var entityRef = regexp.MustCompile(`&(?:[A-Za-z][A-Za-z0-9]{0,31}|#[0-9]{1,7}|#[xX][0-9A-Fa-f]{1,6});`)

// xmlEntityWhitelist holds the references XML itself defines. Decoding them
// would reintroduce markup characters into text and attribute values.
var xmlEntityWhitelist = map[string]bool{
	"&gt;":   true,
	"&lt;":   true,
	"&quot;": true,
	"&apos;": true,
	"&amp;":  true,
}

// translateEntities replaces HTML character references with the characters
// they stand for and reports how many were replaced. References that are
// whitelisted, unknown, or decode to something XML cannot hold literally are
// left untouched.
func translateEntities(buf string) (string, int) {
	translated := 0
	out := entityRef.ReplaceAllStringFunc(buf, func(ref string) string {
		if xmlEntityWhitelist[ref] {
			return ref
		}
		decoded := html.UnescapeString(ref)
		// Legacy names decode by prefix ("&notit;" -> "¬it;"), so a result
		// longer than two runes means the full name is not an entity.
		if decoded == ref || utf8.RuneCountInString(decoded) > 2 || !literalSafe(decoded) {
			return ref
		}
		translated++
		return decoded
	})
	return out, translated
}

// literalSafe reports whether s can appear unescaped in XML character data
// and attribute values.
func literalSafe(s string) bool {
	for _, r := range s {
		switch r {
		case '&', '<', '>', '"', '\'':
			return false
		}
		if !isXMLChar(r) {
			return false
		}
	}
	return true
}

// isXMLChar implements the Char production of XML 1.0.
func isXMLChar(r rune) bool {
	return r == 0x09 || r == 0x0A || r == 0x0D ||
		r >= 0x20 && r <= 0xD7FF ||
		r >= 0xE000 && r <= 0xFFFD ||
		r >= 0x10000 && r <= 0x10FFFF
}
