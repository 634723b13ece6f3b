package repair

import (
	"regexp"
	"strings"
)

// Pass is one named fixup rule. The runner applies Rewrite while Detect
// reports a match, so a pass is re-applied until it reaches a fixed point.
type Pass struct {
	// Name identifies the pass in stats and logs.
	Name string

	// Feature gates the pass.
	Feature Feature

	// Detect reports whether the buffer still needs this pass.
	Detect func(buf string) bool

	// Rewrite returns the buffer with one round of fixes applied.
	Rewrite func(buf string) string
}

// Attribute grammar shared by the tag-structure passes.
const (
	nameChars = `[[:alnum:]\-_]+`
	bareAttr  = `\s+` + nameChars
	dqAttr    = `\s+` + nameChars + `="[^"]*"`
	sqAttr    = `\s+` + nameChars + `='[^']*'`
	anyAttrs  = `(?:` + bareAttr + `|` + dqAttr + `|` + sqAttr + `)*`
	valAttrs  = `(?:` + dqAttr + `|` + sqAttr + `)*`
	tagEnd    = `\s*/?>`

	// An illegal run may not start with '=' or a quote, which keeps it out
	// of attribute values.
	illegal = `[^[:alnum:]\-_>\s/="']` + `[^[:alnum:]\-_>\s/]*`
)

var (
	scriptBlock = regexp.MustCompile(`(?s)<script[^>]*>.*?</script>`)
	styleBlock  = regexp.MustCompile(`(?s)<style[^>]*>.*?</style>`)

	// Void elements written without the closing slash. The optional group
	// may not end in '/', so already closed tags never match.
	unclosedVoid = regexp.MustCompile(`(?i)(<(?:img|n?br)\b(?:[^>]*[^>/])?)\s*>`)

	// A bare '&' inside a quoted src/href value. Entities already present
	// in the value are skipped; what follows the '&' must not look like a
	// named or numeric reference terminated by ';'. U makes every quantifier
	// lazy, so the first offending '&' of the first matching attribute is
	// fixed.
	ampInDoubleQuoted = regexp.MustCompile(`(?sU)(<[^>]*(?:src|href)="[^"&]*(?:&[^;"]+;[^"&]*)*)&(` + bareAmpTail(`"`) + `[^>]*>)`)
	ampInSingleQuoted = regexp.MustCompile(`(?sU)(<[^>]*(?:src|href)='[^'&]*(?:&[^;']+;[^'&]*)*)&(` + bareAmpTail(`'`) + `[^>]*>)`)
	ampInText         = regexp.MustCompile(`(?sU)(>[^<&]*(?:&[^<;]{0,10};[^<&]*)*)&(` + bareAmpTail(`<`) + `)`)

	invalidTag = regexp.MustCompile(`(?i)<(?:/?em|/?html|e|-|#[^>]*|https?://[^>]*)>`)

	illegalTagChars = regexp.MustCompile(`(?sU)(<` + nameChars + anyAttrs + `)\s*` + illegal + `(` + anyAttrs + tagEnd + `)`)

	bareAttribute = regexp.MustCompile(`(?sU)(<` + nameChars + valAttrs + `)` + bareAttr + `(` + valAttrs + tagEnd + `)`)

	upperTagName = regexp.MustCompile(`(?s)</?[a-z0-9\-_]*[A-Z][a-zA-Z0-9\-_]*` + anyAttrs + tagEnd)
)

// knownBadSequence is a windows-1252 dash followed by " Gr" that shows up in
// scraped articles and survives every other pass.
const knownBadSequence = "\x96\x20\x47\x72"

// DefaultPasses returns the fixup passes in the order they must run.
// The returned slice is a fresh copy and may be modified by the caller.
func DefaultPasses() []Pass {
	return []Pass{
		regexPass("remove scripts", FeatureRemoveScripts, scriptBlock, " "),
		regexPass("remove style", FeatureRemoveStyle, styleBlock, " "),
		regexPass("repair self-closing tags", FeatureRepairSelfClosing, unclosedVoid, "${1}/>"),
		regexPass("repair ampersands (double quotes)", FeatureRepairAmpersands, ampInDoubleQuoted, "${1}&amp;${2}"),
		regexPass("repair ampersands (single quotes)", FeatureRepairAmpersands, ampInSingleQuoted, "${1}&amp;${2}"),
		framedPass("repair ampersands (text)", FeatureRepairAmpersands, ampInText, "${1}&amp;${2}"),
		regexPass("remove invalid tags", FeatureRemoveInvalidTags, invalidTag, ""),
		regexPass("remove illegal tag characters", FeatureRemoveIllegalTagChars, illegalTagChars, "${1} ${2}"),
		regexPass("fix attributes", FeatureFixAttributes, bareAttribute, "${1}${2}"),
		{
			Name:    "lowercase tags",
			Feature: FeatureLowercaseTags,
			Detect:  upperTagName.MatchString,
			Rewrite: func(buf string) string {
				return upperTagName.ReplaceAllStringFunc(buf, lowerTagName)
			},
		},
		{
			Name:    "remove invalid byte sequences",
			Feature: FeatureRemoveInvalidUTF8,
			Detect: func(buf string) bool {
				return strings.Contains(buf, knownBadSequence)
			},
			Rewrite: func(buf string) string {
				return strings.ReplaceAll(buf, knownBadSequence, " ")
			},
		},
	}
}

// bareAmpTail matches what follows an '&' that does not start a reference,
// up to and including the context terminator term. "&name;", "&#39;" and
// "&#x27;" are references; "&#", "&#3 " or "&x=1" are not.
func bareAmpTail(term string) string {
	rest := `[^` + term + `]*` + term
	return `(?:` +
		`[a-zA-Z0-9]{1,10}[^a-zA-Z0-9` + term + `;]` + rest +
		`|[^a-zA-Z0-9#` + term + `;]` + rest +
		`|#[^0-9xX` + term + `;]` + rest +
		`|#[0-9]{1,7}[^0-9` + term + `;]` + rest +
		`|#[xX][0-9A-Fa-f]{0,6}[^0-9A-Fa-f` + term + `;]` + rest +
		`|[^` + term + `;]{0,10}` + term +
		`|[^` + term + `;]{10,}` + rest +
		`)`
}

func regexPass(name string, feature Feature, re *regexp.Regexp, replacement string) Pass {
	return Pass{
		Name:    name,
		Feature: feature,
		Detect:  re.MatchString,
		Rewrite: func(buf string) string {
			return re.ReplaceAllString(buf, replacement)
		},
	}
}

// framedPass runs re against the buffer as if it sat between two tags, so
// text at the very start or end of a fragment is treated like any other
// text node.
func framedPass(name string, feature Feature, re *regexp.Regexp, replacement string) Pass {
	return Pass{
		Name:    name,
		Feature: feature,
		Detect: func(buf string) bool {
			return re.MatchString(">" + buf + "<")
		},
		Rewrite: func(buf string) string {
			out := re.ReplaceAllString(">"+buf+"<", replacement)
			return out[1 : len(out)-1]
		},
	}
}

// lowerTagName lowercases the element name of a start, end or empty tag and
// leaves its attributes alone.
func lowerTagName(tag string) string {
	start := 1
	if strings.HasPrefix(tag, "</") {
		start = 2
	}
	end := start
	for end < len(tag) && isTagNameByte(tag[end]) {
		end++
	}
	return tag[:start] + strings.ToLower(tag[start:end]) + tag[end:]
}

func isTagNameByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9' || b == '-' || b == '_'
}
