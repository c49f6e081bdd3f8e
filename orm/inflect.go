package orm

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/jinzhu/inflection"
)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

func validIdent(s string) bool { return identRe.MatchString(s) }

// snake turns "BlogPost" into "blog_post" and "HTTPRequest" into
// "http_request".
func snake(s string) string {
	var b strings.Builder
	rs := []rune(s)
	for i, r := range rs {
		if unicode.IsUpper(r) {
			if i > 0 {
				prevLower := unicode.IsLower(rs[i-1]) || unicode.IsDigit(rs[i-1])
				nextLower := i+1 < len(rs) && unicode.IsLower(rs[i+1])
				if prevLower || (nextLower && unicode.IsUpper(rs[i-1])) {
					b.WriteByte('_')
				}
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// tableName is the default table for a model name: plural snake case of
// the final word ("BlogPost" → "blog_posts").
func tableName(model string) string {
	s := snake(model)
	i := strings.LastIndexByte(s, '_')
	return s[:i+1] + inflection.Plural(s[i+1:])
}
