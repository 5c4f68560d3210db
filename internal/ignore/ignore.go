// Package ignore decides which local paths are excluded from a sync, using
// the pattern syntax of a .gitignore file.
//
// Patterns are evaluated last-match-wins, so a later "!pattern" can
// re-include what an earlier pattern excluded, but nothing can re-include a
// path whose parent directory is excluded. The .git directory is always
// excluded.
package ignore

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"unicode/utf8"

	gitignore "github.com/sabhiram/go-gitignore"
	"github.com/spf13/afero"
)

// alwaysIgnoredDirs are excluded regardless of the rule file.
var alwaysIgnoredDirs = map[string]bool{".git": true}

// regexpSyntax is passed through unescaped by go-gitignore.
const regexpSyntax = "+(){}|$^"

// Matcher answers IsIgnored for paths relative to the sync root. It is
// immutable after construction and safe for concurrent use.
type Matcher struct {
	gi       *gitignore.GitIgnore
	patterns []string
}

// Load reads a gitignore-style file from fsys. A missing file yields an
// empty matcher (only the builtin .git rule applies).
func Load(fsys afero.Fs, name string) (*Matcher, error) {
	f, err := fsys.Open(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, os.ErrNotExist) {
			return &Matcher{}, nil
		}

		return nil, fmt.Errorf("ignore: opening %s: %w", name, err)
	}
	defer f.Close()

	m, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("ignore: reading %s: %w", name, err)
	}

	return m, nil
}

// Parse builds a Matcher from gitignore-formatted text.
func Parse(r io.Reader) (*Matcher, error) {
	var lines []string

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}

	if err := sc.Err(); err != nil {
		return nil, err
	}

	return New(lines...), nil
}

// New builds a Matcher from individual pattern lines. Blank lines and
// comments are dropped.
func New(lines ...string) *Matcher {
	var patterns, compiled []string

	for _, line := range lines {
		line = trimTrailingSpaces(strings.TrimRight(line, "\r"))
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		patterns = append(patterns, line)
		compiled = append(compiled, translate(line))
	}

	return &Matcher{gi: gitignore.CompileIgnoreLines(compiled...), patterns: patterns}
}

// Len returns the number of patterns, excluding the builtin ones.
func (m *Matcher) Len() int {
	return len(m.patterns)
}

// IsIgnored reports whether relPath (slash or OS separated, relative to the
// sync root) is excluded. isDir says whether relPath itself is a directory.
func (m *Matcher) IsIgnored(relPath string, isDir bool) bool {
	p := path.Clean(filepath.ToSlash(relPath))
	if p == "." || p == "" || p == "/" {
		return false
	}

	p = strings.TrimPrefix(p, "/")
	segs := strings.Split(p, "/")

	// An excluded ancestor excludes everything below it.
	for i := 1; i < len(segs); i++ {
		if alwaysIgnoredDirs[segs[i-1]] || m.match(strings.Join(segs[:i], "/"), true) {
			return true
		}
	}

	if isDir && alwaysIgnoredDirs[segs[len(segs)-1]] {
		return true
	}

	return m.match(p, isDir)
}

// match asks go-gitignore about one path. Directories carry a trailing
// slash so "dir/" patterns only hit directories.
func (m *Matcher) match(p string, isDir bool) bool {
	if m.gi == nil {
		return false
	}

	if isDir {
		p += "/"
	}

	return m.gi.MatchesPath(p)
}

// trimTrailingSpaces drops trailing spaces unless escaped with a backslash.
func trimTrailingSpaces(s string) string {
	for strings.HasSuffix(s, " ") && !strings.HasSuffix(s, `\ `) {
		s = s[:len(s)-1]
	}

	return s
}

// translate rewrites one gitignore line into the dialect go-gitignore
// compiles. A slash before the last character anchors the pattern at the
// root. "?" and "[!...]" never match "/". Escaped characters and regexp
// syntax become hex escapes, which the library passes through untouched.
func translate(line string) string {
	neg := ""
	if strings.HasPrefix(line, "!") {
		neg, line = "!", line[1:]
	}

	if anchored(line) {
		line = "/" + line
	}

	var b strings.Builder

	for i := 0; i < len(line); i++ {
		c := line[i]

		switch {
		case c == '\\' && i+1 < len(line):
			i++
			b.WriteString(literal(line[i]))
		case c == '?':
			b.WriteString(`[^\x2f]`)
		case c == '[':
			class, n := bracket(line[i:])
			b.WriteString(class)
			i += n - 1
		case (c == '#' || c == '!') && b.Len() == 0, strings.IndexByte(regexpSyntax, c) >= 0:
			b.WriteString(literal(c))
		default:
			b.WriteByte(c)
		}
	}

	return neg + b.String()
}

// anchored reports whether git ties p to the root: it holds a slash other
// than a trailing one and does not already start with "/" or "**/".
func anchored(p string) bool {
	p = strings.TrimSuffix(p, "/")

	return strings.Contains(p, "/") && !strings.HasPrefix(p, "/") && !strings.HasPrefix(p, "**/")
}

// bracket converts the class at the start of s and returns it with the
// number of bytes consumed. An unclosed "[" is a literal.
func bracket(s string) (string, int) {
	j := 1
	negate := false

	if j < len(s) && (s[j] == '!' || s[j] == '^') {
		negate = true
		j++
	}

	start := j
	if j < len(s) && s[j] == ']' {
		j++
	}

	for j < len(s) && s[j] != ']' {
		j++
	}

	if j >= len(s) {
		return literal('['), 1
	}

	var b strings.Builder

	b.WriteByte('[')

	if negate {
		b.WriteString(`^\x2f`)
	}

	for k := start; k < j; k++ {
		c := s[k]

		switch {
		case c == '\\' && k+1 < j:
			k++
			b.WriteString(literal(s[k]))
		case c == '-' || isAlnum(c) || c >= utf8.RuneSelf:
			b.WriteByte(c)
		default:
			b.WriteString(literal(c))
		}
	}

	b.WriteByte(']')

	return b.String(), j + 1
}

// literal spells c so that neither go-gitignore nor regexp treats it as
// syntax.
func literal(c byte) string {
	if isAlnum(c) || c >= utf8.RuneSelf {
		return string([]byte{c})
	}

	return fmt.Sprintf(`\x%02x`, c)
}

func isAlnum(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}
