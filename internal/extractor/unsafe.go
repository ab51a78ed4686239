package extractor

import (
	"bufio"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"
)

const sourceExt = ".rs"

var (
	unsafeToken = regexp.MustCompile(`\bunsafe\b`)
	// #![forbid(unsafe_code)] and friends opt a crate out of unsafe code.
	unsafeDirective = regexp.MustCompile(`#!?\[\s*(forbid|deny)\s*\([^)]*unsafe_code`)
)

// CountUnsafeLines counts, across all Rust sources below root, the lines whose
// code (comments stripped) contains the unsafe keyword.
func CountUnsafeLines(root string) (int, error) {
	total := 0
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || filepath.Ext(path) != sourceExt {
			return nil
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		n, err := countUnsafe(f)
		if err != nil {
			return err
		}
		total += n
		return nil
	})
	return total, err
}

func countUnsafe(r io.Reader) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	n := 0
	var lx lexer
	for scanner.Scan() {
		code := lx.stripComments(scanner.Text())
		if unsafeDirective.MatchString(code) {
			continue
		}
		if unsafeToken.MatchString(code) {
			n++
		}
	}
	return n, scanner.Err()
}

// lexer carries the tokens that may span lines: block comments (which nest in
// Rust), string literals and raw string literals.
type lexer struct {
	commentDepth int
	inString     bool
	inRaw        bool
	rawHashes    int
}

// stripComments returns the parts of line outside // and /* */ comments.
// Comment markers inside string, raw string and char literals are kept as text.
func (lx *lexer) stripComments(line string) string {
	var b strings.Builder
	for i := 0; i < len(line); {
		rest := line[i:]
		switch {
		case lx.commentDepth > 0:
			switch {
			case strings.HasPrefix(rest, "/*"):
				lx.commentDepth++
				i += 2
			case strings.HasPrefix(rest, "*/"):
				lx.commentDepth--
				i += 2
				if lx.commentDepth == 0 {
					b.WriteByte(' ')
				}
			default:
				i++
			}

		case lx.inString:
			switch rest[0] {
			case '\\':
				// An escape at the end of the line continues the string.
				end := min(i+2, len(line))
				b.WriteString(line[i:end])
				i = end
				continue
			case '"':
				lx.inString = false
			}
			b.WriteByte(rest[0])
			i++

		case lx.inRaw:
			if rest[0] == '"' && strings.HasPrefix(rest[1:], strings.Repeat("#", lx.rawHashes)) {
				end := i + 1 + lx.rawHashes
				b.WriteString(line[i:end])
				i = end
				lx.inRaw = false
				continue
			}
			b.WriteByte(rest[0])
			i++

		case strings.HasPrefix(rest, "//"):
			return b.String()

		case strings.HasPrefix(rest, "/*"):
			lx.commentDepth = 1
			b.WriteByte(' ')
			i += 2

		case rest[0] == '"':
			lx.inString = true
			b.WriteByte('"')
			i++

		case rest[0] == '\'':
			n := charLiteralLen(rest)
			b.WriteString(rest[:n])
			i += n

		default:
			if n, hashes, ok := rawStringOpening(rest); ok && (i == 0 || !isIdentByte(line[i-1])) {
				b.WriteString(rest[:n])
				i += n
				lx.inRaw = true
				lx.rawHashes = hashes
				continue
			}
			b.WriteByte(rest[0])
			i++
		}
	}
	return b.String()
}

// rawStringOpening reports whether s starts with r"..., r#"..., br##"... and
// returns the length of the opening and its number of hashes.
func rawStringOpening(s string) (n, hashes int, ok bool) {
	j := 0
	if j < len(s) && s[j] == 'b' {
		j++
	}
	if j >= len(s) || s[j] != 'r' {
		return 0, 0, false
	}
	j++
	for j < len(s) && s[j] == '#' {
		j++
		hashes++
	}
	if j >= len(s) || s[j] != '"' {
		return 0, 0, false
	}
	return j + 1, hashes, true
}

// charLiteralLen returns the length of the char literal at the start of s, or
// 1 when the quote begins a lifetime or label such as 'a or 'outer.
func charLiteralLen(s string) int {
	if len(s) >= 3 && s[1] == '\\' {
		if end := strings.IndexByte(s[3:], '\''); end >= 0 {
			return 3 + end + 1
		}
		return 1
	}
	_, size := utf8.DecodeRuneInString(s[1:])
	if size > 0 && 1+size < len(s) && s[1+size] == '\'' {
		return 2 + size
	}
	return 1
}

func isIdentByte(c byte) bool {
	return c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}
