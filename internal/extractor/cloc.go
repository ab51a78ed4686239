package extractor

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/tidwall/gjson"

	custom_errors "unsafe-stats/internal/errors"
)

// ClocCounter counts code lines with the cloc tool. Blank and comment lines
// are excluded following cloc's accounting.
type ClocCounter struct {
	Bin      string
	Language string
}

func NewClocCounter() *ClocCounter {
	return &ClocCounter{Bin: "cloc", Language: "Rust"}
}

func (c *ClocCounter) CountLines(ctx context.Context, dir string) (int, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.Bin, "--json", "--quiet", "--include-lang="+c.Language, "--exclude-dir=.git", ".")
	cmd.Dir = dir
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return 0, fmt.Errorf("%s: %w: %s", c.Bin, err, strings.TrimSpace(stderr.String()))
	}
	return parseClocOutput(stdout.Bytes(), c.Language)
}

// parseClocOutput reads the code line count of language from cloc --json
// output. Empty output means cloc found no files to count.
func parseClocOutput(out []byte, language string) (int, error) {
	out = bytes.TrimSpace(out)
	if len(out) == 0 {
		return 0, nil
	}
	if !gjson.ValidBytes(out) {
		return 0, &custom_errors.ErrExtractorOutput{Output: string(out), Err: fmt.Errorf("invalid json")}
	}
	root := gjson.ParseBytes(out)
	if !root.IsObject() {
		return 0, &custom_errors.ErrExtractorOutput{Output: string(out), Err: fmt.Errorf("not an object")}
	}
	code := root.Get(gjson.Escape(language) + ".code")
	if !code.Exists() {
		return 0, nil
	}
	if code.Type != gjson.Number || code.Int() < 0 || float64(code.Int()) != code.Num {
		return 0, &custom_errors.ErrExtractorOutput{Output: string(out), Err: fmt.Errorf("code count %q is not a non-negative integer", code.Raw)}
	}
	return int(code.Int()), nil
}
