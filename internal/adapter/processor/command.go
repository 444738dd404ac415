package processor

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/cwygoda/linkbatch/internal/domain"
)

const maxOutputTail = 500

// Runner executes an external program. Implementations return the combined
// output and a non-nil error on non-zero exit.
type Runner interface {
	Run(ctx context.Context, dir, name string, args ...string) ([]byte, error)
}

// ExecRunner runs programs with os/exec.
type ExecRunner struct {
	// Timeout bounds a single invocation. Zero means no limit beyond ctx.
	Timeout time.Duration
}

// Run implements Runner.
func (r ExecRunner) Run(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	output, err := cmd.CombinedOutput()
	if err != nil {
		return output, fmt.Errorf("%s failed: %w: %s", filepath.Base(name), err, tail(output))
	}
	return output, nil
}

func tail(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > maxOutputTail {
		s = "..." + s[len(s)-maxOutputTail:]
	}
	return s
}

// ExpandArgs replaces {name} placeholders in an argv template.
func ExpandArgs(tmpl []string, vars map[string]string) []string {
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	r := strings.NewReplacer(pairs...)

	args := make([]string, len(tmpl))
	for i, arg := range tmpl {
		args[i] = r.Replace(arg)
	}
	return args
}

var outputPreference = []string{".mp4", ".mkv", ".webm", ".mp3", ".m4a", ".pdf", ".jpg", ".png", ".mpeg"}

var partialSuffixes = []string{".part", ".ytdl", ".temp", ".tmp"}

// FindOutput returns the finished file in dir whose name starts with base.
// Partial downloads are ignored. When several files match, the one with the
// most preferred extension wins.
func FindOutput(dir, base string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}

	var candidates []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, base) || isPartial(name) {
			continue
		}
		candidates = append(candidates, name)
	}
	if len(candidates) == 0 {
		return "", domain.ErrNoOutput
	}

	sort.Strings(candidates)
	for _, ext := range outputPreference {
		for _, c := range candidates {
			if strings.EqualFold(filepath.Ext(c), ext) {
				return filepath.Join(dir, c), nil
			}
		}
	}
	return filepath.Join(dir, candidates[0]), nil
}

func isPartial(name string) bool {
	lower := strings.ToLower(name)
	if strings.Contains(lower, ".part-frag") {
		return true
	}
	for _, s := range partialSuffixes {
		if strings.HasSuffix(lower, s) {
			return true
		}
	}
	return false
}

// moveFile renames src to dst, copying across devices.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	if err := copyFile(src, dst); err != nil {
		return err
	}
	return os.Remove(src)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
