package processor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwygoda/linkbatch/internal/domain"
)

func TestExecRunner_Run(t *testing.T) {
	dir := t.TempDir()

	_, err := ExecRunner{}.Run(context.Background(), dir, "touch", "output.txt")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "output.txt"))
}

func TestExecRunner_RunFailureIncludesOutput(t *testing.T) {
	_, err := ExecRunner{}.Run(context.Background(), t.TempDir(), "sh", "-c", "echo nope >&2; exit 3")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sh failed")
	assert.Contains(t, err.Error(), "nope")
}

func TestExpandArgs(t *testing.T) {
	got := ExpandArgs(
		[]string{"--key", "{key}", "-i", "{file}", "{out}", "literal"},
		map[string]string{"key": "abc", "file": "/tmp/in.mkv", "out": "/tmp/out.mkv"},
	)
	assert.Equal(t, []string{"--key", "abc", "-i", "/tmp/in.mkv", "/tmp/out.mkv", "literal"}, got)
}

func TestFindOutput(t *testing.T) {
	tests := []struct {
		name  string
		files []string
		want  string
		err   error
	}{
		{"single", []string{"001_a.webm"}, "001_a.webm", nil},
		{"prefers mp4", []string{"001_a.webm", "001_a.mp4"}, "001_a.mp4", nil},
		{"ignores partial", []string{"001_a.mp4.part", "001_a.mkv"}, "001_a.mkv", nil},
		{"ignores other names", []string{"002_b.mp4"}, "", domain.ErrNoOutput},
		{"unknown ext", []string{"001_a.xyz"}, "001_a.xyz", nil},
		{"empty", nil, "", domain.ErrNoOutput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			for _, f := range tt.files {
				require.NoError(t, touch(filepath.Join(dir, f)))
			}
			got, err := FindOutput(dir, "001_a")
			if tt.err != nil {
				assert.True(t, errors.Is(err, tt.err), "err = %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, filepath.Join(dir, tt.want), got)
		})
	}
}

func TestMoveFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(src, []byte("hello"), 0o644))

	dst := filepath.Join(dir, "sub-b.txt")
	require.NoError(t, moveFile(src, dst))

	assert.NoFileExists(t, src)
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}
