package processor

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

type call struct {
	dir  string
	name string
	args []string
}

type fakeRunner struct {
	mu      sync.Mutex
	calls   []call
	handler func(name string, args []string) error
}

func (f *fakeRunner) Run(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call{dir: dir, name: name, args: append([]string(nil), args...)})
	f.mu.Unlock()
	if f.handler != nil {
		if err := f.handler(name, args); err != nil {
			return []byte("boom"), err
		}
	}
	return nil, nil
}

func (f *fakeRunner) names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.calls {
		out = append(out, c.name)
	}
	return out
}

func argAfter(args []string, flag string) string {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag {
			return args[i+1]
		}
	}
	return ""
}

func touch(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte("data"), 0o644)
}

// toolchain simulates yt-dlp writing its -o template with ext and every other
// tool writing its last argument.
func toolchain(ext string) func(name string, args []string) error {
	return func(name string, args []string) error {
		if name == "yt-dlp" {
			return touch(strings.ReplaceAll(argAfter(args, "-o"), "%(ext)s", ext))
		}
		return touch(args[len(args)-1])
	}
}

type sentFile struct {
	kind    string
	chatID  int64
	path    string
	caption string
	thumb   string
}

type fakeTransport struct {
	mu   sync.Mutex
	sent []sentFile
	err  error
}

func (f *fakeTransport) record(s sentFile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, s)
	return nil
}

func (f *fakeTransport) SendMessage(ctx context.Context, chatID int64, text string) (int64, error) {
	return 1, f.record(sentFile{kind: "message", chatID: chatID, caption: text})
}

func (f *fakeTransport) SendDocument(ctx context.Context, chatID int64, path, caption string) error {
	return f.record(sentFile{kind: "document", chatID: chatID, path: path, caption: caption})
}

func (f *fakeTransport) SendPhoto(ctx context.Context, chatID int64, path, caption string) error {
	return f.record(sentFile{kind: "photo", chatID: chatID, path: path, caption: caption})
}

func (f *fakeTransport) SendVideo(ctx context.Context, chatID int64, path, caption, thumb string) error {
	return f.record(sentFile{kind: "video", chatID: chatID, path: path, caption: caption, thumb: thumb})
}

func (f *fakeTransport) DeleteMessage(ctx context.Context, chatID, messageID int64) error {
	return nil
}

func (f *fakeTransport) DownloadFile(ctx context.Context, fileID, dst string) error {
	return touch(dst)
}
