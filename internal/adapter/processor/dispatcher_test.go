package processor

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwygoda/linkbatch/internal/domain"
)

type dispatchFixture struct {
	runner    *fakeRunner
	transport *fakeTransport
	dispatch  *Dispatcher
}

func newDispatchFixture(t *testing.T, appx []string, scrapeHosts ...string) *dispatchFixture {
	t.Helper()
	runner := &fakeRunner{handler: toolchain("mp4")}
	tr := &fakeTransport{}
	dl := NewDownloader(runner, "yt-dlp", "", nil)
	scraper := NewScraper(nil, "ua", time.Millisecond, time.Minute, nil)
	scraper.sleep = func(context.Context, time.Duration) error { return nil }

	d := NewDispatcher(Executors{
		Downloader: dl,
		Scraper:    scraper,
		Drive:      NewDriveClient(nil, time.Minute),
		Decrypt:    NewDecryptHelper(runner, dl, "ffmpeg", "mp4decrypt", appx, nil),
		Deliverer:  NewDeliverer(tr, nil, nil),
	}, DispatchConfig{ScrapeHosts: scrapeHosts, BatchAttempts: 3, SingleAttempts: 15}, nil)

	return &dispatchFixture{runner: runner, transport: tr, dispatch: d}
}

func jobFor(t *testing.T, target domain.ResolvedTarget) *domain.Job {
	job := domain.NewJob(1, domain.LinkEntry{Label: "Intro", URL: target.OriginalURL}, t.TempDir(), "")
	job.Target = target
	return job
}

func TestDispatcher_Generic(t *testing.T) {
	f := newDispatchFixture(t, nil)
	job := jobFor(t, domain.ResolvedTarget{
		OriginalURL: "https://cdn.example.com/v.mp4",
		FinalURL:    "https://cdn.example.com/v.mp4",
		Strategy:    domain.StrategyGeneric,
		Format:      "b[height<=480]/b",
	})

	require.NoError(t, f.dispatch.Execute(context.Background(), job, domain.BatchParameters{Quality: 480}))

	assert.Equal(t, domain.OutcomeDownloaded, job.Outcome)
	assert.Equal(t, filepath.Join(job.WorkDir, "001_Intro.mp4"), job.LocalPath)
	assert.Equal(t, 1, job.Attempts)
	assert.Equal(t, "b[height<=480]/b", argAfter(f.runner.calls[0].args, "-f"))
	assert.Empty(t, f.transport.sent, "generic path leaves delivery to the orchestrator")
}

func TestDispatcher_NoOutputFails(t *testing.T) {
	f := newDispatchFixture(t, nil)
	f.runner.handler = nil
	job := jobFor(t, domain.ResolvedTarget{OriginalURL: "https://x/v", FinalURL: "https://x/v", Strategy: domain.StrategyGeneric})

	err := f.dispatch.Execute(context.Background(), job, domain.BatchParameters{Quality: 480})

	assert.True(t, errors.Is(err, domain.ErrNoOutput))
	assert.Equal(t, domain.OutcomeFailed, job.Outcome)
	assert.Equal(t, domain.ErrNoOutput.Error(), job.Error)
}

func TestDispatcher_DRMKeyedTakesPrecedence(t *testing.T) {
	f := newDispatchFixture(t, nil)
	// a .pdf tail would otherwise be sniffed as a document
	job := jobFor(t, domain.ResolvedTarget{
		OriginalURL: "https://x/drm/a.pdf",
		FinalURL:    "https://play.example.com/a.mpd",
		Strategy:    domain.StrategyDRMKeyed,
		KeyMaterial: []string{"kid:key"},
	})

	require.NoError(t, f.dispatch.Execute(context.Background(), job, domain.BatchParameters{Quality: 720}))

	assert.Equal(t, []string{"yt-dlp", "yt-dlp", "mp4decrypt", "mp4decrypt", "ffmpeg"}, f.runner.names())
	assert.Equal(t, "kid:key", argAfter(f.runner.calls[2].args, "--key"))
	assert.Equal(t, "bv[height<=720]/bv", argAfter(f.runner.calls[0].args, "-f"))
	assert.Equal(t, filepath.Join(job.WorkDir, "001_Intro.mp4"), job.LocalPath)
}

func TestDispatcher_EncryptedStream(t *testing.T) {
	t.Run("configured helper", func(t *testing.T) {
		f := newDispatchFixture(t, []string{"appx-decrypt", "--key", "{key}", "{file}", "{out}"})
		job := jobFor(t, domain.ResolvedTarget{
			OriginalURL:   "https://x/encrypted.mkv*K",
			FinalURL:      "https://x/encrypted.mkv",
			Strategy:      domain.StrategyEncryptedStream,
			EncryptionKey: "K",
		})

		require.NoError(t, f.dispatch.Execute(context.Background(), job, domain.BatchParameters{Quality: 480}))
		assert.Equal(t, []string{"yt-dlp", "appx-decrypt"}, f.runner.names())
		assert.Equal(t, "K", argAfter(f.runner.calls[1].args, "--key"))
		assert.Equal(t, domain.OutcomeDownloaded, job.Outcome)
	})

	t.Run("helper leaves no file", func(t *testing.T) {
		f := newDispatchFixture(t, []string{"appx-decrypt", "{file}", "{out}"})
		f.runner.handler = func(name string, args []string) error {
			if name == "yt-dlp" {
				return toolchain("mkv")(name, args)
			}
			return nil
		}
		job := jobFor(t, domain.ResolvedTarget{FinalURL: "https://x/encrypted.mkv", Strategy: domain.StrategyEncryptedStream, EncryptionKey: "K"})

		err := f.dispatch.Execute(context.Background(), job, domain.BatchParameters{})
		assert.ErrorIs(t, err, ErrDecryptNoFile)
		assert.Equal(t, "decrypt helper returned no file", job.Error)
	})
}

func TestDispatcher_ScrapeHostDeliversAndCleansUp(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("%PDF"))
	}))
	defer server.Close()

	f := newDispatchFixture(t, nil, "127.0.0.1")
	u := server.URL + "/notes.pdf"
	job := jobFor(t, domain.ResolvedTarget{OriginalURL: u, FinalURL: u, Strategy: domain.StrategyPDFScrape})

	require.NoError(t, f.dispatch.Execute(context.Background(), job, domain.BatchParameters{Channel: 5}))

	assert.Equal(t, domain.OutcomeSent, job.Outcome)
	require.Len(t, f.transport.sent, 1)
	assert.Equal(t, "document", f.transport.sent[0].kind)
	assert.NoFileExists(t, filepath.Join(job.WorkDir, "001_Intro.pdf"))
	assert.Empty(t, f.runner.calls)
}

func TestDispatcher_OtherPDFUsesDownloader(t *testing.T) {
	f := newDispatchFixture(t, nil, "cwmediabkt99")
	f.runner.handler = toolchain("pdf")
	u := "https://files.example.com/notes.pdf"
	job := jobFor(t, domain.ResolvedTarget{OriginalURL: u, FinalURL: u, Strategy: domain.StrategyPDFScrape})

	require.NoError(t, f.dispatch.Execute(context.Background(), job, domain.BatchParameters{}))

	require.Len(t, f.runner.calls, 1)
	assert.Equal(t, "25", argAfter(f.runner.calls[0].args, "--fragment-retries"))
	assert.Equal(t, domain.OutcomeDownloaded, job.Outcome)
}

func TestDispatcher_Audio(t *testing.T) {
	f := newDispatchFixture(t, nil)
	f.runner.handler = toolchain("mp3")
	u := "https://cdn.example.com/track.m4a?sig=1"
	job := jobFor(t, domain.ResolvedTarget{OriginalURL: u, FinalURL: u, Strategy: domain.StrategyAudio})

	require.NoError(t, f.dispatch.Execute(context.Background(), job, domain.BatchParameters{}))
	assert.Contains(t, f.runner.calls[0].args, "-x")
	assert.Equal(t, ".mp3", filepath.Ext(job.LocalPath))
}

func TestDispatcher_ImagePlainFetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("PNG"))
	}))
	defer server.Close()

	f := newDispatchFixture(t, nil)
	u := server.URL + "/pic.png"
	job := jobFor(t, domain.ResolvedTarget{OriginalURL: u, FinalURL: u, Strategy: domain.StrategyImage})

	require.NoError(t, f.dispatch.Execute(context.Background(), job, domain.BatchParameters{}))
	assert.Equal(t, filepath.Join(job.WorkDir, "001_Intro.png"), job.LocalPath)
	assert.Empty(t, f.runner.calls)
}
