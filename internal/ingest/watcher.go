// Package ingest submits audio files dropped into a watch folder as
// transcription jobs.
package ingest

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/snarg/transcriptor/internal/transcribe"
	"github.com/snarg/transcriptor/internal/transcript"
	"github.com/snarg/transcriptor/internal/validation"
)

// Subdirectories that files are moved into once handled. They are never
// scanned.
const (
	ProcessedDir = "processed"
	RejectedDir  = "rejected"
)

// Submitter queues a transcription job. *jobs.Manager satisfies it.
type Submitter interface {
	Submit(audio transcribe.Audio, settings transcript.Settings) (*transcript.Job, error)
}

// Options configures the folder watcher.
type Options struct {
	Dir       string
	MaxSize   int64
	Settings  transcript.Settings // applied to every submitted file
	Submitter Submitter
	Debounce  time.Duration // default 500ms
	Log       zerolog.Logger
}

// WatcherStatus is reported by the health endpoint.
type WatcherStatus struct {
	Status         string `json:"status"`
	WatchDir       string `json:"watchDir"`
	FilesSubmitted int64  `json:"filesSubmitted"`
	FilesRejected  int64  `json:"filesRejected"`
}

// FolderWatcher monitors a directory for new audio files. Each file that
// passes validation is submitted as a job and moved to processed/; files
// that fail validation are moved to rejected/. Files already present at
// startup are submitted oldest first.
type FolderWatcher struct {
	opts Options
	log  zerolog.Logger

	watcher *fsnotify.Watcher
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	// Debounce: coalesce rapid Create+Write events on the same file.
	debounceMu     sync.Mutex
	debounceTimers map[string]*time.Timer

	// Paths being processed, so backfill and events never submit a file twice.
	inflight sync.Map

	filesSubmitted atomic.Int64
	filesRejected  atomic.Int64
	status         atomic.Value // string: "starting", "backfilling", "watching", "stopped"
}

// NewFolderWatcher creates a watcher. Call Start to begin watching.
func NewFolderWatcher(opts Options) *FolderWatcher {
	if opts.Debounce <= 0 {
		opts.Debounce = 500 * time.Millisecond
	}
	fw := &FolderWatcher{
		opts:           opts,
		log:            opts.Log.With().Str("component", "watcher").Logger(),
		debounceTimers: make(map[string]*time.Timer),
	}
	fw.status.Store("starting")
	return fw
}

// Start creates the watch directory if needed, begins watching it and
// submits files already present in the background.
func (fw *FolderWatcher) Start() error {
	if err := os.MkdirAll(fw.opts.Dir, 0o755); err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(fw.opts.Dir); err != nil {
		w.Close()
		return err
	}
	fw.watcher = w
	fw.ctx, fw.cancel = context.WithCancel(context.Background())

	fw.log.Info().Str("watch_dir", fw.opts.Dir).Msg("folder watcher initialized")

	fw.wg.Add(2)
	go fw.watchLoop()
	go fw.backfill()
	return nil
}

// Stop closes the fsnotify watcher and waits for in-flight work.
func (fw *FolderWatcher) Stop() {
	fw.status.Store("stopped")
	if fw.cancel != nil {
		fw.cancel()
	}
	if fw.watcher != nil {
		fw.watcher.Close()
	}
	fw.debounceMu.Lock()
	for path, t := range fw.debounceTimers {
		t.Stop()
		delete(fw.debounceTimers, path)
	}
	fw.debounceMu.Unlock()
	fw.wg.Wait()

	fw.log.Info().
		Int64("files_submitted", fw.filesSubmitted.Load()).
		Int64("files_rejected", fw.filesRejected.Load()).
		Msg("folder watcher stopped")
}

// Status returns the current watcher status for the health endpoint.
func (fw *FolderWatcher) Status() WatcherStatus {
	s, _ := fw.status.Load().(string)
	return WatcherStatus{
		Status:         s,
		WatchDir:       fw.opts.Dir,
		FilesSubmitted: fw.filesSubmitted.Load(),
		FilesRejected:  fw.filesRejected.Load(),
	}
}

func (fw *FolderWatcher) watchLoop() {
	defer fw.wg.Done()
	for {
		select {
		case <-fw.ctx.Done():
			return

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if info, err := os.Stat(event.Name); err != nil || info.IsDir() {
				continue
			}
			fw.scheduleProcess(event.Name)

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.log.Error().Err(err).Msg("fsnotify error")
		}
	}
}

// scheduleProcess debounces file processing. This coalesces rapid
// Create+Write events and lets the writer finish before the file is read.
func (fw *FolderWatcher) scheduleProcess(path string) {
	fw.debounceMu.Lock()
	defer fw.debounceMu.Unlock()

	if t, ok := fw.debounceTimers[path]; ok {
		t.Reset(fw.opts.Debounce)
		return
	}

	fw.debounceTimers[path] = time.AfterFunc(fw.opts.Debounce, func() {
		fw.debounceMu.Lock()
		delete(fw.debounceTimers, path)
		fw.debounceMu.Unlock()

		if fw.ctx.Err() == nil {
			fw.processFile(path)
		}
	})
}

// processFile validates one file and submits it.
func (fw *FolderWatcher) processFile(path string) {
	name := filepath.Base(path)
	if name == "" || name[0] == '.' {
		return
	}
	if _, busy := fw.inflight.LoadOrStore(path, struct{}{}); busy {
		return
	}
	defer fw.inflight.Delete(path)

	info, err := os.Stat(path)
	if err != nil {
		return // already moved
	}

	check := validation.ValidateAudioFile(validation.File{
		Size: info.Size(),
		Type: validation.ContentTypeFor(name),
		Name: name,
	}, validation.Options{MaxSize: fw.opts.MaxSize, AllowedTypes: validation.AllowedAudioTypes})
	if !check.IsValid {
		fw.filesRejected.Add(1)
		fw.log.Warn().Str("file", name).Str("reason", check.Error).Msg("rejected watched file")
		fw.moveTo(path, RejectedDir)
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		fw.log.Warn().Err(err).Str("file", name).Msg("failed to read watched file")
		return
	}

	job, err := fw.opts.Submitter.Submit(transcribe.Audio{
		Data:        data,
		Filename:    name,
		ContentType: validation.ContentTypeFor(name),
	}, fw.opts.Settings)
	if err != nil {
		// Left in place: a queue-full file is retried on the next restart.
		fw.log.Warn().Err(err).Str("file", name).Msg("failed to submit watched file")
		return
	}

	fw.filesSubmitted.Add(1)
	fw.log.Info().Str("file", name).Str("job_id", job.ID).Msg("watched file submitted")
	fw.moveTo(path, ProcessedDir)
}

func (fw *FolderWatcher) moveTo(path, sub string) {
	dir := filepath.Join(fw.opts.Dir, sub)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		fw.log.Warn().Err(err).Str("dir", dir).Msg("failed to create directory")
		return
	}
	dst := filepath.Join(dir, filepath.Base(path))
	if _, err := os.Stat(dst); err == nil {
		dst = filepath.Join(dir, time.Now().Format("20060102T150405.000")+"-"+filepath.Base(path))
	}
	if err := os.Rename(path, dst); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fw.log.Warn().Err(err).Str("file", path).Msg("failed to move watched file")
	}
}

// backfill submits files that were already in the directory at startup,
// oldest first.
func (fw *FolderWatcher) backfill() {
	defer fw.wg.Done()
	fw.status.Store("backfilling")

	entries, err := os.ReadDir(fw.opts.Dir)
	if err != nil {
		fw.log.Warn().Err(err).Msg("backfill scan failed")
	}

	type fileEntry struct {
		path    string
		modTime time.Time
	}
	var files []fileEntry
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, fileEntry{path: filepath.Join(fw.opts.Dir, e.Name()), modTime: info.ModTime()})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].modTime.Before(files[j].modTime) })

	for _, f := range files {
		if fw.ctx.Err() != nil {
			fw.log.Info().Msg("backfill interrupted by shutdown")
			return
		}
		fw.processFile(f.path)
	}

	fw.status.CompareAndSwap("backfilling", "watching")
	if len(files) > 0 {
		fw.log.Info().Int("files", len(files)).Msg("backfill complete")
	}
}
