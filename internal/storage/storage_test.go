package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestUploadKey(t *testing.T) {
	now := time.UnixMilli(1700000000123)
	if got := UploadKey("my talk?.mp3", now); got != "audio-1700000000123-my_talk_.mp3" {
		t.Errorf("UploadKey = %q", got)
	}
}

func TestChunkKey(t *testing.T) {
	tests := []struct {
		id      string
		index   int
		want    string
		wantErr bool
	}{
		{"abc-123", 0, "chunks/abc-123-0", false},
		{"u_1", 12, "chunks/u_1-12", false},
		{"../etc", 0, "", true},
		{"a/b", 0, "", true},
		{"", 0, "", true},
		{"ok", -1, "", true},
	}
	for _, tt := range tests {
		got, err := ChunkKey(tt.id, tt.index)
		if (err != nil) != tt.wantErr {
			t.Errorf("ChunkKey(%q, %d) err = %v", tt.id, tt.index, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ChunkKey(%q, %d) = %q, want %q", tt.id, tt.index, got, tt.want)
		}
		if tt.wantErr && !errors.Is(err, ErrInvalidKey) {
			t.Errorf("ChunkKey(%q) err = %v, want ErrInvalidKey", tt.id, err)
		}
	}
}

func TestLocalStore_SaveOpenDelete(t *testing.T) {
	ctx := context.Background()
	s := NewLocalStore(t.TempDir())

	if err := s.Save(ctx, "chunks/u-0", []byte("abc"), "audio/wav"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !s.Exists(ctx, "chunks/u-0") {
		t.Fatal("Exists = false after Save")
	}
	r, err := s.Open(ctx, "chunks/u-0")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	data, _ := io.ReadAll(r)
	r.Close()
	if string(data) != "abc" {
		t.Errorf("data = %q", data)
	}

	if err := s.Delete(ctx, "chunks/u-0"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete(ctx, "chunks/u-0"); err != nil {
		t.Errorf("second Delete: %v", err)
	}
	if s.Exists(ctx, "chunks/u-0") {
		t.Error("Exists = true after Delete")
	}
}

func TestLocalStore_RejectsEscapingKeys(t *testing.T) {
	ctx := context.Background()
	s := NewLocalStore(t.TempDir())
	for _, key := range []string{"../x", "a/../../x", "/etc/passwd", "", ".", `a\b`} {
		if err := s.Save(ctx, key, []byte("x"), ""); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("Save(%q) err = %v, want ErrInvalidKey", key, err)
		}
	}
}

func TestLocalStore_URL(t *testing.T) {
	s := NewLocalStore(t.TempDir())
	got, err := s.URL(context.Background(), "audio-1-a b.mp3")
	if err != nil {
		t.Fatalf("URL: %v", err)
	}
	if got != "/api/v1/uploads/audio-1-a%20b.mp3" {
		t.Errorf("URL = %q", got)
	}
}

func TestLocalStore_PruneOlderThan(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := NewLocalStore(dir)
	s.Save(ctx, "audio-old.mp3", []byte("1234"), "")
	s.Save(ctx, "chunks/u-0", []byte("12"), "")
	s.Save(ctx, "audio-new.mp3", []byte("x"), "")

	old := time.Now().Add(-48 * time.Hour)
	os.Chtimes(filepath.Join(dir, "audio-old.mp3"), old, old)
	os.Chtimes(filepath.Join(dir, "chunks", "u-0"), old, old)

	count, freed, err := s.PruneOlderThan(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("PruneOlderThan: %v", err)
	}
	if count != 2 || freed != 6 {
		t.Errorf("pruned %d files / %d bytes, want 2 / 6", count, freed)
	}
	if !s.Exists(ctx, "audio-new.mp3") {
		t.Error("recent upload pruned")
	}
	if _, err := os.Stat(filepath.Join(dir, "chunks")); !os.IsNotExist(err) {
		t.Error("empty chunks dir not removed")
	}
}

func TestAssembleChunks(t *testing.T) {
	ctx := context.Background()
	s := NewLocalStore(t.TempDir())
	for i, part := range []string{"he", "ll", "o"} {
		key, _ := ChunkKey("up1", i)
		s.Save(ctx, key, []byte(part), "")
	}

	n, err := AssembleChunks(ctx, s, "up1", 3, "audio-1-hello.wav", "audio/wav", 0)
	if err != nil {
		t.Fatalf("AssembleChunks: %v", err)
	}
	if n != 5 {
		t.Errorf("size = %d, want 5", n)
	}
	r, _ := s.Open(ctx, "audio-1-hello.wav")
	data, _ := io.ReadAll(r)
	r.Close()
	if string(data) != "hello" {
		t.Errorf("assembled = %q", data)
	}
	if s.Exists(ctx, "chunks/up1-0") || s.Exists(ctx, "chunks/up1-2") {
		t.Error("chunks not deleted after assembly")
	}
}

func TestAssembleChunks_Errors(t *testing.T) {
	ctx := context.Background()
	s := NewLocalStore(t.TempDir())
	key, _ := ChunkKey("up2", 0)
	s.Save(ctx, key, []byte("abcdef"), "")

	if _, err := AssembleChunks(ctx, s, "up2", 2, "out", "", 0); err == nil || !strings.Contains(err.Error(), "chunk 1 of 2 missing") {
		t.Errorf("missing chunk err = %v", err)
	}
	if _, err := AssembleChunks(ctx, s, "up2", 1, "out", "", 3); err == nil {
		t.Error("oversized assembly succeeded")
	}
	if _, err := AssembleChunks(ctx, s, "up2", 0, "out", "", 0); err == nil {
		t.Error("zero chunks accepted")
	}
	if _, err := AssembleChunks(ctx, s, "up2", 1<<40, "out", "", 0); err == nil {
		t.Error("chunk count over MaxChunks accepted")
	}
	if s.Exists(ctx, "out") {
		t.Error("failed assembly left output behind")
	}
}

type countingPruner struct{ calls chan time.Time }

func (p countingPruner) PruneOlderThan(_ context.Context, cutoff time.Time) (int, int64, error) {
	p.calls <- cutoff
	return 0, 0, nil
}

func TestRetentionPruner_RunsOnStart(t *testing.T) {
	p := countingPruner{calls: make(chan time.Time, 4)}
	pr := NewRetentionPruner(p, 24*time.Hour, zerolog.Nop())
	pr.Start()
	defer pr.Stop()

	select {
	case cutoff := <-p.calls:
		if d := time.Since(cutoff); d < 23*time.Hour || d > 25*time.Hour {
			t.Errorf("cutoff %v ago, want ~24h", d)
		}
	case <-time.After(time.Second):
		t.Fatal("pruner did not run on start")
	}
}

func TestHumanizeBytes(t *testing.T) {
	tests := map[int64]string{512: "512 B", 2048: "2.0 KB", 5 << 20: "5.0 MB", 3 << 30: "3.0 GB"}
	for in, want := range tests {
		if got := humanizeBytes(in); got != want {
			t.Errorf("humanizeBytes(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestS3ObjectKey(t *testing.T) {
	s := &S3Store{root: "prod/uploads/"}
	tests := []struct {
		key     string
		want    string
		wantErr bool
	}{
		{key: "audio-1-a.mp3", want: "prod/uploads/audio-1-a.mp3"},
		{key: "chunks/up1-0", want: "prod/uploads/chunks/up1-0"},
		{key: "", wantErr: true},
		{key: "/etc/passwd", wantErr: true},
		{key: "../other", wantErr: true},
		{key: "chunks/../../x", wantErr: true},
		{key: `a\b`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got, err := s.objectKey(tt.key)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidKey) {
					t.Errorf("objectKey(%q) err = %v, want ErrInvalidKey", tt.key, err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("objectKey(%q) = %q, %v; want %q", tt.key, got, err, tt.want)
			}
		})
	}
}
