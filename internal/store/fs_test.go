package store

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"gocloud.dev/blob/memblob"

	"github.com/pitabwire/cardforge/model"
)

func TestBucketFS_storeCycle(t *testing.T) {
	ctx := context.Background()
	bucket := memblob.OpenBucket(nil)
	defer bucket.Close()
	for name, content := range minimalProject {
		if err := bucket.WriteAll(ctx, name, []byte(content), nil); err != nil {
			t.Fatal(err)
		}
	}

	s := New(NewBucketFS(bucket, "mem://"))
	if _, errs := s.LoadAll(ctx); len(errs) != 0 {
		t.Fatalf("LoadAll() errors = %v", errs)
	}
	if got := s.Location(); got != "mem://" {
		t.Errorf("Location() = %q, want mem://", got)
	}

	if err := s.Save(ctx, model.LeaderSkills, []model.Record{model.NewSkill("LS_A")}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if _, reloaded := s.CheckExternalChange(ctx); reloaded {
		t.Error("own bucket write detected as an external change")
	}

	time.Sleep(2 * time.Millisecond)
	if err := bucket.WriteAll(ctx, "enemies.json", []byte(`{"enemies": []}`), nil); err != nil {
		t.Fatal(err)
	}
	changed, reloaded := s.CheckExternalChange(ctx)
	if !reloaded || len(changed) != 1 || changed[0] != "enemies.json" {
		t.Errorf("CheckExternalChange() = %v, %v, want [enemies.json], true", changed, reloaded)
	}
	leaders, _ := s.Document(model.LeaderSkills)
	if len(leaders.Records) != 1 {
		t.Errorf("leader skills after reload = %d, want 1", len(leaders.Records))
	}
}

func TestBucketFS_missingObject(t *testing.T) {
	bucket := memblob.OpenBucket(nil)
	fsys := NewBucketFS(bucket, "mem://")
	defer fsys.Close()

	if _, err := fsys.ReadFile(context.Background(), "cards.json"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("ReadFile() error = %v, want fs.ErrNotExist", err)
	}
	if _, err := fsys.ModTime(context.Background(), "cards.json"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("ModTime() error = %v, want fs.ErrNotExist", err)
	}
}

func TestOpenBucketFS(t *testing.T) {
	fsys, err := OpenBucketFS(context.Background(), "mem://")
	if err != nil {
		t.Fatalf("OpenBucketFS() error = %v", err)
	}
	defer fsys.Close()
	if err := fsys.WriteFile(context.Background(), "config/quests.json", []byte(`{"quests": []}`)); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	data, err := fsys.ReadFile(context.Background(), "config/quests.json")
	if err != nil || string(data) != `{"quests": []}` {
		t.Errorf("ReadFile() = %q, %v", data, err)
	}
}

func TestOSFS_WriteFile_createsDirectories(t *testing.T) {
	fsys := NewOSFS(t.TempDir())
	ctx := context.Background()
	if err := fsys.WriteFile(ctx, "config/regions.json", []byte(`{}`)); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if _, err := fsys.ModTime(ctx, "config/regions.json"); err != nil {
		t.Errorf("ModTime() error = %v", err)
	}
	if _, err := fsys.ModTime(ctx, "missing.json"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("ModTime(missing) error = %v, want fs.ErrNotExist", err)
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	fsys, err := Open(ctx, dir)
	if err != nil {
		t.Fatalf("Open(dir) error = %v", err)
	}
	if _, ok := fsys.(*OSFS); !ok {
		t.Errorf("Open(dir) = %T, want *OSFS", fsys)
	}

	fsys, err = Open(ctx, "mem://")
	if err != nil {
		t.Fatalf("Open(mem://) error = %v", err)
	}
	bucket, ok := fsys.(*BucketFS)
	if !ok {
		t.Fatalf("Open(mem://) = %T, want *BucketFS", fsys)
	}
	bucket.Close()

	if _, err := Open(ctx, filepath.Join(dir, "missing")); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Open(missing) error = %v, want fs.ErrNotExist", err)
	}
	file := filepath.Join(dir, "cards.json")
	if err := os.WriteFile(file, []byte(`{}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(ctx, file); err == nil {
		t.Error("Open(file) should fail")
	}
	if _, err := Open(ctx, ""); err == nil {
		t.Error("Open(\"\") should fail")
	}
}
