package artifact_test

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"

	"collage/internal/artifact"
	"collage/internal/services"
)

func TestNameContract(t *testing.T) {
	if got := artifact.Name("abc-123"); got != "collage_abc-123.png" {
		t.Fatalf("Name = %q", got)
	}
}

func TestWriteOpenExists(t *testing.T) {
	store := artifact.NewStore(filepath.Join(t.TempDir(), "out"))
	ctx := context.Background()

	exists, err := store.Exists("job1")
	if err != nil || exists {
		t.Fatalf("expected missing artifact, got %v %v", exists, err)
	}
	if _, err := store.Open("job1"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	path, err := store.Write(ctx, "job1", func(w io.Writer) error {
		_, err := io.WriteString(w, "png-bytes")
		return err
	})
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if filepath.Base(path) != "collage_job1.png" {
		t.Fatalf("unexpected path %q", path)
	}

	f, err := store.Open("job1")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	data, _ := io.ReadAll(f)
	_ = f.Close()
	if string(data) != "png-bytes" {
		t.Fatalf("unexpected contents %q", data)
	}

	if err := store.Remove("job1"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if exists, _ := store.Exists("job1"); exists {
		t.Fatal("expected artifact removed")
	}
}

func TestWriteFailureIsRenderError(t *testing.T) {
	store := artifact.NewStore(t.TempDir())
	_, err := store.Write(context.Background(), "job2", func(io.Writer) error {
		return errors.New("encoder exploded")
	})
	if !errors.Is(err, services.ErrRender) {
		t.Fatalf("expected render error, got %v", err)
	}
	if exists, _ := store.Exists("job2"); exists {
		t.Fatal("failed write must not leave an artifact")
	}
}

func TestRejectsEscapingIdentifiers(t *testing.T) {
	store := artifact.NewStore(t.TempDir())
	for _, id := range []string{"", "../etc", "a/b", "x.y"} {
		if _, err := store.Path(id); !errors.Is(err, services.ErrValidation) {
			t.Fatalf("Path(%q) expected validation error, got %v", id, err)
		}
	}
}

func TestConcurrentWritesNeverCollide(t *testing.T) {
	dir := t.TempDir()
	store := artifact.NewStore(dir)

	var wg sync.WaitGroup
	ids := make([]string, 12)
	for i := range ids {
		ids[i] = uuid.NewString()
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if _, err := store.Write(context.Background(), id, func(w io.Writer) error {
				_, err := io.WriteString(w, id)
				return err
			}); err != nil {
				t.Errorf("Write(%s): %v", id, err)
			}
		}(ids[i])
	}
	wg.Wait()

	for _, id := range ids {
		data, err := os.ReadFile(filepath.Join(dir, artifact.Name(id)))
		if err != nil || string(data) != id {
			t.Fatalf("artifact %s: %q %v", id, data, err)
		}
	}
}
