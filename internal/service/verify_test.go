package service

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/tmn/memelet/internal/domain"
	"github.com/tmn/memelet/internal/hash"
)

func TestVerifyComputesMissingHash(t *testing.T) {
	env := newTestEnv(t)
	path := env.writeFile("pepe.jpg", []byte("image bytes"))

	rec := &domain.MediaRecord{
		ID:        uuid.New().String(),
		Path:      path,
		MediaType: domain.MediaTypeImage,
		Status:    domain.MediaStatusNew,
	}
	if err := env.media.Create(t.Context(), rec); err != nil {
		t.Fatal(err)
	}

	stats, err := env.newVerifier().VerifyAll(t.Context())
	if err != nil {
		t.Fatalf("VerifyAll: %v", err)
	}
	if stats.Hashed != 1 {
		t.Errorf("Hashed = %d, want 1", stats.Hashed)
	}

	got, err := env.media.GetByID(t.Context(), rec.ID)
	if err != nil {
		t.Fatal(err)
	}
	if want := hash.Bytes([]byte("image bytes")); got.ContentHash != want {
		t.Errorf("ContentHash = %s, want %s", got.ContentHash, want)
	}
	if got.Size != int64(len("image bytes")) {
		t.Errorf("Size = %d", got.Size)
	}
}

func TestVerifyRelocatesMovedFile(t *testing.T) {
	env := newTestEnv(t)
	oldPath := env.writeFile("pepe.jpg", []byte("moving target"))

	rec := &domain.MediaRecord{
		ID:          uuid.New().String(),
		Path:        oldPath,
		MediaType:   domain.MediaTypeImage,
		Status:      domain.MediaStatusDone,
		ContentHash: hash.Bytes([]byte("moving target")),
	}
	if err := env.media.Create(t.Context(), rec); err != nil {
		t.Fatal(err)
	}

	// Move the file into a subfolder, keeping its name.
	newPath := filepath.Join(env.lib.MediaRoot, "sorted", "pepe.jpg")
	if err := os.MkdirAll(filepath.Dir(newPath), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(oldPath, newPath); err != nil {
		t.Fatal(err)
	}

	stats, err := env.newVerifier().VerifyAll(t.Context())
	if err != nil {
		t.Fatalf("VerifyAll: %v", err)
	}
	if stats.Relocated != 1 {
		t.Fatalf("Relocated = %d, want 1 (stats %+v)", stats.Relocated, stats)
	}

	got, err := env.media.GetByID(t.Context(), rec.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Path != newPath {
		t.Errorf("Path = %s, want %s", got.Path, newPath)
	}
	if got.Status != domain.MediaStatusDone {
		t.Errorf("Status = %s, relocation must not change status", got.Status)
	}
}

func TestVerifyRelocatesRenamedFile(t *testing.T) {
	env := newTestEnv(t)
	oldPath := env.writeFile("old_name.jpg", []byte("renamed content"))

	rec := &domain.MediaRecord{
		ID:          uuid.New().String(),
		Path:        oldPath,
		MediaType:   domain.MediaTypeImage,
		Status:      domain.MediaStatusDone,
		ContentHash: hash.Bytes([]byte("renamed content")),
	}
	if err := env.media.Create(t.Context(), rec); err != nil {
		t.Fatal(err)
	}

	// Rename the file so the basename fast path cannot find it and the
	// full-tree hash scan has to.
	newPath := filepath.Join(env.lib.MediaRoot, "new_name.jpg")
	if err := os.Rename(oldPath, newPath); err != nil {
		t.Fatal(err)
	}

	stats, err := env.newVerifier().VerifyAll(t.Context())
	if err != nil {
		t.Fatalf("VerifyAll: %v", err)
	}
	if stats.Relocated != 1 {
		t.Fatalf("Relocated = %d, want 1 (stats %+v)", stats.Relocated, stats)
	}
	got, err := env.media.GetByID(t.Context(), rec.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Path != newPath {
		t.Errorf("Path = %s, want %s", got.Path, newPath)
	}
}

func TestVerifyErrorsWhenUnrecoverable(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		rec  domain.MediaRecord
	}{
		{
			name: "missing file without hash",
			rec: domain.MediaRecord{
				ID:        uuid.New().String(),
				Path:      filepath.Join(env.lib.MediaRoot, "gone1.jpg"),
				MediaType: domain.MediaTypeImage,
				Status:    domain.MediaStatusNew,
			},
		},
		{
			name: "missing file with no content match",
			rec: domain.MediaRecord{
				ID:          uuid.New().String(),
				Path:        filepath.Join(env.lib.MediaRoot, "gone2.jpg"),
				MediaType:   domain.MediaTypeImage,
				Status:      domain.MediaStatusDone,
				ContentHash: hash.Bytes([]byte("content that exists nowhere")),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := tt.rec
			if err := env.media.Create(t.Context(), &rec); err != nil {
				t.Fatal(err)
			}

			stats, err := env.newVerifier().Verify(t.Context(), []domain.MediaRecord{rec})
			if err != nil {
				t.Fatalf("Verify: %v", err)
			}
			if stats.Errored != 1 {
				t.Fatalf("Errored = %d, want 1", stats.Errored)
			}

			got, err := env.media.GetByID(t.Context(), rec.ID)
			if err != nil {
				t.Fatal(err)
			}
			if got.Status != domain.MediaStatusError {
				t.Errorf("Status = %s, want error", got.Status)
			}
			if got.ErrorMessage == "" {
				t.Error("ErrorMessage not set")
			}
		})
	}
}

func TestVerifyRelocatesAlbumItem(t *testing.T) {
	env := newTestEnv(t)
	p1 := env.writeFile("albums/comic/01.png", []byte("panel one"))
	p2 := env.writeFile("albums/comic/02.png", []byte("panel two"))
	p3 := env.writeFile("albums/comic/03.png", []byte("panel three"))

	album := &domain.MediaRecord{
		ID:        uuid.New().String(),
		Path:      filepath.Join(env.lib.AlbumsRoot(), "comic"),
		MediaType: domain.MediaTypeAlbum,
		Status:    domain.MediaStatusDone,
		Title:     "comic",
	}
	items := []domain.AlbumItem{
		{ID: uuid.New().String(), AlbumID: album.ID, DisplayOrder: 1, Path: p1, ContentHash: hash.Bytes([]byte("panel one"))},
		{ID: uuid.New().String(), AlbumID: album.ID, DisplayOrder: 2, Path: p2, ContentHash: hash.Bytes([]byte("panel two"))},
		{ID: uuid.New().String(), AlbumID: album.ID, DisplayOrder: 3, Path: p3, ContentHash: hash.Bytes([]byte("panel three"))},
	}
	if err := env.media.CreateAlbum(t.Context(), album, items); err != nil {
		t.Fatal(err)
	}

	// The middle item disappears, but an identical copy exists elsewhere
	// in the library under a different name.
	copyPath := env.writeFile("misc/stray_panel.png", []byte("panel two"))
	if err := os.Remove(p2); err != nil {
		t.Fatal(err)
	}

	stats, err := env.newVerifier().VerifyAll(t.Context())
	if err != nil {
		t.Fatalf("VerifyAll: %v", err)
	}
	if stats.Relocated != 1 || stats.Errored != 0 {
		t.Fatalf("stats = %+v, want 1 relocated", stats)
	}

	got, err := env.media.GetByID(t.Context(), album.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.MediaStatusDone {
		t.Errorf("album status = %s, relocation must not change it", got.Status)
	}

	fresh, err := env.media.ListAlbumItems(t.Context(), album.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(fresh) != 3 {
		t.Fatalf("album has %d items, want 3", len(fresh))
	}
	if fresh[1].Path != copyPath {
		t.Errorf("item 2 path = %s, want %s", fresh[1].Path, copyPath)
	}
	if fresh[0].Path != p1 || fresh[2].Path != p3 {
		t.Error("untouched items must keep their paths")
	}
}

func TestVerifyAlbumErrorsOnlyWhenItemUnreachable(t *testing.T) {
	env := newTestEnv(t)
	p1 := env.writeFile("albums/trip/01.png", []byte("page one"))
	p2 := env.writeFile("albums/trip/02.png", []byte("page two"))

	album := &domain.MediaRecord{
		ID:        uuid.New().String(),
		Path:      filepath.Join(env.lib.AlbumsRoot(), "trip"),
		MediaType: domain.MediaTypeAlbum,
		Status:    domain.MediaStatusDone,
		Title:     "trip",
	}
	items := []domain.AlbumItem{
		{ID: uuid.New().String(), AlbumID: album.ID, DisplayOrder: 1, Path: p1, ContentHash: hash.Bytes([]byte("page one"))},
		{ID: uuid.New().String(), AlbumID: album.ID, DisplayOrder: 2, Path: p2, ContentHash: hash.Bytes([]byte("page two"))},
	}
	if err := env.media.CreateAlbum(t.Context(), album, items); err != nil {
		t.Fatal(err)
	}

	// All items reachable: album stays clean.
	stats, err := env.newVerifier().VerifyAll(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	if stats.OK != 1 || stats.Errored != 0 {
		t.Fatalf("stats = %+v, want 1 ok", stats)
	}

	// Remove one item with no relocation candidate: album goes to error.
	if err := os.Remove(p2); err != nil {
		t.Fatal(err)
	}
	stats, err = env.newVerifier().VerifyAll(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	if stats.Errored != 1 {
		t.Fatalf("stats = %+v, want 1 errored", stats)
	}

	got, err := env.media.GetByID(t.Context(), album.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.MediaStatusError {
		t.Errorf("album status = %s, want error", got.Status)
	}
}
