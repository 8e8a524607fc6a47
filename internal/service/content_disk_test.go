package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"contentapi/internal/category"
	"contentapi/internal/config"
	"contentapi/internal/model"
	"contentapi/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDiskService(t *testing.T, opts ...Option) (ContentService, string) {
	t.Helper()
	root := t.TempDir()
	var dirs []string
	for _, c := range category.All() {
		dirs = append(dirs, c.Dir())
	}
	store, err := storage.NewDisk(config.StorageConfig{UploadDir: root}, dirs...)
	require.NoError(t, err)
	return NewContentService(store, nil, nil, opts...), root
}

func dirEntries(t *testing.T, root, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(filepath.Join(root, dir))
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestIngestThenList_AllCategories(t *testing.T) {
	tests := []struct {
		category string
		mime     string
		filename string
		dir      string
	}{
		{"article", "image/png", "cover.png", "articles"},
		{"book", "application/pdf", "kitab.pdf", "books"},
		{"video", "video/mp4", "kajian.mp4", "videos"},
		{"audio", "audio/mpeg", "murottal.mp3", "audios"},
	}

	for _, tt := range tests {
		t.Run(tt.category, func(t *testing.T) {
			svc, root := newDiskService(t)
			ctx := context.Background()
			body := []byte("payload for " + tt.category)

			item, err := svc.Ingest(ctx, IngestRequest{
				Category:    tt.category,
				ContentType: tt.mime,
				Field:       "file",
				Filename:    tt.filename,
				Size:        int64(len(body)),
				Body:        bytes.NewReader(body),
				Fields:      model.Fields{Title: "Judul"},
			})
			require.NoError(t, err)
			assert.Equal(t, int64(len(body)), item.Size)
			assert.Equal(t, filepath.Ext(tt.filename), filepath.Ext(item.Filename))

			onDisk, err := os.ReadFile(filepath.Join(root, tt.dir, item.Filename))
			require.NoError(t, err)
			assert.Equal(t, body, onDisk)
			assert.FileExists(t, filepath.Join(root, tt.dir, item.Filename+".json"))

			items, err := svc.List(ctx, tt.dir)
			require.NoError(t, err)
			require.Len(t, items, 1)
			assert.Equal(t, item.ID, items[0].ID)
			assert.Equal(t, item.Filename, items[0].Filename)
			assert.Equal(t, "Judul", items[0].Title)
			assert.Equal(t, tt.filename, items[0].OriginalName)
			assert.Equal(t, tt.category, items[0].ContentType)
			assert.Equal(t, "/uploads/"+tt.dir+"/"+item.Filename, items[0].URL)
		})
	}
}

func TestIngest_BookAndArticleScenario(t *testing.T) {
	svc, root := newDiskService(t)
	ctx := context.Background()

	item, err := svc.Ingest(ctx, IngestRequest{
		Category:    "book",
		ContentType: "application/pdf",
		Field:       "file",
		Filename:    "kitab.pdf",
		Size:        10,
		Body:        strings.NewReader("0123456789"),
		Fields:      model.Fields{Title: "T", Author: "A"},
	})
	require.NoError(t, err)

	raw, err := os.ReadFile(filepath.Join(root, "books", item.Filename+".json"))
	require.NoError(t, err)
	var sidecar map[string]any
	require.NoError(t, json.Unmarshal(raw, &sidecar))
	assert.Equal(t, "T", sidecar["title"])
	assert.Equal(t, "A", sidecar["author"])
	assert.Equal(t, float64(10), sidecar["size"])
	assert.Equal(t, item.Filename, sidecar["filename"])

	_, err = svc.Ingest(ctx, IngestRequest{
		Category:    "article",
		ContentType: "application/pdf",
		Filename:    "kitab.pdf",
		Size:        10,
		Body:        strings.NewReader("0123456789"),
	})
	require.ErrorIs(t, err, ErrUnsupportedMediaType)
	assert.Contains(t, err.Error(), "image/*")
	assert.Empty(t, dirEntries(t, root, "articles"))
}

func TestIngest_RejectedUploadsLeaveNoFiles(t *testing.T) {
	const limit = 1024

	tests := []struct {
		name    string
		req     IngestRequest
		wantErr error
	}{
		{
			name: "mime mismatch",
			req: IngestRequest{
				Category: "video", ContentType: "audio/mpeg", Filename: "a.mp3",
				Size: 4, Body: strings.NewReader("abcd"),
			},
			wantErr: ErrUnsupportedMediaType,
		},
		{
			name: "declared size over limit",
			req: IngestRequest{
				Category: "video", ContentType: "video/mp4", Filename: "a.mp4",
				Size: limit + 1, Body: strings.NewReader("abcd"),
			},
			wantErr: ErrPayloadTooLarge,
		},
		{
			name: "streamed body over limit",
			req: IngestRequest{
				Category: "video", ContentType: "video/mp4", Filename: "a.mp4",
				Size: -1, Body: bytes.NewReader(make([]byte, limit+1)),
			},
			wantErr: ErrPayloadTooLarge,
		},
		{
			name: "understated size",
			req: IngestRequest{
				Category: "video", ContentType: "video/mp4", Filename: "a.mp4",
				Size: 10, Body: bytes.NewReader(make([]byte, 4*limit)),
			},
			wantErr: ErrPayloadTooLarge,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, root := newDiskService(t, WithMaxUploadBytes(limit))

			_, err := svc.Ingest(context.Background(), tt.req)
			require.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, dirEntries(t, root, "videos"), "no payload, sidecar or temp file may remain")
		})
	}
}

func TestIngest_ExactlyAtLimit(t *testing.T) {
	const limit = 1024
	svc, _ := newDiskService(t, WithMaxUploadBytes(limit))

	item, err := svc.Ingest(context.Background(), IngestRequest{
		Category: "audio", ContentType: "audio/ogg", Filename: "a.ogg",
		Size: -1, Body: bytes.NewReader(make([]byte, limit)),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(limit), item.Size)
}

func TestIngest_CancelledContextLeavesNoFiles(t *testing.T) {
	svc, root := newDiskService(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Ingest(ctx, IngestRequest{
		Category: "book", ContentType: "application/pdf", Filename: "a.pdf",
		Size: 3, Body: strings.NewReader("abc"),
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, dirEntries(t, root, "books"))
}

func TestIngest_SkipsExistingName(t *testing.T) {
	fixed := time.UnixMilli(1700000000000)
	svc, root := newDiskService(t, WithClock(func() time.Time { return fixed }))
	svc.(*contentService).names.rand = func() string { return "aaaaaaaaaaaa" }

	taken := filepath.Join(root, "books", "file-1700000000000-aaaaaaaaaaaa.pdf")
	require.NoError(t, os.WriteFile(taken, []byte("existing"), 0o644))

	item, err := svc.Ingest(context.Background(), IngestRequest{
		Category: "book", ContentType: "application/pdf", Field: "file", Filename: "new.pdf",
		Size: 3, Body: strings.NewReader("new"),
	})
	require.NoError(t, err)
	assert.Equal(t, "file-1700000000001-aaaaaaaaaaaa.pdf", item.Filename)

	existing, err := os.ReadFile(taken)
	require.NoError(t, err)
	assert.Equal(t, "existing", string(existing))
}

func TestIngest_ConcurrentSameOriginalName(t *testing.T) {
	svc, root := newDiskService(t)
	const n = 16

	var wg sync.WaitGroup
	items := make([]*model.StoredItem, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			body := strings.Repeat(fmt.Sprintf("upload-%02d;", i), 100)
			items[i], errs[i] = svc.Ingest(context.Background(), IngestRequest{
				Category: "audio", ContentType: "audio/mpeg", Field: "file", Filename: "same.mp3",
				Size: int64(len(body)), Body: strings.NewReader(body),
			})
		}(i)
	}
	wg.Wait()

	names := make(map[string]struct{}, n)
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		names[items[i].Filename] = struct{}{}

		onDisk, err := os.ReadFile(filepath.Join(root, "audios", items[i].Filename))
		require.NoError(t, err)
		assert.Equal(t, strings.Repeat(fmt.Sprintf("upload-%02d;", i), 100), string(onDisk))
	}
	assert.Len(t, names, n)

	listed, err := svc.List(context.Background(), "audio")
	require.NoError(t, err)
	assert.Len(t, listed, n)
}

func TestIngest_JSONUploadIsNotMistakenForSidecar(t *testing.T) {
	svc, _ := newDiskService(t)

	item, err := svc.Ingest(context.Background(), IngestRequest{
		Category: "book", ContentType: "application/pdf", Filename: "export.json",
		Size: 2, Body: strings.NewReader("{}"),
	})
	require.NoError(t, err)
	assert.False(t, strings.HasSuffix(item.Filename, ".json"))

	items, err := svc.List(context.Background(), "books")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "export.json", items[0].OriginalName)
}

func TestList_FallsBackWithoutSidecar(t *testing.T) {
	svc, root := newDiskService(t)
	dir := filepath.Join(root, "videos")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "orphan.mp4"), []byte("12345"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.mp4"), []byte("123"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.mp4.json"), []byte("{"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "stray.json"), []byte("{}"), 0o644))

	items, err := svc.List(context.Background(), "videos")
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, "broken.mp4", items[0].Filename)
	assert.Equal(t, "broken.mp4", items[0].OriginalName)
	assert.Equal(t, int64(3), items[0].Size)

	assert.Equal(t, "orphan.mp4", items[1].Filename)
	assert.Equal(t, int64(5), items[1].Size)
	assert.False(t, items[1].UploadDate.IsZero())
}

func TestList_EmptyAndUnknown(t *testing.T) {
	svc, _ := newDiskService(t)

	items, err := svc.List(context.Background(), "articles")
	require.NoError(t, err)
	assert.NotNil(t, items)
	assert.Empty(t, items)

	_, err = svc.List(context.Background(), "hadith")
	assert.ErrorIs(t, err, ErrUnknownCategory)
}

func TestOpen(t *testing.T) {
	svc, _ := newDiskService(t)
	ctx := context.Background()

	item, err := svc.Ingest(ctx, IngestRequest{
		Category: "article", ContentType: "image/jpeg", Filename: "pic.jpg",
		Size: 4, Body: strings.NewReader("jpeg"),
	})
	require.NoError(t, err)

	rc, got, err := svc.Open(ctx, "articles", item.Filename)
	require.NoError(t, err)
	body, _ := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	assert.Equal(t, "jpeg", string(body))
	assert.Equal(t, "image/jpeg", got.MimeType)
	assert.Equal(t, "pic.jpg", got.OriginalName)

	_, _, err = svc.Open(ctx, "articles", item.Filename+".json")
	assert.ErrorIs(t, err, ErrNotFound)
	_, _, err = svc.Open(ctx, "articles", "missing.jpg")
	assert.ErrorIs(t, err, ErrNotFound)
	_, _, err = svc.Open(ctx, "articles", "../books/x.pdf")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDelete_RemovesPayloadAndSidecar(t *testing.T) {
	svc, root := newDiskService(t)
	ctx := context.Background()

	keep, err := svc.Ingest(ctx, IngestRequest{
		Category: "book", ContentType: "application/pdf", Filename: "keep.pdf",
		Size: 4, Body: strings.NewReader("keep"),
	})
	require.NoError(t, err)
	gone, err := svc.Ingest(ctx, IngestRequest{
		Category: "book", ContentType: "application/pdf", Filename: "gone.pdf",
		Size: 4, Body: strings.NewReader("gone"),
	})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, "book", gone.Filename))

	assert.NoFileExists(t, filepath.Join(root, "books", gone.Filename))
	assert.NoFileExists(t, filepath.Join(root, "books", gone.Filename+".json"))

	items, err := svc.List(ctx, "books")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, keep.Filename, items[0].Filename)

	assert.ErrorIs(t, svc.Delete(ctx, "book", gone.Filename), ErrNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, "book", keep.Filename+".json"), ErrNotFound)
	assert.FileExists(t, filepath.Join(root, "books", keep.Filename+".json"))
}

func TestDelete_OrphanSidecarIsNotAPayload(t *testing.T) {
	svc, root := newDiskService(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "audios", "lost.mp3.json"), []byte("{}"), 0o644))

	assert.ErrorIs(t, svc.Delete(context.Background(), "audio", "lost.mp3"), ErrNotFound)
	assert.FileExists(t, filepath.Join(root, "audios", "lost.mp3.json"))
}
