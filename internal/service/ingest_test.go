package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"hostbin/file-api/internal/model"
	"hostbin/file-api/internal/store"
	"hostbin/file-api/pkg/quota"
	"hostbin/file-api/pkg/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type testEnv struct {
	store *store.DB
	paths *storage.Paths
	root  string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(model.User{}, model.Upload{}, model.Image{}))

	root := t.TempDir()
	paths, err := storage.New(root)
	require.NoError(t, err)

	return &testEnv{
		store: store.New(conn),
		paths: paths,
		root:  root,
	}
}

func (e *testEnv) pipeline(tiers quota.Tiers) *Pipeline {
	return NewPipeline(e.store, e.paths, tiers)
}

// ownerFiles lists the files currently stored for an owner
func (e *testEnv) ownerFiles(t *testing.T, ownerID uint) []string {
	t.Helper()

	entries, err := os.ReadDir(filepath.Join(e.root, fmt.Sprintf("owner_%d", ownerID)))
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}

	return names
}

func openTiers() quota.Tiers {
	open := quota.Limits{
		MaxFileSize:  -1,
		MaxFileCount: -1,
		AllowedTypes: []string{"*"},
	}

	return quota.Tiers{Registered: open, Unregistered: open}
}

// makePNG encodes a real PNG so content detection and inspection see
// an actual image
func makePNG(t *testing.T, width, height int) []byte {
	t.Helper()

	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	return buf.Bytes()
}

func input(filename string, content []byte) UploadInput {
	return UploadInput{
		Filename:     filename,
		DeclaredSize: int64(len(content)),
		Reader:       bytes.NewReader(content),
	}
}

var testOwner = &model.User{ID: 1, Username: "tester", Registered: false}

func TestIngestImageSuccess(t *testing.T) {
	env := newTestEnv(t)

	tiers := openTiers()
	tiers.Unregistered = quota.Limits{
		MaxFileSize:  10 << 20,
		MaxFileCount: 5,
		AllowedTypes: []string{"image/*"},
	}

	p := env.pipeline(tiers)
	content := makePNG(t, 640, 480)

	outcomes := p.Ingest(context.Background(), testOwner, []UploadInput{input("Holiday Photo.png", content)})
	require.Len(t, outcomes, 1)

	out := outcomes[0]
	require.True(t, out.Success, "unexpected failure: %s %s", out.ErrorKind, out.ErrorMessage)
	assert.Equal(t, "Holiday Photo.png", out.Filename)
	assert.Equal(t, int64(len(content)), out.Size)

	upload, err := env.store.Get(context.Background(), out.UploadID)
	require.NoError(t, err)

	assert.Equal(t, "image/png", upload.Type)
	assert.Equal(t, "png", upload.Ext)
	assert.Equal(t, "holiday_photo", upload.CleanName)
	assert.Equal(t, "Holiday Photo.png", upload.OriginalName)
	assert.False(t, upload.Private)

	require.NotNil(t, upload.Image)
	assert.Equal(t, 640, upload.Image.Width)
	assert.Equal(t, 480, upload.Image.Height)
	assert.Equal(t, 32, upload.Image.Bits)
	assert.Equal(t, 4, upload.Image.Channels)

	path, err := env.paths.FilePath(testOwner.ID, upload.Name, upload.Ext)
	require.NoError(t, err)

	stored, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, content, stored)
}

func TestIngestOversizedFile(t *testing.T) {
	env := newTestEnv(t)

	tiers := openTiers()
	tiers.Unregistered.MaxFileSize = 1024

	p := env.pipeline(tiers)

	outcomes := p.Ingest(context.Background(), testOwner, []UploadInput{
		input("big.bin", bytes.Repeat([]byte{0xAB}, 2048)),
	})
	require.Len(t, outcomes, 1)

	assert.False(t, outcomes[0].Success)
	assert.Equal(t, string(quota.FileTooLarge), outcomes[0].ErrorKind)

	assert.Empty(t, env.ownerFiles(t, testOwner.ID))

	count, err := env.store.CountForOwner(context.Background(), testOwner.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestIngestEmptyFileInBatch(t *testing.T) {
	env := newTestEnv(t)
	p := env.pipeline(openTiers())

	outcomes := p.Ingest(context.Background(), testOwner, []UploadInput{
		input("first.txt", []byte("first file contents")),
		input("empty.txt", nil),
		input("third.txt", []byte("third file contents")),
	})
	require.Len(t, outcomes, 3)

	assert.True(t, outcomes[0].Success)
	assert.False(t, outcomes[1].Success)
	assert.Equal(t, string(quota.EmptyFile), outcomes[1].ErrorKind)
	assert.True(t, outcomes[2].Success)

	assert.Len(t, env.ownerFiles(t, testOwner.ID), 2)
}

func TestIngestCountQuota(t *testing.T) {
	env := newTestEnv(t)

	tiers := openTiers()
	tiers.Unregistered.MaxFileCount = 2

	p := env.pipeline(tiers)
	ctx := context.Background()

	for _, name := range []string{"a.txt", "b.txt"} {
		outcomes := p.Ingest(ctx, testOwner, []UploadInput{input(name, []byte("content"))})
		require.True(t, outcomes[0].Success)
	}

	outcomes := p.Ingest(ctx, testOwner, []UploadInput{input("c.txt", []byte("content"))})
	assert.False(t, outcomes[0].Success)
	assert.Equal(t, string(quota.QuotaExceeded), outcomes[0].ErrorKind)

	assert.Len(t, env.ownerFiles(t, testOwner.ID), 2)
}

func TestIngestFailureIsolation(t *testing.T) {
	env := newTestEnv(t)

	tiers := openTiers()
	tiers.Unregistered = quota.Limits{
		MaxFileSize:  1 << 20,
		MaxFileCount: -1,
		AllowedTypes: []string{"image/*", "text/*"},
	}

	p := env.pipeline(tiers)

	outcomes := p.Ingest(context.Background(), testOwner, []UploadInput{
		input("one.png", makePNG(t, 4, 4)),
		input("two.bin", bytes.Repeat([]byte{0xCD}, 2<<20)),
		input("three.txt", []byte("plain text number three")),
		input("four.pdf", []byte("%PDF-1.4 not actually allowed here")),
		input("five.png", makePNG(t, 8, 8)),
	})
	require.Len(t, outcomes, 5)

	assert.True(t, outcomes[0].Success)
	assert.True(t, outcomes[2].Success)
	assert.True(t, outcomes[4].Success)

	assert.False(t, outcomes[1].Success)
	assert.Equal(t, string(quota.FileTooLarge), outcomes[1].ErrorKind)

	assert.False(t, outcomes[3].Success)
	assert.Equal(t, string(quota.TypeNotAllowed), outcomes[3].ErrorKind)

	// Outcomes stay in input order
	assert.Equal(t, "one.png", outcomes[0].Filename)
	assert.Equal(t, "two.bin", outcomes[1].Filename)
	assert.Equal(t, "five.png", outcomes[4].Filename)

	assert.Len(t, env.ownerFiles(t, testOwner.ID), 3)
}

// failingUploads forces Create to fail to exercise the cleanup path
type failingUploads struct {
	store.Uploads
}

func (f *failingUploads) Create(ctx context.Context, upload *model.Upload) error {
	return errors.New("database is down")
}

func TestIngestCleansUpWhenPersistFails(t *testing.T) {
	env := newTestEnv(t)

	p := NewPipeline(&failingUploads{Uploads: env.store}, env.paths, openTiers())

	outcomes := p.Ingest(context.Background(), testOwner, []UploadInput{
		input("doomed.txt", []byte("these bytes must not stay behind")),
	})
	require.Len(t, outcomes, 1)

	assert.False(t, outcomes[0].Success)
	assert.Equal(t, errKindPersistence, outcomes[0].ErrorKind)

	// The written file is gone again
	assert.Empty(t, env.ownerFiles(t, testOwner.ID))
}

func TestIngestRetryAfterFailure(t *testing.T) {
	env := newTestEnv(t)
	content := []byte("retryable content")

	failing := NewPipeline(&failingUploads{Uploads: env.store}, env.paths, openTiers())
	outcomes := failing.Ingest(context.Background(), testOwner, []UploadInput{input("retry.txt", content)})
	require.False(t, outcomes[0].Success)

	// The same file goes through cleanly once the store recovers, no
	// leftover state blocks it
	p := env.pipeline(openTiers())
	outcomes = p.Ingest(context.Background(), testOwner, []UploadInput{input("retry.txt", content)})
	require.True(t, outcomes[0].Success)

	assert.Len(t, env.ownerFiles(t, testOwner.ID), 1)
}

func TestIngestDuplicateNamesInBatch(t *testing.T) {
	env := newTestEnv(t)
	p := env.pipeline(openTiers())

	outcomes := p.Ingest(context.Background(), testOwner, []UploadInput{
		input("same.txt", []byte("first body")),
		input("same.txt", []byte("second body")),
	})
	require.Len(t, outcomes, 2)

	assert.True(t, outcomes[0].Success)
	assert.True(t, outcomes[1].Success)
	assert.NotEqual(t, outcomes[0].UploadID, outcomes[1].UploadID)

	assert.Len(t, env.ownerFiles(t, testOwner.ID), 2)
}

func TestIngestCorruptImageStillUploads(t *testing.T) {
	env := newTestEnv(t)
	p := env.pipeline(openTiers())

	// Valid PNG signature followed by garbage, sniffs as image/png but
	// doesn't decode
	content := append([]byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}, bytes.Repeat([]byte{0xFF}, 64)...)

	outcomes := p.Ingest(context.Background(), testOwner, []UploadInput{input("broken.png", content)})
	require.Len(t, outcomes, 1)
	require.True(t, outcomes[0].Success)

	upload, err := env.store.Get(context.Background(), outcomes[0].UploadID)
	require.NoError(t, err)
	assert.Nil(t, upload.Image)
}

func TestIngestRejectsDeclaredOversizeEarly(t *testing.T) {
	env := newTestEnv(t)

	tiers := openTiers()
	tiers.Unregistered.MaxFileSize = 100

	p := env.pipeline(tiers)

	outcomes := p.Ingest(context.Background(), testOwner, []UploadInput{{
		Filename:     "big.bin",
		DeclaredSize: 1 << 30,
		Reader:       bytes.NewReader([]byte("small actual body")),
	}})
	require.Len(t, outcomes, 1)

	assert.False(t, outcomes[0].Success)
	assert.Equal(t, string(quota.FileTooLarge), outcomes[0].ErrorKind)
}

// bgCountUploads counts against a fresh context so a cancellation can
// land between the quota check and persistence
type bgCountUploads struct {
	store.Uploads
}

func (b *bgCountUploads) CountForOwner(ctx context.Context, ownerID uint) (int64, error) {
	return b.Uploads.CountForOwner(context.Background(), ownerID)
}

func TestIngestCancelledContext(t *testing.T) {
	env := newTestEnv(t)
	p := NewPipeline(&bgCountUploads{Uploads: env.store}, env.paths, openTiers())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcomes := p.Ingest(ctx, testOwner, []UploadInput{input("late.txt", []byte("cancelled body"))})
	require.Len(t, outcomes, 1)

	assert.False(t, outcomes[0].Success)
	assert.Equal(t, errKindCancelled, outcomes[0].ErrorKind)
	assert.Empty(t, env.ownerFiles(t, testOwner.ID))
}
