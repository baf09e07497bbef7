package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func newTestStorage(t *testing.T, ttl time.Duration) *FileStorage {
	t.Helper()
	fs, err := NewFileStorage(t.TempDir(), 1, "media-sign-secret", ttl)
	if err != nil {
		t.Fatalf("не удалось создать хранилище: %v", err)
	}
	return fs
}

func TestFileStorage_SaveAndOpen(t *testing.T) {
	fs := newTestStorage(t, time.Minute)
	ctx := context.Background()
	userID := uuid.New()

	relative, size, err := fs.Save(ctx, userID, "отчёт.pdf", strings.NewReader("содержимое файла"))
	assert.NoError(t, err)
	assert.Equal(t, int64(len("содержимое файла")), size)
	assert.True(t, strings.HasPrefix(relative, userID.String()))
	assert.True(t, strings.HasSuffix(relative, ".pdf"))

	f, err := fs.Open(ctx, relative)
	if err != nil {
		t.Fatalf("не удалось открыть файл: %v", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	assert.NoError(t, err)
	assert.Equal(t, "содержимое файла", string(data))
}

func TestFileStorage_SaveRejectsOversized(t *testing.T) {
	fs := newTestStorage(t, time.Minute)
	ctx := context.Background()

	big := strings.NewReader(strings.Repeat("a", 1024*1024+1))
	_, _, err := fs.Save(ctx, uuid.New(), "big.bin", big)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "превышает лимит")
}

func TestFileStorage_Delete(t *testing.T) {
	fs := newTestStorage(t, time.Minute)
	ctx := context.Background()

	relative, _, err := fs.Save(ctx, uuid.New(), "note.txt", strings.NewReader("x"))
	assert.NoError(t, err)

	assert.NoError(t, fs.Delete(ctx, relative))
	_, err = fs.Open(ctx, relative)
	assert.Error(t, err)

	// Повторное удаление не считается ошибкой.
	assert.NoError(t, fs.Delete(ctx, relative))
}

func TestFileStorage_SignedPathRoundtrip(t *testing.T) {
	fs := newTestStorage(t, time.Minute)
	mediaID := uuid.New()

	signed := fs.SignedPath(mediaID)
	u, err := url.Parse(signed)
	assert.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("/api/media/%s/download", mediaID), u.Path)

	q := u.Query()
	assert.NoError(t, fs.VerifySignedQuery(mediaID, q.Get("expires"), q.Get("sig")))
}

func TestFileStorage_SignedPathExpired(t *testing.T) {
	fs := newTestStorage(t, -time.Minute)
	mediaID := uuid.New()

	u, err := url.Parse(fs.SignedPath(mediaID))
	assert.NoError(t, err)

	q := u.Query()
	err = fs.VerifySignedQuery(mediaID, q.Get("expires"), q.Get("sig"))
	assert.ErrorIs(t, err, ErrLinkExpired)
}

func TestFileStorage_SignedPathTampered(t *testing.T) {
	fs := newTestStorage(t, time.Minute)
	mediaID := uuid.New()

	u, err := url.Parse(fs.SignedPath(mediaID))
	assert.NoError(t, err)
	q := u.Query()

	// Подпись не переносится на другой файл.
	err = fs.VerifySignedQuery(uuid.New(), q.Get("expires"), q.Get("sig"))
	assert.ErrorIs(t, err, ErrLinkExpired)

	// Продление срока ломает подпись.
	later := fmt.Sprintf("%d", time.Now().Add(time.Hour).Unix())
	err = fs.VerifySignedQuery(mediaID, later, q.Get("sig"))
	assert.ErrorIs(t, err, ErrLinkExpired)

	// Мусор вместо срока действия.
	err = fs.VerifySignedQuery(mediaID, "garbage", q.Get("sig"))
	assert.ErrorIs(t, err, ErrLinkExpired)
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "passwd", sanitizeFilename("../../etc/passwd"))
	assert.Equal(t, "file", sanitizeFilename(""))
	assert.Equal(t, "report.pdf", sanitizeFilename("report.pdf"))
}
