package storage

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrLinkExpired возвращается при проверке просроченной или поддельной ссылки.
var ErrLinkExpired = fmt.Errorf("storage: ссылка недействительна или истекла")

// FileStorage отвечает за файловое хранилище вложений заказов.
type FileStorage struct {
	rootPath       string
	maxUploadBytes int64
	signSecret     []byte
	linkTTL        time.Duration
}

// NewFileStorage создаёт файловое хранилище.
func NewFileStorage(rootPath string, maxUploadMB int64, signSecret string, linkTTL time.Duration) (*FileStorage, error) {
	if err := os.MkdirAll(rootPath, 0o755); err != nil {
		return nil, fmt.Errorf("storage: не удалось создать каталог %s: %w", rootPath, err)
	}

	return &FileStorage{
		rootPath:       rootPath,
		maxUploadBytes: maxUploadMB * 1024 * 1024,
		signSecret:     []byte(signSecret),
		linkTTL:        linkTTL,
	}, nil
}

// Save сохраняет файл и возвращает относительный путь.
func (s *FileStorage) Save(ctx context.Context, userID uuid.UUID, originalName string, r io.Reader) (string, int64, error) {
	if err := ctx.Err(); err != nil {
		return "", 0, err
	}

	safeName := sanitizeFilename(originalName)
	fileName := fmt.Sprintf("%s_%d%s", userID.String(), time.Now().UnixNano(), filepath.Ext(safeName))

	userDir := filepath.Join(s.rootPath, userID.String())
	if err := os.MkdirAll(userDir, 0o755); err != nil {
		return "", 0, fmt.Errorf("storage: не удалось создать каталог пользователя: %w", err)
	}

	targetPath := filepath.Join(userDir, fileName)
	tempPath := targetPath + ".tmp"

	f, err := os.Create(tempPath)
	if err != nil {
		return "", 0, fmt.Errorf("storage: не удалось создать файл: %w", err)
	}
	defer f.Close()

	limitedReader := io.LimitedReader{R: r, N: s.maxUploadBytes + 1}
	written, err := io.Copy(f, &limitedReader)
	if err != nil {
		_ = os.Remove(tempPath)
		return "", 0, fmt.Errorf("storage: ошибка записи файла: %w", err)
	}

	if written > s.maxUploadBytes {
		_ = os.Remove(tempPath)
		return "", 0, fmt.Errorf("storage: размер файла превышает лимит %d байт", s.maxUploadBytes)
	}

	if err := f.Close(); err != nil {
		return "", 0, fmt.Errorf("storage: ошибка закрытия файла: %w", err)
	}

	if err := os.Rename(tempPath, targetPath); err != nil {
		return "", 0, fmt.Errorf("storage: не удалось переименовать файл: %w", err)
	}

	relative := filepath.Join(userID.String(), fileName)
	return relative, written, nil
}

// Open открывает сохранённый файл для чтения.
func (s *FileStorage) Open(ctx context.Context, relativePath string) (*os.File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	target := filepath.Join(s.rootPath, filepath.Clean("/"+relativePath))
	f, err := os.Open(target)
	if err != nil {
		return nil, fmt.Errorf("storage: не удалось открыть файл: %w", err)
	}
	return f, nil
}

// Delete удаляет файл из хранилища.
func (s *FileStorage) Delete(ctx context.Context, relativePath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	target := filepath.Join(s.rootPath, filepath.Clean("/"+relativePath))
	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("storage: не удалось удалить файл: %w", err)
	}
	return nil
}

// SignedPath возвращает подписанный путь скачивания с ограниченным сроком действия.
// Подпись покрывает идентификатор файла и время истечения, поэтому ссылку
// нельзя переиспользовать для другого файла или продлить.
func (s *FileStorage) SignedPath(mediaID uuid.UUID) string {
	expires := time.Now().Add(s.linkTTL).Unix()
	sig := s.sign(mediaID, expires)
	return fmt.Sprintf("/api/media/%s/download?expires=%d&sig=%s", mediaID, expires, url.QueryEscape(sig))
}

// VerifySignedQuery проверяет подпись и срок действия ссылки скачивания.
func (s *FileStorage) VerifySignedQuery(mediaID uuid.UUID, expiresRaw, sig string) error {
	expires, err := strconv.ParseInt(expiresRaw, 10, 64)
	if err != nil {
		return ErrLinkExpired
	}
	if time.Now().Unix() > expires {
		return ErrLinkExpired
	}

	expected := s.sign(mediaID, expires)
	if !hmac.Equal([]byte(expected), []byte(sig)) {
		return ErrLinkExpired
	}
	return nil
}

func (s *FileStorage) sign(mediaID uuid.UUID, expires int64) string {
	mac := hmac.New(sha256.New, s.signSecret)
	fmt.Fprintf(mac, "%s:%d", mediaID, expires)
	return hex.EncodeToString(mac.Sum(nil))
}

// sanitizeFilename удаляет потенциально опасные символы.
func sanitizeFilename(name string) string {
	name = filepath.Base(name)
	name = strings.ReplaceAll(name, "..", "")
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	if name == "" {
		name = "file"
	}
	return name
}
