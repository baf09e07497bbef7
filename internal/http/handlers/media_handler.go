package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/h2non/filetype"

	"github.com/skillmarket/marketplace-backend/internal/dto"
	"github.com/skillmarket/marketplace-backend/internal/http/handlers/common"
	"github.com/skillmarket/marketplace-backend/internal/models"
	"github.com/skillmarket/marketplace-backend/internal/pkg/apperror"
	"github.com/skillmarket/marketplace-backend/internal/repository"
	"github.com/skillmarket/marketplace-backend/internal/storage"
)

// Разрешённые типы файлов: изображения и документы для требований
// клиента и сдачи работы.
var allowedMimeTypes = map[string]bool{
	"image/jpeg":      true,
	"image/png":       true,
	"image/gif":       true,
	"image/webp":      true,
	"application/pdf": true,
	"application/zip": true,
}

// Разрешённые расширения файлов
var allowedExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
	".pdf":  true,
	".zip":  true,
}

// MediaHandler управляет загрузкой и скачиванием файлов.
type MediaHandler struct {
	repo    *repository.MediaRepository
	storage *storage.FileStorage
}

// NewMediaHandler создаёт хэндлер.
func NewMediaHandler(repo *repository.MediaRepository, storage *storage.FileStorage) *MediaHandler {
	return &MediaHandler{repo: repo, storage: storage}
}

// Upload обрабатывает POST /media.
func (h *MediaHandler) Upload(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		common.RespondBadRequest(c, "поле file обязательно")
		return
	}

	if file.Size == 0 {
		common.RespondBadRequest(c, "файл не может быть пустым")
		return
	}

	ext := strings.ToLower(filepath.Ext(file.Filename))
	if !allowedExtensions[ext] {
		c.Error(apperror.New(apperror.ErrCodeBadRequest, fmt.Sprintf("неподдерживаемый формат файла. Разрешены: %s", strings.Join(listAllowedExtensions(), ", "))))
		return
	}

	src, err := file.Open()
	if err != nil {
		common.RespondInternalError(c, err.Error())
		return
	}
	defer src.Close()

	// Первые 512 байт хватает для определения реального типа по магическим байтам
	buffer := make([]byte, 512)
	n, err := src.Read(buffer)
	if err != nil && err != io.EOF {
		common.RespondBadRequest(c, "не удалось прочитать файл")
		return
	}

	kind, err := filetype.Match(buffer[:n])
	if err != nil || kind == filetype.Unknown {
		common.RespondBadRequest(c, "не удалось определить тип файла")
		return
	}

	contentType := kind.MIME.Value
	if !allowedMimeTypes[contentType] {
		c.Error(apperror.New(apperror.ErrCodeBadRequest, fmt.Sprintf("неподдерживаемый тип файла (%s)", contentType)))
		return
	}

	// Расширение должно соответствовать реальному типу файла
	expectedExt := "." + kind.Extension
	if ext != expectedExt && !(ext == ".jpg" && expectedExt == ".jpeg") && !(ext == ".jpeg" && expectedExt == ".jpg") {
		c.Error(apperror.New(apperror.ErrCodeBadRequest, fmt.Sprintf("расширение файла (%s) не соответствует реальному типу (%s)", ext, expectedExt)))
		return
	}

	if seeker, ok := src.(io.Seeker); ok {
		if _, err := seeker.Seek(0, io.SeekStart); err != nil {
			common.RespondInternalError(c, "не удалось сбросить позицию файла")
			return
		}
	}

	relativePath, size, err := h.storage.Save(c.Request.Context(), userID, file.Filename, src)
	if err != nil {
		common.RespondInternalError(c, err.Error())
		return
	}

	media := &models.MediaFile{
		UserID:   &userID,
		FilePath: filepath.ToSlash(relativePath),
		FileType: contentType,
		FileSize: size,
	}

	if err := h.repo.Create(c.Request.Context(), media); err != nil {
		common.RespondInternalError(c, err.Error())
		return
	}

	c.JSON(http.StatusCreated, dto.MediaUploadResponse{
		Media:       media,
		DownloadURL: h.storage.SignedPath(media.ID),
	})
}

// Download обрабатывает GET /media/:id/download?expires=...&sig=...
// Ссылка подписана и ограничена по времени, авторизация не требуется.
func (h *MediaHandler) Download(c *gin.Context) {
	mediaID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	if err := h.storage.VerifySignedQuery(mediaID, c.Query("expires"), c.Query("sig")); err != nil {
		common.RespondForbidden(c, "ссылка недействительна или истекла")
		return
	}

	media, err := h.repo.GetByID(c.Request.Context(), mediaID)
	if err != nil {
		c.Error(err)
		return
	}

	f, err := h.storage.Open(c.Request.Context(), media.FilePath)
	if err != nil {
		common.RespondNotFound(c, "файл не найден")
		return
	}
	defer f.Close()

	c.Header("Content-Type", media.FileType)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(media.FilePath)))
	_, _ = io.Copy(c.Writer, f)
}

// SignedLink обрабатывает GET /media/:id/link — выдаёт свежую подписанную ссылку.
func (h *MediaHandler) SignedLink(c *gin.Context) {
	mediaID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	if _, err := h.repo.GetByID(c.Request.Context(), mediaID); err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"download_url": h.storage.SignedPath(mediaID)})
}

// Delete обрабатывает DELETE /media/:id.
func (h *MediaHandler) Delete(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	mediaID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	media, err := h.repo.GetByID(c.Request.Context(), mediaID)
	if err != nil {
		if errors.Is(err, repository.ErrMediaNotFound) {
			common.RespondNotFound(c, "файл не найден")
			return
		}
		c.Error(err)
		return
	}

	// Удалять можно только свои файлы
	if media.UserID == nil || *media.UserID != userID {
		common.RespondForbidden(c, "у вас нет прав на удаление этого файла")
		return
	}

	if err := h.repo.Delete(c.Request.Context(), mediaID); err != nil {
		c.Error(err)
		return
	}

	if err := h.storage.Delete(c.Request.Context(), media.FilePath); err != nil {
		c.Error(err)
		return
	}

	c.Status(http.StatusNoContent)
}

func listAllowedExtensions() []string {
	exts := make([]string, 0, len(allowedExtensions))
	for ext := range allowedExtensions {
		exts = append(exts, ext)
	}
	return exts
}
