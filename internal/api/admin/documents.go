// documents.go implements document upload, listing, download and deletion. File content
// lives in the configured storage backend; metadata lives in the documents table.
package admin

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/amiga-fleet/amiga-backend/internal/config"
	"github.com/amiga-fleet/amiga-backend/internal/db/models"
	"github.com/amiga-fleet/amiga-backend/internal/db/repositories"
	"github.com/amiga-fleet/amiga-backend/internal/middleware"
	"github.com/amiga-fleet/amiga-backend/internal/storage"
)

const defaultMaxUploadMB = 25

// DocumentHandlers handles document endpoints
type DocumentHandlers struct {
	cfg          *config.Config
	documentRepo *repositories.DocumentRepository
	vehicleRepo  *repositories.VehicleRepository
	userRepo     *repositories.UserRepository
	storage      storage.Storage
}

// NewDocumentHandlers creates a new DocumentHandlers instance
func NewDocumentHandlers(cfg *config.Config, db *sqlx.DB, storageBackend storage.Storage) *DocumentHandlers {
	return &DocumentHandlers{
		cfg:          cfg,
		documentRepo: repositories.NewDocumentRepository(db),
		vehicleRepo:  repositories.NewVehicleRepository(db),
		userRepo:     repositories.NewUserRepository(db),
		storage:      storageBackend,
	}
}

// Owner types accepted by the entity document routes
const (
	OwnerVehicle = "vehicle"
	OwnerUser    = "user"
)

// ListDocumentsHandler lists document metadata
// GET /api/erp/documents?type=&category=&ownerType=&ownerId=&page=&limit=
func (h *DocumentHandlers) ListDocumentsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		page, limit, offset := pagination(c)
		filters := repositories.DocumentFilters{
			Type:      queryPtr(c, "type"),
			Category:  queryPtr(c, "category"),
			OwnerType: queryPtr(c, "ownerType"),
			OwnerID:   queryPtr(c, "ownerId"),
		}

		docs, total, err := h.documentRepo.ListDocuments(c.Request.Context(), filters, limit, offset)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list documents"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"documents":  docs,
			"pagination": paginationBody(page, limit, total),
		})
	}
}

// GetDocumentHandler returns document metadata
// GET /api/erp/documents/:id
func (h *DocumentHandlers) GetDocumentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		doc, ok := h.loadDocument(c)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, gin.H{"document": doc})
	}
}

// @Summary      Upload document
// @Description  Multipart upload. The "file" part is stored in the configured backend; the remaining form fields become document metadata.
// @Tags         Documents
// @Security     Bearer
// @Accept       multipart/form-data
// @Produce      json
// @Param        file            formData  file    true   "Document file"
// @Param        name            formData  string  false  "Display name (defaults to the file name)"
// @Param        type            formData  string  true   "vehicle, user, company, maintenance, insurance or other"
// @Param        category        formData  string  false  "Category"
// @Param        ownerType       formData  string  false  "Owning entity type"
// @Param        ownerId         formData  string  false  "Owning entity ID"
// @Param        expirationDate  formData  string  false  "Expiry date (YYYY-MM-DD)"
// @Success      201  {object}  map[string]interface{}  "document: models.Document"
// @Failure      400  {object}  map[string]interface{}  "Invalid request"
// @Failure      413  {object}  map[string]interface{}  "File too large"
// @Router       /api/erp/documents [post]
// UploadDocumentHandler stores an uploaded file and its metadata
func (h *DocumentHandlers) UploadDocumentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		docType := c.PostForm("type")
		if docType == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "type is required"})
			return
		}
		h.store(c, docType, optionalForm(c, "ownerType"), optionalForm(c, "ownerId"))
	}
}

// ListOwnerDocumentsHandler lists the documents attached to the :id vehicle or user
// GET /api/vehicles/:id/documents, GET /api/users/:id/documents
func (h *DocumentHandlers) ListOwnerDocumentsHandler(ownerType string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ownerID, ok := h.loadOwner(c, ownerType)
		if !ok {
			return
		}
		page, limit, offset := pagination(c)
		filters := repositories.DocumentFilters{OwnerType: &ownerType, OwnerID: &ownerID}

		docs, total, err := h.documentRepo.ListDocuments(c.Request.Context(), filters, limit, offset)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list documents"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"documents":  docs,
			"pagination": paginationBody(page, limit, total),
		})
	}
}

// UploadOwnerDocumentHandler attaches an uploaded file to the :id vehicle or user. The
// document type defaults to the owner type.
// POST /api/vehicles/:id/documents, POST /api/users/:id/documents
func (h *DocumentHandlers) UploadOwnerDocumentHandler(ownerType string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ownerID, ok := h.loadOwner(c, ownerType)
		if !ok {
			return
		}
		docType := c.PostForm("type")
		if docType == "" {
			docType = ownerType
		}
		h.store(c, docType, &ownerType, &ownerID)
	}
}

// loadOwner checks that the :id owner exists and writes a 404 when it does not
func (h *DocumentHandlers) loadOwner(c *gin.Context, ownerType string) (string, bool) {
	id := c.Param("id")
	ctx := c.Request.Context()

	var (
		found bool
		err   error
	)
	switch ownerType {
	case OwnerVehicle:
		var v *models.Vehicle
		v, err = h.vehicleRepo.GetVehicle(ctx, id)
		found = v != nil
	case OwnerUser:
		var u *models.User
		u, err = h.userRepo.GetUserByID(ctx, id)
		found = u != nil
	default:
		err = fmt.Errorf("unsupported owner type %q", ownerType)
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve " + ownerType})
		return "", false
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": strings.ToUpper(ownerType[:1]) + ownerType[1:] + " not found"})
		return "", false
	}
	return id, true
}

// store uploads the "file" part and saves its metadata
func (h *DocumentHandlers) store(c *gin.Context, docType string, ownerType, ownerID *string) {
	maxMB := h.cfg.Server.MaxUploadMB
	if maxMB <= 0 {
		maxMB = defaultMaxUploadMB
	}
	maxBytes := int64(maxMB) << 20

	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "A file is required"})
		return
	}
	if fh.Size > maxBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": fmt.Sprintf("File exceeds %d MB", maxMB)})
		return
	}

	var expiration *time.Time
	if v := c.PostForm("expirationDate"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "expirationDate must be YYYY-MM-DD"})
			return
		}
		expiration = &t
	}

	file, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read upload"})
		return
	}
	defer file.Close()

	id := uuid.New().String()
	key := documentKey(id, fh.Filename)
	ctx := c.Request.Context()

	result, err := h.storage.Upload(ctx, key, file, fh.Size)
	if err != nil {
		slog.Error("document upload failed", "key", key, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store file"})
		return
	}

	name := c.PostForm("name")
	if name == "" {
		name = fh.Filename
	}
	mimeType := fh.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	doc := &models.Document{
		ID:             id,
		Name:           name,
		Type:           docType,
		Category:       optionalForm(c, "category"),
		OriginalName:   fh.Filename,
		MimeType:       mimeType,
		Size:           result.Size,
		StoragePath:    result.Key,
		Checksum:       result.Checksum,
		OwnerType:      ownerType,
		OwnerID:        ownerID,
		ExpirationDate: expiration,
		UploadedBy:     optionalString(c.GetString(middleware.ContextUserID)),
		IsActive:       true,
	}
	if err := h.documentRepo.CreateDocument(ctx, doc); err != nil {
		// do not leave an orphaned object behind
		if delErr := h.storage.Delete(ctx, key); delErr != nil {
			slog.Warn("failed to remove orphaned upload", "key", key, "error", delErr)
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save document"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"document": doc})
}

// DownloadDocumentHandler streams the stored file
// GET /api/erp/documents/:id/download
func (h *DocumentHandlers) DownloadDocumentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		doc, ok := h.loadDocument(c)
		if !ok {
			return
		}

		reader, err := h.storage.Download(c.Request.Context(), doc.StoragePath)
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Document file not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read document"})
			return
		}
		defer reader.Close()

		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", doc.OriginalName))
		c.Header("Content-Length", strconv.FormatInt(doc.Size, 10))
		c.Header("X-Checksum-SHA256", doc.Checksum)
		c.Status(http.StatusOK)
		c.Writer.Header().Set("Content-Type", doc.MimeType)
		if _, err := io.Copy(c.Writer, reader); err != nil {
			slog.Warn("document download interrupted", "id", doc.ID, "error", err)
		}
	}
}

// DeleteDocumentHandler removes the metadata and the stored file
// DELETE /api/erp/documents/:id
func (h *DocumentHandlers) DeleteDocumentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		doc, ok := h.loadDocument(c)
		if !ok {
			return
		}
		ctx := c.Request.Context()
		if err := h.documentRepo.DeleteDocument(ctx, doc.ID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete document"})
			return
		}
		if err := h.storage.Delete(ctx, doc.StoragePath); err != nil {
			slog.Warn("document file not removed", "key", doc.StoragePath, "error", err)
		}
		c.JSON(http.StatusOK, gin.H{"message": "Document deleted", "document": doc})
	}
}

func (h *DocumentHandlers) loadDocument(c *gin.Context) (*models.Document, bool) {
	doc, err := h.documentRepo.GetDocument(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve document"})
		return nil, false
	}
	if doc == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Document not found"})
		return nil, false
	}
	return doc, true
}

// documentKey builds documents/<id>/<file name>, keeping only the base name of the upload
func documentKey(id, filename string) string {
	base := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if base == "." || base == "/" || base == ".." {
		base = "file"
	}
	return "documents/" + id + "/" + base
}

func optionalForm(c *gin.Context, key string) *string {
	return optionalString(c.PostForm(key))
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
