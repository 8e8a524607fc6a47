package handler

import (
	"context"
	"database/sql"
	"mime"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"contentapi/internal/model"
	"contentapi/internal/service"
)

const uploadField = "file"

// RegisterRoutes attaches HTTP routes to the provided Fiber app.
// db may be nil when the activity log is disabled.
func RegisterRoutes(app *fiber.App, db *sql.DB, svc service.ContentService) {
	app.Get("/health", HealthCheck(db))
	app.Get("/healthz", LivenessProbe())

	api := app.Group("/api")
	api.Get("/content/:category", ListContent(svc))
	api.Delete("/content/:category/:filename", DeleteContent(svc))
	api.Post("/upload", UploadContent(svc))
	api.Get("/activity", ListActivity(svc))

	app.Get("/uploads/:category/:filename", ServeUpload(svc))
}

// HealthCheck godoc
// @Summary Readiness probe
// @Description Pings the activity database when one is configured.
// @Tags health
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 503 {object} errorPayload
// @Router /health [get]
func HealthCheck(db *sql.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if db == nil {
			return c.JSON(fiber.Map{"status": "healthy", "database": "disabled"})
		}
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			return writeError(c, fiber.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "dependency unavailable")
		}
		return c.JSON(fiber.Map{"status": "healthy", "database": "up"})
	}
}

// LivenessProbe godoc
// @Summary Liveness probe
// @Tags health
// @Success 200
// @Router /healthz [get]
func LivenessProbe() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	}
}

// ListContent godoc
// @Summary List items of a category
// @Description Accepts singular or plural tags (book, books).
// @Tags content
// @Produce json
// @Param category path string true "article, book, video or audio"
// @Success 200 {array} model.StoredItem
// @Failure 400 {object} errorPayload
// @Failure 500 {object} errorPayload
// @Router /api/content/{category} [get]
func ListContent(svc service.ContentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		items, err := svc.List(c.UserContext(), c.Params("category"))
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(items)
	}
}

type uploadResponse struct {
	Message string            `json:"message"`
	File    *model.StoredItem `json:"file"`
}

// UploadContent godoc
// @Summary Upload a file
// @Description multipart/form-data; the file MIME type must match the category.
// @Tags content
// @Accept mpfd
// @Produce json
// @Param file formData file true "payload"
// @Param contentType formData string true "article, book, video or audio"
// @Param title formData string false "title"
// @Param description formData string false "description"
// @Param author formData string false "author"
// @Param category formData string false "free-text tag"
// @Success 200 {object} uploadResponse
// @Failure 400 {object} errorPayload
// @Failure 413 {object} errorPayload
// @Failure 500 {object} errorPayload
// @Router /api/upload [post]
func UploadContent(svc service.ContentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		fh, err := c.FormFile(uploadField)
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "FILE_REQUIRED", "file is required")
		}

		f, err := fh.Open()
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "FILE_OPEN_ERROR", "cannot open uploaded file")
		}
		defer f.Close()

		item, err := svc.Ingest(c.UserContext(), service.IngestRequest{
			Category:    c.FormValue("contentType"),
			ContentType: fh.Header.Get("Content-Type"),
			Field:       uploadField,
			Filename:    fh.Filename,
			Size:        fh.Size,
			Body:        f,
			Fields: model.Fields{
				Title:       c.FormValue("title"),
				Description: c.FormValue("description"),
				Author:      c.FormValue("author"),
				Tag:         c.FormValue("category"),
			},
		})
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(uploadResponse{Message: "File uploaded successfully", File: item})
	}
}

// DeleteContent godoc
// @Summary Delete an item and its metadata
// @Tags content
// @Produce json
// @Param category path string true "article, book, video or audio"
// @Param filename path string true "stored file name"
// @Success 200 {object} map[string]string
// @Failure 400 {object} errorPayload
// @Failure 404 {object} errorPayload
// @Failure 500 {object} errorPayload
// @Router /api/content/{category}/{filename} [delete]
func DeleteContent(svc service.ContentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := svc.Delete(c.UserContext(), c.Params("category"), c.Params("filename")); err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(fiber.Map{"message": "File deleted successfully"})
	}
}

// ServeUpload godoc
// @Summary Download a stored payload
// @Tags content
// @Produce octet-stream
// @Param category path string true "articles, books, videos or audios"
// @Param filename path string true "stored file name"
// @Success 200 {file} file
// @Failure 404 {object} errorPayload
// @Router /uploads/{category}/{filename} [get]
func ServeUpload(svc service.ContentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		rc, item, err := svc.Open(c.UserContext(), c.Params("category"), c.Params("filename"))
		if err != nil {
			return writeServiceError(c, err)
		}

		ct := item.MimeType
		if ct == "" {
			ct = fiber.MIMEOctetStream
		}
		c.Set(fiber.HeaderContentType, ct)
		c.Set(fiber.HeaderXContentTypeOptions, "nosniff")
		if cd := mime.FormatMediaType("inline", map[string]string{"filename": item.OriginalName}); item.OriginalName != "" && cd != "" {
			c.Set(fiber.HeaderContentDisposition, cd)
		}
		// The stream is closed by fasthttp once the body has been written.
		return c.SendStream(rc, int(item.Size))
	}
}

// ListActivity godoc
// @Summary Upload and delete audit trail
// @Tags activity
// @Produce json
// @Param limit query int false "page size" default(10)
// @Param offset query int false "offset" default(0)
// @Success 200 {object} service.ActivityListResult
// @Failure 400 {object} errorPayload
// @Failure 500 {object} errorPayload
// @Router /api/activity [get]
func ListActivity(svc service.ContentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		limit, err := strconv.Atoi(c.Query("limit", "10"))
		if err != nil || limit < 0 {
			return writeError(c, fiber.StatusBadRequest, "INVALID_LIMIT", "invalid limit")
		}
		offset, err := strconv.Atoi(c.Query("offset", "0"))
		if err != nil || offset < 0 {
			return writeError(c, fiber.StatusBadRequest, "INVALID_OFFSET", "invalid offset")
		}

		res, err := svc.Activity(c.UserContext(), limit, offset)
		if err != nil {
			return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}
		return c.JSON(res)
	}
}
