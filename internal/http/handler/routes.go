package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"mime/multipart"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"medindex/internal/fault"
	"medindex/internal/model"
	"medindex/internal/service"
)

// maxBatchFiles bounds one batch upload request.
const maxBatchFiles = 20

var validate = validator.New()

// RegisterRoutes attaches the API routes. Handlers stay thin: parsing and
// response shaping here, everything else in the services.
func RegisterRoutes(app *fiber.App, db *sql.DB, ingest service.IngestService, search service.SearchService) {
	app.Get("/health", HealthCheck(db))
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	app.Post("/documents", UploadDocument(ingest))
	app.Post("/documents/batch", BatchUploadDocuments(ingest))
	app.Get("/documents", ListDocuments(ingest))
	app.Get("/documents/:id", GetDocument(ingest))
	app.Delete("/documents/:id", DeleteDocument(ingest))

	app.Post("/search", SearchDocuments(search))
	app.Get("/stats", GetStats(ingest))
}

// HealthCheck reports readiness based on database connectivity.
func HealthCheck(db *sql.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			return writeError(c, fiber.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "dependency unavailable")
		}
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "healthy"})
	}
}

// uploadRejected is the response body for an upload whose processing failed:
// the record exists in the failed state and is returned with the error.
type uploadRejected struct {
	errorPayload
	Document *model.Document `json:"document"`
}

func uploadInputFromForm(c *fiber.Ctx, fh *multipart.FileHeader) (service.UploadInput, error) {
	f, err := fh.Open()
	if err != nil {
		return service.UploadInput{}, err
	}

	var metadata map[string]any
	if raw := c.FormValue("metadata"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &metadata); err != nil {
			f.Close()
			return service.UploadInput{}, errors.New("metadata must be a JSON object")
		}
	}

	ct := fh.Header.Get("Content-Type")
	if ct == "" {
		ct = "application/octet-stream"
	}
	return service.UploadInput{
		Reader:      f,
		Filename:    fh.Filename,
		ContentType: ct,
		Metadata:    metadata,
	}, nil
}

// UploadDocument ingests one file (multipart field "file", optional
// "metadata" JSON field) through the full pipeline.
func UploadDocument(svc service.IngestService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		fh, err := c.FormFile("file")
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "FILE_REQUIRED", "file is required")
		}
		in, err := uploadInputFromForm(c, fh)
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_INPUT", err.Error())
		}
		defer in.Reader.(multipart.File).Close()

		doc, err := svc.Upload(c.UserContext(), in)
		if err != nil {
			if doc != nil {
				// processing failed after the record was created
				status, code := rejectedStatus(err)
				return c.Status(status).JSON(uploadRejected{
					errorPayload: errorPayload{
						RequestID: requestIDFromCtx(c),
						Error:     errorEnvelope{Code: code, Message: err.Error()},
					},
					Document: doc,
				})
			}
			return writeFault(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(doc)
	}
}

func rejectedStatus(err error) (int, string) {
	if k, ok := fault.KindOf(err); ok {
		return faultStatus(k)
	}
	return fiber.StatusInternalServerError, "INTERNAL_ERROR"
}

// BatchUploadDocuments ingests several files (multipart field "files") and
// reports a per-item outcome in submission order.
func BatchUploadDocuments(svc service.IngestService) fiber.Handler {
	type batchItem struct {
		Document *model.Document `json:"document,omitempty"`
		Error    *errorEnvelope  `json:"error,omitempty"`
	}

	return func(c *fiber.Ctx) error {
		form, err := c.MultipartForm()
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_INPUT", "multipart form required")
		}
		files := form.File["files"]
		if len(files) == 0 {
			return writeError(c, fiber.StatusBadRequest, "FILE_REQUIRED", "at least one file is required")
		}
		if len(files) > maxBatchFiles {
			return writeError(c, fiber.StatusBadRequest, "INVALID_INPUT",
				"at most "+strconv.Itoa(maxBatchFiles)+" files per batch")
		}

		inputs := make([]service.UploadInput, 0, len(files))
		for _, fh := range files {
			in, err := uploadInputFromForm(c, fh)
			if err != nil {
				return writeError(c, fiber.StatusBadRequest, "INVALID_INPUT", err.Error())
			}
			defer in.Reader.(multipart.File).Close()
			inputs = append(inputs, in)
		}

		results := svc.BatchUpload(c.UserContext(), inputs)

		items := make([]batchItem, len(results))
		succeeded := 0
		for i, r := range results {
			items[i].Document = r.Document
			if r.Err != nil {
				_, code := rejectedStatus(r.Err)
				items[i].Error = &errorEnvelope{Code: code, Message: r.Err.Error()}
				continue
			}
			succeeded++
		}
		return c.JSON(fiber.Map{
			"results":   items,
			"succeeded": succeeded,
			"failed":    len(results) - succeeded,
		})
	}
}

// ListDocuments returns paginated documents.
func ListDocuments(svc service.IngestService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		limit, err := strconv.Atoi(c.Query("limit", "10"))
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_LIMIT", "invalid limit")
		}
		offset, err := strconv.Atoi(c.Query("offset", "0"))
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_OFFSET", "invalid offset")
		}

		res, err := svc.List(c.UserContext(), limit, offset)
		if err != nil {
			return writeFault(c, err)
		}
		return c.JSON(res)
	}
}

// GetDocument returns a single document by ID.
func GetDocument(svc service.IngestService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if _, err := uuid.Parse(id); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		doc, err := svc.Get(c.UserContext(), id)
		if err != nil {
			return writeFault(c, err)
		}
		return c.JSON(doc)
	}
}

// DeleteDocument removes a document and its artifacts.
func DeleteDocument(svc service.IngestService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if _, err := uuid.Parse(id); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		if err := svc.Delete(c.UserContext(), id); err != nil {
			return writeFault(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

type searchRequest struct {
	Query         string  `json:"query" validate:"required"`
	Limit         int     `json:"limit" validate:"omitempty,gte=1,lte=100"`
	MinConfidence float64 `json:"min_confidence" validate:"omitempty,gte=0,lte=1"`
	EntityFilter  string  `json:"entity_filter"`
}

// SearchDocuments answers a semantic search request.
func SearchDocuments(svc service.SearchService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req searchRequest
		if err := c.BodyParser(&req); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_INPUT", "invalid request body")
		}
		if err := validate.Struct(req); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_INPUT", err.Error())
		}

		res, err := svc.Search(c.UserContext(), service.SearchQuery{
			Text:          req.Query,
			Limit:         req.Limit,
			MinConfidence: req.MinConfidence,
			EntityFilter:  req.EntityFilter,
		})
		if err != nil {
			return writeFault(c, err)
		}
		return c.JSON(res)
	}
}

// GetStats returns aggregate counts over the stored documents.
func GetStats(svc service.IngestService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		stats, err := svc.Stats(c.UserContext())
		if err != nil {
			return writeFault(c, err)
		}
		return c.JSON(stats)
	}
}
