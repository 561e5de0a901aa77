// handlers.go - Contains the HTTP handler functions for invoice upload and validation.

package api

import (
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/warungtech/invoice-ocr/configs"
	"github.com/warungtech/invoice-ocr/internal/invoice"
	"github.com/warungtech/invoice-ocr/internal/pipeline"
	"github.com/warungtech/invoice-ocr/internal/validate"
)

// maxUploadBytes bounds the multipart image size (15 MB covers any
// phone photo).
const maxUploadBytes = 15 << 20

// ProcessInvoiceHandler accepts a photographed invoice as multipart
// form data under "file" (or "image") and runs it through the
// recognition cascade.
func ProcessInvoiceHandler(orch *pipeline.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		file, header, err := c.Request.FormFile("file")
		if err != nil {
			file, header, err = c.Request.FormFile("image")
		}
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"status":  "error",
				"message": "multipart field \"file\" is required",
			})
			return
		}
		defer file.Close()

		if header.Size > maxUploadBytes {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{
				"status":  "error",
				"message": "image exceeds the 15MB upload limit",
			})
			return
		}

		data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"status":  "error",
				"message": "failed to read upload: " + err.Error(),
			})
			return
		}

		// Keep the original upload for reprocessing and debugging.
		saveUpload(header.Filename, data)

		result := orch.Process(c.Request.Context(), data)
		if result.Status == "error" {
			c.JSON(http.StatusUnprocessableEntity, result)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// RevalidateHandler re-runs validation over an already recognized
// invoice, e.g. after a human corrected a line. Validation is a pure
// transform, so re-posting its own output is a no-op.
func RevalidateHandler(v *validate.Pipeline) gin.HandlerFunc {
	return func(c *gin.Context) {
		var inv invoice.Invoice
		if err := c.ShouldBindJSON(&inv); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"status":  "error",
				"message": "invalid invoice payload: " + err.Error(),
			})
			return
		}

		validated := v.Validate(inv)
		c.JSON(http.StatusOK, gin.H{
			"status":   "success",
			"lines":    validated.Lines,
			"issues":   validated.Issues,
			"metadata": validated.Metadata,
		})
	}
}

// saveUpload writes the raw upload under UPLOAD_DIR. Best effort: a
// full disk must not fail the request.
func saveUpload(original string, data []byte) {
	ext := strings.ToLower(filepath.Ext(original))
	if ext == "" {
		ext = ".jpg"
	}
	path := filepath.Join(configs.UPLOAD_DIR, uuid.New().String()+ext)
	_ = os.WriteFile(path, data, 0644)
}
