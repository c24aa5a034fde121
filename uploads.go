package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/batchlink_backend/config"
	"bitbucket.org/mmdatafocus/batchlink_backend/models"
	"bitbucket.org/mmdatafocus/batchlink_backend/models/reports"
	"bitbucket.org/mmdatafocus/batchlink_backend/reconcile"
	"bitbucket.org/mmdatafocus/batchlink_backend/utils"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type runReader interface {
	GetImportRun(ctx context.Context, id string) (*reconcile.ImportRun, error)
}

type reviewReader interface {
	GetReviewBatches(ctx context.Context, from, to time.Time) ([]*models.BatchRecord, error)
}

type sourceArchiver interface {
	Archive(ctx context.Context, fileName string, data []byte) (string, error)
}

const defaultUploadName = "upload.csv"

var errUploadTooLarge = errors.New("file exceeds upload size limit")

type importSummaryResponse struct {
	ImportRunId  string               `json:"import_run_id"`
	TotalRows    int                  `json:"total_rows"`
	Imported     int                  `json:"imported"`
	Failed       int                  `json:"failed"`
	AutoLinked   int                  `json:"auto_linked"`
	PendingLink  int                  `json:"pending_link"`
	SkippedLines int                  `json:"skipped_lines"`
	BatchIds     []int                `json:"batch_ids"`
	Errors       []reconcile.RowError `json:"errors"`
}

func newImportSummaryResponse(run *reconcile.ImportRun) importSummaryResponse {
	return importSummaryResponse{
		ImportRunId:  run.ID,
		TotalRows:    run.TotalRows,
		Imported:     run.Imported,
		Failed:       run.Failed,
		AutoLinked:   run.AutoLinked,
		PendingLink:  run.PendingLink,
		SkippedLines: run.SkippedLines,
		BatchIds:     run.BatchIds,
		Errors:       run.Errors,
	}
}

// batchImportHandler accepts a multipart "file" field or a raw CSV body
// (?filename= names it) and answers with the import summary.
func batchImportHandler(holder *serviceHolder) gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()
		svc := holder.get()

		fileName, data, err := readUpload(c, svc.settings.MaxUploadBytes)
		if err != nil {
			switch {
			case errors.Is(err, errUploadTooLarge):
				c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": err.Error()})
			case errors.Is(err, reconcile.ErrNoFile), errors.Is(err, reconcile.ErrEmptyInput):
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			default:
				config.LogError(logger, "uploads.go", "batchImportHandler", "readUpload", nil, err)
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid upload"})
			}
			return
		}

		ctx := utils.SetSourceFileInContext(c.Request.Context(), fileName)
		req := reconcile.ImportRequest{FileName: fileName, Content: data}
		if svc.archiver != nil {
			key, archiveErr := svc.archiver.Archive(ctx, fileName, data)
			if archiveErr != nil {
				logger.WithFields(logrus.Fields{
					"field":       "batchImportHandler",
					"source_file": fileName,
				}).Warn("source archive failed: " + archiveErr.Error())
			} else {
				req.ArchiveKey = key
			}
		}

		run, err := svc.importer.Import(ctx, req)
		if err != nil {
			switch {
			case errors.Is(err, reconcile.ErrEmptyInput),
				errors.Is(err, reconcile.ErrNoHeader),
				errors.Is(err, reconcile.ErrUnreadableFile):
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			case errors.Is(err, reconcile.ErrImportInProgress):
				c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			default:
				config.LogError(logger, "uploads.go", "batchImportHandler", "Import", fileName, err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			}
			return
		}

		c.JSON(http.StatusOK, newImportSummaryResponse(run))
	}
}

func readUpload(c *gin.Context, maxBytes int64) (string, []byte, error) {
	if maxBytes <= 0 {
		maxBytes = config.DefaultImportSettings().MaxUploadBytes
	}
	if strings.HasPrefix(c.ContentType(), "multipart/form-data") {
		fh, err := c.FormFile("file")
		if err != nil {
			if errors.Is(err, http.ErrMissingFile) {
				return "", nil, reconcile.ErrNoFile
			}
			return "", nil, err
		}
		if fh.Size > maxBytes {
			return "", nil, errUploadTooLarge
		}
		data, err := readMultipartFile(fh, maxBytes)
		if err != nil {
			return "", nil, err
		}
		return uploadName(fh.Filename), data, nil
	}

	if c.Request.Body == nil {
		return "", nil, reconcile.ErrNoFile
	}
	data, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBytes+1))
	if err != nil {
		return "", nil, err
	}
	if int64(len(data)) > maxBytes {
		return "", nil, errUploadTooLarge
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return "", nil, reconcile.ErrEmptyInput
	}
	return uploadName(c.Query("filename")), data, nil
}

func readMultipartFile(fh *multipart.FileHeader, maxBytes int64) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, errUploadTooLarge
	}
	return data, nil
}

func uploadName(name string) string {
	name = filepath.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if name == "" || name == "." || name == "/" {
		return defaultUploadName
	}
	return name
}

func importRunHandler(holder *serviceHolder) gin.HandlerFunc {
	return func(c *gin.Context) {
		svc := holder.get()
		run, err := svc.runs.GetImportRun(c.Request.Context(), c.Param("id"))
		if errors.Is(err, utils.ErrorRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "import run not found"})
			return
		}
		if err != nil {
			config.LogError(config.GetLogger(), "uploads.go", "importRunHandler", "GetImportRun", c.Param("id"), err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			return
		}
		c.JSON(http.StatusOK, run)
	}
}

// reviewExportHandler streams pending and unmatched batches for [from, to] as xlsx.
func reviewExportHandler(holder *serviceHolder) gin.HandlerFunc {
	return func(c *gin.Context) {
		svc := holder.get()
		loc := svc.settings.Location
		if loc == nil {
			loc = time.UTC
		}

		from, err := time.ParseInLocation("2006-01-02", c.Query("from"), loc)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "from must be YYYY-MM-DD"})
			return
		}
		to := from
		if raw := c.Query("to"); raw != "" {
			to, err = time.ParseInLocation("2006-01-02", raw, loc)
			if err != nil || to.Before(from) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "to must be YYYY-MM-DD and not before from"})
				return
			}
		}

		started := time.Now()
		batches, err := svc.review.GetReviewBatches(c.Request.Context(), from, to)
		if err != nil {
			config.LogError(config.GetLogger(), "uploads.go", "reviewExportHandler", "GetReviewBatches", nil, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			return
		}

		fileName := fmt.Sprintf("batch-review_%s_%s.xlsx", from.Format("20060102"), to.Format("20060102"))
		c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Header("Content-Disposition", "attachment; filename="+fileName)
		c.Status(http.StatusOK)
		if err := reports.WriteReviewWorkbook(c.Writer, batches); err != nil {
			config.LogError(config.GetLogger(), "uploads.go", "reviewExportHandler", "WriteReviewWorkbook", nil, err)
			_ = c.Error(err)
		}
		reports.LogSlowReport(c.Request.Context(), "batch_review", started, len(batches))
	}
}
