// Package httpapi exposes the attachment services over a JSON HTTP API.
// Authentication is out of scope: the acting user arrives in the
// X-User-ID header, set by the fronting gateway.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pagekeep/pagekeep/internal/hashx"
	"github.com/pagekeep/pagekeep/internal/logging"
	"github.com/pagekeep/pagekeep/internal/server/models"
	"github.com/pagekeep/pagekeep/internal/server/services"
)

// BlobAPI is the slice of the blob service the handlers use.
type BlobAPI interface {
	StartUpload(ctx context.Context, userID int64, blobSize int64) (*services.StartUploadOutput, error)
	CancelUpload(ctx context.Context, userID int64, ticket string) error
	FinishUpload(ctx context.Context, userID int64, ticket string) (*services.FinalizeOutput, error)
	Get(ctx context.Context, digest hashx.Hash) ([]byte, error)
	GetMetadata(ctx context.Context, digest hashx.Hash) (*models.BlobMetadata, error)
	AddBlacklist(ctx context.Context, digest hashx.Hash, userID int64) error
	RemoveBlacklist(ctx context.Context, digest hashx.Hash) error
	OnBlacklist(ctx context.Context, digest hashx.Hash) (bool, error)
	HardDeletePreview(ctx context.Context, digest hashx.Hash) (*services.HardDeleteOutput, error)
	HardDeleteCommit(ctx context.Context, digest hashx.Hash, deletedBy int64) (*services.HardDeleteOutput, error)
}

// FileAPI is the slice of the file service the handlers use.
type FileAPI interface {
	Create(ctx context.Context, input *services.CreateFileInput) (*services.CreateFileOutput, error)
	Edit(ctx context.Context, input *services.EditFileInput) (*services.RevisionOutput, error)
	Move(ctx context.Context, input *services.MoveFileInput) (*services.RevisionOutput, error)
	Rollback(ctx context.Context, input *services.RollbackFileInput) (*services.RevisionOutput, error)
	Delete(ctx context.Context, input *services.DeleteFileInput) (*services.RevisionOutput, error)
	Restore(ctx context.Context, input *services.RestoreFileInput) (*services.RestoreFileOutput, error)
	GetFile(ctx context.Context, pageID, fileID int64) (*models.File, error)
	ListFiles(ctx context.Context, siteID, pageID int64, deleted *bool) ([]*models.File, error)
	ListRevisions(ctx context.Context, pageID, fileID int64) ([]*models.FileRevision, error)
	GetRevision(ctx context.Context, pageID, fileID int64, number int) (*models.FileRevision, error)
	GetLatestRevision(ctx context.Context, pageID, fileID int64) (*models.FileRevision, error)
}

// Server serves the HTTP API.
type Server struct {
	address string
	blobs   BlobAPI
	files   FileAPI
	logger  logging.Logger
}

func NewServer(address string, blobs BlobAPI, files FileAPI, logger logging.Logger) *Server {
	return &Server{
		address: address,
		blobs:   blobs,
		files:   files,
		logger:  logger.With("module", "http_server"),
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := r.Group("/api/v1")

	v1.POST("/uploads", s.startUpload)
	v1.POST("/uploads/:ticket/finish", s.finishUpload)
	v1.DELETE("/uploads/:ticket", s.cancelUpload)

	v1.GET("/blobs/:digest", s.getBlob)
	v1.GET("/blobs/:digest/metadata", s.getBlobMetadata)
	v1.GET("/blobs/:digest/blacklist", s.getBlacklist)
	v1.PUT("/blobs/:digest/blacklist", s.addBlacklist)
	v1.DELETE("/blobs/:digest/blacklist", s.removeBlacklist)
	v1.GET("/blobs/:digest/hard-delete", s.hardDeletePreview)
	v1.POST("/blobs/:digest/hard-delete", s.hardDeleteCommit)

	pages := v1.Group("/sites/:site_id/pages/:page_id")
	pages.POST("/files", s.createFile)
	pages.GET("/files", s.listFiles)
	pages.GET("/files/:file_id", s.getFile)
	pages.PATCH("/files/:file_id", s.editFile)
	pages.POST("/files/:file_id/move", s.moveFile)
	pages.POST("/files/:file_id/rollback", s.rollbackFile)
	pages.DELETE("/files/:file_id", s.deleteFile)
	pages.POST("/files/:file_id/restore", s.restoreFile)
	pages.GET("/files/:file_id/revisions", s.listRevisions)
	pages.GET("/files/:file_id/revisions/:number", s.getRevision)

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.address,
		Handler: s.Router(),
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(ctx, "shutdown error", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
