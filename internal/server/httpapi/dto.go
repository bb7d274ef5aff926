package httpapi

import (
	"time"

	"github.com/pagekeep/pagekeep/internal/maybe"
	"github.com/pagekeep/pagekeep/internal/server/models"
	"github.com/pagekeep/pagekeep/internal/server/services"
)

type errorResponse struct {
	Error string `json:"error"`
}

// -------- requests --------

type startUploadRequest struct {
	Size int64 `json:"size"`
}

type createFileRequest struct {
	Name         string `json:"name"`
	UploadTicket string `json:"upload_ticket"`
	Comments     string `json:"comments"`
}

// editFileRequest distinguishes absent fields from explicitly set ones, so
// a request can rename, replace content, or both.
type editFileRequest struct {
	LastRevisionID int64               `json:"last_revision_id"`
	Comments       string              `json:"comments"`
	Name           maybe.Maybe[string] `json:"name,omitzero"`
	UploadTicket   maybe.Maybe[string] `json:"upload_ticket,omitzero"`
}

type moveFileRequest struct {
	DestinationPageID int64               `json:"destination_page_id"`
	LastRevisionID    int64               `json:"last_revision_id"`
	Comments          string              `json:"comments"`
	Name              maybe.Maybe[string] `json:"name,omitzero"`
}

type rollbackFileRequest struct {
	RevisionNumber int    `json:"revision_number"`
	LastRevisionID int64  `json:"last_revision_id"`
	Comments       string `json:"comments"`
}

type deleteFileRequest struct {
	LastRevisionID int64  `json:"last_revision_id"`
	Comments       string `json:"comments"`
}

type restoreFileRequest struct {
	Comments  string              `json:"comments"`
	NewPageID maybe.Maybe[int64]  `json:"new_page_id,omitzero"`
	NewName   maybe.Maybe[string] `json:"new_name,omitzero"`
}

// -------- responses --------

type startUploadResponse struct {
	Ticket    string    `json:"ticket"`
	UploadURL string    `json:"upload_url"`
	ExpiresAt time.Time `json:"expires_at"`
}

type finalizeResponse struct {
	Digest  string `json:"digest"`
	Mime    string `json:"mime"`
	Size    int64  `json:"size"`
	Created bool   `json:"created"`
}

func newFinalizeResponse(out *services.FinalizeOutput) finalizeResponse {
	return finalizeResponse{
		Digest:  out.Digest.Hex(),
		Mime:    out.Mime,
		Size:    out.Size,
		Created: out.Created,
	}
}

type blobMetadataResponse struct {
	Digest    string    `json:"digest"`
	Mime      string    `json:"mime"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

type blacklistResponse struct {
	Digest      string `json:"digest"`
	Blacklisted bool   `json:"blacklisted"`
}

type hardDeleteResponse struct {
	Committed bool `json:"committed"`

	RevisionCount   int64 `json:"revision_count"`
	FileCount       int64 `json:"file_count"`
	TombstonedFiles int64 `json:"tombstoned_files"`
	PageCount       int64 `json:"page_count"`
	SiteCount       int64 `json:"site_count"`
	UserCount       int64 `json:"user_count"`

	SampleRevisionIDs []int64 `json:"sample_revision_ids"`
	SampleFileIDs     []int64 `json:"sample_file_ids"`
	SamplePageIDs     []int64 `json:"sample_page_ids"`
	SampleSiteIDs     []int64 `json:"sample_site_ids"`
	SampleUserIDs     []int64 `json:"sample_user_ids"`
}

func newHardDeleteResponse(out *services.HardDeleteOutput, committed bool) hardDeleteResponse {
	return hardDeleteResponse{
		Committed:         committed,
		RevisionCount:     out.RevisionCount,
		FileCount:         out.FileCount,
		TombstonedFiles:   out.TombstonedFiles,
		PageCount:         out.PageCount,
		SiteCount:         out.SiteCount,
		UserCount:         out.UserCount,
		SampleRevisionIDs: out.SampleRevisionIDs,
		SampleFileIDs:     out.SampleFileIDs,
		SamplePageIDs:     out.SamplePageIDs,
		SampleSiteIDs:     out.SampleSiteIDs,
		SampleUserIDs:     out.SampleUserIDs,
	}
}

type createFileResponse struct {
	FileID         int64  `json:"file_id"`
	RevisionID     int64  `json:"revision_id"`
	RevisionNumber int    `json:"revision_number"`
	Digest         string `json:"digest"`
	Mime           string `json:"mime"`
	Size           int64  `json:"size"`
}

type revisionRef struct {
	RevisionID     int64 `json:"revision_id"`
	RevisionNumber int   `json:"revision_number"`
}

type restoreFileResponse struct {
	RevisionID     int64  `json:"revision_id"`
	RevisionNumber int    `json:"revision_number"`
	PageID         int64  `json:"page_id"`
	Name           string `json:"name"`
}

type fileResponse struct {
	FileID    int64      `json:"file_id"`
	SiteID    int64      `json:"site_id"`
	PageID    int64      `json:"page_id"`
	Name      string     `json:"name"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

func newFileResponse(f *models.File) fileResponse {
	return fileResponse{
		FileID:    f.ID,
		SiteID:    f.SiteID,
		PageID:    f.PageID,
		Name:      f.Name,
		CreatedAt: f.CreatedAt,
		UpdatedAt: f.UpdatedAt,
		DeletedAt: f.DeletedAt,
	}
}

type revisionResponse struct {
	RevisionID     int64     `json:"revision_id"`
	RevisionType   string    `json:"revision_type"`
	RevisionNumber int       `json:"revision_number"`
	CreatedAt      time.Time `json:"created_at"`
	FileID         int64     `json:"file_id"`
	PageID         int64     `json:"page_id"`
	SiteID         int64     `json:"site_id"`
	UserID         int64     `json:"user_id"`
	Name           string    `json:"name"`
	Digest         string    `json:"digest"`
	Mime           string    `json:"mime"`
	Size           int64     `json:"size"`
	Comments       string    `json:"comments"`
	Changes        []string  `json:"changes"`
	Hidden         []string  `json:"hidden"`
}

func newRevisionResponse(rev *models.FileRevision) revisionResponse {
	return revisionResponse{
		RevisionID:     rev.RevisionID,
		RevisionType:   string(rev.RevisionType),
		RevisionNumber: rev.RevisionNumber,
		CreatedAt:      rev.CreatedAt,
		FileID:         rev.FileID,
		PageID:         rev.PageID,
		SiteID:         rev.SiteID,
		UserID:         rev.UserID,
		Name:           rev.Name,
		Digest:         rev.Digest.Hex(),
		Mime:           rev.Mime,
		Size:           rev.Size,
		Comments:       rev.Comments,
		Changes:        rev.Changes,
		Hidden:         rev.Hidden,
	}
}
