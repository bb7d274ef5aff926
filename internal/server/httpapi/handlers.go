package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/pagekeep/pagekeep/internal/hashx"
	"github.com/pagekeep/pagekeep/internal/server/services"
)

// userHeader carries the acting user id, set by the fronting gateway
// after authentication.
const userHeader = "X-User-ID"

func (s *Server) actingUser(c *gin.Context) (int64, bool) {
	raw := c.GetHeader(userHeader)
	if raw == "" {
		c.JSON(http.StatusUnauthorized, errorResponse{Error: "missing " + userHeader + " header"})
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusUnauthorized, errorResponse{Error: "invalid " + userHeader + " header"})
		return 0, false
	}
	return id, true
}

func (s *Server) pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid " + name})
		return 0, false
	}
	return id, true
}

func (s *Server) pathDigest(c *gin.Context) (hashx.Hash, bool) {
	digest, err := hashx.FromHex(c.Param("digest"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid digest"})
		return hashx.Hash{}, false
	}
	return digest, true
}

// -------- uploads --------

func (s *Server) startUpload(c *gin.Context) {
	userID, ok := s.actingUser(c)
	if !ok {
		return
	}
	var req startUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	out, err := s.blobs.StartUpload(c.Request.Context(), userID, req.Size)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, startUploadResponse{
		Ticket:    out.Ticket,
		UploadURL: out.UploadURL,
		ExpiresAt: out.ExpiresAt,
	})
}

func (s *Server) finishUpload(c *gin.Context) {
	userID, ok := s.actingUser(c)
	if !ok {
		return
	}
	out, err := s.blobs.FinishUpload(c.Request.Context(), userID, c.Param("ticket"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newFinalizeResponse(out))
}

func (s *Server) cancelUpload(c *gin.Context) {
	userID, ok := s.actingUser(c)
	if !ok {
		return
	}
	if err := s.blobs.CancelUpload(c.Request.Context(), userID, c.Param("ticket")); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// -------- blobs --------

func (s *Server) getBlob(c *gin.Context) {
	digest, ok := s.pathDigest(c)
	if !ok {
		return
	}
	meta, err := s.blobs.GetMetadata(c.Request.Context(), digest)
	if err != nil {
		s.writeError(c, err)
		return
	}
	data, err := s.blobs.Get(c.Request.Context(), digest)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.Data(http.StatusOK, meta.Mime, data)
}

func (s *Server) getBlobMetadata(c *gin.Context) {
	digest, ok := s.pathDigest(c)
	if !ok {
		return
	}
	meta, err := s.blobs.GetMetadata(c.Request.Context(), digest)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, blobMetadataResponse{
		Digest:    digest.Hex(),
		Mime:      meta.Mime,
		Size:      meta.Size,
		CreatedAt: meta.CreatedAt,
	})
}

func (s *Server) getBlacklist(c *gin.Context) {
	digest, ok := s.pathDigest(c)
	if !ok {
		return
	}
	on, err := s.blobs.OnBlacklist(c.Request.Context(), digest)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, blacklistResponse{Digest: digest.Hex(), Blacklisted: on})
}

func (s *Server) addBlacklist(c *gin.Context) {
	userID, ok := s.actingUser(c)
	if !ok {
		return
	}
	digest, ok := s.pathDigest(c)
	if !ok {
		return
	}
	if err := s.blobs.AddBlacklist(c.Request.Context(), digest, userID); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) removeBlacklist(c *gin.Context) {
	if _, ok := s.actingUser(c); !ok {
		return
	}
	digest, ok := s.pathDigest(c)
	if !ok {
		return
	}
	if err := s.blobs.RemoveBlacklist(c.Request.Context(), digest); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) hardDeletePreview(c *gin.Context) {
	digest, ok := s.pathDigest(c)
	if !ok {
		return
	}
	out, err := s.blobs.HardDeletePreview(c.Request.Context(), digest)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newHardDeleteResponse(out, false))
}

func (s *Server) hardDeleteCommit(c *gin.Context) {
	userID, ok := s.actingUser(c)
	if !ok {
		return
	}
	digest, ok := s.pathDigest(c)
	if !ok {
		return
	}
	out, err := s.blobs.HardDeleteCommit(c.Request.Context(), digest, userID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newHardDeleteResponse(out, true))
}

// -------- files --------

type pageScope struct {
	SiteID int64
	PageID int64
}

func (s *Server) pageScope(c *gin.Context) (pageScope, bool) {
	siteID, ok := s.pathID(c, "site_id")
	if !ok {
		return pageScope{}, false
	}
	pageID, ok := s.pathID(c, "page_id")
	if !ok {
		return pageScope{}, false
	}
	return pageScope{SiteID: siteID, PageID: pageID}, true
}

func (s *Server) createFile(c *gin.Context) {
	userID, ok := s.actingUser(c)
	if !ok {
		return
	}
	scope, ok := s.pageScope(c)
	if !ok {
		return
	}
	var req createFileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	out, err := s.files.Create(c.Request.Context(), &services.CreateFileInput{
		SiteID:       scope.SiteID,
		PageID:       scope.PageID,
		Name:         req.Name,
		UserID:       userID,
		UploadTicket: req.UploadTicket,
		Comments:     req.Comments,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, createFileResponse{
		FileID:         out.FileID,
		RevisionID:     out.RevisionID,
		RevisionNumber: out.RevisionNumber,
		Digest:         out.Digest.Hex(),
		Mime:           out.Mime,
		Size:           out.Size,
	})
}

func (s *Server) listFiles(c *gin.Context) {
	scope, ok := s.pageScope(c)
	if !ok {
		return
	}

	var deleted *bool
	if raw, present := c.GetQuery("deleted"); present {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid deleted filter"})
			return
		}
		deleted = &value
	}

	files, err := s.files.ListFiles(c.Request.Context(), scope.SiteID, scope.PageID, deleted)
	if err != nil {
		s.writeError(c, err)
		return
	}
	out := make([]fileResponse, 0, len(files))
	for _, f := range files {
		out = append(out, newFileResponse(f))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) getFile(c *gin.Context) {
	scope, ok := s.pageScope(c)
	if !ok {
		return
	}
	fileID, ok := s.pathID(c, "file_id")
	if !ok {
		return
	}
	file, err := s.files.GetFile(c.Request.Context(), scope.PageID, fileID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newFileResponse(file))
}

func (s *Server) editFile(c *gin.Context) {
	userID, ok := s.actingUser(c)
	if !ok {
		return
	}
	scope, ok := s.pageScope(c)
	if !ok {
		return
	}
	fileID, ok := s.pathID(c, "file_id")
	if !ok {
		return
	}
	var req editFileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	out, err := s.files.Edit(c.Request.Context(), &services.EditFileInput{
		SiteID:         scope.SiteID,
		PageID:         scope.PageID,
		FileID:         fileID,
		UserID:         userID,
		LastRevisionID: req.LastRevisionID,
		Comments:       req.Comments,
		Name:           req.Name,
		UploadTicket:   req.UploadTicket,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	if out == nil {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, revisionRef{RevisionID: out.RevisionID, RevisionNumber: out.RevisionNumber})
}

func (s *Server) moveFile(c *gin.Context) {
	userID, ok := s.actingUser(c)
	if !ok {
		return
	}
	scope, ok := s.pageScope(c)
	if !ok {
		return
	}
	fileID, ok := s.pathID(c, "file_id")
	if !ok {
		return
	}
	var req moveFileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if req.DestinationPageID <= 0 {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid destination_page_id"})
		return
	}

	out, err := s.files.Move(c.Request.Context(), &services.MoveFileInput{
		SiteID:            scope.SiteID,
		CurrentPageID:     scope.PageID,
		DestinationPageID: req.DestinationPageID,
		FileID:            fileID,
		UserID:            userID,
		LastRevisionID:    req.LastRevisionID,
		Comments:          req.Comments,
		Name:              req.Name,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, revisionRef{RevisionID: out.RevisionID, RevisionNumber: out.RevisionNumber})
}

func (s *Server) rollbackFile(c *gin.Context) {
	userID, ok := s.actingUser(c)
	if !ok {
		return
	}
	scope, ok := s.pageScope(c)
	if !ok {
		return
	}
	fileID, ok := s.pathID(c, "file_id")
	if !ok {
		return
	}
	var req rollbackFileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	out, err := s.files.Rollback(c.Request.Context(), &services.RollbackFileInput{
		SiteID:         scope.SiteID,
		PageID:         scope.PageID,
		FileID:         fileID,
		RevisionNumber: req.RevisionNumber,
		UserID:         userID,
		LastRevisionID: req.LastRevisionID,
		Comments:       req.Comments,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, revisionRef{RevisionID: out.RevisionID, RevisionNumber: out.RevisionNumber})
}

func (s *Server) deleteFile(c *gin.Context) {
	userID, ok := s.actingUser(c)
	if !ok {
		return
	}
	scope, ok := s.pageScope(c)
	if !ok {
		return
	}
	fileID, ok := s.pathID(c, "file_id")
	if !ok {
		return
	}
	var req deleteFileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	out, err := s.files.Delete(c.Request.Context(), &services.DeleteFileInput{
		SiteID:         scope.SiteID,
		PageID:         scope.PageID,
		FileID:         fileID,
		UserID:         userID,
		LastRevisionID: req.LastRevisionID,
		Comments:       req.Comments,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, revisionRef{RevisionID: out.RevisionID, RevisionNumber: out.RevisionNumber})
}

func (s *Server) restoreFile(c *gin.Context) {
	userID, ok := s.actingUser(c)
	if !ok {
		return
	}
	scope, ok := s.pageScope(c)
	if !ok {
		return
	}
	fileID, ok := s.pathID(c, "file_id")
	if !ok {
		return
	}
	var req restoreFileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	out, err := s.files.Restore(c.Request.Context(), &services.RestoreFileInput{
		SiteID:    scope.SiteID,
		PageID:    scope.PageID,
		FileID:    fileID,
		UserID:    userID,
		Comments:  req.Comments,
		NewPageID: req.NewPageID,
		NewName:   req.NewName,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, restoreFileResponse{
		RevisionID:     out.RevisionID,
		RevisionNumber: out.RevisionNumber,
		PageID:         out.PageID,
		Name:           out.Name,
	})
}

func (s *Server) listRevisions(c *gin.Context) {
	scope, ok := s.pageScope(c)
	if !ok {
		return
	}
	fileID, ok := s.pathID(c, "file_id")
	if !ok {
		return
	}
	revs, err := s.files.ListRevisions(c.Request.Context(), scope.PageID, fileID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	out := make([]revisionResponse, 0, len(revs))
	for _, rev := range revs {
		out = append(out, newRevisionResponse(rev))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) getRevision(c *gin.Context) {
	scope, ok := s.pageScope(c)
	if !ok {
		return
	}
	fileID, ok := s.pathID(c, "file_id")
	if !ok {
		return
	}
	if c.Param("number") == "latest" {
		rev, err := s.files.GetLatestRevision(c.Request.Context(), scope.PageID, fileID)
		if err != nil {
			s.writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, newRevisionResponse(rev))
		return
	}
	number, err := strconv.Atoi(c.Param("number"))
	if err != nil || number <= 0 {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid revision number"})
		return
	}
	rev, err := s.files.GetRevision(c.Request.Context(), scope.PageID, fileID, number)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newRevisionResponse(rev))
}
