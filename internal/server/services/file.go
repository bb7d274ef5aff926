package services

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
	"unicode"

	"github.com/pagekeep/pagekeep/internal/common"
	"github.com/pagekeep/pagekeep/internal/dbx"
	"github.com/pagekeep/pagekeep/internal/hashx"
	"github.com/pagekeep/pagekeep/internal/logging"
	"github.com/pagekeep/pagekeep/internal/maybe"
	sc "github.com/pagekeep/pagekeep/internal/server/config"
	"github.com/pagekeep/pagekeep/internal/server/models"
	"github.com/pagekeep/pagekeep/internal/server/repositories/repomanager"
)

// MaximumFileNameLength is the longest accepted file name in bytes, after
// surrounding whitespace is trimmed.
const MaximumFileNameLength = 256

// FileService manages file entities and their append-only revision
// history. Every mutation appends exactly one revision; mutations other
// than creation and restoration require the caller to present the current
// latest revision id as an optimistic-concurrency token.
type FileService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	blobs       *BlobService
	config      *sc.Config
	logger      logging.Logger
}

func NewFileService(db *sql.DB, repomanager repomanager.RepositoryManager,
	blobs *BlobService, config *sc.Config, logger logging.Logger) *FileService {
	return &FileService{
		db:          db,
		repomanager: repomanager,
		blobs:       blobs,
		config:      config,
		logger:      logger,
	}
}

// RevisionOutput identifies the revision appended by a mutation.
type RevisionOutput struct {
	RevisionID     int64
	RevisionNumber int
}

type CreateFileInput struct {
	SiteID int64
	PageID int64
	Name   string
	UserID int64
	// UploadTicket references a pending upload to finalize as the file's
	// content. When empty, Content is stored directly instead.
	UploadTicket string
	Content      []byte
	Comments     string
}

type CreateFileOutput struct {
	FileID         int64
	RevisionID     int64
	RevisionNumber int
	Digest         hashx.Hash
	Mime           string
	Size           int64
}

// Create adds a new file to a page and records its First revision with
// number 1. The name must be unique among non-deleted files on the page.
func (s *FileService) Create(ctx context.Context, input *CreateFileInput) (*CreateFileOutput, error) {
	name, err := checkFileName(input.Name)
	if err != nil {
		return nil, err
	}

	var out *CreateFileOutput
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.checkNameConflict(ctx, tx, input.PageID, name, 0); err != nil {
			return err
		}

		blob, err := s.resolveBlob(ctx, input.UserID, input.UploadTicket, input.Content)
		if err != nil {
			return err
		}

		fileID, err := s.repomanager.Files(tx).Create(ctx, &models.File{
			SiteID: input.SiteID,
			PageID: input.PageID,
			Name:   name,
		})
		if err != nil {
			return err
		}

		revisionID, err := s.repomanager.FileRevisions(tx).Create(ctx, &models.FileRevision{
			RevisionType:   models.RevisionFirst,
			RevisionNumber: 1,
			FileID:         fileID,
			PageID:         input.PageID,
			SiteID:         input.SiteID,
			UserID:         input.UserID,
			Name:           name,
			Digest:         blob.Digest,
			Mime:           blob.Mime,
			Size:           blob.Size,
			Comments:       input.Comments,
			Changes:        []string{models.FieldName, models.FieldBlob},
		})
		if err != nil {
			return err
		}

		out = &CreateFileOutput{
			FileID:         fileID,
			RevisionID:     revisionID,
			RevisionNumber: 1,
			Digest:         blob.Digest,
			Mime:           blob.Mime,
			Size:           blob.Size,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "created file",
		"file_id", out.FileID, "page_id", input.PageID, "name", name, "digest", out.Digest.Hex())
	return out, nil
}

type EditFileInput struct {
	SiteID         int64
	PageID         int64
	FileID         int64
	UserID         int64
	LastRevisionID int64
	Comments       string

	// Name and UploadTicket distinguish absent from explicitly set, so a
	// request can change either, both, or neither.
	Name         maybe.Maybe[string]
	UploadTicket maybe.Maybe[string]
}

// Edit renames a file, replaces its content, or both, appending a Regular
// revision. If nothing actually changed no revision is appended and the
// returned output is nil.
func (s *FileService) Edit(ctx context.Context, input *EditFileInput) (*RevisionOutput, error) {
	var out *RevisionOutput
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := s.getLiveFile(ctx, tx, input.FileID, input.PageID); err != nil {
			return err
		}
		latest, err := s.getLatestLocked(ctx, tx, input.FileID, input.LastRevisionID)
		if err != nil {
			return err
		}

		var changes []string
		name := latest.Name
		if requested, ok := input.Name.Get(); ok {
			name, err = checkFileName(requested)
			if err != nil {
				return err
			}
			if name != latest.Name {
				if err := s.checkNameConflict(ctx, tx, input.PageID, name, input.FileID); err != nil {
					return err
				}
				if err := s.repomanager.Files(tx).SetName(ctx, input.FileID, name); err != nil {
					return err
				}
				changes = append(changes, models.FieldName)
			}
		}

		digest, mime, size := latest.Digest, latest.Mime, latest.Size
		if ticket, ok := input.UploadTicket.Get(); ok {
			blob, err := s.blobs.FinishUpload(ctx, input.UserID, ticket)
			if err != nil {
				return err
			}
			if blob.Digest != latest.Digest {
				digest, mime, size = blob.Digest, blob.Mime, blob.Size
				changes = append(changes, models.FieldBlob)
			}
		}

		if len(changes) == 0 {
			return nil
		}

		revisionID, err := s.repomanager.FileRevisions(tx).Create(ctx, &models.FileRevision{
			RevisionType:   models.RevisionRegular,
			RevisionNumber: latest.RevisionNumber + 1,
			FileID:         input.FileID,
			PageID:         input.PageID,
			SiteID:         input.SiteID,
			UserID:         input.UserID,
			Name:           name,
			Digest:         digest,
			Mime:           mime,
			Size:           size,
			Comments:       input.Comments,
			Changes:        changes,
		})
		if err != nil {
			return err
		}
		out = &RevisionOutput{RevisionID: revisionID, RevisionNumber: latest.RevisionNumber + 1}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		s.logger.Info(ctx, "edit changed nothing", "file_id", input.FileID)
	}
	return out, nil
}

type MoveFileInput struct {
	SiteID            int64
	CurrentPageID     int64
	DestinationPageID int64
	FileID            int64
	UserID            int64
	LastRevisionID    int64
	Comments          string

	// Name optionally renames the file as part of the move.
	Name maybe.Maybe[string]
}

// Move reparents a file to another page, optionally renaming it, and
// appends a Move revision. The name must be free on the destination page.
func (s *FileService) Move(ctx context.Context, input *MoveFileInput) (*RevisionOutput, error) {
	var out *RevisionOutput
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := s.getLiveFile(ctx, tx, input.FileID, input.CurrentPageID); err != nil {
			return err
		}
		latest, err := s.getLatestLocked(ctx, tx, input.FileID, input.LastRevisionID)
		if err != nil {
			return err
		}

		name, err := checkFileName(input.Name.Or(latest.Name))
		if err != nil {
			return err
		}
		if err := s.checkNameConflict(ctx, tx, input.DestinationPageID, name, input.FileID); err != nil {
			return err
		}

		changes := []string{models.FieldPage}
		if name != latest.Name {
			changes = append(changes, models.FieldName)
		}

		if err := s.repomanager.Files(tx).SetPage(ctx, input.FileID, input.DestinationPageID, name); err != nil {
			return err
		}

		revisionID, err := s.repomanager.FileRevisions(tx).Create(ctx, &models.FileRevision{
			RevisionType:   models.RevisionMove,
			RevisionNumber: latest.RevisionNumber + 1,
			FileID:         input.FileID,
			PageID:         input.DestinationPageID,
			SiteID:         input.SiteID,
			UserID:         input.UserID,
			Name:           name,
			Digest:         latest.Digest,
			Mime:           latest.Mime,
			Size:           latest.Size,
			Comments:       input.Comments,
			Changes:        changes,
		})
		if err != nil {
			return err
		}
		out = &RevisionOutput{RevisionID: revisionID, RevisionNumber: latest.RevisionNumber + 1}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "moved file", "file_id", input.FileID,
		"from_page_id", input.CurrentPageID, "to_page_id", input.DestinationPageID)
	return out, nil
}

type RollbackFileInput struct {
	SiteID         int64
	PageID         int64
	FileID         int64
	RevisionNumber int
	UserID         int64
	LastRevisionID int64
	Comments       string
}

// Rollback appends a Rollback revision restoring the name and content of
// an earlier revision. It never moves the file back to an earlier page,
// and it stores no new content: the old digest is referenced as-is.
func (s *FileService) Rollback(ctx context.Context, input *RollbackFileInput) (*RevisionOutput, error) {
	var out *RevisionOutput
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := s.getLiveFile(ctx, tx, input.FileID, input.PageID); err != nil {
			return err
		}

		target, err := s.repomanager.FileRevisions(tx).GetByNumber(ctx, input.FileID, input.RevisionNumber)
		if err != nil {
			if errors.Is(err, common.ErrNotFound) {
				return common.ErrRevisionNotFound
			}
			return err
		}

		latest, err := s.getLatestLocked(ctx, tx, input.FileID, input.LastRevisionID)
		if err != nil {
			return err
		}

		var changes []string
		if target.Name != latest.Name {
			if err := s.checkNameConflict(ctx, tx, input.PageID, target.Name, input.FileID); err != nil {
				return err
			}
			if err := s.repomanager.Files(tx).SetName(ctx, input.FileID, target.Name); err != nil {
				return err
			}
			changes = append(changes, models.FieldName)
		}
		if target.Digest != latest.Digest {
			changes = append(changes, models.FieldBlob)
		}

		revisionID, err := s.repomanager.FileRevisions(tx).Create(ctx, &models.FileRevision{
			RevisionType:   models.RevisionRollback,
			RevisionNumber: latest.RevisionNumber + 1,
			FileID:         input.FileID,
			PageID:         input.PageID,
			SiteID:         input.SiteID,
			UserID:         input.UserID,
			Name:           target.Name,
			Digest:         target.Digest,
			Mime:           target.Mime,
			Size:           target.Size,
			Comments:       input.Comments,
			Changes:        changes,
		})
		if err != nil {
			return err
		}
		out = &RevisionOutput{RevisionID: revisionID, RevisionNumber: latest.RevisionNumber + 1}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "rolled back file",
		"file_id", input.FileID, "to_revision_number", input.RevisionNumber)
	return out, nil
}

type DeleteFileInput struct {
	SiteID         int64
	PageID         int64
	FileID         int64
	UserID         int64
	LastRevisionID int64
	Comments       string
}

// Delete soft-deletes a file: it appends a Tombstone revision carrying
// the same content reference and sets the deletion timestamp. The row and
// its history remain.
func (s *FileService) Delete(ctx context.Context, input *DeleteFileInput) (*RevisionOutput, error) {
	var out *RevisionOutput
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := s.getLiveFile(ctx, tx, input.FileID, input.PageID); err != nil {
			return err
		}
		latest, err := s.getLatestLocked(ctx, tx, input.FileID, input.LastRevisionID)
		if err != nil {
			return err
		}

		revisionID, number, err := appendTombstone(ctx, tx, s.repomanager, latest, input.UserID, input.Comments, false)
		if err != nil {
			return err
		}
		out = &RevisionOutput{RevisionID: revisionID, RevisionNumber: number}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "deleted file", "file_id", input.FileID)
	return out, nil
}

type RestoreFileInput struct {
	SiteID   int64
	PageID   int64
	FileID   int64
	UserID   int64
	Comments string

	// NewPageID and NewName optionally relocate or rename the file on
	// restoration, e.g. when the original slot has been taken.
	NewPageID maybe.Maybe[int64]
	NewName   maybe.Maybe[string]
}

type RestoreFileOutput struct {
	RevisionID     int64
	RevisionNumber int
	PageID         int64
	Name           string
}

// Restore undeletes a tombstoned file, appending a Resurrection revision
// and clearing the deletion timestamp. The restored name must not collide
// with a live file on the target page.
func (s *FileService) Restore(ctx context.Context, input *RestoreFileInput) (*RestoreFileOutput, error) {
	var out *RestoreFileOutput
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		file, err := s.repomanager.Files(tx).GetByID(ctx, input.FileID)
		if err != nil {
			if errors.Is(err, common.ErrNotFound) {
				return common.ErrFileNotFound
			}
			return err
		}
		if file.PageID != input.PageID {
			return common.ErrFileNotFound
		}
		if !file.Deleted() {
			return common.ErrFileNotDeleted
		}

		pageID := input.NewPageID.Or(file.PageID)
		name, err := checkFileName(input.NewName.Or(file.Name))
		if err != nil {
			return err
		}
		if err := s.checkNameConflict(ctx, tx, pageID, name, input.FileID); err != nil {
			return err
		}

		latest, err := s.repomanager.FileRevisions(tx).GetLatest(ctx, input.FileID, true)
		if err != nil {
			return err
		}

		var changes []string
		if name != latest.Name {
			changes = append(changes, models.FieldName)
		}
		if pageID != latest.PageID {
			changes = append(changes, models.FieldPage)
		}

		if err := s.repomanager.Files(tx).SetPage(ctx, input.FileID, pageID, name); err != nil {
			return err
		}
		if err := s.repomanager.Files(tx).SetDeletedAt(ctx, input.FileID, nil); err != nil {
			return err
		}

		revisionID, err := s.repomanager.FileRevisions(tx).Create(ctx, &models.FileRevision{
			RevisionType:   models.RevisionResurrection,
			RevisionNumber: latest.RevisionNumber + 1,
			FileID:         input.FileID,
			PageID:         pageID,
			SiteID:         input.SiteID,
			UserID:         input.UserID,
			Name:           name,
			Digest:         latest.Digest,
			Mime:           latest.Mime,
			Size:           latest.Size,
			Comments:       input.Comments,
			Changes:        changes,
		})
		if err != nil {
			return err
		}
		out = &RestoreFileOutput{
			RevisionID:     revisionID,
			RevisionNumber: latest.RevisionNumber + 1,
			PageID:         pageID,
			Name:           name,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "restored file", "file_id", input.FileID, "page_id", out.PageID, "name", out.Name)
	return out, nil
}

// GetFile returns a file by id, restricted to the given page. Deleted
// files are returned; callers can inspect DeletedAt.
func (s *FileService) GetFile(ctx context.Context, pageID, fileID int64) (*models.File, error) {
	file, err := s.repomanager.Files(s.db).GetByID(ctx, fileID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.ErrFileNotFound
		}
		return nil, err
	}
	if file.PageID != pageID {
		return nil, common.ErrFileNotFound
	}
	return file, nil
}

// ListFiles returns a page's files. deleted filters by deletion state;
// nil returns both live and deleted files.
func (s *FileService) ListFiles(ctx context.Context, siteID, pageID int64, deleted *bool) ([]*models.File, error) {
	return s.repomanager.Files(s.db).ListByPage(ctx, siteID, pageID, deleted)
}

// ListRevisions returns a file's full history in ascending revision order.
func (s *FileService) ListRevisions(ctx context.Context, pageID, fileID int64) ([]*models.FileRevision, error) {
	if _, err := s.GetFile(ctx, pageID, fileID); err != nil {
		return nil, err
	}
	return s.repomanager.FileRevisions(s.db).List(ctx, fileID)
}

// GetRevision returns one revision of a file by its number.
func (s *FileService) GetRevision(ctx context.Context, pageID, fileID int64, number int) (*models.FileRevision, error) {
	if _, err := s.GetFile(ctx, pageID, fileID); err != nil {
		return nil, err
	}
	rev, err := s.repomanager.FileRevisions(s.db).GetByNumber(ctx, fileID, number)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.ErrRevisionNotFound
		}
		return nil, err
	}
	return rev, nil
}

// GetLatestRevision returns a file's current latest revision, whose id is
// the concurrency token for mutations.
func (s *FileService) GetLatestRevision(ctx context.Context, pageID, fileID int64) (*models.FileRevision, error) {
	if _, err := s.GetFile(ctx, pageID, fileID); err != nil {
		return nil, err
	}
	rev, err := s.repomanager.FileRevisions(s.db).GetLatest(ctx, fileID, false)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.ErrRevisionNotFound
		}
		return nil, err
	}
	return rev, nil
}

// resolveBlob obtains permanent content for a mutation: by finalizing a
// pending upload when a ticket is given, otherwise by storing the raw
// bytes directly.
func (s *FileService) resolveBlob(ctx context.Context, userID int64, ticket string, content []byte) (*FinalizeOutput, error) {
	if ticket != "" {
		return s.blobs.FinishUpload(ctx, userID, ticket)
	}
	return s.blobs.DirectStore(ctx, content)
}

// checkNameConflict enforces name uniqueness among non-deleted files on a
// page. excludeFileID skips the file being mutated so that keeping one's
// own name is never a conflict.
func (s *FileService) checkNameConflict(ctx context.Context, db dbx.DBTX, pageID int64, name string, excludeFileID int64) error {
	existing, err := s.repomanager.Files(db).FindLiveByName(ctx, pageID, name)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil
		}
		return err
	}
	if existing.ID != excludeFileID {
		return common.ErrFileExists
	}
	return nil
}

// getLiveFile loads a file and verifies it is on the expected page and
// not deleted. Deleted files are reported as not found, same as for pages
// the file does not belong to.
func (s *FileService) getLiveFile(ctx context.Context, db dbx.DBTX, fileID, pageID int64) (*models.File, error) {
	file, err := s.repomanager.Files(db).GetByID(ctx, fileID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.ErrFileNotFound
		}
		return nil, err
	}
	if file.PageID != pageID || file.Deleted() {
		return nil, common.ErrFileNotFound
	}
	return file, nil
}

// getLatestLocked fetches and row-locks the latest revision, then checks
// the caller's concurrency token against it. A stale token means another
// writer appended in between; the caller must refetch and retry.
func (s *FileService) getLatestLocked(ctx context.Context, tx dbx.DBTX, fileID, lastRevisionID int64) (*models.FileRevision, error) {
	latest, err := s.repomanager.FileRevisions(tx).GetLatest(ctx, fileID, true)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.ErrFileNotFound
		}
		return nil, err
	}
	if latest.RevisionID != lastRevisionID {
		return nil, common.ErrNotLatestRevision
	}
	return latest, nil
}

// appendTombstone writes the Tombstone revision and marks the file
// deleted. With erase set, the new revision points at the empty digest
// instead of the previous content, used when the content itself is being
// hard-deleted.
func appendTombstone(ctx context.Context, tx dbx.DBTX, m repomanager.RepositoryManager,
	latest *models.FileRevision, userID int64, comments string, erase bool) (int64, int, error) {

	digest, mime, size := latest.Digest, latest.Mime, latest.Size
	if erase {
		digest, mime, size = hashx.Empty, EmptyBlobMime, 0
	}

	number := latest.RevisionNumber + 1
	revisionID, err := m.FileRevisions(tx).Create(ctx, &models.FileRevision{
		RevisionType:   models.RevisionTombstone,
		RevisionNumber: number,
		FileID:         latest.FileID,
		PageID:         latest.PageID,
		SiteID:         latest.SiteID,
		UserID:         userID,
		Name:           latest.Name,
		Digest:         digest,
		Mime:           mime,
		Size:           size,
		Comments:       comments,
		Changes:        []string{},
	})
	if err != nil {
		return 0, 0, err
	}

	now := time.Now().UTC()
	if err := m.Files(tx).SetDeletedAt(ctx, latest.FileID, &now); err != nil {
		return 0, 0, err
	}
	return revisionID, number, nil
}

// checkFileName normalizes and validates a file name: surrounding
// whitespace is trimmed, and the result must be non-empty, at most
// MaximumFileNameLength bytes, and free of control characters, slashes
// and backslashes.
func checkFileName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", common.ErrNameEmpty
	}
	if len(name) > MaximumFileNameLength {
		return "", common.ErrNameTooLong
	}
	for _, r := range name {
		if unicode.IsControl(r) || r == '/' || r == '\\' {
			return "", common.ErrNameInvalidCharacters
		}
	}
	return name, nil
}
