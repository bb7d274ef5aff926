// Package services implements the application logic of the attachment
// server on top of the repositories and the object store.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/pagekeep/pagekeep/internal/common"
	"github.com/pagekeep/pagekeep/internal/dbx"
	"github.com/pagekeep/pagekeep/internal/hashx"
	"github.com/pagekeep/pagekeep/internal/logging"
	sc "github.com/pagekeep/pagekeep/internal/server/config"
	"github.com/pagekeep/pagekeep/internal/server/models"
	"github.com/pagekeep/pagekeep/internal/server/repositories/repomanager"
	"github.com/pagekeep/pagekeep/internal/server/storage"
)

const (
	// UploadPrefix is the object-store prefix for temporary upload keys.
	// Nothing under it is ever served; finalization moves bytes out of it.
	UploadPrefix = "uploads"

	// EmptyBlobMime is the MIME type reported for the virtual empty blob.
	EmptyBlobMime = "inode/x-empty; charset=binary"

	// HardDeleteSampleLimit caps how many example IDs a hard-deletion
	// report carries per category.
	HardDeleteSampleLimit = 10
)

// EmptyBlobCreatedAt is the fixed creation timestamp reported for the
// virtual empty blob, which is considered to have always existed.
var EmptyBlobCreatedAt = time.Unix(1547769600, 0).UTC()

// BlobService manages blob content: presigned two-phase uploads,
// deduplicated permanent storage, retrieval, the digest blacklist, and
// hard deletion.
type BlobService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	store       storage.ObjectStore
	config      *sc.Config
	logger      logging.Logger
}

func NewBlobService(db *sql.DB, repomanager repomanager.RepositoryManager,
	store storage.ObjectStore, config *sc.Config, logger logging.Logger) *BlobService {
	return &BlobService{
		db:          db,
		repomanager: repomanager,
		store:       store,
		config:      config,
		logger:      logger,
	}
}

// StartUploadOutput is the handle returned to an uploader: a ticket for
// later calls and a presigned URL to PUT the raw bytes to.
type StartUploadOutput struct {
	Ticket    string
	UploadURL string
	ExpiresAt time.Time
}

// FinalizeOutput describes a blob in permanent storage. Created reports
// whether this operation physically wrote the object, as opposed to
// deduplicating against an existing copy.
type FinalizeOutput struct {
	Digest  hashx.Hash
	Mime    string
	Size    int64
	Created bool
}

// StartUpload reserves a pending upload for userID promising blobSize
// bytes. It returns a presigned PUT URL for a fresh temporary key; no
// object-store write happens here.
func (s *BlobService) StartUpload(ctx context.Context, userID int64, blobSize int64) (*StartUploadOutput, error) {
	if blobSize < 0 || blobSize > s.config.MaximumBlobSize {
		return nil, common.ErrBlobTooBig
	}

	suffix, err := common.MakeRandHexString(s.config.PresignPathLength)
	if err != nil {
		return nil, fmt.Errorf("generating upload key: %w", err)
	}
	tempPath := UploadPrefix + "/" + suffix

	url, err := s.store.PresignPut(ctx, tempPath, s.config.PresignExpiry)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	upload := &models.PendingUpload{
		Ticket:         uuid.NewString(),
		TempPath:       tempPath,
		ExpectedLength: blobSize,
		CreatedBy:      userID,
		CreatedAt:      now,
		ExpiresAt:      now.Add(s.config.PresignExpiry),
	}

	if err := s.repomanager.Uploads(s.db).Create(ctx, upload); err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "started upload", "ticket", upload.Ticket, "user_id", userID, "size", blobSize)

	return &StartUploadOutput{
		Ticket:    upload.Ticket,
		UploadURL: url,
		ExpiresAt: upload.ExpiresAt,
	}, nil
}

// getPendingUpload loads a ticket and enforces ownership and expiry.
// Expired tickets behave exactly like tickets that never existed; a
// resolved ticket stays valid for idempotent re-finalization.
func (s *BlobService) getPendingUpload(ctx context.Context, db dbx.DBTX, userID int64, ticket string) (*models.PendingUpload, error) {
	upload, err := s.repomanager.Uploads(db).GetByTicket(ctx, ticket)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.ErrBlobNotFound
		}
		return nil, err
	}
	if upload.ResolvedDigest == nil && upload.Expired(time.Now().UTC()) {
		return nil, common.ErrBlobNotFound
	}
	if upload.CreatedBy != userID {
		return nil, common.ErrBlobWrongUser
	}
	return upload, nil
}

// CancelUpload abandons a pending upload: the bookkeeping row is removed
// and the temporary object, if the uploader already PUT one, is deleted.
func (s *BlobService) CancelUpload(ctx context.Context, userID int64, ticket string) error {
	upload, err := s.getPendingUpload(ctx, s.db, userID, ticket)
	if err != nil {
		return err
	}

	if err := s.repomanager.Uploads(s.db).Delete(ctx, ticket); err != nil {
		return err
	}

	if err := s.store.Delete(ctx, upload.TempPath); err != nil {
		return err
	}

	s.logger.Info(ctx, "cancelled upload", "ticket", ticket, "user_id", userID)
	return nil
}

// FinishUpload turns a ticket whose bytes have been PUT to the temporary
// location into a permanent, deduplicated blob. Finalizing the same
// ticket again returns the already-resolved digest without touching the
// temporary location.
func (s *BlobService) FinishUpload(ctx context.Context, userID int64, ticket string) (*FinalizeOutput, error) {
	upload, err := s.getPendingUpload(ctx, s.db, userID, ticket)
	if err != nil {
		return nil, err
	}

	if upload.ResolvedDigest != nil {
		digest, err := hashx.FromSlice(upload.ResolvedDigest)
		if err != nil {
			return nil, err
		}
		meta, err := s.GetMetadata(ctx, digest)
		if err != nil {
			return nil, err
		}
		return &FinalizeOutput{Digest: digest, Mime: meta.Mime, Size: meta.Size, Created: false}, nil
	}

	var out *FinalizeOutput
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var txErr error
		out, txErr = s.moveUploaded(ctx, tx, upload)
		return txErr
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// moveUploaded performs the one-time half of finalization: fetch the
// temporary object, verify its length, store it permanently and record the
// resolved digest on the pending upload. The permanent object-store write
// happens before the bookkeeping update, so a crash in between leaves a
// retryable ticket rather than a dangling digest.
func (s *BlobService) moveUploaded(ctx context.Context, tx dbx.DBTX, upload *models.PendingUpload) (*FinalizeOutput, error) {
	data, found, err := s.store.Get(ctx, upload.TempPath)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, common.ErrBlobNotUploaded
	}

	if int64(len(data)) != upload.ExpectedLength {
		s.logger.Warn(ctx, "uploaded length mismatch",
			"ticket", upload.Ticket, "expected", upload.ExpectedLength, "actual", len(data))
		if err := s.store.Delete(ctx, upload.TempPath); err != nil {
			return nil, err
		}
		return nil, common.ErrBlobSizeMismatch
	}

	// The empty blob is virtual: no object is ever stored for it.
	if len(data) == 0 {
		return &FinalizeOutput{Digest: hashx.Empty, Mime: EmptyBlobMime, Size: 0, Created: false}, nil
	}

	digest := hashx.Sum(data)

	blacklisted, err := s.repomanager.Blacklist(tx).Exists(ctx, digest.Slice())
	if err != nil {
		return nil, err
	}
	if blacklisted {
		return nil, common.ErrBlobBlacklisted
	}

	out, err := s.storeContent(ctx, digest, data)
	if err != nil {
		return nil, err
	}

	if err := s.store.Delete(ctx, upload.TempPath); err != nil {
		return nil, err
	}

	if err := s.repomanager.Uploads(tx).SetResolvedDigest(ctx, upload.Ticket, digest.Slice()); err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "finalized upload",
		"ticket", upload.Ticket, "digest", digest.Hex(), "size", out.Size, "created", out.Created)

	return out, nil
}

// DirectStore writes data straight into permanent storage, bypassing the
// ticket flow. Used for trusted internal content such as seeded defaults.
func (s *BlobService) DirectStore(ctx context.Context, data []byte) (*FinalizeOutput, error) {
	if len(data) == 0 {
		return &FinalizeOutput{Digest: hashx.Empty, Mime: EmptyBlobMime, Size: 0, Created: false}, nil
	}
	return s.storeContent(ctx, hashx.Sum(data), data)
}

// storeContent deduplicates against the permanent key and writes the
// object only if it is not already present.
func (s *BlobService) storeContent(ctx context.Context, digest hashx.Hash, data []byte) (*FinalizeOutput, error) {
	key := digest.Hex()

	meta, err := s.store.Head(ctx, key)
	if err != nil {
		return nil, err
	}
	if meta != nil {
		return &FinalizeOutput{Digest: digest, Mime: meta.Mime, Size: meta.Size, Created: false}, nil
	}

	mime := mimetype.Detect(data).String()
	if err := s.store.Put(ctx, key, data, mime); err != nil {
		return nil, err
	}

	return &FinalizeOutput{Digest: digest, Mime: mime, Size: int64(len(data)), Created: true}, nil
}

// Get returns the blob's bytes. The empty digest yields an empty slice
// without touching the store.
func (s *BlobService) Get(ctx context.Context, digest hashx.Hash) ([]byte, error) {
	if digest.IsEmpty() {
		return []byte{}, nil
	}
	data, found, err := s.store.Get(ctx, digest.Hex())
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, common.ErrBlobNotFound
	}
	return data, nil
}

// GetMaybe fetches blob bytes only when shouldFetch is true, for callers
// that let clients opt in to inline content.
func (s *BlobService) GetMaybe(ctx context.Context, shouldFetch bool, digest hashx.Hash) ([]byte, error) {
	if !shouldFetch {
		return nil, nil
	}
	return s.Get(ctx, digest)
}

// GetMetadata returns size, MIME type and creation time for a blob. The
// empty digest reports fixed constants.
func (s *BlobService) GetMetadata(ctx context.Context, digest hashx.Hash) (*models.BlobMetadata, error) {
	if digest.IsEmpty() {
		return &models.BlobMetadata{Mime: EmptyBlobMime, Size: 0, CreatedAt: EmptyBlobCreatedAt}, nil
	}
	meta, err := s.store.Head(ctx, digest.Hex())
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return nil, common.ErrBlobNotFound
	}
	return &models.BlobMetadata{Mime: meta.Mime, Size: meta.Size, CreatedAt: meta.LastModified}, nil
}

// Exists reports whether a blob with the given digest is available. The
// empty digest always exists.
func (s *BlobService) Exists(ctx context.Context, digest hashx.Hash) (bool, error) {
	if digest.IsEmpty() {
		return true, nil
	}
	meta, err := s.store.Head(ctx, digest.Hex())
	if err != nil {
		return false, err
	}
	return meta != nil, nil
}

// AddBlacklist bans a digest from future uploads. Re-adding an already
// blacklisted digest is a no-op.
func (s *BlobService) AddBlacklist(ctx context.Context, digest hashx.Hash, userID int64) error {
	if digest.IsEmpty() {
		return common.ErrBadRequest
	}
	return s.repomanager.Blacklist(s.db).Add(ctx, digest.Slice(), userID)
}

// RemoveBlacklist lifts a ban. Removing an absent entry succeeds.
func (s *BlobService) RemoveBlacklist(ctx context.Context, digest hashx.Hash) error {
	return s.repomanager.Blacklist(s.db).Remove(ctx, digest.Slice())
}

// OnBlacklist reports whether a digest is currently banned.
func (s *BlobService) OnBlacklist(ctx context.Context, digest hashx.Hash) (bool, error) {
	return s.repomanager.Blacklist(s.db).Exists(ctx, digest.Slice())
}

// HardDeleteOutput reports the blast radius of a hard deletion: totals per
// category plus up to HardDeleteSampleLimit example IDs each, in ascending
// order. Preview and commit produce the same shape.
type HardDeleteOutput struct {
	RevisionCount   int64
	FileCount       int64
	TombstonedFiles int64
	PageCount       int64
	SiteCount       int64
	UserCount       int64

	SampleRevisionIDs []int64
	SampleFileIDs     []int64
	SamplePageIDs     []int64
	SampleSiteIDs     []int64
	SampleUserIDs     []int64
}

// HardDeletePreview reports what a hard deletion of digest would touch
// without modifying anything.
func (s *BlobService) HardDeletePreview(ctx context.Context, digest hashx.Hash) (*HardDeleteOutput, error) {
	return s.hardDelete(ctx, digest, nil)
}

// HardDeleteCommit irreversibly removes a blob's content: all revisions
// referencing the digest are redacted, files whose latest revision exposes
// it are tombstoned, avatars are cleared, the digest is blacklisted and
// the object is removed from permanent storage. deletedBy is recorded on
// the blacklist entry; tombstone revisions are attributed to the system
// user.
func (s *BlobService) HardDeleteCommit(ctx context.Context, digest hashx.Hash, deletedBy int64) (*HardDeleteOutput, error) {
	return s.hardDelete(ctx, digest, &deletedBy)
}

// hardDelete runs the shared scan-and-destroy pass. A nil deletedBy means
// dry run: the same queries run, the same report is produced, and no write
// happens. All database work shares one transaction; the object-store
// delete runs last inside it so a backend failure rolls the bookkeeping
// back and the operation can be retried.
func (s *BlobService) hardDelete(ctx context.Context, digest hashx.Hash, deletedBy *int64) (*HardDeleteOutput, error) {
	if digest.IsEmpty() {
		return nil, common.ErrBadRequest
	}

	commit := deletedBy != nil
	s.logger.Info(ctx, "hard deleting blob", "digest", digest.Hex(), "commit", commit)

	var out *HardDeleteOutput
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		revisionRepo := s.repomanager.FileRevisions(tx)
		userRepo := s.repomanager.Users(tx)

		revisionIDs := newSampler()
		fileIDs := newSampler()
		pageIDs := newSampler()
		siteIDs := newSampler()
		out = &HardDeleteOutput{}

		// Files whose latest revision still exposes this digest must be
		// tombstoned first, so the redaction below never leaves a live
		// file whose latest revision went dark silently.
		latest, err := revisionRepo.ListLatestByDigest(ctx, digest.Slice())
		if err != nil {
			return err
		}
		out.TombstonedFiles = int64(len(latest))
		for _, ref := range latest {
			if !commit {
				continue
			}
			latestRev, err := revisionRepo.GetLatest(ctx, ref.FileID, true)
			if err != nil {
				return err
			}
			comments := fmt.Sprintf("Hard deletion of blob %s", digest.Hex())
			if _, _, err := appendTombstone(ctx, tx, s.repomanager, latestRev, s.config.SystemUserID, comments, true); err != nil {
				return err
			}
		}

		revisions, err := revisionRepo.ListByDigest(ctx, digest.Slice())
		if err != nil {
			return err
		}
		for _, rev := range revisions {
			revisionIDs.add(rev.RevisionID)
			fileIDs.add(rev.FileID)
			pageIDs.add(rev.PageID)
			siteIDs.add(rev.SiteID)

			if !commit {
				continue
			}
			hidden := appendUnique(rev.Hidden, models.FieldBlob)
			if err := revisionRepo.Redact(ctx, rev.RevisionID, hashx.Empty.Slice(), hidden); err != nil {
				return err
			}
		}
		out.RevisionCount, out.SampleRevisionIDs = revisionIDs.report()
		out.FileCount, out.SampleFileIDs = fileIDs.report()
		out.PageCount, out.SamplePageIDs = pageIDs.report()
		out.SiteCount, out.SampleSiteIDs = siteIDs.report()

		out.SampleUserIDs, err = userRepo.SampleByAvatarDigest(ctx, digest.Slice(), HardDeleteSampleLimit)
		if err != nil {
			return err
		}
		if commit {
			out.UserCount, err = userRepo.ClearAvatars(ctx, digest.Slice())
		} else {
			out.UserCount, err = userRepo.CountByAvatarDigest(ctx, digest.Slice())
		}
		if err != nil {
			return err
		}

		if !commit {
			return nil
		}

		if err := s.repomanager.Blacklist(tx).Add(ctx, digest.Slice(), *deletedBy); err != nil {
			return err
		}
		return s.store.Delete(ctx, digest.Hex())
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// sampler counts distinct IDs and keeps them for a bounded sorted sample
// in the hard-deletion report.
type sampler struct {
	seen map[int64]struct{}
}

func newSampler() *sampler {
	return &sampler{seen: make(map[int64]struct{})}
}

func (s *sampler) add(v int64) {
	s.seen[v] = struct{}{}
}

func (s *sampler) report() (int64, []int64) {
	all := make([]int64, 0, len(s.seen))
	for v := range s.seen {
		all = append(all, v)
	}
	sort.Slice(all, func(i, j int) bool { return all[i] < all[j] })
	if len(all) > HardDeleteSampleLimit {
		all = all[:HardDeleteSampleLimit]
	}
	return int64(len(s.seen)), all
}

// appendUnique adds v to list unless it is already present.
func appendUnique(list []string, v string) []string {
	for _, item := range list {
		if item == v {
			return list
		}
	}
	return append(list, v)
}
