package services

import (
	"context"
	"database/sql"
	"encoding/hex"
	"io"
	"log/slog"
	"sort"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/pagekeep/pagekeep/internal/common"
	"github.com/pagekeep/pagekeep/internal/dbx"
	"github.com/pagekeep/pagekeep/internal/logging"
	sc "github.com/pagekeep/pagekeep/internal/server/config"
	"github.com/pagekeep/pagekeep/internal/server/models"
	"github.com/pagekeep/pagekeep/internal/server/repositories/blacklist"
	"github.com/pagekeep/pagekeep/internal/server/repositories/filerevisions"
	"github.com/pagekeep/pagekeep/internal/server/repositories/files"
	"github.com/pagekeep/pagekeep/internal/server/repositories/repomanager"
	"github.com/pagekeep/pagekeep/internal/server/repositories/uploads"
	"github.com/pagekeep/pagekeep/internal/server/repositories/users"
	"github.com/pagekeep/pagekeep/internal/server/storage"
)

// -------- in-memory object store --------

type fakeObject struct {
	data []byte
	mime string
}

type fakeObjectStore struct {
	objects  map[string]fakeObject
	presigns []string
	deletes  []string
	puts     int
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{objects: make(map[string]fakeObject)}
}

func (s *fakeObjectStore) PresignPut(ctx context.Context, key string, ttl time.Duration) (string, error) {
	s.presigns = append(s.presigns, key)
	return "https://s3.test/" + key + "?signed=1", nil
}

func (s *fakeObjectStore) Head(ctx context.Context, key string) (*storage.ObjectMeta, error) {
	obj, ok := s.objects[key]
	if !ok {
		return nil, nil
	}
	return &storage.ObjectMeta{Size: int64(len(obj.data)), Mime: obj.mime, LastModified: time.Now()}, nil
}

func (s *fakeObjectStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	obj, ok := s.objects[key]
	if !ok {
		return nil, false, nil
	}
	return obj.data, true, nil
}

func (s *fakeObjectStore) Put(ctx context.Context, key string, data []byte, mime string) error {
	s.puts++
	s.objects[key] = fakeObject{data: data, mime: mime}
	return nil
}

func (s *fakeObjectStore) Delete(ctx context.Context, key string) error {
	s.deletes = append(s.deletes, key)
	delete(s.objects, key)
	return nil
}

// upload simulates the client-side PUT to the presigned URL.
func (s *fakeObjectStore) upload(key string, data []byte) {
	s.objects[key] = fakeObject{data: data, mime: "application/octet-stream"}
}

// -------- in-memory repositories --------

type fakeUploadsRepo struct {
	uploads.Repository
	rows map[string]*models.PendingUpload
}

func newFakeUploadsRepo() *fakeUploadsRepo {
	return &fakeUploadsRepo{rows: make(map[string]*models.PendingUpload)}
}

func (f *fakeUploadsRepo) Create(ctx context.Context, upload *models.PendingUpload) error {
	cp := *upload
	f.rows[upload.Ticket] = &cp
	return nil
}

func (f *fakeUploadsRepo) GetByTicket(ctx context.Context, ticket string) (*models.PendingUpload, error) {
	row, ok := f.rows[ticket]
	if !ok {
		return nil, common.ErrNotFound
	}
	cp := *row
	return &cp, nil
}

func (f *fakeUploadsRepo) SetResolvedDigest(ctx context.Context, ticket string, digest []byte) error {
	row, ok := f.rows[ticket]
	if !ok {
		return common.ErrNotFound
	}
	row.ResolvedDigest = append([]byte(nil), digest...)
	return nil
}

func (f *fakeUploadsRepo) Delete(ctx context.Context, ticket string) error {
	delete(f.rows, ticket)
	return nil
}

type fakeBlacklistRepo struct {
	blacklist.Repository
	entries map[string]struct{}
}

func newFakeBlacklistRepo() *fakeBlacklistRepo {
	return &fakeBlacklistRepo{entries: make(map[string]struct{})}
}

func (f *fakeBlacklistRepo) Add(ctx context.Context, digest []byte, createdBy int64) error {
	f.entries[hex.EncodeToString(digest)] = struct{}{}
	return nil
}

func (f *fakeBlacklistRepo) Remove(ctx context.Context, digest []byte) error {
	delete(f.entries, hex.EncodeToString(digest))
	return nil
}

func (f *fakeBlacklistRepo) Exists(ctx context.Context, digest []byte) (bool, error) {
	_, ok := f.entries[hex.EncodeToString(digest)]
	return ok, nil
}

type fakeFilesRepo struct {
	files.Repository
	rows   map[int64]*models.File
	nextID int64
}

func newFakeFilesRepo() *fakeFilesRepo {
	return &fakeFilesRepo{rows: make(map[int64]*models.File)}
}

func (f *fakeFilesRepo) Create(ctx context.Context, file *models.File) (int64, error) {
	f.nextID++
	cp := *file
	cp.ID = f.nextID
	cp.CreatedAt = time.Now().UTC()
	f.rows[cp.ID] = &cp
	return cp.ID, nil
}

func (f *fakeFilesRepo) GetByID(ctx context.Context, fileID int64) (*models.File, error) {
	row, ok := f.rows[fileID]
	if !ok {
		return nil, common.ErrNotFound
	}
	cp := *row
	return &cp, nil
}

func (f *fakeFilesRepo) FindLiveByName(ctx context.Context, pageID int64, name string) (*models.File, error) {
	for _, row := range f.rows {
		if row.PageID == pageID && row.Name == name && row.DeletedAt == nil {
			cp := *row
			return &cp, nil
		}
	}
	return nil, common.ErrNotFound
}

func (f *fakeFilesRepo) ListByPage(ctx context.Context, siteID, pageID int64, deleted *bool) ([]*models.File, error) {
	var out []*models.File
	for _, row := range f.rows {
		if row.SiteID != siteID || row.PageID != pageID {
			continue
		}
		if deleted != nil && row.Deleted() != *deleted {
			continue
		}
		cp := *row
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeFilesRepo) SetName(ctx context.Context, fileID int64, name string) error {
	row, ok := f.rows[fileID]
	if !ok {
		return common.ErrNotFound
	}
	row.Name = name
	return nil
}

func (f *fakeFilesRepo) SetPage(ctx context.Context, fileID, pageID int64, name string) error {
	row, ok := f.rows[fileID]
	if !ok {
		return common.ErrNotFound
	}
	row.PageID = pageID
	row.Name = name
	return nil
}

func (f *fakeFilesRepo) SetDeletedAt(ctx context.Context, fileID int64, deletedAt *time.Time) error {
	row, ok := f.rows[fileID]
	if !ok {
		return common.ErrNotFound
	}
	row.DeletedAt = deletedAt
	return nil
}

type fakeRevisionsRepo struct {
	filerevisions.Repository
	rows   []*models.FileRevision
	nextID int64
}

func newFakeRevisionsRepo() *fakeRevisionsRepo {
	return &fakeRevisionsRepo{}
}

func (f *fakeRevisionsRepo) Create(ctx context.Context, rev *models.FileRevision) (int64, error) {
	f.nextID++
	cp := *rev
	cp.RevisionID = f.nextID
	cp.CreatedAt = time.Now().UTC()
	f.rows = append(f.rows, &cp)
	return cp.RevisionID, nil
}

func (f *fakeRevisionsRepo) GetLatest(ctx context.Context, fileID int64, forUpdate bool) (*models.FileRevision, error) {
	var latest *models.FileRevision
	for _, row := range f.rows {
		if row.FileID != fileID {
			continue
		}
		if latest == nil || row.RevisionNumber > latest.RevisionNumber {
			latest = row
		}
	}
	if latest == nil {
		return nil, common.ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (f *fakeRevisionsRepo) GetByNumber(ctx context.Context, fileID int64, number int) (*models.FileRevision, error) {
	for _, row := range f.rows {
		if row.FileID == fileID && row.RevisionNumber == number {
			cp := *row
			return &cp, nil
		}
	}
	return nil, common.ErrNotFound
}

func (f *fakeRevisionsRepo) List(ctx context.Context, fileID int64) ([]*models.FileRevision, error) {
	var out []*models.FileRevision
	for _, row := range f.rows {
		if row.FileID == fileID {
			cp := *row
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RevisionNumber < out[j].RevisionNumber })
	return out, nil
}

func (f *fakeRevisionsRepo) ListLatestByDigest(ctx context.Context, digest []byte) ([]*filerevisions.LatestReference, error) {
	var out []*filerevisions.LatestReference
	seen := make(map[int64]struct{})
	for _, row := range f.rows {
		if _, ok := seen[row.FileID]; ok {
			continue
		}
		seen[row.FileID] = struct{}{}
		latest, err := f.GetLatest(ctx, row.FileID, false)
		if err != nil {
			return nil, err
		}
		if string(latest.Digest.Slice()) == string(digest) {
			out = append(out, &filerevisions.LatestReference{
				RevisionID: latest.RevisionID,
				FileID:     latest.FileID,
				PageID:     latest.PageID,
				SiteID:     latest.SiteID,
			})
		}
	}
	return out, nil
}

func (f *fakeRevisionsRepo) ListByDigest(ctx context.Context, digest []byte) ([]*models.FileRevision, error) {
	var out []*models.FileRevision
	for _, row := range f.rows {
		if string(row.Digest.Slice()) == string(digest) {
			cp := *row
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeRevisionsRepo) Redact(ctx context.Context, revisionID int64, digest []byte, hidden []string) error {
	for _, row := range f.rows {
		if row.RevisionID == revisionID {
			copy(row.Digest[:], digest)
			row.Hidden = hidden
			return nil
		}
	}
	return common.ErrNotFound
}

type fakeUsersRepo struct {
	users.Repository
	avatars map[int64][]byte
}

func newFakeUsersRepo() *fakeUsersRepo {
	return &fakeUsersRepo{avatars: make(map[int64][]byte)}
}

func (f *fakeUsersRepo) matching(digest []byte) []int64 {
	var ids []int64
	for id, avatar := range f.avatars {
		if string(avatar) == string(digest) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (f *fakeUsersRepo) SampleByAvatarDigest(ctx context.Context, digest []byte, limit int) ([]int64, error) {
	ids := f.matching(digest)
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (f *fakeUsersRepo) CountByAvatarDigest(ctx context.Context, digest []byte) (int64, error) {
	return int64(len(f.matching(digest))), nil
}

func (f *fakeUsersRepo) ClearAvatars(ctx context.Context, digest []byte) (int64, error) {
	ids := f.matching(digest)
	for _, id := range ids {
		delete(f.avatars, id)
	}
	return int64(len(ids)), nil
}

// -------- repository manager over the fakes --------

type fakeRepoManager struct {
	repomanager.RepositoryManager
	uploads   *fakeUploadsRepo
	blacklist *fakeBlacklistRepo
	files     *fakeFilesRepo
	revisions *fakeRevisionsRepo
	users     *fakeUsersRepo
}

func newFakeRepoManager() *fakeRepoManager {
	return &fakeRepoManager{
		uploads:   newFakeUploadsRepo(),
		blacklist: newFakeBlacklistRepo(),
		files:     newFakeFilesRepo(),
		revisions: newFakeRevisionsRepo(),
		users:     newFakeUsersRepo(),
	}
}

func (m *fakeRepoManager) Uploads(db dbx.DBTX) uploads.Repository             { return m.uploads }
func (m *fakeRepoManager) Blacklist(db dbx.DBTX) blacklist.Repository         { return m.blacklist }
func (m *fakeRepoManager) Files(db dbx.DBTX) files.Repository                 { return m.files }
func (m *fakeRepoManager) FileRevisions(db dbx.DBTX) filerevisions.Repository { return m.revisions }
func (m *fakeRepoManager) Users(db dbx.DBTX) users.Repository                 { return m.users }

// -------- helpers --------

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	// Service flows may nest transactions (finalization inside a file
	// mutation); only the begin/commit counts matter here.
	mock.MatchExpectationsInOrder(false)
	return db, mock
}

func testConfig() *sc.Config {
	cfg := &sc.Config{}
	cfg.LoadDefaults()
	return cfg
}

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewJSONHandler(io.Discard, nil)))
}

// expectTx queues begin/commit expectations for n sequential transactions.
func expectTx(mock sqlmock.Sqlmock, n int) {
	for i := 0; i < n; i++ {
		mock.ExpectBegin()
		mock.ExpectCommit()
	}
}

func newBlobService(db *sql.DB, m *fakeRepoManager, store *fakeObjectStore) *BlobService {
	return NewBlobService(db, m, store, testConfig(), testLogger())
}

func newFileService(db *sql.DB, m *fakeRepoManager, store *fakeObjectStore) (*FileService, *BlobService) {
	blobs := newBlobService(db, m, store)
	return NewFileService(db, m, blobs, testConfig(), testLogger()), blobs
}
