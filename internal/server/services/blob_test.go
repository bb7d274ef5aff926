package services

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/pagekeep/pagekeep/internal/common"
	"github.com/pagekeep/pagekeep/internal/hashx"
	"github.com/pagekeep/pagekeep/internal/server/models"
)

func TestStartUpload_RejectsOversize(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	s := newBlobService(db, newFakeRepoManager(), newFakeObjectStore())

	_, err := s.StartUpload(context.Background(), 7, testConfig().MaximumBlobSize+1)
	if !errors.Is(err, common.ErrBlobTooBig) {
		t.Fatalf("want ErrBlobTooBig, got %v", err)
	}

	_, err = s.StartUpload(context.Background(), 7, -1)
	if !errors.Is(err, common.ErrBlobTooBig) {
		t.Fatalf("want ErrBlobTooBig for negative size, got %v", err)
	}
}

func TestStartUpload_Success(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	m := newFakeRepoManager()
	store := newFakeObjectStore()
	s := newBlobService(db, m, store)

	out, err := s.StartUpload(context.Background(), 7, 1024)
	if err != nil {
		t.Fatalf("StartUpload error: %v", err)
	}
	if out.Ticket == "" {
		t.Fatal("empty ticket")
	}
	if !strings.Contains(out.UploadURL, UploadPrefix+"/") {
		t.Fatalf("presigned URL does not point under the upload prefix: %s", out.UploadURL)
	}

	row := m.uploads.rows[out.Ticket]
	if row == nil {
		t.Fatal("pending upload row not created")
	}
	if row.CreatedBy != 7 || row.ExpectedLength != 1024 {
		t.Fatalf("unexpected pending upload: %+v", row)
	}
	if !strings.HasPrefix(row.TempPath, UploadPrefix+"/") {
		t.Fatalf("temp path outside upload prefix: %s", row.TempPath)
	}
}

func TestFinishUpload_RoundTrip(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()

	m := newFakeRepoManager()
	store := newFakeObjectStore()
	s := newBlobService(db, m, store)
	ctx := context.Background()

	data := []byte("%PDF-1.4 report body")
	start, err := s.StartUpload(ctx, 7, int64(len(data)))
	if err != nil {
		t.Fatalf("StartUpload error: %v", err)
	}
	store.upload(m.uploads.rows[start.Ticket].TempPath, data)

	expectTx(mock, 1)
	out, err := s.FinishUpload(ctx, 7, start.Ticket)
	if err != nil {
		t.Fatalf("FinishUpload error: %v", err)
	}
	if out.Digest != hashx.Sum(data) {
		t.Fatalf("digest mismatch: %s", out.Digest.Hex())
	}
	if !out.Created {
		t.Fatal("first finalize should report Created")
	}
	if out.Size != int64(len(data)) {
		t.Fatalf("unexpected size: %d", out.Size)
	}

	// Bytes moved to the permanent key, temp removed, ticket resolved.
	if _, ok := store.objects[out.Digest.Hex()]; !ok {
		t.Fatal("object missing at permanent key")
	}
	if _, ok := store.objects[m.uploads.rows[start.Ticket].TempPath]; ok {
		t.Fatal("temporary object not removed")
	}
	if !bytes.Equal(m.uploads.rows[start.Ticket].ResolvedDigest, out.Digest.Slice()) {
		t.Fatal("resolved digest not recorded")
	}

	got, err := s.Get(ctx, out.Digest)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatal("round-tripped bytes differ")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("sql expectations: %v", err)
	}
}

func TestFinishUpload_DeduplicatesContent(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()

	m := newFakeRepoManager()
	store := newFakeObjectStore()
	s := newBlobService(db, m, store)
	ctx := context.Background()

	data := []byte("shared attachment content")
	expectTx(mock, 2)

	var digests []hashx.Hash
	var createds []bool
	for i := 0; i < 2; i++ {
		start, err := s.StartUpload(ctx, 7, int64(len(data)))
		if err != nil {
			t.Fatalf("StartUpload error: %v", err)
		}
		store.upload(m.uploads.rows[start.Ticket].TempPath, data)
		out, err := s.FinishUpload(ctx, 7, start.Ticket)
		if err != nil {
			t.Fatalf("FinishUpload error: %v", err)
		}
		digests = append(digests, out.Digest)
		createds = append(createds, out.Created)
	}

	if digests[0] != digests[1] {
		t.Fatal("same content produced different digests")
	}
	if !createds[0] || createds[1] {
		t.Fatalf("created flags: first=%v second=%v", createds[0], createds[1])
	}
	if store.puts != 1 {
		t.Fatalf("object written %d times, want 1", store.puts)
	}
}

func TestFinishUpload_Idempotent(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()

	m := newFakeRepoManager()
	store := newFakeObjectStore()
	s := newBlobService(db, m, store)
	ctx := context.Background()

	data := []byte("finalize me twice")
	start, err := s.StartUpload(ctx, 7, int64(len(data)))
	if err != nil {
		t.Fatalf("StartUpload error: %v", err)
	}
	store.upload(m.uploads.rows[start.Ticket].TempPath, data)

	// Only the first call opens a transaction; the second takes the
	// resolved-digest shortcut.
	expectTx(mock, 1)

	first, err := s.FinishUpload(ctx, 7, start.Ticket)
	if err != nil {
		t.Fatalf("first FinishUpload error: %v", err)
	}
	second, err := s.FinishUpload(ctx, 7, start.Ticket)
	if err != nil {
		t.Fatalf("second FinishUpload error: %v", err)
	}

	if second.Digest != first.Digest || second.Size != first.Size {
		t.Fatalf("second finalize disagrees: %+v vs %+v", second, first)
	}
	if second.Created {
		t.Fatal("second finalize should not report Created")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("sql expectations: %v", err)
	}
}

func TestFinishUpload_NothingUploaded(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()

	m := newFakeRepoManager()
	s := newBlobService(db, m, newFakeObjectStore())
	ctx := context.Background()

	start, err := s.StartUpload(ctx, 7, 10)
	if err != nil {
		t.Fatalf("StartUpload error: %v", err)
	}

	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err = s.FinishUpload(ctx, 7, start.Ticket)
	if !errors.Is(err, common.ErrBlobNotUploaded) {
		t.Fatalf("want ErrBlobNotUploaded, got %v", err)
	}
}

func TestFinishUpload_SizeMismatchDiscardsUpload(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()

	m := newFakeRepoManager()
	store := newFakeObjectStore()
	s := newBlobService(db, m, store)
	ctx := context.Background()

	start, err := s.StartUpload(ctx, 7, 5)
	if err != nil {
		t.Fatalf("StartUpload error: %v", err)
	}
	tempPath := m.uploads.rows[start.Ticket].TempPath
	store.upload(tempPath, []byte("more than five bytes"))

	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err = s.FinishUpload(ctx, 7, start.Ticket)
	if !errors.Is(err, common.ErrBlobSizeMismatch) {
		t.Fatalf("want ErrBlobSizeMismatch, got %v", err)
	}
	if _, ok := store.objects[tempPath]; ok {
		t.Fatal("mismatched temporary object should be deleted")
	}
	if store.puts != 0 {
		t.Fatal("no permanent object should be written")
	}
}

func TestFinishUpload_EmptyContent(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()

	m := newFakeRepoManager()
	store := newFakeObjectStore()
	s := newBlobService(db, m, store)
	ctx := context.Background()

	start, err := s.StartUpload(ctx, 7, 0)
	if err != nil {
		t.Fatalf("StartUpload error: %v", err)
	}
	store.upload(m.uploads.rows[start.Ticket].TempPath, []byte{})

	expectTx(mock, 1)
	out, err := s.FinishUpload(ctx, 7, start.Ticket)
	if err != nil {
		t.Fatalf("FinishUpload error: %v", err)
	}
	if !out.Digest.IsEmpty() {
		t.Fatalf("want empty digest, got %s", out.Digest.Hex())
	}
	if out.Mime != EmptyBlobMime || out.Size != 0 || out.Created {
		t.Fatalf("unexpected output: %+v", out)
	}
	if store.puts != 0 {
		t.Fatal("empty blob must never be physically stored")
	}
}

func TestFinishUpload_WrongUser(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	m := newFakeRepoManager()
	s := newBlobService(db, m, newFakeObjectStore())
	ctx := context.Background()

	start, err := s.StartUpload(ctx, 7, 10)
	if err != nil {
		t.Fatalf("StartUpload error: %v", err)
	}

	_, err = s.FinishUpload(ctx, 8, start.Ticket)
	if !errors.Is(err, common.ErrBlobWrongUser) {
		t.Fatalf("want ErrBlobWrongUser, got %v", err)
	}
}

func TestFinishUpload_ExpiredTicket(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	m := newFakeRepoManager()
	s := newBlobService(db, m, newFakeObjectStore())
	ctx := context.Background()

	start, err := s.StartUpload(ctx, 7, 10)
	if err != nil {
		t.Fatalf("StartUpload error: %v", err)
	}
	m.uploads.rows[start.Ticket].ExpiresAt = time.Now().UTC().Add(-time.Minute)

	_, err = s.FinishUpload(ctx, 7, start.Ticket)
	if !errors.Is(err, common.ErrBlobNotFound) {
		t.Fatalf("expired ticket should look nonexistent, got %v", err)
	}
}

func TestFinishUpload_UnknownTicket(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	s := newBlobService(db, newFakeRepoManager(), newFakeObjectStore())

	_, err := s.FinishUpload(context.Background(), 7, "no-such-ticket")
	if !errors.Is(err, common.ErrBlobNotFound) {
		t.Fatalf("want ErrBlobNotFound, got %v", err)
	}
}

func TestFinishUpload_BlacklistedDigest(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()

	m := newFakeRepoManager()
	store := newFakeObjectStore()
	s := newBlobService(db, m, store)
	ctx := context.Background()

	data := []byte("forbidden content")
	if err := s.AddBlacklist(ctx, hashx.Sum(data), 1); err != nil {
		t.Fatalf("AddBlacklist error: %v", err)
	}

	start, err := s.StartUpload(ctx, 7, int64(len(data)))
	if err != nil {
		t.Fatalf("StartUpload error: %v", err)
	}
	store.upload(m.uploads.rows[start.Ticket].TempPath, data)

	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err = s.FinishUpload(ctx, 7, start.Ticket)
	if !errors.Is(err, common.ErrBlobBlacklisted) {
		t.Fatalf("want ErrBlobBlacklisted, got %v", err)
	}
	if store.puts != 0 {
		t.Fatal("blacklisted content must not reach permanent storage")
	}
}

func TestCancelUpload(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	m := newFakeRepoManager()
	store := newFakeObjectStore()
	s := newBlobService(db, m, store)
	ctx := context.Background()

	start, err := s.StartUpload(ctx, 7, 10)
	if err != nil {
		t.Fatalf("StartUpload error: %v", err)
	}
	tempPath := m.uploads.rows[start.Ticket].TempPath
	store.upload(tempPath, []byte("partial"))

	if err := s.CancelUpload(ctx, 7, start.Ticket); err != nil {
		t.Fatalf("CancelUpload error: %v", err)
	}
	if _, ok := m.uploads.rows[start.Ticket]; ok {
		t.Fatal("pending upload row should be removed")
	}
	if _, ok := store.objects[tempPath]; ok {
		t.Fatal("temporary object should be removed")
	}

	if err := s.CancelUpload(ctx, 7, start.Ticket); !errors.Is(err, common.ErrBlobNotFound) {
		t.Fatalf("second cancel should report not found, got %v", err)
	}
}

func TestGetMetadata_EmptyBlob(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	s := newBlobService(db, newFakeRepoManager(), newFakeObjectStore())

	meta, err := s.GetMetadata(context.Background(), hashx.Empty)
	if err != nil {
		t.Fatalf("GetMetadata error: %v", err)
	}
	want := &models.BlobMetadata{Mime: EmptyBlobMime, Size: 0, CreatedAt: EmptyBlobCreatedAt}
	if *meta != *want {
		t.Fatalf("unexpected metadata: %+v", meta)
	}

	exists, err := s.Exists(context.Background(), hashx.Empty)
	if err != nil || !exists {
		t.Fatalf("empty blob must always exist, got %v %v", exists, err)
	}

	data, err := s.Get(context.Background(), hashx.Empty)
	if err != nil || len(data) != 0 {
		t.Fatalf("empty blob bytes: %v %v", data, err)
	}
}

func TestGet_NotFound(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	s := newBlobService(db, newFakeRepoManager(), newFakeObjectStore())

	_, err := s.Get(context.Background(), hashx.Sum([]byte("missing")))
	if !errors.Is(err, common.ErrBlobNotFound) {
		t.Fatalf("want ErrBlobNotFound, got %v", err)
	}
	_, err = s.GetMetadata(context.Background(), hashx.Sum([]byte("missing")))
	if !errors.Is(err, common.ErrBlobNotFound) {
		t.Fatalf("want ErrBlobNotFound, got %v", err)
	}
}

func TestGetMaybe(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	store := newFakeObjectStore()
	s := newBlobService(db, newFakeRepoManager(), store)
	ctx := context.Background()

	data := []byte("inline me")
	out, err := s.DirectStore(ctx, data)
	if err != nil {
		t.Fatalf("DirectStore error: %v", err)
	}

	got, err := s.GetMaybe(ctx, false, out.Digest)
	if err != nil || got != nil {
		t.Fatalf("GetMaybe(false) = %v, %v", got, err)
	}
	got, err = s.GetMaybe(ctx, true, out.Digest)
	if err != nil || !bytes.Equal(got, data) {
		t.Fatalf("GetMaybe(true) = %v, %v", got, err)
	}
}

func TestBlacklist_AddRemove(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	s := newBlobService(db, newFakeRepoManager(), newFakeObjectStore())
	ctx := context.Background()
	digest := hashx.Sum([]byte("bad"))

	if err := s.AddBlacklist(ctx, hashx.Empty, 1); !errors.Is(err, common.ErrBadRequest) {
		t.Fatalf("blacklisting the empty digest should be rejected, got %v", err)
	}

	if err := s.AddBlacklist(ctx, digest, 1); err != nil {
		t.Fatalf("AddBlacklist error: %v", err)
	}
	// Re-adding is a no-op.
	if err := s.AddBlacklist(ctx, digest, 2); err != nil {
		t.Fatalf("repeat AddBlacklist error: %v", err)
	}
	on, err := s.OnBlacklist(ctx, digest)
	if err != nil || !on {
		t.Fatalf("OnBlacklist = %v, %v", on, err)
	}

	if err := s.RemoveBlacklist(ctx, digest); err != nil {
		t.Fatalf("RemoveBlacklist error: %v", err)
	}
	on, err = s.OnBlacklist(ctx, digest)
	if err != nil || on {
		t.Fatalf("OnBlacklist after remove = %v, %v", on, err)
	}
	if err := s.RemoveBlacklist(ctx, digest); err != nil {
		t.Fatalf("removing an absent entry should succeed, got %v", err)
	}
}

func TestHardDelete_RejectsEmptyDigest(t *testing.T) {
	db, _ := newSQLMockDB(t)
	defer db.Close()

	s := newBlobService(db, newFakeRepoManager(), newFakeObjectStore())

	_, err := s.HardDeletePreview(context.Background(), hashx.Empty)
	if !errors.Is(err, common.ErrBadRequest) {
		t.Fatalf("want ErrBadRequest, got %v", err)
	}
	_, err = s.HardDeleteCommit(context.Background(), hashx.Empty, 1)
	if !errors.Is(err, common.ErrBadRequest) {
		t.Fatalf("want ErrBadRequest, got %v", err)
	}
}

// seedHardDeleteFixture builds two files referencing the target digest
// (one as its latest revision, one only in its history) plus avatar users.
func seedHardDeleteFixture(t *testing.T, m *fakeRepoManager, store *fakeObjectStore, digest hashx.Hash, data []byte) {
	t.Helper()
	ctx := context.Background()

	store.objects[digest.Hex()] = fakeObject{data: data, mime: "application/pdf"}

	other := hashx.Sum([]byte("replacement content"))

	// File 1: latest revision still exposes the digest.
	id1, err := m.files.Create(ctx, &models.File{SiteID: 1, PageID: 100, Name: "exposed.pdf"})
	if err != nil {
		t.Fatal(err)
	}
	mustCreateRevision(t, m, &models.FileRevision{
		RevisionType: models.RevisionFirst, RevisionNumber: 1, FileID: id1,
		PageID: 100, SiteID: 1, UserID: 7, Name: "exposed.pdf", Digest: digest, Mime: "application/pdf", Size: int64(len(data)),
	})

	// File 2: digest only in history, latest points elsewhere.
	id2, err := m.files.Create(ctx, &models.File{SiteID: 2, PageID: 200, Name: "replaced.pdf"})
	if err != nil {
		t.Fatal(err)
	}
	mustCreateRevision(t, m, &models.FileRevision{
		RevisionType: models.RevisionFirst, RevisionNumber: 1, FileID: id2,
		PageID: 200, SiteID: 2, UserID: 7, Name: "replaced.pdf", Digest: digest, Mime: "application/pdf", Size: int64(len(data)),
	})
	mustCreateRevision(t, m, &models.FileRevision{
		RevisionType: models.RevisionRegular, RevisionNumber: 2, FileID: id2,
		PageID: 200, SiteID: 2, UserID: 7, Name: "replaced.pdf", Digest: other, Mime: "text/plain", Size: 11,
	})

	m.users.avatars[31] = digest.Slice()
	m.users.avatars[32] = digest.Slice()
	m.users.avatars[33] = other.Slice()
}

func mustCreateRevision(t *testing.T, m *fakeRepoManager, rev *models.FileRevision) {
	t.Helper()
	if _, err := m.revisions.Create(context.Background(), rev); err != nil {
		t.Fatal(err)
	}
}

func TestHardDelete_PreviewMatchesCommit(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()

	m := newFakeRepoManager()
	store := newFakeObjectStore()
	s := newBlobService(db, m, store)
	ctx := context.Background()

	data := []byte("to be destroyed")
	digest := hashx.Sum(data)
	seedHardDeleteFixture(t, m, store, digest, data)

	expectTx(mock, 2)

	preview, err := s.HardDeletePreview(ctx, digest)
	if err != nil {
		t.Fatalf("HardDeletePreview error: %v", err)
	}

	// Preview must not mutate anything.
	if len(m.blacklist.entries) != 0 {
		t.Fatal("preview must not blacklist")
	}
	if _, ok := store.objects[digest.Hex()]; !ok {
		t.Fatal("preview must not delete the object")
	}
	if len(m.users.avatars) != 3 {
		t.Fatal("preview must not clear avatars")
	}

	commit, err := s.HardDeleteCommit(ctx, digest, 99)
	if err != nil {
		t.Fatalf("HardDeleteCommit error: %v", err)
	}

	if preview.RevisionCount != commit.RevisionCount ||
		preview.FileCount != commit.FileCount ||
		preview.TombstonedFiles != commit.TombstonedFiles ||
		preview.PageCount != commit.PageCount ||
		preview.SiteCount != commit.SiteCount ||
		preview.UserCount != commit.UserCount {
		t.Fatalf("preview and commit reports differ:\n%+v\n%+v", preview, commit)
	}

	if commit.RevisionCount != 2 || commit.FileCount != 2 || commit.TombstonedFiles != 1 {
		t.Fatalf("unexpected counts: %+v", commit)
	}
	if commit.PageCount != 2 || commit.SiteCount != 2 || commit.UserCount != 2 {
		t.Fatalf("unexpected counts: %+v", commit)
	}
	if len(commit.SampleUserIDs) != 2 || commit.SampleUserIDs[0] != 31 || commit.SampleUserIDs[1] != 32 {
		t.Fatalf("unexpected user sample: %v", commit.SampleUserIDs)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("sql expectations: %v", err)
	}
}

func TestHardDelete_CommitDestroysContent(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()

	m := newFakeRepoManager()
	store := newFakeObjectStore()
	s := newBlobService(db, m, store)
	ctx := context.Background()

	data := []byte("to be destroyed")
	digest := hashx.Sum(data)
	seedHardDeleteFixture(t, m, store, digest, data)

	expectTx(mock, 1)
	if _, err := s.HardDeleteCommit(ctx, digest, 99); err != nil {
		t.Fatalf("HardDeleteCommit error: %v", err)
	}

	// Object gone and digest banned.
	if _, ok := store.objects[digest.Hex()]; ok {
		t.Fatal("object should be deleted from permanent storage")
	}
	if on, _ := s.OnBlacklist(ctx, digest); !on {
		t.Fatal("digest should be blacklisted")
	}

	// File whose latest exposed the digest is tombstoned with erased content.
	file1, err := m.files.GetByID(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if !file1.Deleted() {
		t.Fatal("exposing file should be tombstoned")
	}
	latest1, err := m.revisions.GetLatest(ctx, 1, false)
	if err != nil {
		t.Fatal(err)
	}
	if latest1.RevisionType != models.RevisionTombstone || !latest1.Digest.IsEmpty() {
		t.Fatalf("latest revision of file 1: %+v", latest1)
	}
	if latest1.UserID != testConfig().SystemUserID {
		t.Fatalf("tombstone should be attributed to the system user, got %d", latest1.UserID)
	}

	// File whose latest points elsewhere stays live.
	file2, err := m.files.GetByID(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if file2.Deleted() {
		t.Fatal("file 2 should remain live")
	}

	// Every revision that referenced the digest is redacted.
	for _, rev := range m.revisions.rows {
		if rev.Digest == digest {
			t.Fatalf("revision %d still references the digest", rev.RevisionID)
		}
	}
	redacted, err := m.revisions.GetByNumber(ctx, 2, 1)
	if err != nil {
		t.Fatal(err)
	}
	if !redacted.Digest.IsEmpty() {
		t.Fatal("historical revision digest should be erased")
	}
	found := false
	for _, h := range redacted.Hidden {
		if h == models.FieldBlob {
			found = true
		}
	}
	if !found {
		t.Fatalf("redacted revision should hide the blob field: %v", redacted.Hidden)
	}

	// Avatars cleared.
	if _, ok := m.users.avatars[31]; ok {
		t.Fatal("avatar 31 should be cleared")
	}
	if _, ok := m.users.avatars[33]; !ok {
		t.Fatal("unrelated avatar should survive")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("sql expectations: %v", err)
	}
}

func TestHardDelete_SampleCapped(t *testing.T) {
	db, mock := newSQLMockDB(t)
	defer db.Close()

	m := newFakeRepoManager()
	store := newFakeObjectStore()
	s := newBlobService(db, m, store)
	ctx := context.Background()

	data := []byte("widely shared")
	digest := hashx.Sum(data)
	store.objects[digest.Hex()] = fakeObject{data: data, mime: "text/plain"}

	for i := 0; i < HardDeleteSampleLimit+5; i++ {
		fileID, err := m.files.Create(ctx, &models.File{SiteID: 1, PageID: int64(100 + i), Name: "shared.txt"})
		if err != nil {
			t.Fatal(err)
		}
		mustCreateRevision(t, m, &models.FileRevision{
			RevisionType: models.RevisionFirst, RevisionNumber: 1, FileID: fileID,
			PageID: int64(100 + i), SiteID: 1, UserID: 7, Name: "shared.txt", Digest: digest, Mime: "text/plain", Size: int64(len(data)),
		})
	}

	expectTx(mock, 1)
	out, err := s.HardDeletePreview(ctx, digest)
	if err != nil {
		t.Fatalf("HardDeletePreview error: %v", err)
	}
	if out.FileCount != int64(HardDeleteSampleLimit+5) {
		t.Fatalf("unexpected file count: %d", out.FileCount)
	}
	if len(out.SampleFileIDs) != HardDeleteSampleLimit {
		t.Fatalf("sample should be capped at %d, got %d", HardDeleteSampleLimit, len(out.SampleFileIDs))
	}
	for i := 1; i < len(out.SampleFileIDs); i++ {
		if out.SampleFileIDs[i-1] >= out.SampleFileIDs[i] {
			t.Fatalf("sample not ascending: %v", out.SampleFileIDs)
		}
	}
}
