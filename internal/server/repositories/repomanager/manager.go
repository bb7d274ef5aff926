// Package repomanager wires repositories to database handles. Services ask
// for repositories per DBTX so the same code path works inside and outside
// transactions.
package repomanager

import (
	"context"
	"database/sql"

	"github.com/pagekeep/pagekeep/internal/dbx"
	"github.com/pagekeep/pagekeep/internal/server/repositories/blacklist"
	"github.com/pagekeep/pagekeep/internal/server/repositories/filerevisions"
	"github.com/pagekeep/pagekeep/internal/server/repositories/files"
	"github.com/pagekeep/pagekeep/internal/server/repositories/uploads"
	"github.com/pagekeep/pagekeep/internal/server/repositories/users"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Uploads(db dbx.DBTX) uploads.Repository
	Blacklist(db dbx.DBTX) blacklist.Repository
	Files(db dbx.DBTX) files.Repository
	FileRevisions(db dbx.DBTX) filerevisions.Repository
	Users(db dbx.DBTX) users.Repository
}
