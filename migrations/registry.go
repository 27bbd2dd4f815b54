package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"slices"
	"strings"

	crmsync "github.com/goliatone/go-crm-sync"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"

	sourceLabel = "go-crm-sync"
	postgresDir = "data/sql/migrations"
	sqliteDir   = "data/sql/migrations/sqlite"
)

// FilesystemSpec is the migration tree for one dialect.
type FilesystemSpec struct {
	Dialect  string
	Path     string
	FS       fs.FS
	Versions []string
}

type Registration struct {
	SourceLabel string
	Targets     []string
	Filesystems []FilesystemSpec
}

// RegisterFunc hands one dialect tree to the persistence layer, usually
// persistence.Client.RegisterSQLMigrations behind a dialect check.
type RegisterFunc func(ctx context.Context, dialect string, sourceLabel string, fsys fs.FS) error

type Option func(*Registration)

// WithValidationTargets restricts registration to the given dialects.
func WithValidationTargets(targets ...string) Option {
	return func(r *Registration) {
		next := []string{}
		for _, target := range targets {
			if dialect := DialectForDriver(target); dialect != "" && !slices.Contains(next, dialect) {
				next = append(next, dialect)
			}
		}
		if len(next) > 0 {
			r.Targets = next
		}
	}
}

// DialectForDriver maps a database/sql driver name to its migration dialect.
// Unknown drivers map to "".
func DialectForDriver(driver string) string {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "postgres", "pg", "pgx":
		return DialectPostgres
	case "sqlite", "sqlite3":
		return DialectSQLite
	default:
		return ""
	}
}

// Filesystems returns the postgres and sqlite trees of root, defaulting to
// the embedded schema. Both dialects must ship the same versions so a
// deployment can move between them.
func Filesystems(root ...fs.FS) ([]FilesystemSpec, error) {
	source := crmsync.GetMigrationsFS()
	if len(root) > 0 && root[0] != nil {
		source = root[0]
	}

	trees := make([]FilesystemSpec, 0, 2)
	for _, entry := range []struct{ dialect, dir string }{
		{DialectPostgres, postgresDir},
		{DialectSQLite, sqliteDir},
	} {
		sub, err := fs.Sub(source, entry.dir)
		if err != nil {
			return nil, fmt.Errorf("migrations: resolve %s tree: %w", entry.dialect, err)
		}
		versions, err := Versions(sub)
		if err != nil {
			return nil, fmt.Errorf("migrations: %s tree %q: %w", entry.dialect, entry.dir, err)
		}
		trees = append(trees, FilesystemSpec{Dialect: entry.dialect, Path: entry.dir, FS: sub, Versions: versions})
	}

	if !slices.Equal(trees[0].Versions, trees[1].Versions) {
		return nil, fmt.Errorf("migrations: postgres versions %v differ from sqlite versions %v", trees[0].Versions, trees[1].Versions)
	}
	return trees, nil
}

// Versions lists the migration names in fsys that have both an up and a down
// file, sorted.
func Versions(fsys fs.FS) ([]string, error) {
	ups, err := fs.Glob(fsys, "*.up.sql")
	if err != nil {
		return nil, err
	}
	if len(ups) == 0 {
		return nil, fmt.Errorf("no *.up.sql files")
	}
	versions := make([]string, 0, len(ups))
	for _, up := range ups {
		name := strings.TrimSuffix(up, ".up.sql")
		if _, err := fs.Stat(fsys, name+".down.sql"); err != nil {
			return nil, fmt.Errorf("%s has no down migration", name)
		}
		versions = append(versions, name)
	}
	slices.Sort(versions)
	return versions, nil
}

// Register resolves the embedded trees and calls registerFn for each targeted
// dialect.
func Register(ctx context.Context, registerFn RegisterFunc, opts ...Option) (Registration, error) {
	reg := Registration{
		SourceLabel: sourceLabel,
		Targets:     []string{DialectPostgres, DialectSQLite},
	}
	if registerFn == nil {
		return reg, fmt.Errorf("migrations: register function is required")
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&reg)
		}
	}

	filesystems, err := Filesystems()
	if err != nil {
		return reg, err
	}
	reg.Filesystems = filesystems

	for _, tree := range filesystems {
		if !slices.Contains(reg.Targets, tree.Dialect) {
			continue
		}
		if err := registerFn(ctx, tree.Dialect, reg.SourceLabel, tree.FS); err != nil {
			return reg, fmt.Errorf("migrations: register %s (%s): %w", tree.Dialect, tree.Path, err)
		}
	}
	return reg, nil
}
