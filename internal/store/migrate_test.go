// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keygate Contributors

package store

import (
	"errors"
	"regexp"
	"testing"

	"github.com/golang-migrate/migrate/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keygate/keygate/pkg/errutil"
)

type fakeMigrate struct {
	upErr, downErr, versionErr, forceErr error
	version                              uint
	dirty                                bool
	closeSourceErr, closeDBErr           error
}

func (f *fakeMigrate) Up() error                    { return f.upErr }
func (f *fakeMigrate) Down() error                  { return f.downErr }
func (f *fakeMigrate) Version() (uint, bool, error) { return f.version, f.dirty, f.versionErr }
func (f *fakeMigrate) Force(int) error              { return f.forceErr }
func (f *fakeMigrate) Close() (error, error)        { return f.closeSourceErr, f.closeDBErr }

func TestMigrateURL(t *testing.T) {
	assert.Equal(t, "pgx5://u:p@db:5432/keygate", migrateURL("postgres://u:p@db:5432/keygate"))
	assert.Equal(t, "pgx5://db/keygate", migrateURL("postgresql://db/keygate"))
	assert.Equal(t, "pgx5://db/keygate", migrateURL("pgx5://db/keygate"))
}

func TestNewMigrator_BadURL(t *testing.T) {
	_, err := NewMigrator("badscheme://localhost:5432/keygate")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "MIGRATION_INIT_FAILED")
}

func TestMigrator_UpDown(t *testing.T) {
	tests := []struct {
		name string
		fake *fakeMigrate
		run  func(*Migrator) error
		code string
	}{
		{name: "up applies", fake: &fakeMigrate{}, run: (*Migrator).Up},
		{name: "up with nothing to do", fake: &fakeMigrate{upErr: migrate.ErrNoChange}, run: (*Migrator).Up},
		{name: "up fails", fake: &fakeMigrate{upErr: errors.New("database locked")}, run: (*Migrator).Up, code: "MIGRATION_UP_FAILED"},
		{name: "down with nothing to do", fake: &fakeMigrate{downErr: migrate.ErrNoChange}, run: (*Migrator).Down},
		{name: "down fails", fake: &fakeMigrate{downErr: errors.New("in use")}, run: (*Migrator).Down, code: "MIGRATION_DOWN_FAILED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run(&Migrator{m: tt.fake})
			if tt.code == "" {
				require.NoError(t, err)
				return
			}
			errutil.AssertErrorCode(t, err, tt.code)
		})
	}
}

func TestMigrator_Version(t *testing.T) {
	v, dirty, err := (&Migrator{m: &fakeMigrate{versionErr: migrate.ErrNilVersion}}).Version()
	require.NoError(t, err)
	assert.Zero(t, v)
	assert.False(t, dirty)

	v, dirty, err = (&Migrator{m: &fakeMigrate{version: 2, dirty: true}}).Version()
	require.NoError(t, err)
	assert.Equal(t, uint(2), v)
	assert.True(t, dirty)

	_, _, err = (&Migrator{m: &fakeMigrate{versionErr: errors.New("connection lost")}}).Version()
	errutil.AssertErrorCode(t, err, "MIGRATION_VERSION_FAILED")
}

func TestMigrator_Force(t *testing.T) {
	errutil.AssertErrorCode(t, (&Migrator{m: &fakeMigrate{}}).Force(-1), "INVALID_VERSION")
	errutil.AssertErrorCode(t, (&Migrator{m: &fakeMigrate{forceErr: errors.New("x")}}).Force(1), "MIGRATION_FORCE_FAILED")
	require.NoError(t, (&Migrator{m: &fakeMigrate{}}).Force(1))
}

func TestMigrator_Close(t *testing.T) {
	require.NoError(t, (&Migrator{m: &fakeMigrate{}}).Close())

	err := (&Migrator{m: &fakeMigrate{closeDBErr: errors.New("db")}}).Close()
	errutil.AssertErrorContext(t, err, "component", "database")

	err = (&Migrator{m: &fakeMigrate{closeSourceErr: errors.New("src"), closeDBErr: errors.New("db")}}).Close()
	errutil.AssertErrorContext(t, err, "component", "both")
	assert.Contains(t, err.Error(), "src")
	assert.Contains(t, err.Error(), "db")
}

func TestMigrator_PendingAndApplied(t *testing.T) {
	fresh := &Migrator{m: &fakeMigrate{versionErr: migrate.ErrNilVersion}}
	pending, err := fresh.PendingMigrations()
	require.NoError(t, err)
	assert.Equal(t, []uint{1, 2}, pending)
	applied, err := fresh.AppliedMigrations()
	require.NoError(t, err)
	assert.Empty(t, applied)

	half := &Migrator{m: &fakeMigrate{version: 1}}
	pending, err = half.PendingMigrations()
	require.NoError(t, err)
	assert.Equal(t, []uint{2}, pending)
	applied, err = half.AppliedMigrations()
	require.NoError(t, err)
	assert.Equal(t, []uint{1}, applied)

	_, err = (&Migrator{m: &fakeMigrate{versionErr: errors.New("lost")}}).PendingMigrations()
	errutil.AssertErrorContext(t, err, "operation", "get pending migrations")
}

func TestMigrationName(t *testing.T) {
	name, err := MigrationName(2)
	require.NoError(t, err)
	assert.Equal(t, "000002_session_tokens", name)

	name, err = MigrationName(99)
	require.NoError(t, err)
	assert.Empty(t, name)
}

func TestMigrationsFS_Layout(t *testing.T) {
	entries, err := migrationsFS.ReadDir("migrations")
	require.NoError(t, err)
	assert.Len(t, entries, 4)

	pattern := regexp.MustCompile(`^\d{6}_\w+\.(up|down)\.sql$`)
	for _, entry := range entries {
		assert.Regexp(t, pattern, entry.Name())
	}
}
