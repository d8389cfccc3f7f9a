// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keygate Contributors

package store

import (
	"errors"
	"strings"
	"testing"

	"github.com/golang-migrate/migrate/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keygate/keygate/pkg/errutil"
)

// fakeMigrate implements migrateIface with scripted results.
type fakeMigrate struct {
	upErr      error
	downErr    error
	version    uint
	dirty      bool
	versionErr error
	srcErr     error
	dbErr      error

	upCalls   int
	downCalls int
}

func (f *fakeMigrate) Up() error {
	f.upCalls++
	return f.upErr
}

func (f *fakeMigrate) Down() error {
	f.downCalls++
	return f.downErr
}

func (f *fakeMigrate) Version() (uint, bool, error) {
	return f.version, f.dirty, f.versionErr
}

func (f *fakeMigrate) Close() (error, error) {
	return f.srcErr, f.dbErr
}

func TestMigrator_Up(t *testing.T) {
	tests := []struct {
		name     string
		upErr    error
		wantErr  bool
		wantCode string
	}{
		{name: "applies migrations"},
		{name: "no change is not an error", upErr: migrate.ErrNoChange},
		{name: "failure surfaces", upErr: errors.New("dirty database"), wantErr: true, wantCode: "MIGRATION_UP_FAILED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeMigrate{upErr: tt.upErr}
			m := &Migrator{m: fake}

			err := m.Up()
			if tt.wantErr {
				errutil.AssertErrorCode(t, err, tt.wantCode)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, 1, fake.upCalls)
		})
	}
}

func TestMigrator_Down(t *testing.T) {
	t.Run("rolls back", func(t *testing.T) {
		fake := &fakeMigrate{}
		m := &Migrator{m: fake}
		require.NoError(t, m.Down())
		assert.Equal(t, 1, fake.downCalls)
	})

	t.Run("no change is not an error", func(t *testing.T) {
		m := &Migrator{m: &fakeMigrate{downErr: migrate.ErrNoChange}}
		require.NoError(t, m.Down())
	})

	t.Run("failure surfaces", func(t *testing.T) {
		m := &Migrator{m: &fakeMigrate{downErr: errors.New("dirty database")}}
		errutil.AssertErrorCode(t, m.Down(), "MIGRATION_DOWN_FAILED")
	})
}

func TestMigrator_Version(t *testing.T) {
	t.Run("reports version and dirty state", func(t *testing.T) {
		m := &Migrator{m: &fakeMigrate{version: 3, dirty: true}}
		version, dirty, err := m.Version()
		require.NoError(t, err)
		assert.Equal(t, uint(3), version)
		assert.True(t, dirty)
	})

	t.Run("no applied migrations reads as zero", func(t *testing.T) {
		m := &Migrator{m: &fakeMigrate{versionErr: migrate.ErrNilVersion}}
		version, dirty, err := m.Version()
		require.NoError(t, err)
		assert.Zero(t, version)
		assert.False(t, dirty)
	})

	t.Run("failure surfaces", func(t *testing.T) {
		m := &Migrator{m: &fakeMigrate{versionErr: errors.New("connection reset")}}
		_, _, err := m.Version()
		errutil.AssertErrorCode(t, err, "MIGRATION_VERSION_FAILED")
	})
}

func TestMigrator_Close(t *testing.T) {
	tests := []struct {
		name    string
		srcErr  error
		dbErr   error
		wantErr bool
	}{
		{name: "clean close"},
		{name: "source error", srcErr: errors.New("fs closed"), wantErr: true},
		{name: "database error", dbErr: errors.New("connection reset"), wantErr: true},
		{name: "both fail", srcErr: errors.New("fs closed"), dbErr: errors.New("connection reset"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &Migrator{m: &fakeMigrate{srcErr: tt.srcErr, dbErr: tt.dbErr}}
			err := m.Close()
			if tt.wantErr {
				errutil.AssertErrorCode(t, err, "MIGRATION_CLOSE_FAILED")
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestNewMigrator_URLScheme(t *testing.T) {
	t.Run("unknown scheme rejected", func(t *testing.T) {
		_, err := NewMigrator("mysql://localhost/keygate")
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "MIGRATION_INIT_FAILED")
	})
}

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := migrationsFS.ReadDir("migrations")
	require.NoError(t, err)
	require.NotEmpty(t, entries, "expected embedded migration files")

	// Every up migration must carry a matching down migration.
	ups := 0
	downs := 0
	for _, entry := range entries {
		switch {
		case strings.HasSuffix(entry.Name(), ".up.sql"):
			ups++
		case strings.HasSuffix(entry.Name(), ".down.sql"):
			downs++
		}
	}
	assert.Equal(t, ups, downs, "up and down migrations must pair")
	assert.Positive(t, ups)
}
