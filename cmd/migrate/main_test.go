package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationFilenamePattern(t *testing.T) {
	tests := []struct {
		filename string
		valid    bool
		version  int
		name     string
	}{
		{"0001_init.sql", true, 1, "init"},
		{"0012_add_merchant_index.sql", true, 12, "add_merchant_index"},
		{"001_invalid.sql", false, 0, ""},
		{"0001_test", false, 0, ""},
		{"0001.sql", false, 0, ""},
		{"invalid_0001_test.sql", false, 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			version, name, ok := parseMigrationFilename(tt.filename)
			assert.Equal(t, tt.valid, ok)
			assert.Equal(t, tt.version, version)
			assert.Equal(t, tt.name, name)
		})
	}
}

func TestReadMigrations(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
	}
	write("0002_second.sql", "ALTER TABLE `{{PROJECT_ID}}.{{DATASET_ID}}.t` ADD COLUMN c STRING;")
	write("0001_first.sql", "CREATE TABLE `{{PROJECT_ID}}.{{DATASET_ID}}.t` (id INT64);")
	write("README.md", "not a migration")

	migrations, err := readMigrations(dir, map[string]string{"PROJECT_ID": "p", "DATASET_ID": "d"})
	require.NoError(t, err)
	require.Len(t, migrations, 2)

	assert.Equal(t, 1, migrations[0].Version)
	assert.Equal(t, "CREATE TABLE `p.d.t` (id INT64);", migrations[0].SQL)
	assert.Equal(t, 2, migrations[1].Version)
	assert.Equal(t,
		checksum([]byte("CREATE TABLE `{{PROJECT_ID}}.{{DATASET_ID}}.t` (id INT64);")),
		migrations[0].Checksum, "checksum is taken before placeholders are replaced")
}

func TestReadMigrationsDuplicateVersion(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "0001_a.sql"), []byte("SELECT 1;"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "0001_b.sql"), []byte("SELECT 2;"), 0o600))

	_, err := readMigrations(dir, nil)
	assert.ErrorContains(t, err, "duplicate migration version")
}

func TestRepositoryMigrationsParse(t *testing.T) {
	for _, backend := range []string{"postgres", "bigquery"} {
		migrations, err := readMigrations(filepath.Join("..", "..", "migrations", backend), nil)
		require.NoError(t, err, backend)
		assert.NotEmpty(t, migrations, backend)
	}
}

func TestMigrationChecksumConsistency(t *testing.T) {
	a := checksum([]byte("CREATE TABLE test (id INT64);"))
	assert.Equal(t, a, checksum([]byte("CREATE TABLE test (id INT64);")))
	assert.NotEqual(t, a, checksum([]byte("CREATE TABLE different (id INT64);")))
}

func TestPending(t *testing.T) {
	migrations := []Migration{
		{Version: 1, Name: "init", Checksum: "aaa"},
		{Version: 2, Name: "index", Checksum: "bbb"},
		{Version: 3, Name: "view", Checksum: "ccc"},
	}
	applied := []AppliedMigration{
		{Version: 1, Checksum: "aaa"},
		{Version: 2, Checksum: "old"},
	}

	todo, drifted := pending(migrations, applied)
	require.Len(t, todo, 1)
	assert.Equal(t, 3, todo[0].Version)
	require.Len(t, drifted, 1)
	assert.Equal(t, 2, drifted[0].Version)
}

type fakeTarget struct {
	applied  []AppliedMigration
	executed []int
	failOn   int
}

func (f *fakeTarget) EnsureSchemaMigrationsTable(ctx context.Context) error { return nil }

func (f *fakeTarget) AppliedMigrations(ctx context.Context) ([]AppliedMigration, error) {
	return f.applied, nil
}

func (f *fakeTarget) Execute(ctx context.Context, m Migration) error {
	if m.Version == f.failOn {
		return errors.New("syntax error")
	}
	f.executed = append(f.executed, m.Version)
	return nil
}

func (f *fakeTarget) Record(ctx context.Context, m Migration, appliedBy string) error {
	f.applied = append(f.applied, AppliedMigration{Version: m.Version, Name: m.Name, Checksum: m.Checksum, AppliedBy: appliedBy})
	return nil
}

func (f *fakeTarget) Close() error { return nil }

func TestRunAppliesPendingOnce(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "0001_a.sql"), []byte("SELECT 1;"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "0002_b.sql"), []byte("SELECT 2;"), 0o600))

	target := &fakeTarget{}
	require.NoError(t, run(context.Background(), target, dir, nil))
	assert.Equal(t, []int{1, 2}, target.executed)

	require.NoError(t, run(context.Background(), target, dir, nil))
	assert.Equal(t, []int{1, 2}, target.executed, "second run applies nothing")
}

func TestRunStopsOnFailure(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "0001_a.sql"), []byte("SELECT 1;"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "0002_b.sql"), []byte("BROKEN"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "0003_c.sql"), []byte("SELECT 3;"), 0o600))

	target := &fakeTarget{failOn: 2}
	err := run(context.Background(), target, dir, nil)
	assert.Error(t, err)
	assert.Equal(t, []int{1}, target.executed)
	assert.Len(t, target.applied, 1)
}
