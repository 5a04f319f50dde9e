package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, data string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
}

func TestLoadConfig_Defaults(t *testing.T) {
	// Empty search path: defaults only.
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())

	cfg, err := loadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.DB.Dialect)
	assert.Equal(t, 30*time.Second, cfg.DB.ConnectionTimeout)
	assert.Equal(t, 10, cfg.DB.MaxConnections)
	assert.Equal(t, 22, cfg.SFTP.Port)
	assert.Equal(t, 1000, cfg.ETL.BatchSize)
	assert.Equal(t, 4, cfg.ETL.MaxWorkers)
	assert.True(t, cfg.ETL.SkipProcessed)
	assert.Equal(t, []string{"SAMPLE", "TEST", "CHHSCA"}, cfg.ETL.IgnoredFilenamePrefixes)
	assert.Equal(t, []string{"*.txt", "*.csv", "*.tsv"}, cfg.ETL.FilePatterns)
	assert.False(t, cfg.SFTP.Enabled)
	assert.False(t, cfg.Security.HashingEnabled())
}

func TestLoadConfig_ExplicitFileMissing(t *testing.T) {
	_, err := loadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoadConfig_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wharf.yaml")
	writeFile(t, path, `
db:
  dialect: mssql
  server: sql01.internal
  database: coordination
  user: loader
  password: hunter2
  connection_timeout: 45s
  max_connections: 25

sftp:
  enabled: true
  host: files.example.org
  username: extracts
  key_path: /etc/wharf/id_ed25519
  remote_directory: /outbound
  poll_interval: 5m
  delete_after_download: true

etl:
  batch_size: 500
  max_workers: 8
  skip_processed: false
  auto_ingest: true
  table_mappings:
    "referrals_extra_*.txt": referrals

security:
  phi_salt: "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"
  fields_to_hash:
    people: [first_name, last_name]

directories:
  input: /srv/wharf/landing
  database: /srv/wharf/state
`)

	cfg, err := loadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "mssql", cfg.DB.Dialect)
	assert.Equal(t, "sql01.internal", cfg.DB.Server)
	assert.Equal(t, "coordination", cfg.DB.Database)
	assert.Equal(t, "loader", cfg.DB.User)
	assert.Equal(t, "hunter2", cfg.DB.Password)
	assert.Equal(t, 45*time.Second, cfg.DB.ConnectionTimeout)
	assert.Equal(t, 25, cfg.DB.MaxConnections)

	assert.True(t, cfg.SFTP.Enabled)
	assert.Equal(t, "files.example.org", cfg.SFTP.Host)
	assert.Equal(t, "extracts", cfg.SFTP.Username)
	assert.Equal(t, "/etc/wharf/id_ed25519", cfg.SFTP.KeyPath)
	assert.Equal(t, "/outbound", cfg.SFTP.RemoteDirectory)
	assert.Equal(t, 5*time.Minute, cfg.SFTP.PollInterval)
	assert.True(t, cfg.SFTP.DeleteAfterDownload)
	assert.Equal(t, 22, cfg.SFTP.Port) // default survives partial section

	assert.Equal(t, 500, cfg.ETL.BatchSize)
	assert.Equal(t, 8, cfg.ETL.MaxWorkers)
	assert.False(t, cfg.ETL.SkipProcessed)
	assert.True(t, cfg.ETL.AutoIngest)
	assert.Equal(t, "referrals", cfg.ETL.TableMappings["referrals_extra_*.txt"])

	assert.True(t, cfg.Security.HashingEnabled())
	assert.ElementsMatch(t, []string{"first_name", "last_name"}, cfg.Security.FieldsToHash["people"])

	assert.Equal(t, "/srv/wharf/landing", cfg.Directories.Input)
	assert.Equal(t, "/srv/wharf/state", cfg.Directories.Database)
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wharf.yaml")
	writeFile(t, path, `
db:
  dialect: sqlite
  path: /tmp/warehouse.db
`)

	t.Setenv("WHARF_DB_DIALECT", "postgres")
	t.Setenv("WHARF_DB_HOST", "pg.internal")
	t.Setenv("WHARF_DB_PASSWORD", "from-env")
	t.Setenv("WHARF_ETL_MAX_WORKERS", "16")

	cfg, err := loadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.DB.Dialect)
	assert.Equal(t, "pg.internal", cfg.DB.Host)
	assert.Equal(t, "from-env", cfg.DB.Password)
	assert.Equal(t, 16, cfg.ETL.MaxWorkers)
}

func TestLoadConfig_TablesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wharf.yaml")
	writeFile(t, path, `
etl:
  table_mappings:
    "clients_*.txt": people
`)
	// Case-exact globs live in tables.yaml; it wins on conflict.
	writeFile(t, filepath.Join(dir, "tables.yaml"), `
"CLIENTS_*.TXT": people
"clients_*.txt": persons_override
"ORG_Master_*.csv": organizations
`)

	cfg, err := loadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "people", cfg.ETL.TableMappings["CLIENTS_*.TXT"])
	assert.Equal(t, "persons_override", cfg.ETL.TableMappings["clients_*.txt"])
	assert.Equal(t, "organizations", cfg.ETL.TableMappings["ORG_Master_*.csv"])
}

func TestLoadConfig_BadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wharf.yaml")
	writeFile(t, path, "db: [unclosed")

	_, err := loadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config")
}

func TestLoadConfig_FlagBinding(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())

	flags := rootCmd.PersistentFlags()
	require.NoError(t, flags.Set("input", "/data/landing"))
	require.NoError(t, flags.Set("db-path", "/data/warehouse.db"))
	t.Cleanup(func() {
		for _, name := range []string{"input", "db-path"} {
			f := flags.Lookup(name)
			_ = f.Value.Set("")
			f.Changed = false
		}
	})

	cfg, err := loadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "/data/landing", cfg.Directories.Input)
	assert.Equal(t, "/data/warehouse.db", cfg.DB.Path)
}

func TestLoadTableMappings(t *testing.T) {
	dir := t.TempDir()

	// Missing file is not an error.
	m, err := loadTableMappings(filepath.Join(dir, "tables.yaml"))
	require.NoError(t, err)
	assert.Nil(t, m)

	path := filepath.Join(dir, "tables.yaml")
	writeFile(t, path, `"PEOPLE_*.txt": people`)
	m, err = loadTableMappings(path)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"PEOPLE_*.txt": "people"}, m)

	writeFile(t, path, "- not\n- a\n- map\n")
	_, err = loadTableMappings(path)
	require.Error(t, err)
}
