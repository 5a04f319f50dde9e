// Package config defines the resolved configuration consumed by the
// wharf core. The core never reads files or environment variables;
// the host (cmd/wharf) resolves everything and hands over a Core value.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrConfig is wrapped by every validation failure. Init refuses to
// start on any error carrying it.
var ErrConfig = errors.New("invalid configuration")

// Dialect names accepted by DB.Dialect.
const (
	DialectSQLite   = "sqlite"
	DialectMSSQL    = "mssql"
	DialectPostgres = "postgres"
	DialectMySQL    = "mysql"
)

// Core is the complete resolved configuration for one wharf process.
type Core struct {
	DB          DB          `json:"db"`
	SFTP        SFTP        `json:"sftp"`
	ETL         ETL         `json:"etl"`
	Security    Security    `json:"security"`
	Directories Directories `json:"directories"`
}

// DB holds warehouse connection parameters. Which fields apply depends
// on Dialect: SQLite uses Path; MS SQL uses Server/Port/Database plus
// either Trusted or User+Password; PostgreSQL and MySQL use
// Host/Port/Database/User/Password.
type DB struct {
	Dialect  string `json:"dialect"`
	Path     string `json:"path,omitempty"`   // sqlite
	Server   string `json:"server,omitempty"` // mssql
	Host     string `json:"host,omitempty"`   // postgres, mysql
	Port     int    `json:"port,omitempty"`
	Database string `json:"database,omitempty"`
	User     string `json:"user,omitempty"`
	Password string `json:"password,omitempty"`
	Trusted  bool   `json:"trusted,omitempty"` // mssql integrated auth
	Driver   string `json:"driver,omitempty"`  // mssql ODBC driver name hint

	ConnectionTimeout time.Duration `json:"connection_timeout,omitempty"` // default 30s
	MaxConnections    int           `json:"max_connections,omitempty"`    // default 10
}

// SFTP holds pull-source settings. Disabled unless Enabled is true.
type SFTP struct {
	Enabled             bool          `json:"enabled"`
	Host                string        `json:"host,omitempty"`
	Port                int           `json:"port,omitempty"` // default 22
	Username            string        `json:"username,omitempty"`
	Password            string        `json:"password,omitempty"`
	KeyPath             string        `json:"key_path,omitempty"`
	KeyPassphrase       string        `json:"key_passphrase,omitempty"`
	RemoteDirectory     string        `json:"remote_directory,omitempty"`
	FilePatterns        []string      `json:"file_patterns,omitempty"` // globs applied to remote listing
	DeleteAfterDownload bool          `json:"delete_after_download,omitempty"`
	KnownHostsPath      string        `json:"known_hosts_path,omitempty"` // default <database_dir>/known_hosts
	Timeout             time.Duration `json:"timeout,omitempty"`          // default 30s
	MaxRetries          int           `json:"max_retries,omitempty"`      // default 3
	AutoDownload        bool          `json:"auto_download,omitempty"`    // pull before discovery on every job
	PollInterval        time.Duration `json:"poll_interval,omitempty"`    // 0 disables scheduled pulls
	AllowPuttygen       bool          `json:"allow_puttygen,omitempty"`   // permit external puttygen fallback for .ppk
}

// ETL holds job execution settings.
type ETL struct {
	BatchSize               int               `json:"batch_size,omitempty"`  // default 1000
	MaxWorkers              int               `json:"max_workers,omitempty"` // default 4
	RetryAttempts           int               `json:"retry_attempts,omitempty"`
	SkipProcessed           bool              `json:"skip_processed"`
	ForceReprocess          bool              `json:"force_reprocess,omitempty"`
	LatestOnly              bool              `json:"latest_only,omitempty"`
	IgnoredFilenamePrefixes []string          `json:"ignored_filename_prefixes,omitempty"` // default SAMPLE, TEST, CHHSCA
	FilePatterns            []string          `json:"file_patterns,omitempty"`             // default *.txt, *.csv, *.tsv
	RecognizedExtensions    []string          `json:"recognized_extensions,omitempty"`     // default .txt, .csv, .tsv
	TableMappings           map[string]string `json:"table_mappings,omitempty"`            // filename or glob -> table, wins over stem parsing
	AutoIngest              bool              `json:"auto_ingest,omitempty"`               // watch the landing dir and start automatic jobs
	JobHistoryLimit         int               `json:"job_history_limit,omitempty"`         // default 100
}

// Security holds PHI hashing settings. Hashing is enabled when
// FieldsToHash is non-empty, and then PHISalt must be a 64-char hex
// string.
type Security struct {
	PHISalt      string              `json:"phi_salt,omitempty"`
	FieldsToHash map[string][]string `json:"fields_to_hash,omitempty"` // table -> columns
}

// HashingEnabled reports whether any field is configured for hashing.
func (s Security) HashingEnabled() bool {
	for _, cols := range s.FieldsToHash {
		if len(cols) > 0 {
			return true
		}
	}
	return false
}

// Directories holds the filesystem layout.
type Directories struct {
	Input    string `json:"input"`    // landing directory watched for source files
	Database string `json:"database"` // holds internal.db, known_hosts, lock and log files
	Backup   string `json:"backup,omitempty"`
}

// Default returns a Core with every knob at its documented default.
// Hosts start from this and overlay resolved values.
func Default() Core {
	return Core{
		DB: DB{
			Dialect:           DialectSQLite,
			ConnectionTimeout: 30 * time.Second,
			MaxConnections:    10,
		},
		SFTP: SFTP{
			Port:       22,
			Timeout:    30 * time.Second,
			MaxRetries: 3,
		},
		ETL: ETL{
			BatchSize:               1000,
			MaxWorkers:              4,
			SkipProcessed:           true,
			IgnoredFilenamePrefixes: []string{"SAMPLE", "TEST", "CHHSCA"},
			FilePatterns:            []string{"*.txt", "*.csv", "*.tsv"},
			RecognizedExtensions:    []string{".txt", ".csv", ".tsv"},
			JobHistoryLimit:         100,
		},
	}
}

// ApplyDefaults fills zero-valued fields that have documented defaults.
func (c *Core) ApplyDefaults() {
	d := Default()
	if c.DB.Dialect == "" {
		c.DB.Dialect = d.DB.Dialect
	}
	if c.DB.ConnectionTimeout == 0 {
		c.DB.ConnectionTimeout = d.DB.ConnectionTimeout
	}
	if c.DB.MaxConnections == 0 {
		c.DB.MaxConnections = d.DB.MaxConnections
	}
	if c.SFTP.Port == 0 {
		c.SFTP.Port = d.SFTP.Port
	}
	if c.SFTP.Timeout == 0 {
		c.SFTP.Timeout = d.SFTP.Timeout
	}
	if c.SFTP.MaxRetries == 0 {
		c.SFTP.MaxRetries = d.SFTP.MaxRetries
	}
	if c.ETL.BatchSize == 0 {
		c.ETL.BatchSize = d.ETL.BatchSize
	}
	if c.ETL.MaxWorkers == 0 {
		c.ETL.MaxWorkers = d.ETL.MaxWorkers
	}
	if c.ETL.IgnoredFilenamePrefixes == nil {
		c.ETL.IgnoredFilenamePrefixes = d.ETL.IgnoredFilenamePrefixes
	}
	if c.ETL.FilePatterns == nil {
		c.ETL.FilePatterns = d.ETL.FilePatterns
	}
	if c.ETL.RecognizedExtensions == nil {
		c.ETL.RecognizedExtensions = d.ETL.RecognizedExtensions
	}
	if c.ETL.JobHistoryLimit == 0 {
		c.ETL.JobHistoryLimit = d.ETL.JobHistoryLimit
	}
}

// Validate checks the configuration for startup. Every failure wraps
// ErrConfig.
func (c *Core) Validate() error {
	if c.Directories.Input == "" {
		return fmt.Errorf("%w: directories.input is required", ErrConfig)
	}
	if c.Directories.Database == "" {
		return fmt.Errorf("%w: directories.database is required", ErrConfig)
	}
	if c.ETL.MaxWorkers < 1 {
		return fmt.Errorf("%w: etl.max_workers must be >= 1", ErrConfig)
	}
	if c.ETL.BatchSize < 1 {
		return fmt.Errorf("%w: etl.batch_size must be >= 1", ErrConfig)
	}

	switch c.DB.Dialect {
	case DialectSQLite:
		if c.DB.Path == "" {
			return fmt.Errorf("%w: db.path is required for sqlite", ErrConfig)
		}
	case DialectMSSQL:
		if c.DB.Server == "" || c.DB.Database == "" {
			return fmt.Errorf("%w: db.server and db.database are required for mssql", ErrConfig)
		}
		if !c.DB.Trusted && (c.DB.User == "" || c.DB.Password == "") {
			return fmt.Errorf("%w: mssql requires trusted connection or user+password", ErrConfig)
		}
	case DialectPostgres, DialectMySQL:
		if c.DB.Host == "" || c.DB.Database == "" || c.DB.User == "" {
			return fmt.Errorf("%w: db.host, db.database and db.user are required for %s", ErrConfig, c.DB.Dialect)
		}
	default:
		return fmt.Errorf("%w: unknown db.dialect %q", ErrConfig, c.DB.Dialect)
	}

	if c.Security.HashingEnabled() {
		if err := ValidateSalt(c.Security.PHISalt); err != nil {
			return err
		}
	}

	if c.SFTP.Enabled {
		if c.SFTP.Host == "" || c.SFTP.Username == "" {
			return fmt.Errorf("%w: sftp.host and sftp.username are required when sftp is enabled", ErrConfig)
		}
		if c.SFTP.Password == "" && c.SFTP.KeyPath == "" {
			return fmt.Errorf("%w: sftp requires a password or a key_path", ErrConfig)
		}
	}

	return nil
}

// ValidateSalt enforces the 64-char lowercase/uppercase hex salt format.
func ValidateSalt(salt string) error {
	if len(salt) != 64 {
		return fmt.Errorf("%w: security.phi_salt must be 64 hex chars, got %d", ErrConfig, len(salt))
	}
	for _, r := range strings.ToLower(salt) {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return fmt.Errorf("%w: security.phi_salt contains non-hex character %q", ErrConfig, r)
		}
	}
	return nil
}
