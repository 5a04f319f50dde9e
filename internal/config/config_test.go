package config

import (
	"errors"
	"strings"
	"testing"
	"time"
)

// validCore returns a minimal configuration that passes Validate.
func validCore() Core {
	c := Default()
	c.DB.Path = "warehouse.db"
	c.Directories.Input = "/data/landing"
	c.Directories.Database = "/data/db"
	return c
}

func TestValidateMinimalSQLite(t *testing.T) {
	c := validCore()
	if err := c.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateRequiredDirectories(t *testing.T) {
	c := validCore()
	c.Directories.Input = ""
	if err := c.Validate(); !errors.Is(err, ErrConfig) {
		t.Errorf("missing input dir: got %v, want ErrConfig", err)
	}

	c = validCore()
	c.Directories.Database = ""
	if err := c.Validate(); !errors.Is(err, ErrConfig) {
		t.Errorf("missing database dir: got %v, want ErrConfig", err)
	}
}

func TestValidateDialects(t *testing.T) {
	t.Run("unknown dialect", func(t *testing.T) {
		c := validCore()
		c.DB.Dialect = "oracle"
		if err := c.Validate(); !errors.Is(err, ErrConfig) {
			t.Errorf("got %v, want ErrConfig", err)
		}
	})

	t.Run("sqlite requires path", func(t *testing.T) {
		c := validCore()
		c.DB.Path = ""
		if err := c.Validate(); !errors.Is(err, ErrConfig) {
			t.Errorf("got %v, want ErrConfig", err)
		}
	})

	t.Run("mssql requires credentials or trusted", func(t *testing.T) {
		c := validCore()
		c.DB.Dialect = DialectMSSQL
		c.DB.Server = "sql.example.com"
		c.DB.Database = "warehouse"
		if err := c.Validate(); !errors.Is(err, ErrConfig) {
			t.Errorf("got %v, want ErrConfig", err)
		}
		c.DB.Trusted = true
		if err := c.Validate(); err != nil {
			t.Errorf("trusted connection should validate: %v", err)
		}
	})

	t.Run("postgres requires host db user", func(t *testing.T) {
		c := validCore()
		c.DB.Dialect = DialectPostgres
		c.DB.Host = "pg.example.com"
		c.DB.Database = "warehouse"
		if err := c.Validate(); !errors.Is(err, ErrConfig) {
			t.Errorf("got %v, want ErrConfig", err)
		}
		c.DB.User = "etl"
		if err := c.Validate(); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})
}

func TestValidateSalt(t *testing.T) {
	good := strings.Repeat("ab12", 16) // 64 hex chars
	if err := ValidateSalt(good); err != nil {
		t.Errorf("valid salt rejected: %v", err)
	}

	tests := []struct {
		name string
		salt string
	}{
		{"empty", ""},
		{"short", "abcd1234"},
		{"long", strings.Repeat("a", 65)},
		{"non-hex", strings.Repeat("g", 64)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ValidateSalt(tt.salt); !errors.Is(err, ErrConfig) {
				t.Errorf("got %v, want ErrConfig", err)
			}
		})
	}
}

func TestValidateHashingRequiresSalt(t *testing.T) {
	c := validCore()
	c.Security.FieldsToHash = map[string][]string{"people": {"person_id"}}
	if err := c.Validate(); !errors.Is(err, ErrConfig) {
		t.Errorf("hashing without salt: got %v, want ErrConfig", err)
	}

	c.Security.PHISalt = strings.Repeat("0f", 32)
	if err := c.Validate(); err != nil {
		t.Errorf("unexpected error with valid salt: %v", err)
	}
}

func TestValidateSFTP(t *testing.T) {
	c := validCore()
	c.SFTP.Enabled = true
	if err := c.Validate(); !errors.Is(err, ErrConfig) {
		t.Errorf("sftp without host: got %v, want ErrConfig", err)
	}

	c.SFTP.Host = "sftp.example.com"
	c.SFTP.Username = "etl"
	if err := c.Validate(); !errors.Is(err, ErrConfig) {
		t.Errorf("sftp without credentials: got %v, want ErrConfig", err)
	}

	c.SFTP.Password = "secret"
	if err := c.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestApplyDefaults(t *testing.T) {
	var c Core
	c.ApplyDefaults()

	if c.DB.Dialect != DialectSQLite {
		t.Errorf("Dialect = %q, want sqlite", c.DB.Dialect)
	}
	if c.DB.ConnectionTimeout != 30*time.Second {
		t.Errorf("ConnectionTimeout = %v, want 30s", c.DB.ConnectionTimeout)
	}
	if c.DB.MaxConnections != 10 {
		t.Errorf("MaxConnections = %d, want 10", c.DB.MaxConnections)
	}
	if c.ETL.MaxWorkers != 4 {
		t.Errorf("MaxWorkers = %d, want 4", c.ETL.MaxWorkers)
	}
	if c.ETL.JobHistoryLimit != 100 {
		t.Errorf("JobHistoryLimit = %d, want 100", c.ETL.JobHistoryLimit)
	}
	if c.SFTP.Port != 22 {
		t.Errorf("SFTP.Port = %d, want 22", c.SFTP.Port)
	}
	if len(c.ETL.IgnoredFilenamePrefixes) != 3 {
		t.Errorf("IgnoredFilenamePrefixes = %v, want 3 defaults", c.ETL.IgnoredFilenamePrefixes)
	}

	// Explicit values survive.
	c2 := Core{ETL: ETL{MaxWorkers: 12}}
	c2.ApplyDefaults()
	if c2.ETL.MaxWorkers != 12 {
		t.Errorf("MaxWorkers = %d, want 12", c2.ETL.MaxWorkers)
	}
}

func TestHashingEnabled(t *testing.T) {
	var s Security
	if s.HashingEnabled() {
		t.Error("empty config must not enable hashing")
	}
	s.FieldsToHash = map[string][]string{"people": {}}
	if s.HashingEnabled() {
		t.Error("empty column set must not enable hashing")
	}
	s.FieldsToHash["people"] = []string{"person_id"}
	if !s.HashingEnabled() {
		t.Error("expected hashing enabled")
	}
}
