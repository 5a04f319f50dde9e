package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/coastline/wharf/internal/config"
)

// tablesFileName maps filenames or globs to warehouse tables. It sits
// next to the resolved config file and is parsed outside viper because
// viper lowercases map keys and filename matching is case-sensitive.
const tablesFileName = "tables.yaml"

// loadConfig resolves the effective configuration: documented defaults,
// then the config file, then WHARF_* environment variables, then any
// bound flags. The result is not validated here; commands that assemble
// the service get validation from it, and the others check only the
// fields they need.
func loadConfig(path string) (config.Core, error) {
	cfg := config.Default()

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v, cfg)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("wharf")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/wharf")
		v.AddConfigPath("/etc/wharf")
	}

	v.SetEnvPrefix("WHARF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindFlags(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return cfg, fmt.Errorf("failed to read config: %w", err)
		}
		// No config file on the search path: defaults, env and flags.
	}

	cfg.DB.Dialect = v.GetString("db.dialect")
	cfg.DB.Path = v.GetString("db.path")
	cfg.DB.Server = v.GetString("db.server")
	cfg.DB.Host = v.GetString("db.host")
	cfg.DB.Port = v.GetInt("db.port")
	cfg.DB.Database = v.GetString("db.database")
	cfg.DB.User = v.GetString("db.user")
	cfg.DB.Password = v.GetString("db.password")
	cfg.DB.Trusted = v.GetBool("db.trusted")
	cfg.DB.Driver = v.GetString("db.driver")
	cfg.DB.ConnectionTimeout = v.GetDuration("db.connection_timeout")
	cfg.DB.MaxConnections = v.GetInt("db.max_connections")

	cfg.SFTP.Enabled = v.GetBool("sftp.enabled")
	cfg.SFTP.Host = v.GetString("sftp.host")
	cfg.SFTP.Port = v.GetInt("sftp.port")
	cfg.SFTP.Username = v.GetString("sftp.username")
	cfg.SFTP.Password = v.GetString("sftp.password")
	cfg.SFTP.KeyPath = v.GetString("sftp.key_path")
	cfg.SFTP.KeyPassphrase = v.GetString("sftp.key_passphrase")
	cfg.SFTP.RemoteDirectory = v.GetString("sftp.remote_directory")
	cfg.SFTP.FilePatterns = v.GetStringSlice("sftp.file_patterns")
	cfg.SFTP.DeleteAfterDownload = v.GetBool("sftp.delete_after_download")
	cfg.SFTP.KnownHostsPath = v.GetString("sftp.known_hosts_path")
	cfg.SFTP.Timeout = v.GetDuration("sftp.timeout")
	cfg.SFTP.MaxRetries = v.GetInt("sftp.max_retries")
	cfg.SFTP.AutoDownload = v.GetBool("sftp.auto_download")
	cfg.SFTP.PollInterval = v.GetDuration("sftp.poll_interval")
	cfg.SFTP.AllowPuttygen = v.GetBool("sftp.allow_puttygen")

	cfg.ETL.BatchSize = v.GetInt("etl.batch_size")
	cfg.ETL.MaxWorkers = v.GetInt("etl.max_workers")
	cfg.ETL.RetryAttempts = v.GetInt("etl.retry_attempts")
	cfg.ETL.SkipProcessed = v.GetBool("etl.skip_processed")
	cfg.ETL.ForceReprocess = v.GetBool("etl.force_reprocess")
	cfg.ETL.LatestOnly = v.GetBool("etl.latest_only")
	cfg.ETL.IgnoredFilenamePrefixes = v.GetStringSlice("etl.ignored_filename_prefixes")
	cfg.ETL.FilePatterns = v.GetStringSlice("etl.file_patterns")
	cfg.ETL.RecognizedExtensions = v.GetStringSlice("etl.recognized_extensions")
	cfg.ETL.TableMappings = v.GetStringMapString("etl.table_mappings")
	cfg.ETL.AutoIngest = v.GetBool("etl.auto_ingest")
	cfg.ETL.JobHistoryLimit = v.GetInt("etl.job_history_limit")

	cfg.Security.PHISalt = v.GetString("security.phi_salt")
	cfg.Security.FieldsToHash = v.GetStringMapStringSlice("security.fields_to_hash")

	cfg.Directories.Input = v.GetString("directories.input")
	cfg.Directories.Database = v.GetString("directories.database")
	cfg.Directories.Backup = v.GetString("directories.backup")

	// tables.yaml entries win over etl.table_mappings: they are the
	// case-exact source.
	dir := "."
	if used := v.ConfigFileUsed(); used != "" {
		dir = filepath.Dir(used)
	}
	mappings, err := loadTableMappings(filepath.Join(dir, tablesFileName))
	if err != nil {
		return cfg, err
	}
	if len(mappings) > 0 {
		if cfg.ETL.TableMappings == nil {
			cfg.ETL.TableMappings = make(map[string]string, len(mappings))
		}
		for pattern, table := range mappings {
			cfg.ETL.TableMappings[pattern] = table
		}
	}

	return cfg, nil
}

// setDefaults registers the documented defaults so unset keys read back
// as their config.Default() values instead of zero.
func setDefaults(v *viper.Viper, d config.Core) {
	v.SetDefault("db.dialect", d.DB.Dialect)
	v.SetDefault("db.connection_timeout", d.DB.ConnectionTimeout)
	v.SetDefault("db.max_connections", d.DB.MaxConnections)

	v.SetDefault("sftp.port", d.SFTP.Port)
	v.SetDefault("sftp.timeout", d.SFTP.Timeout)
	v.SetDefault("sftp.max_retries", d.SFTP.MaxRetries)

	v.SetDefault("etl.batch_size", d.ETL.BatchSize)
	v.SetDefault("etl.max_workers", d.ETL.MaxWorkers)
	v.SetDefault("etl.skip_processed", d.ETL.SkipProcessed)
	v.SetDefault("etl.ignored_filename_prefixes", d.ETL.IgnoredFilenamePrefixes)
	v.SetDefault("etl.file_patterns", d.ETL.FilePatterns)
	v.SetDefault("etl.recognized_extensions", d.ETL.RecognizedExtensions)
	v.SetDefault("etl.job_history_limit", d.ETL.JobHistoryLimit)
}

// bindFlags wires the override flags into viper. Bound flags only win
// when actually set on the command line.
func bindFlags(v *viper.Viper) {
	flags := rootCmd.PersistentFlags()
	_ = v.BindPFlag("directories.input", flags.Lookup("input"))
	_ = v.BindPFlag("directories.database", flags.Lookup("database-dir"))
	_ = v.BindPFlag("db.path", flags.Lookup("db-path"))
}

// loadTableMappings reads a flat filename-or-glob -> table YAML map.
// A missing file is not an error.
func loadTableMappings(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	mappings := make(map[string]string)
	if err := yaml.Unmarshal(data, &mappings); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return mappings, nil
}
