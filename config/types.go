package config

import "time"

type AppConfig struct {
	DBDriver    string            `yaml:"db_driver" env:"TRUSTLOG_DB_DRIVER" env-default:"sqlite"`
	DBURL       string            `yaml:"db_url" env:"TRUSTLOG_DB_URL"`
	DBPath      string            `yaml:"db_path" env:"TRUSTLOG_DB_PATH" env-default:"data/tracking_log.db"`
	ListenAddr  string            `yaml:"listen_addr" env:"TRUSTLOG_LISTEN_ADDR" env-default:"0.0.0.0:5000"`
	SessionTTL  time.Duration     `yaml:"session_ttl" env:"TRUSTLOG_SESSION_TTL" env-default:"12h"`
	AppEnv      string            `yaml:"app_env" env:"TRUSTLOG_APP_ENV"`
	Pepper      string            `yaml:"pepper" env:"TRUSTLOG_PEPPER"`
	TLSEnabled  bool              `yaml:"tls_enabled" env:"TRUSTLOG_TLS_ENABLED" env-default:"false"`
	TLSCert     string            `yaml:"tls_cert" env:"TRUSTLOG_TLS_CERT"`
	TLSKey      string            `yaml:"tls_key" env:"TRUSTLOG_TLS_KEY"`
	Log         LogConfig         `yaml:"log"`
	Security    SecurityConfig    `yaml:"security"`
	Attachments AttachmentsConfig `yaml:"attachments"`
	Maintenance MaintenanceConfig `yaml:"maintenance"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"TRUSTLOG_LOG_LEVEL" env-default:"info"`
	Format string `yaml:"format" env:"TRUSTLOG_LOG_FORMAT" env-default:"text"`
}

type SecurityConfig struct {
	TrustedProxies   []string      `yaml:"trusted_proxies" env:"TRUSTLOG_SECURITY_TRUSTED_PROXIES" env-separator:","`
	CSRFEnabled      bool          `yaml:"csrf_enabled" env:"TRUSTLOG_SECURITY_CSRF_ENABLED" env-default:"true"`
	LoginAttempts    int           `yaml:"login_attempts" env:"TRUSTLOG_SECURITY_LOGIN_ATTEMPTS" env-default:"5"`
	LoginWindow      time.Duration `yaml:"login_window" env:"TRUSTLOG_SECURITY_LOGIN_WINDOW" env-default:"1m"`
	MinPasswordChars int           `yaml:"min_password_chars" env:"TRUSTLOG_SECURITY_MIN_PASSWORD_CHARS" env-default:"8"`
}

type AttachmentsConfig struct {
	StorageDir        string   `yaml:"storage_dir" env:"TRUSTLOG_UPLOAD_FOLDER" env-default:"uploads"`
	AllowedExtensions []string `yaml:"allowed_extensions" env:"TRUSTLOG_ALLOWED_EXTENSIONS" env-separator:"," env-default:"png,jpg,jpeg,gif,pdf,doc,docx,txt"`
	MaxUploadBytes    int64    `yaml:"max_upload_bytes" env:"TRUSTLOG_MAX_CONTENT_LENGTH" env-default:"16777216"`
}

type MaintenanceConfig struct {
	Enabled          bool          `yaml:"enabled" env:"TRUSTLOG_MAINTENANCE_ENABLED" env-default:"true"`
	SessionPurgeSpec string        `yaml:"session_purge_spec" env:"TRUSTLOG_MAINTENANCE_SESSION_PURGE" env-default:"@every 15m"`
	OrphanSweepSpec  string        `yaml:"orphan_sweep_spec" env:"TRUSTLOG_MAINTENANCE_ORPHAN_SWEEP" env-default:"@every 1h"`
	StagingMaxAge    time.Duration `yaml:"staging_max_age" env:"TRUSTLOG_MAINTENANCE_STAGING_MAX_AGE" env-default:"1h"`
}

const maxUserSessionTTL = 7 * 24 * time.Hour

func (c *AppConfig) EffectiveSessionTTL() time.Duration {
	ttl := 12 * time.Hour
	if c != nil && c.SessionTTL > 0 {
		ttl = c.SessionTTL
	}
	if ttl > maxUserSessionTTL {
		return maxUserSessionTTL
	}
	return ttl
}

func (c *AppConfig) IsPostgres() bool {
	if c == nil {
		return false
	}
	switch c.DBDriver {
	case "postgres", "pgx":
		return true
	}
	return false
}

func (c *AppConfig) EffectiveMaxUploadBytes() int64 {
	if c == nil || c.Attachments.MaxUploadBytes <= 0 {
		return 16 << 20
	}
	return c.Attachments.MaxUploadBytes
}
