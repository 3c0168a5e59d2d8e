// Package config exposes runtime settings of the members panel. Every value is read from the
// environment, optionally seeded from a .env file in the working directory.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

//go:embed version
var version string

//go:embed name
var name string

type LogLevel string

const (
	Debug  LogLevel = "debug"
	Info   LogLevel = "info"
	Notice LogLevel = "notice"
	Warn   LogLevel = "warn"
	Error  LogLevel = "error"
)

const (
	defaultPort          = 3000
	defaultLoginRate     = "20-M"
	defaultBcryptCost    = 10
	defaultDBFolderPath  = "/etc/memberpanel"
	defaultLogFolderPath = "/var/log"

	defaultAuditRetentionDays = 90
)

// LoadEnv loads variables from the given .env files (".env" when none are given).
// Variables already present in the process environment win. A missing file is not an error.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	existing := make([]string, 0, len(files))
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	return godotenv.Load(existing...)
}

func GetVersion() string {
	return strings.TrimSpace(version)
}

func GetName() string {
	return strings.TrimSpace(name)
}

func GetLogLevel() LogLevel {
	if IsDebug() {
		return Debug
	}
	logLevel := os.Getenv("MEMBERS_LOG_LEVEL")
	if logLevel == "" {
		return Info
	}
	return LogLevel(logLevel)
}

func IsDebug() bool {
	return os.Getenv("MEMBERS_DEBUG") == "true"
}

func GetDBFolderPath() string {
	dbFolderPath := os.Getenv("MEMBERS_DB_FOLDER")
	if dbFolderPath == "" {
		dbFolderPath = defaultDBFolderPath
	}
	return dbFolderPath
}

func GetDBPath() string {
	return fmt.Sprintf("%s/%s.db", GetDBFolderPath(), GetName())
}

func GetLogFolder() string {
	logFolderPath := os.Getenv("MEMBERS_LOG_FOLDER")
	if logFolderPath == "" {
		logFolderPath = defaultLogFolderPath
	}
	return logFolderPath
}

// GetListen returns the address the web server binds to; empty means all interfaces.
func GetListen() string {
	return os.Getenv("MEMBERS_LISTEN")
}

func GetPort() int {
	return getInt("MEMBERS_PORT", defaultPort)
}

// GetCertFile and GetKeyFile locate the TLS key pair. When both are empty the panel
// serves plain HTTP.
func GetCertFile() string {
	return os.Getenv("MEMBERS_CERT_FILE")
}

func GetKeyFile() string {
	return os.Getenv("MEMBERS_KEY_FILE")
}

// GetDomain returns the only Host the panel answers to. Empty accepts any host.
func GetDomain() string {
	return os.Getenv("MEMBERS_DOMAIN")
}

// GetSessionSecret returns the key used to sign session cookies. Empty means a random
// key is generated on startup and sessions do not survive a restart.
func GetSessionSecret() string {
	return os.Getenv("MEMBERS_SESSION_SECRET")
}

// GetRedisAddr returns the external redis address for the session store.
// Empty means an embedded redis is started.
func GetRedisAddr() string {
	return os.Getenv("MEMBERS_REDIS_ADDR")
}

func GetRedisPassword() string {
	return os.Getenv("MEMBERS_REDIS_PASSWORD")
}

func GetBcryptCost() int {
	return getInt("MEMBERS_BCRYPT_COST", defaultBcryptCost)
}

// GetLoginRate returns the limiter rate applied to POST /login and POST /signup,
// in ulule/limiter's formatted notation ("20-M" is 20 requests per minute).
func GetLoginRate() string {
	rate := os.Getenv("MEMBERS_LOGIN_RATE")
	if rate == "" {
		rate = defaultLoginRate
	}
	return rate
}

// GetTrustedProxies returns the proxies whose X-Forwarded-For and X-Real-IP headers are
// believed, from the comma separated MEMBERS_TRUSTED_PROXIES. Empty means none.
func GetTrustedProxies() []string {
	var proxies []string
	for _, p := range strings.Split(os.Getenv("MEMBERS_TRUSTED_PROXIES"), ",") {
		if p = strings.TrimSpace(p); p != "" {
			proxies = append(proxies, p)
		}
	}
	return proxies
}

// GetAdminEmail and GetAdminPassword describe the admin account seeded on first start.
func GetAdminEmail() string {
	return os.Getenv("MEMBERS_ADMIN_EMAIL")
}

func GetAdminPassword() string {
	return os.Getenv("MEMBERS_ADMIN_PASSWORD")
}

func GetAdminName() string {
	adminName := os.Getenv("MEMBERS_ADMIN_NAME")
	if adminName == "" {
		adminName = "admin"
	}
	return adminName
}

// GetAuditRetentionDays returns how long audit entries are kept.
func GetAuditRetentionDays() int {
	return getInt("MEMBERS_AUDIT_RETENTION_DAYS", defaultAuditRetentionDays)
}

func getInt(key string, def int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}
