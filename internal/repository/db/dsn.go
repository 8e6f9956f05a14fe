package db

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// sqlitePragmas are applied by the driver to every pooled connection.
var sqlitePragmas = []string{
	"busy_timeout(5000)",
	"foreign_keys(1)",
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
}

// BuildDSN turns the configured URL into a driver DSN. JDBC style URLs
// ("jdbc:postgresql://...") are accepted and credentials set separately
// are injected unless the URL already carries them.
func BuildDSN(cfg DatabaseConfig) (string, error) {
	raw := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(cfg.URL), "jdbc:"))
	if raw == "" {
		return "", fmt.Errorf("empty database url")
	}

	switch cfg.Type {
	case PostgreSQL:
		return postgresDSN(raw, cfg.User, cfg.Password)
	case MySQL:
		return mysqlDSN(raw, cfg.User, cfg.Password)
	case SQLite:
		return sqliteDSN(raw), nil
	default:
		return "", fmt.Errorf("unsupported database type: %q", cfg.Type)
	}
}

func postgresDSN(raw, user, password string) (string, error) {
	if !strings.Contains(raw, "://") {
		// key=value form
		if user != "" && !strings.Contains(raw, "user=") {
			raw += " user=" + quoteKV(user)
		}
		if password != "" && !strings.Contains(raw, "password=") {
			raw += " password=" + quoteKV(password)
		}
		return raw, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid postgres url: %w", err)
	}
	if u.Scheme == "postgresql" {
		u.Scheme = "postgres"
	}

	// JDBC passes credentials as query parameters
	q := u.Query()
	if user == "" {
		user = q.Get("user")
	}
	if password == "" {
		password = q.Get("password")
	}
	q.Del("user")
	q.Del("password")
	if q.Get("timezone") == "" {
		q.Set("timezone", "UTC")
	}
	u.RawQuery = q.Encode()

	if u.User == nil && user != "" {
		if password != "" {
			u.User = url.UserPassword(user, password)
		} else {
			u.User = url.User(user)
		}
	}
	return u.String(), nil
}

func quoteKV(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

func mysqlDSN(raw, user, password string) (string, error) {
	var mc *mysql.Config

	if strings.HasPrefix(raw, "mysql://") || strings.HasPrefix(raw, "mariadb://") {
		u, err := url.Parse(raw)
		if err != nil {
			return "", fmt.Errorf("invalid mysql url: %w", err)
		}
		mc = mysql.NewConfig()
		mc.Net = "tcp"
		mc.Addr = u.Host
		mc.DBName = strings.TrimPrefix(u.Path, "/")
		if u.User != nil {
			mc.User = u.User.Username()
			mc.Passwd, _ = u.User.Password()
		}
		q := u.Query()
		if mc.User == "" {
			mc.User = q.Get("user")
		}
		if mc.Passwd == "" {
			mc.Passwd = q.Get("password")
		}
		q.Del("user")
		q.Del("password")
		for k := range q {
			if mc.Params == nil {
				mc.Params = map[string]string{}
			}
			mc.Params[k] = q.Get(k)
		}
		delete(mc.Params, "parseTime")
	} else {
		parsed, err := mysql.ParseDSN(raw)
		if err != nil {
			return "", fmt.Errorf("invalid mysql dsn: %w", err)
		}
		mc = parsed
	}

	if mc.User == "" {
		mc.User = user
	}
	if mc.Passwd == "" {
		mc.Passwd = password
	}
	mc.ParseTime = true
	if mc.Params == nil {
		mc.Params = map[string]string{}
	}
	// Unknown params are sent as SET statements on every new connection
	if _, ok := mc.Params["sql_mode"]; !ok {
		mc.Params["sql_mode"] = "'TRADITIONAL,NO_AUTO_VALUE_ON_ZERO'"
	}
	if _, ok := mc.Params["time_zone"]; !ok {
		mc.Params["time_zone"] = "'+00:00'"
	}

	return mc.FormatDSN(), nil
}

func trimSQLiteScheme(raw string) string {
	for _, prefix := range []string{"sqlite3://", "sqlite://", "sqlite3:", "sqlite:"} {
		if strings.HasPrefix(raw, prefix) {
			return strings.TrimPrefix(raw, prefix)
		}
	}
	return raw
}

func sqliteDSN(raw string) string {
	raw = trimSQLiteScheme(raw)
	if strings.Contains(raw, "_pragma=") {
		return raw
	}

	params := make([]string, 0, len(sqlitePragmas))
	for _, p := range sqlitePragmas {
		params = append(params, "_pragma="+p)
	}
	sep := "?"
	if strings.Contains(raw, "?") {
		sep = "&"
	}
	return raw + sep + strings.Join(params, "&")
}

// IsInMemorySQLite reports whether the DSN points at a private in-memory database.
func IsInMemorySQLite(dsn string) bool {
	return strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")
}

// SQLiteFilePath returns the database file named by a sqlite URL, or "" for
// in-memory databases.
func SQLiteFilePath(raw string) string {
	raw = strings.TrimPrefix(trimSQLiteScheme(strings.TrimPrefix(raw, "jdbc:")), "file:")
	if IsInMemorySQLite(raw) {
		return ""
	}
	path, _, _ := strings.Cut(raw, "?")
	return path
}
