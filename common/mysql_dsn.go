package common

import (
	"net/url"
	"strings"
	"time"

	"github.com/Laisky/errors/v2"
	gosqlmysql "github.com/go-sql-driver/mysql"
)

// NormalizeMySQLDSN accepts either a driver DSN or a mysql:// URL and returns a
// driver DSN with parseTime enabled. loc defaults to UTC unless the caller set one.
func NormalizeMySQLDSN(dsn string) (string, error) {
	if strings.HasPrefix(strings.ToLower(dsn), "mysql://") {
		converted, err := mysqlURLToDSN(dsn)
		if err != nil {
			return "", errors.Wrap(err, "convert mysql:// DSN")
		}
		dsn = converted
	}

	cfg, err := gosqlmysql.ParseDSN(dsn)
	if err != nil {
		return "", errors.Wrap(err, "parse MySQL DSN")
	}
	cfg.ParseTime = true
	if !hasQueryParam(dsn, "loc") {
		cfg.Loc = time.UTC
	}

	return cfg.FormatDSN(), nil
}

func mysqlURLToDSN(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", errors.WithStack(err)
	}
	if u.Host == "" {
		return "", errors.New("mysql DSN missing host")
	}

	var b strings.Builder
	if u.User != nil {
		b.WriteString(u.User.Username())
		if pwd, ok := u.User.Password(); ok {
			b.WriteString(":" + pwd)
		}
		b.WriteString("@")
	}
	b.WriteString("tcp(" + u.Host + ")/" + strings.TrimPrefix(u.Path, "/"))
	if u.RawQuery != "" {
		b.WriteString("?" + u.RawQuery)
	}
	return b.String(), nil
}

func hasQueryParam(dsn, key string) bool {
	_, query, ok := strings.Cut(dsn, "?")
	if !ok {
		return false
	}
	values, err := url.ParseQuery(query)
	if err != nil {
		return false
	}
	return values.Has(key)
}
