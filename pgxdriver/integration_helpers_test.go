//go:build integration

package pgxdriver

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"testing"
	"time"

	sqlkit "github.com/vango-go/vango-sqlkit"
)

var (
	integrationDSNURLPattern   = regexp.MustCompile(`(?i)postgres(?:ql)?://[^\s]+`)
	integrationPasswordPattern = regexp.MustCompile(`(?i)password=[^\s]+`)
	integrationSchemaPattern   = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)
)

func requireIntegrationURL(t *testing.T) string {
	t.Helper()

	dsn := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dsn == "" {
		t.Fatal("integration requires environment variable DATABASE_URL")
	}
	return dsn
}

func integrationSchemaName(t *testing.T) string {
	t.Helper()

	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		t.Fatalf("failed to generate random schema suffix: %s", sanitizeErrorMessage(err))
	}
	name := fmt.Sprintf("sqlkit_it_%d_%x", time.Now().Unix(), binary.BigEndian.Uint32(b[:]))
	if !integrationSchemaPattern.MatchString(name) {
		t.Fatalf("generated invalid schema name: %q", name)
	}
	return name
}

// openIntegrationClient opens a small pool against DATABASE_URL and closes it
// when the test ends.
func openIntegrationClient(t *testing.T, dsn string, opts ...sqlkit.Option) *sqlkit.Client {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	drv, err := New(sqlkit.Config{URL: dsn, ConnectTimeout: 20 * time.Second})
	mustNoErr(t, err, "new driver")

	client, err := sqlkit.Open(ctx, drv, sqlkit.Config{URL: dsn, MaxConnections: 4}, opts...)
	mustNoErr(t, err, "open client")
	t.Cleanup(func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer closeCancel()
		if err := client.Close(closeCtx); err != nil {
			t.Errorf("close client: %s", sanitizeErrorMessage(err))
		}
	})
	return client
}

func sanitizeErrorMessage(err error) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	msg = integrationDSNURLPattern.ReplaceAllString(msg, "[REDACTED_DSN]")
	msg = integrationPasswordPattern.ReplaceAllString(msg, "password=[REDACTED]")
	return msg
}

func mustNoErr(t *testing.T, err error, operation string) {
	t.Helper()
	if err != nil {
		t.Fatalf("%s: %s", operation, sanitizeErrorMessage(err))
	}
}

func mustIs(t *testing.T, got error, want error, operation string) {
	t.Helper()
	if !errors.Is(got, want) {
		t.Fatalf("%s: got=%s want=%v", operation, sanitizeErrorMessage(got), want)
	}
}
