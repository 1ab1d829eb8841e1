package database

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/tradeops/pgvault/internal/config"
	"github.com/tradeops/pgvault/internal/domain"
)

// Postgres drives the engine through its client tools (pg_dump, psql,
// pg_basebackup), the same primitives the archive_command hook uses.
type Postgres struct {
	cfg      *config.DatabaseConfig
	password string
}

func NewPostgres(cfg *config.DatabaseConfig) (*Postgres, error) {
	password := cfg.Password
	if cfg.PasswordFile != "" {
		data, err := os.ReadFile(cfg.PasswordFile)
		if err != nil {
			return nil, fmt.Errorf("%w: read password file: %v", domain.ErrConfiguration, err)
		}
		password = strings.TrimSpace(string(data))
	}

	return &Postgres{cfg: cfg, password: password}, nil
}

func (p *Postgres) env() []string {
	return append(os.Environ(), "PGPASSWORD="+p.password)
}

func (p *Postgres) connArgs() []string {
	return []string{
		fmt.Sprintf("--host=%s", p.cfg.Host),
		fmt.Sprintf("--port=%d", p.cfg.Port),
		fmt.Sprintf("--username=%s", p.cfg.Username),
	}
}

// queryScalar runs a single-value query through psql against the named
// database and returns the trimmed output.
func (p *Postgres) queryScalar(ctx context.Context, database, query string) (string, error) {
	args := append(p.connArgs(),
		"--dbname="+database,
		"--no-psqlrc",
		"--tuples-only",
		"--no-align",
		"-c", query,
	)

	cmd := exec.CommandContext(ctx, "psql", args...)
	cmd.Env = p.env()

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("psql query failed: %w, output: %s", err, stderr.String())
	}

	return strings.TrimSpace(stdout.String()), nil
}

// exec runs a statement against the maintenance database.
func (p *Postgres) exec(ctx context.Context, statement string) error {
	_, err := p.queryScalar(ctx, "postgres", statement)
	return err
}

func (p *Postgres) Ping(ctx context.Context) error {
	if _, err := p.queryScalar(ctx, "postgres", "SELECT 1"); err != nil {
		return fmt.Errorf("%w: %s:%d unreachable: %v",
			domain.ErrConnection, p.cfg.Host, p.cfg.Port, err)
	}
	return nil
}

func (p *Postgres) ServerVersion(ctx context.Context) (string, error) {
	return p.queryScalar(ctx, "postgres", "SHOW server_version")
}

// Dump streams a plain-format logical dump of the named database into w.
// Plain format keeps the restore path a straight psql replay with
// ON_ERROR_STOP; compression happens in the caller's sink.
func (p *Postgres) Dump(ctx context.Context, database string, w io.Writer) error {
	args := append(p.connArgs(),
		"--format=plain",
		"--no-owner",
		"--no-privileges",
		database,
	)

	cmd := exec.CommandContext(ctx, "pg_dump", args...)
	cmd.Env = p.env()
	cmd.Stdout = w

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%w: pg_dump failed: %v, output: %s",
			domain.ErrCreation, err, stderr.String())
	}

	return nil
}

// Restore replays a plain dump from r into the named database. The replay is
// fail-stop: the first error aborts rather than producing a silently partial
// database.
func (p *Postgres) Restore(ctx context.Context, database string, r io.Reader) error {
	args := append(p.connArgs(),
		"--dbname="+database,
		"--no-psqlrc",
		"-v", "ON_ERROR_STOP=1",
	)

	cmd := exec.CommandContext(ctx, "psql", args...)
	cmd.Env = p.env()
	cmd.Stdin = r

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	cmd.Stdout = io.Discard

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("restore replay failed: %w, output: %s", err, stderr.String())
	}

	return nil
}

// BaseBackup takes a physical snapshot of the cluster into destDir. WAL is
// excluded; recovery replays segments from the archive instead.
func (p *Postgres) BaseBackup(ctx context.Context, destDir string) error {
	args := append(p.connArgs(),
		"--pgdata="+destDir,
		"--format=plain",
		"--checkpoint=fast",
		"--wal-method=none",
		"--label=pgvault_base",
	)

	cmd := exec.CommandContext(ctx, "pg_basebackup", args...)
	cmd.Env = p.env()

	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: pg_basebackup failed: %v, output: %s",
			domain.ErrCreation, err, string(output))
	}

	return nil
}

func (p *Postgres) DatabaseExists(ctx context.Context, database string) (bool, error) {
	out, err := p.queryScalar(ctx, "postgres",
		fmt.Sprintf("SELECT 1 FROM pg_database WHERE datname = %s", quoteLiteral(database)))
	if err != nil {
		return false, err
	}
	return out == "1", nil
}

func (p *Postgres) DatabaseSize(ctx context.Context, database string) (int64, error) {
	out, err := p.queryScalar(ctx, "postgres",
		fmt.Sprintf("SELECT pg_database_size(%s)", quoteLiteral(database)))
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(out, 10, 64)
}

func (p *Postgres) TableCount(ctx context.Context, database string) (int, error) {
	out, err := p.queryScalar(ctx, database,
		"SELECT count(*) FROM information_schema.tables "+
			"WHERE table_schema NOT IN ('pg_catalog', 'information_schema')")
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(out)
}

func (p *Postgres) CreateDatabase(ctx context.Context, database string) error {
	return p.exec(ctx, fmt.Sprintf("CREATE DATABASE %s", quoteIdent(database)))
}

func (p *Postgres) DropDatabase(ctx context.Context, database string) error {
	return p.exec(ctx, fmt.Sprintf("DROP DATABASE IF EXISTS %s", quoteIdent(database)))
}

func (p *Postgres) TerminateConnections(ctx context.Context, database string) error {
	return p.exec(ctx, fmt.Sprintf(
		"SELECT pg_terminate_backend(pid) FROM pg_stat_activity "+
			"WHERE datname = %s AND pid <> pg_backend_pid()", quoteLiteral(database)))
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quoteLiteral(value string) string {
	return "'" + strings.ReplaceAll(value, "'", "''") + "'"
}
