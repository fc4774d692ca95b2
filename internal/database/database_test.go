package database

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"knot/internal/config"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return gdb, mock
}

func TestConfigurePool(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	cfg := &config.Config{
		DBMaxOpenConns:           10,
		DBMaxIdleConns:           5,
		DBConnMaxLifetimeMinutes: 15,
	}
	require.NoError(t, configurePool(db, cfg))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	assert.Equal(t, 10, sqlDB.Stats().MaxOpenConnections)
}

func TestDSN(t *testing.T) {
	cfg := &config.Config{DBHost: "db", DBPort: "5432", DBUser: "u", DBPassword: "p"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=postgres sslmode=disable", DSN(cfg, "postgres"))

	cfg.DBSSLMode = "require"
	assert.Contains(t, DSN(cfg, "knot"), "dbname=knot sslmode=require")
}

func TestRegisterMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"migrations/000002_second.up.sql":   {Data: []byte("CREATE TABLE b (id int);")},
		"migrations/000002_second.down.sql": {Data: []byte("DROP TABLE b;")},
		"migrations/000001_first.up.sql":    {Data: []byte("CREATE TABLE a (id int);")},
		"migrations/000001_first.down.sql":  {Data: []byte("DROP TABLE a;")},
		"migrations/README.md":              {Data: []byte("ignored")},
		"migrations/bad.up.sql":             {Data: []byte("ignored")},
	}

	got, err := RegisterMigrations(fsys)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 1, got[0].Version)
	assert.Equal(t, "first", got[0].Name)
	assert.Equal(t, "DROP TABLE b;", got[1].DownScript)
	assert.Equal(t, "000002_second", got[1].String())

	t.Run("missing down script", func(t *testing.T) {
		_, err := RegisterMigrations(fstest.MapFS{
			"migrations/000003_orphan.up.sql": {Data: []byte("SELECT 1;")},
		})
		assert.Error(t, err)
	})
}

func TestEmbeddedMigrationsRegistered(t *testing.T) {
	m := GetMigrationByVersion(1)
	require.NotNil(t, m)
	assert.Equal(t, "init", m.Name)
	assert.Contains(t, m.UpScript, "CREATE TABLE IF NOT EXISTS posts")
	assert.Contains(t, m.DownScript, "DROP TABLE IF EXISTS posts")
	assert.Nil(t, GetMigrationByVersion(999))
}

func TestValidateAppliedVersions(t *testing.T) {
	registered := []Migration{{Version: 1}, {Version: 2}}
	assert.NoError(t, validateAppliedVersions(nil, registered))
	assert.NoError(t, validateAppliedVersions([]int{1, 2}, registered))

	err := validateAppliedVersions([]int{1, 7, 5}, registered)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "000005, 000007")
}

func TestPlanSchema(t *testing.T) {
	tests := []struct {
		name        string
		cfg         config.Config
		wantSQL     bool
		wantAuto    bool
		expectError bool
	}{
		{"hybrid dev", config.Config{Env: "development"}, true, true, false},
		{"hybrid prod", config.Config{Env: "production", DBSchemaMode: "hybrid"}, true, false, false},
		{"sql", config.Config{Env: "development", DBSchemaMode: "sql"}, true, false, false},
		{"auto dev", config.Config{Env: "development", DBSchemaMode: "auto"}, false, true, false},
		{"auto staging refused", config.Config{Env: "staging", DBSchemaMode: "auto"}, false, false, true},
		{"auto prod allowed", config.Config{Env: "prod", DBSchemaMode: "AUTO", DBAutoMigrateAllowDestructive: true}, false, true, false},
		{"unknown", config.Config{DBSchemaMode: "yolo"}, false, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := planSchema(&tt.cfg)
			if tt.expectError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantSQL, plan.sql)
			assert.Equal(t, tt.wantAuto, plan.auto)
		})
	}
}

func TestRunMigrations_AppliesPendingOnly(t *testing.T) {
	db, mock := setupMockDB(t)
	registered := []Migration{
		{Version: 1, Name: "first", UpScript: "CREATE TABLE a (id int)"},
		{Version: 2, Name: "second", UpScript: "CREATE TABLE b (id int)"},
	}

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS migration_logs")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM "migration_logs"`)).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(1))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE b (id int)")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "migration_logs"`)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := runMigrations(context.Background(), db, NewMigrationStore(db), registered)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunMigrations_FailedScriptRollsBack(t *testing.T) {
	db, mock := setupMockDB(t)
	registered := []Migration{{Version: 1, Name: "first", UpScript: "CREATE TABLE a (id int)"}}

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS migration_logs")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM "migration_logs"`)).
		WillReturnRows(sqlmock.NewRows([]string{"version"}))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE a (id int)")).
		WillReturnError(errors.New("syntax error"))
	mock.ExpectRollback()

	err := runMigrations(context.Background(), db, NewMigrationStore(db), registered)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to apply migration 1 (first)")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunMigrations_RefusesUnknownVersions(t *testing.T) {
	db, mock := setupMockDB(t)

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS migration_logs")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM "migration_logs"`)).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(42))

	err := runMigrations(context.Background(), db, NewMigrationStore(db), []Migration{{Version: 1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "000042")
}

func TestWithMigrationLock_Postgres(t *testing.T) {
	db, mock := setupMockDB(t)

	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_lock($1)")).
		WithArgs(migrationLockKey).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("SELECT 1")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_unlock($1)")).
		WithArgs(migrationLockKey).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := withMigrationLock(context.Background(), db, func(conn *gorm.DB) error {
		return conn.Exec("SELECT 1").Error
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRollbackMigration_OnlyLatest(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&MigrationLog{}))

	ctx := context.Background()
	err = RollbackMigration(ctx, db, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "has not been applied")

	require.NoError(t, db.Create(&[]MigrationLog{{Version: 1, Name: "init"}, {Version: 5, Name: "later"}}).Error)
	err = RollbackMigration(ctx, db, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not the latest applied (000005)")

	assert.Error(t, RollbackMigration(ctx, db, 999))
}

func TestAutoMigrate_SQLite(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(db))

	for _, table := range []string{"accounts", "sessions", "users", "files", "posts", "likes", "saves", "file_deletions"} {
		assert.True(t, db.Migrator().HasTable(table), table)
	}
}

func TestGetSchemaStatus_AutoSkipsSQL(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	status, err := GetSchemaStatus(context.Background(), db, &config.Config{Env: "development", DBSchemaMode: "auto"})
	require.NoError(t, err)
	assert.False(t, status.WillRunSQL)
	assert.True(t, status.WillRunAutoMigrate)
	assert.Empty(t, status.PendingMigrations)
	assert.Contains(t, status.MissingTables, "posts")
	assert.Len(t, status.MissingTables, len(PersistentModels()))
}

func TestGetSchemaStatus_NoMissingTablesAfterAutoMigrate(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(db))

	status, err := GetSchemaStatus(context.Background(), db, &config.Config{Env: "development", DBSchemaMode: "auto"})
	require.NoError(t, err)
	assert.Empty(t, status.MissingTables)
}

func TestGetSchemaStatus_ReportsPending(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	status, err := GetSchemaStatus(context.Background(), db, &config.Config{Env: "development", DBSchemaMode: "sql"})
	require.NoError(t, err)
	assert.Empty(t, status.AppliedVersions)
	require.NotEmpty(t, status.PendingMigrations)
	assert.Equal(t, 1, status.PendingMigrations[0].Version)
}

func TestQueryLogger_SkipsNotFound(t *testing.T) {
	var buf bytes.Buffer
	l := NewGormLogger(slog.New(slog.NewTextHandler(&buf, nil)))
	fc := func() (string, int64) { return "SELECT 1", 0 }

	l.Trace(context.Background(), time.Now(), fc, gorm.ErrRecordNotFound)
	assert.Empty(t, buf.String())

	l.Trace(context.Background(), time.Now(), fc, errors.New("connection reset"))
	assert.Contains(t, buf.String(), "GORM query error")

	buf.Reset()
	l.LogMode(logger.Silent).Trace(context.Background(), time.Now(), fc, errors.New("ignored"))
	assert.Empty(t, buf.String())
}

func TestQueryLogger_SlowQuery(t *testing.T) {
	var buf bytes.Buffer
	l := NewGormLogger(slog.New(slog.NewTextHandler(&buf, nil)))
	fc := func() (string, int64) { return "SELECT pg_sleep(1)", 1 }

	l.Trace(context.Background(), time.Now().Add(-time.Second), fc, nil)
	assert.Contains(t, buf.String(), "GORM slow query")
	assert.Contains(t, buf.String(), "threshold=200ms")

	buf.Reset()
	l.Trace(context.Background(), time.Now(), fc, nil)
	assert.Empty(t, buf.String(), "fast queries are not logged at warn level")
}

func TestClipSQL(t *testing.T) {
	short := "SELECT 1"
	assert.Equal(t, short, clipSQL(short))

	long := strings.Repeat("x", maxLoggedSQL+10)
	clipped := clipSQL(long)
	assert.True(t, strings.HasPrefix(clipped, long[:maxLoggedSQL]))
	assert.True(t, strings.HasSuffix(clipped, "... (2058 bytes)"))
}

func TestPingWithRetry(t *testing.T) {
	sqlDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger:               logger.Default.LogMode(logger.Silent),
		DisableAutomaticPing: true,
	})
	require.NoError(t, err)

	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	mock.ExpectPing()
	require.NoError(t, pingWithRetry(context.Background(), db, 3, time.Millisecond, quiet))

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	mock.ExpectPing().WillReturnError(errors.New("still refused"))
	err = pingWithRetry(context.Background(), db, 2, time.Millisecond, quiet)
	assert.EqualError(t, err, "still refused")
	assert.NoError(t, mock.ExpectationsWereMet())
}
