package job

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/memberpanel/memberpanel/config"
	"github.com/memberpanel/memberpanel/database"
	"github.com/memberpanel/memberpanel/database/model"
	"github.com/memberpanel/memberpanel/util/metrics"
	"github.com/memberpanel/memberpanel/web/service"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func openDB(t *testing.T) *gorm.DB {
	t.Helper()
	t.Setenv("MEMBERS_ADMIN_EMAIL", "")
	db, err := database.Open(&config.DatabaseConfig{
		Type:   config.DatabaseTypeSQLite,
		SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "job.db")},
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		_ = sqlDB.Close()
	})
	return db
}

func TestAuditCleanupJob(t *testing.T) {
	db := openDB(t)

	now := time.Now()
	for _, age := range []time.Duration{time.Hour, 100 * 24 * time.Hour, 200 * 24 * time.Hour} {
		require.NoError(t, db.Create(&model.AuditLog{
			Id:        uuid.NewString(),
			Action:    model.ActionLogin,
			Timestamp: now.Add(-age),
		}).Error)
	}

	audit := service.NewAuditLogService(db)
	NewAuditCleanupJob(audit, 90).Run()

	logs, err := audit.Recent(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

type fixedCounter struct {
	n   int
	err error
}

func (f fixedCounter) Count(context.Context) (int, error) {
	return f.n, f.err
}

func TestSessionGaugeJob(t *testing.T) {
	NewSessionGaugeJob(fixedCounter{n: 7}).Run()
	assert.Equal(t, 7.0, testutil.ToFloat64(metrics.ActiveSessions))

	NewSessionGaugeJob(fixedCounter{err: errors.New("redis down")}).Run()
	assert.Equal(t, 7.0, testutil.ToFloat64(metrics.ActiveSessions), "a failed count keeps the last value")
}

func TestCheckpointJob(t *testing.T) {
	assert.NotPanics(t, NewCheckpointJob(nil).Run)

	db := openDB(t)
	require.NoError(t, db.Exec("PRAGMA journal_mode = WAL;").Error)
	require.NoError(t, db.Create(&model.AuditLog{Id: uuid.NewString(), Action: model.ActionLogin, Timestamp: time.Now()}).Error)
	assert.NotPanics(t, NewCheckpointJob(db).Run)

	var count int64
	require.NoError(t, db.Model(&model.AuditLog{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}
