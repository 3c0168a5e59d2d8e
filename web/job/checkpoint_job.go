package job

import (
	"github.com/memberpanel/memberpanel/database"
	"github.com/memberpanel/memberpanel/logger"
	"github.com/memberpanel/memberpanel/util/common"

	"gorm.io/gorm"
)

// CheckpointJob flushes the sqlite write-ahead log into the database file.
type CheckpointJob struct {
	db *gorm.DB
}

func NewCheckpointJob(db *gorm.DB) *CheckpointJob {
	return &CheckpointJob{db: db}
}

func (j *CheckpointJob) Run() {
	defer common.Recover("checkpoint job")

	if err := database.Checkpoint(j.db); err != nil {
		logger.Warning("checkpoint job err:", err)
	}
}
