package jobs

import (
	"context"
	"time"

	"github.com/beepi/vehicle-lookup-backend/database"
	"github.com/sirupsen/logrus"
)

// LogCleanupJob prunes lookup log rows older than the retention window.
type LogCleanupJob struct {
	Logs          *database.LogRepository
	RetentionDays int
}

func NewLogCleanupJob(logs *database.LogRepository, retentionDays int) *LogCleanupJob {
	return &LogCleanupJob{Logs: logs, RetentionDays: retentionDays}
}

func (j *LogCleanupJob) Run() {
	logrus.Info("Starting Log Cleanup Job")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	deleted, err := j.Logs.CleanupOldLogs(ctx, j.RetentionDays)
	if err != nil {
		logrus.WithError(err).Error("Log Cleanup Job failed")
		return
	}
	logrus.WithFields(logrus.Fields{
		"deleted_rows":   deleted,
		"retention_days": j.RetentionDays,
	}).Info("Log Cleanup Job completed")
}
