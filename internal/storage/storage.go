package storage

import "tickpool/internal/model"

// Storage is a sink for raw log records produced by the index stage.
type Storage interface {
	PutLogBatch(logs []model.LogRecord) error
}
