package models

import "time"

// BatchRunning marks a dispatch run that has not settled yet.
const BatchRunning BatchStatus = "running"

// DispatchRun is the operational record of one dispatch batch.
type DispatchRun struct {
	ID           int64       `json:"id" db:"id"`
	BatchID      string      `json:"batch_id" db:"batch_id"`
	ProductID    string      `json:"product_id" db:"product_id"`
	Regions      string      `json:"regions" db:"regions"`
	StartedAt    time.Time   `json:"started_at" db:"started_at"`
	FinishedAt   *time.Time  `json:"finished_at" db:"finished_at"`
	Status       BatchStatus `json:"status" db:"status"`
	Succeeded    int         `json:"succeeded" db:"succeeded"`
	Failed       int         `json:"failed" db:"failed"`
	Unavailable  int         `json:"unavailable" db:"unavailable"`
	PersistError string      `json:"persist_error" db:"persist_error"`
}
