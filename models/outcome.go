package models

import (
	"errors"
	"fmt"
)

type OutcomeStatus string

const (
	StatusSuccess     OutcomeStatus = "success"
	StatusUnavailable OutcomeStatus = "unavailable"
	StatusFailed      OutcomeStatus = "failed"
)

// Valid reports whether s is one of the three known statuses.
func (s OutcomeStatus) Valid() bool {
	switch s {
	case StatusSuccess, StatusUnavailable, StatusFailed:
		return true
	}
	return false
}

// FailureKind classifies why an outcome failed, for caller-level retry policy.
type FailureKind string

const (
	FailureTimeout   FailureKind = "timeout"
	FailureExit      FailureKind = "exit"
	FailureMalformed FailureKind = "malformed"
	FailureSpawn     FailureKind = "spawn"
	FailureCanceled  FailureKind = "canceled"
	FailurePanic     FailureKind = "panic"
	FailureReported  FailureKind = "reported" // worker itself returned status=failed
)

// Error messages shared by every invoker implementation.
const (
	MsgTimeoutExceeded  = "timeout exceeded"
	MsgMalformedOutput  = "malformed worker output"
	MsgDispatchCanceled = "dispatch canceled"
)

// WorkerOutcome is the result of one (product id, region) dispatch attempt.
type WorkerOutcome struct {
	ProductID    string        `json:"productId"`
	Region       string        `json:"region"`
	Status       OutcomeStatus `json:"status"`
	Title        *string       `json:"title"`
	Price        *float64      `json:"price"`
	Currency     string        `json:"currency"`
	Seller       *string       `json:"seller"`
	ImageURL     *string       `json:"imageUrl"`
	SourceURL    *string       `json:"sourceUrl"`
	DataSource   string        `json:"dataSource"`
	ErrorMessage *string       `json:"errorMessage,omitempty"`
	Failure      FailureKind   `json:"failureKind,omitempty"`
	ElapsedMs    int64         `json:"elapsedMs"`
}

// FailedOutcome builds a failed outcome for region. Currency is taken from the
// region so failed rows can still be grouped downstream.
func FailedOutcome(productID string, region Region, kind FailureKind, msg string, elapsedMs int64) WorkerOutcome {
	return WorkerOutcome{
		ProductID:    productID,
		Region:       region.Code,
		Status:       StatusFailed,
		Currency:     region.Currency,
		DataSource:   region.Code + "_worker",
		ErrorMessage: &msg,
		Failure:      kind,
		ElapsedMs:    elapsedMs,
	}
}

// Priced reports whether the outcome carries a usable price.
func (o WorkerOutcome) Priced() bool {
	return o.Status == StatusSuccess && o.Price != nil && *o.Price > 0
}

// Validate checks the status invariants: success needs price and title,
// failed needs an error message.
func (o WorkerOutcome) Validate() error {
	if !o.Status.Valid() {
		return fmt.Errorf("unknown status %q", o.Status)
	}
	switch o.Status {
	case StatusSuccess:
		if o.Price == nil || o.Title == nil {
			return errors.New("success outcome without price or title")
		}
	case StatusFailed:
		if o.ErrorMessage == nil {
			return errors.New("failed outcome without error message")
		}
	}
	return nil
}

func (o WorkerOutcome) ErrorText() string {
	if o.ErrorMessage == nil {
		return ""
	}
	return *o.ErrorMessage
}
