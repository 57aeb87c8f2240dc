package tagsvc

import (
	"time"

	"github.com/atharvakhole/modgate/gwerr"
)

// StatusSuccess and StatusError surface as plain strings at the
// transport boundary, per-tag failure is never an exception to the
// caller — it's a status field on the result.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// TagReadResult is the outcome of one read_tag call.
type TagReadResult struct {
	TagName      string    `json:"tag_name"`
	Status       string    `json:"status"`
	Value        any       `json:"value,omitempty"`
	Registers    []uint16  `json:"registers,omitempty"`
	Bits         []bool    `json:"bits,omitempty"`
	ErrorKind    string    `json:"error_type,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// TagWriteResult is the outcome of one write_tag call.
type TagWriteResult struct {
	TagName      string    `json:"tag_name"`
	Status       string    `json:"status"`
	Value        any       `json:"value,omitempty"`
	ErrorKind    string    `json:"error_type,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// BulkReadResponse aggregates per-tag read results for one read_many
// call.
type BulkReadResponse struct {
	PLCID           string          `json:"plc_id"`
	TotalRequested  int             `json:"total_requested"`
	SuccessfulCount int             `json:"successful_count"`
	FailedCount     int             `json:"failed_count"`
	Results         []TagReadResult `json:"results"`
	OverallStatus   string          `json:"overall_status"`
	Timestamp       time.Time       `json:"timestamp"`
}

// BulkWriteResponse aggregates per-tag write results for one
// write_many call.
type BulkWriteResponse struct {
	PLCID           string           `json:"plc_id"`
	TotalRequested  int              `json:"total_requested"`
	SuccessfulCount int              `json:"successful_count"`
	FailedCount     int              `json:"failed_count"`
	Results         []TagWriteResult `json:"results"`
	OverallStatus   string           `json:"overall_status"`
	Timestamp       time.Time        `json:"timestamp"`
}

func errResult(err error) (kind, message string) {
	return gwerr.Of(err).String(), err.Error()
}

// overallStatus rolls successful/total counts into the
// success/partial_success/failed tri-state §4.6 bulk fan-out reports.
func overallStatus(successful, total int) string {
	switch {
	case total == 0 || successful == total:
		return StatusSuccess
	case successful == 0:
		return "failed"
	default:
		return "partial_success"
	}
}
