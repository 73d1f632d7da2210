package subdoc

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Status is the outcome of one operation or of a whole batch.
type Status uint8

const (
	StatusSuccess Status = iota
	StatusKeyNotFound
	StatusKeyExists
	StatusPathNotFound
	StatusPathMismatch
	StatusPathInvalid
	StatusPathExists
	StatusInvalidValue
	StatusNumberTooBig
	StatusInvalidCombo
	StatusDocNotJSON
	StatusMultiPathFailure
	StatusInternal
)

var statusNames = [...]string{
	StatusSuccess:          "SUCCESS",
	StatusKeyNotFound:      "KEY_ENOENT",
	StatusKeyExists:        "KEY_EEXISTS",
	StatusPathNotFound:     "PATH_ENOENT",
	StatusPathMismatch:     "PATH_MISMATCH",
	StatusPathInvalid:      "PATH_EINVAL",
	StatusPathExists:       "PATH_EEXISTS",
	StatusInvalidValue:     "VALUE_EINVAL",
	StatusNumberTooBig:     "NUM_E2BIG",
	StatusInvalidCombo:     "INVALID_COMBO",
	StatusDocNotJSON:       "DOC_NOTJSON",
	StatusMultiPathFailure: "MULTI_PATH_FAILURE",
	StatusInternal:         "INTERNAL",
}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("Status(%d)", uint8(s))
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// StatusOf classifies err. A nil error is StatusSuccess.
func StatusOf(err error) Status {
	switch {
	case err == nil:
		return StatusSuccess
	case errors.Is(err, ErrPathNotFound):
		return StatusPathNotFound
	case errors.Is(err, ErrPathMismatch):
		return StatusPathMismatch
	case errors.Is(err, ErrPathInvalid):
		return StatusPathInvalid
	case errors.Is(err, ErrPathExists):
		return StatusPathExists
	case errors.Is(err, ErrInvalidValue):
		return StatusInvalidValue
	case errors.Is(err, ErrNumberTooBig):
		return StatusNumberTooBig
	case errors.Is(err, ErrInvalidCombo):
		return StatusInvalidCombo
	case errors.Is(err, ErrDocNotJSON):
		return StatusDocNotJSON
	case errors.Is(err, ErrKeyNotFound):
		return StatusKeyNotFound
	case errors.Is(err, ErrCASMismatch):
		return StatusKeyExists
	}
	return StatusInternal
}

// OpResult is the outcome of one spec.
type OpResult struct {
	Index  int             `json:"index"`
	Status Status          `json:"status"`
	Value  json.RawMessage `json:"value,omitempty"`

	// Err carries the detailed failure for logging; it is not serialized.
	Err error `json:"-"`
}

// BatchResult is the outcome of a batch.
//
// Lookups carry one OpResult per spec. A failed mutation carries only the
// failing op and sets FailedIndex; a successful one carries the ops that
// report a value (counters) along with the new CAS.
type BatchResult struct {
	Status      Status     `json:"status"`
	Results     []OpResult `json:"results,omitempty"`
	FailedIndex int        `json:"failed_index"`
	CAS         uint64     `json:"cas,omitempty"`
	Seqno       uint64     `json:"seqno,omitempty"`
}

func batchStatus(status Status) BatchResult {
	return BatchResult{Status: status, FailedIndex: -1}
}

// OK reports whether the batch succeeded as a whole.
func (r BatchResult) OK() bool { return r.Status == StatusSuccess }

// Failed returns the failing op of an aborted mutation batch.
func (r BatchResult) Failed() (OpResult, bool) {
	if r.FailedIndex < 0 {
		return OpResult{}, false
	}
	for _, op := range r.Results {
		if op.Index == r.FailedIndex {
			return op, true
		}
	}
	return OpResult{}, false
}

func aggregateLookup(results []OpResult) BatchResult {
	res := BatchResult{Status: StatusSuccess, Results: results, FailedIndex: -1}
	for _, op := range results {
		if op.Status != StatusSuccess {
			res.Status = StatusMultiPathFailure
			break
		}
	}
	return res
}

func abortMutation(specs int, failed OpResult) BatchResult {
	res := BatchResult{
		Status:      StatusMultiPathFailure,
		Results:     []OpResult{failed},
		FailedIndex: failed.Index,
	}
	if specs == 1 {
		res.Status = failed.Status
	}
	return res
}
