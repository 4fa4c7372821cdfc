package analytics

import (
	"errors"

	"github.com/tabquery/tabquery/internal/catalog"
	"github.com/tabquery/tabquery/internal/history"
	"github.com/tabquery/tabquery/internal/ingest"
	"github.com/tabquery/tabquery/internal/nl2sql"
	"github.com/tabquery/tabquery/internal/query"
)

// ErrorKind is the stable failure category stored on failed queries and
// returned by the HTTP API.
type ErrorKind string

const (
	KindIngestion        ErrorKind = "ingestion_error"
	KindTranslation      ErrorKind = "translation_error"
	KindExecution        ErrorKind = "execution_error"
	KindExecutionTimeout ErrorKind = "execution_timeout"
	KindNotFound         ErrorKind = "not_found"
	KindInternal         ErrorKind = "internal_error"
)

// Classify maps an error to its kind. Errors outside the known taxonomy are
// KindInternal.
func Classify(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, query.ErrExecutionTimeout):
		return KindExecutionTimeout
	case errors.Is(err, query.ErrExecution):
		return KindExecution
	case errors.Is(err, nl2sql.ErrTranslation):
		return KindTranslation
	case errors.Is(err, ingest.ErrIngestion):
		return KindIngestion
	case errors.Is(err, catalog.ErrNotFound), errors.Is(err, history.ErrNotFound):
		return KindNotFound
	default:
		return KindInternal
	}
}

// UserMessage is the guidance shown for a failure kind.
func UserMessage(kind ErrorKind) string {
	switch kind {
	case KindIngestion:
		return "the file could not be read; check that it is a valid CSV or XLSX file with a header row"
	case KindTranslation:
		return "could not understand the question; try rephrasing it"
	case KindExecution:
		return "the query failed to run"
	case KindExecutionTimeout:
		return "the query took too long; try again later or narrow the question"
	case KindNotFound:
		return "the requested dataset or query does not exist"
	default:
		return "something went wrong; try again later"
	}
}

// expected reports whether a failure is recorded on the query instead of
// being returned from Ask.
func (k ErrorKind) expected() bool {
	switch k {
	case KindTranslation, KindExecution, KindExecutionTimeout, KindNotFound:
		return true
	default:
		return false
	}
}

func failureMessage(kind ErrorKind, err error) string {
	if kind == KindExecution {
		return UserMessage(kind) + ": " + err.Error()
	}
	return UserMessage(kind)
}
