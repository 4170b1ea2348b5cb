package app

import (
	"fmt"
	"strings"

	"github.com/yungbote/docquiz-backend/internal/data/db"
	"github.com/yungbote/docquiz-backend/internal/data/repos"
	"github.com/yungbote/docquiz-backend/internal/data/repos/learning"
)

type VectorStoreConfigError struct {
	Kind   string
	Driver string
	Cause  error
}

func (e *VectorStoreConfigError) Error() string {
	if e == nil {
		return "invalid vector store config"
	}
	return fmt.Sprintf("invalid vector store config (kind=%q driver=%q): %v", e.Kind, e.Driver, e.Cause)
}

func (e *VectorStoreConfigError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// resolveVectorStore picks the embedding column backend. The pgvector column
// needs Postgres; SQLite always gets the serialized text column.
func resolveVectorStore(kind, driver string) (repos.VectorStore, error) {
	kind = strings.ToLower(strings.TrimSpace(kind))
	driver = strings.ToLower(strings.TrimSpace(driver))
	if kind == learning.VectorStoreNative && driver == db.DriverSQLite {
		return nil, &VectorStoreConfigError{
			Kind:   kind,
			Driver: driver,
			Cause:  fmt.Errorf("VECTOR_STORE=native requires DB_DRIVER=postgres"),
		}
	}
	store, err := repos.NewVectorStore(kind)
	if err != nil {
		return nil, &VectorStoreConfigError{Kind: kind, Driver: driver, Cause: err}
	}
	return store, nil
}
