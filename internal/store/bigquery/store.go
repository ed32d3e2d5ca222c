// Package bigquery persists transactions and assistant conversations in a
// BigQuery dataset.
package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"github.com/rs/zerolog"

	"github.com/nmorozov/kopilka/internal/config"
)

const (
	transactionsTable  = "transactions"
	conversationsTable = "conversations"
)

// Store wraps a BigQuery client scoped to one project and dataset. Safe for
// concurrent use.
type Store struct {
	client    *bigquery.Client
	projectID string
	datasetID string
	log       zerolog.Logger
}

// NewStore creates a store connected to the configured dataset.
func NewStore(ctx context.Context, cfg config.BigQueryConfig, log zerolog.Logger) (*Store, error) {
	client, err := bigquery.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("store: bigquery client: %w", err)
	}

	return &Store{
		client:    client,
		projectID: cfg.ProjectID,
		datasetID: cfg.DatasetID,
		log:       log,
	}, nil
}

// NewStoreWithClient wraps an existing client; used by tests and tools that
// manage the client lifecycle themselves.
func NewStoreWithClient(client *bigquery.Client, cfg config.BigQueryConfig, log zerolog.Logger) *Store {
	return &Store{
		client:    client,
		projectID: cfg.ProjectID,
		datasetID: cfg.DatasetID,
		log:       log,
	}
}

func (s *Store) Close() error {
	return s.client.Close()
}

// table returns a handle with the fully qualified table name to avoid
// default-project surprises.
func (s *Store) table(name string) *bigquery.Table {
	return s.client.DatasetInProject(s.projectID, s.datasetID).Table(name)
}

// tableRef renders `project.dataset.name` for use inside query text.
func (s *Store) tableRef(name string) string {
	return "`" + s.projectID + "." + s.datasetID + "." + name + "`"
}

// runDML executes a DML statement and waits for the job to finish.
func (s *Store) runDML(ctx context.Context, q *bigquery.Query) error {
	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("run query: %w", err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("wait for job: %w", err)
	}

	if err := status.Err(); err != nil {
		return fmt.Errorf("job error: %w", err)
	}

	return nil
}
