package maintenance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/tabquery/tabquery/internal/catalog"
	"github.com/tabquery/tabquery/internal/storage"
)

type Catalog interface {
	ListDatasets(ctx context.Context, limit int) ([]catalog.Dataset, error)
	ListDatasetsCreatedBefore(ctx context.Context, cutoff time.Time, limit int) ([]catalog.Dataset, error)
	GetSchema(ctx context.Context, datasetID string) (catalog.Schema, error)
	Delete(ctx context.Context, datasetID string) ([]string, error)
}

type Config struct {
	IntegrityInterval time.Duration
	IntegrityLimit    int
	// VerifyRowCounts downloads each table and compares its Parquet row
	// count with the catalog.
	VerifyRowCounts   bool
	RetentionInterval time.Duration
	// RetentionAge of zero disables retention.
	RetentionAge   time.Duration
	RetentionBatch int
	WorkDir        string
}

type Service struct {
	Catalog     Catalog
	ObjectStore storage.ObjectStore
	Config      Config
	Logger      *slog.Logger
	Clock       func() time.Time
}

type RetentionSummary struct {
	Cutoff          time.Time `json:"cutoff"`
	DatasetsExpired int       `json:"datasets_expired"`
	DatasetsDeleted int       `json:"datasets_deleted"`
	ObjectsDeleted  int       `json:"objects_deleted"`
	Failures        int       `json:"failures"`
}

type IntegritySummary struct {
	DatasetsScanned     int `json:"datasets_scanned"`
	TablesChecked       int `json:"tables_checked"`
	MissingFiles        int `json:"missing_files"`
	SizeMismatchFiles   int `json:"size_mismatch_files"`
	RowCountMismatches  int `json:"row_count_mismatches"`
	OperationalFailures int `json:"operational_failures"`
}

func (s *Service) Run(ctx context.Context) error {
	s.ensureDefaults()

	integrityTicker := time.NewTicker(s.Config.IntegrityInterval)
	defer integrityTicker.Stop()
	retentionTicker := time.NewTicker(s.Config.RetentionInterval)
	defer retentionTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-integrityTicker.C:
			summary, err := s.RunIntegrityCheckOnce(ctx, "")
			if err != nil {
				s.Logger.ErrorContext(ctx, "integrity cycle failed", slog.Any("error", err), slog.Any("summary", summary))
				continue
			}
			s.Logger.InfoContext(ctx, "integrity cycle completed", slog.Any("summary", summary))
		case <-retentionTicker.C:
			if s.Config.RetentionAge <= 0 {
				continue
			}
			summary, err := s.RunRetentionOnce(ctx)
			if err != nil {
				s.Logger.ErrorContext(ctx, "retention cycle failed", slog.Any("error", err), slog.Any("summary", summary))
				continue
			}
			s.Logger.InfoContext(ctx, "retention cycle completed", slog.Any("summary", summary))
		}
	}
}

// RunRetentionOnce deletes datasets created before now minus RetentionAge,
// catalog first, then their objects. Query history is left in place.
func (s *Service) RunRetentionOnce(ctx context.Context) (RetentionSummary, error) {
	s.ensureDefaults()
	if s.Catalog == nil {
		return RetentionSummary{}, fmt.Errorf("catalog is required")
	}
	if s.ObjectStore == nil {
		return RetentionSummary{}, fmt.Errorf("object store is required")
	}
	if s.Config.RetentionAge <= 0 {
		return RetentionSummary{}, fmt.Errorf("retention age is not configured")
	}

	summary := RetentionSummary{Cutoff: s.Clock().Add(-s.Config.RetentionAge).UTC()}
	datasets, err := s.Catalog.ListDatasetsCreatedBefore(ctx, summary.Cutoff, s.Config.RetentionBatch)
	if err != nil {
		retentionRunsTotal.WithLabelValues("failed").Inc()
		return summary, fmt.Errorf("list expired datasets: %w", err)
	}
	summary.DatasetsExpired = len(datasets)

	failures := make([]string, 0)
	for _, dataset := range datasets {
		paths, err := s.Catalog.Delete(ctx, dataset.DatasetID)
		if err != nil {
			if errors.Is(err, catalog.ErrNotFound) {
				continue
			}
			summary.Failures++
			failures = append(failures, fmt.Sprintf("dataset %s delete: %v", dataset.DatasetID, err))
			continue
		}
		summary.DatasetsDeleted++
		for _, path := range paths {
			if err := s.ObjectStore.Delete(ctx, path); err != nil {
				summary.Failures++
				failures = append(failures, fmt.Sprintf("dataset %s delete object %s: %v", dataset.DatasetID, path, err))
				continue
			}
			summary.ObjectsDeleted++
		}
	}

	if summary.DatasetsDeleted > 0 {
		retentionDatasetsDeletedTotal.Add(float64(summary.DatasetsDeleted))
	}
	if len(failures) > 0 {
		retentionRunsTotal.WithLabelValues("failed").Inc()
		return summary, fmt.Errorf("retention encountered %d failure(s): %s", len(failures), strings.Join(failures, "; "))
	}
	retentionRunsTotal.WithLabelValues("completed").Inc()
	return summary, nil
}

// RunIntegrityCheckOnce verifies that every table of the scanned datasets has
// its Parquet object with the catalogued size and, when enabled, row count.
// An empty datasetID scans the newest IntegrityLimit datasets.
func (s *Service) RunIntegrityCheckOnce(ctx context.Context, datasetID string) (IntegritySummary, error) {
	s.ensureDefaults()
	if s.Catalog == nil {
		return IntegritySummary{}, fmt.Errorf("catalog is required")
	}
	if s.ObjectStore == nil {
		return IntegritySummary{}, fmt.Errorf("object store is required")
	}

	datasetIDs, err := s.targetDatasets(ctx, datasetID)
	if err != nil {
		return IntegritySummary{}, err
	}
	summary := IntegritySummary{}
	const maxIssueSamples = 20
	issueSamples := make([]string, 0, maxIssueSamples)
	issueCount := 0
	addIssue := func(message string) {
		issueCount++
		if len(issueSamples) < maxIssueSamples {
			issueSamples = append(issueSamples, message)
		}
	}

	for _, id := range datasetIDs {
		schema, err := s.Catalog.GetSchema(ctx, id)
		if err != nil {
			if errors.Is(err, catalog.ErrNotFound) && datasetID == "" {
				continue
			}
			summary.OperationalFailures++
			addIssue(fmt.Sprintf("dataset %s schema: %v", id, err))
			continue
		}
		summary.DatasetsScanned++

		for _, table := range schema.Tables {
			summary.TablesChecked++
			info, err := s.ObjectStore.Stat(ctx, table.ObjectPath)
			if err != nil {
				if errors.Is(err, storage.ErrObjectNotFound) {
					summary.MissingFiles++
					addIssue(fmt.Sprintf("dataset %s table %s missing file %s", id, table.Name, table.ObjectPath))
					continue
				}
				summary.OperationalFailures++
				addIssue(fmt.Sprintf("dataset %s stat file %s: %v", id, table.ObjectPath, err))
				continue
			}
			if info.Size != table.FileSizeBytes {
				summary.SizeMismatchFiles++
				addIssue(fmt.Sprintf("dataset %s size mismatch for %s (expected=%d actual=%d)", id, table.ObjectPath, table.FileSizeBytes, info.Size))
				continue
			}
			if !s.Config.VerifyRowCounts {
				continue
			}
			rows, err := s.countRows(ctx, table.ObjectPath)
			if err != nil {
				summary.OperationalFailures++
				addIssue(fmt.Sprintf("dataset %s read %s: %v", id, table.ObjectPath, err))
				continue
			}
			if rows != table.RowCount {
				summary.RowCountMismatches++
				addIssue(fmt.Sprintf("dataset %s row count mismatch for %s (expected=%d actual=%d)", id, table.Name, table.RowCount, rows))
			}
		}
	}

	if summary.TablesChecked > 0 {
		integrityTablesCheckedTotal.Add(float64(summary.TablesChecked))
	}
	problems := summary.MissingFiles + summary.SizeMismatchFiles + summary.RowCountMismatches
	if problems > 0 {
		integrityProblemsTotal.Add(float64(problems))
	}
	if problems > 0 || summary.OperationalFailures > 0 {
		integrityRunsTotal.WithLabelValues("failed").Inc()
		extra := issueCount - len(issueSamples)
		if extra > 0 {
			return summary, fmt.Errorf("integrity check found %d issue(s): %s; ... plus %d more", issueCount, strings.Join(issueSamples, "; "), extra)
		}
		return summary, fmt.Errorf("integrity check found %d issue(s): %s", issueCount, strings.Join(issueSamples, "; "))
	}
	integrityRunsTotal.WithLabelValues("completed").Inc()
	return summary, nil
}

func (s *Service) countRows(ctx context.Context, objectPath string) (int64, error) {
	workDir, err := os.MkdirTemp(s.Config.WorkDir, "tabquery-integrity-")
	if err != nil {
		return 0, fmt.Errorf("create integrity temp dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(workDir) }()

	localPath := filepath.Join(workDir, "table.parquet")
	if err := s.ObjectStore.GetFile(ctx, objectPath, localPath); err != nil {
		return 0, err
	}
	file, err := os.Open(localPath)
	if err != nil {
		return 0, err
	}
	defer func() { _ = file.Close() }()
	stat, err := file.Stat()
	if err != nil {
		return 0, err
	}
	pf, err := parquet.OpenFile(file, stat.Size())
	if err != nil {
		return 0, fmt.Errorf("open parquet: %w", err)
	}
	return pf.NumRows(), nil
}

func (s *Service) targetDatasets(ctx context.Context, datasetID string) ([]string, error) {
	if id := strings.TrimSpace(datasetID); id != "" {
		return []string{id}, nil
	}
	datasets, err := s.Catalog.ListDatasets(ctx, s.Config.IntegrityLimit)
	if err != nil {
		return nil, fmt.Errorf("list datasets: %w", err)
	}
	ids := make([]string, len(datasets))
	for i, dataset := range datasets {
		ids[i] = dataset.DatasetID
	}
	return ids, nil
}

func (s *Service) ensureDefaults() {
	if s.Clock == nil {
		s.Clock = time.Now
	}
	if s.Logger == nil {
		s.Logger = slog.Default()
	}
	if s.Config.IntegrityInterval <= 0 {
		s.Config.IntegrityInterval = 10 * time.Minute
	}
	if s.Config.IntegrityLimit <= 0 {
		s.Config.IntegrityLimit = 200
	}
	if s.Config.RetentionInterval <= 0 {
		s.Config.RetentionInterval = time.Hour
	}
	if s.Config.RetentionBatch <= 0 {
		s.Config.RetentionBatch = 100
	}
}
