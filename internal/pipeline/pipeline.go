// Package pipeline orchestrates ingestion of one specification file:
// parse, normalize, persist, index. Stages run strictly in order and
// completed stages are compensated in reverse when a later stage fails.
package pipeline

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"time"

	"openapi-mcp-server/internal/category"
	"openapi-mcp-server/internal/config"
	"openapi-mcp-server/internal/consistency"
	srverrors "openapi-mcp-server/internal/errors"
	"openapi-mcp-server/internal/logging"
	"openapi-mcp-server/internal/normalize"
	"openapi-mcp-server/internal/parser"
	"openapi-mcp-server/internal/search"
	"openapi-mcp-server/internal/storage/repository"
)

// StageResult records the outcome of one pipeline stage.
type StageResult struct {
	Stage    string        `json:"stage"`
	Success  bool          `json:"success"`
	Errors   int           `json:"errors"`
	Warnings int           `json:"warnings"`
	Duration time.Duration `json:"duration"`
}

// Report summarizes one completed ingestion.
type Report struct {
	FilePath         string          `json:"file_path"`
	FileHash         string          `json:"file_hash"`
	APIID            int64           `json:"api_id"`
	Title            string          `json:"title"`
	Version          string          `json:"version"`
	Skipped          bool            `json:"skipped"`
	EndpointCount    int             `json:"endpoint_count"`
	SchemaCount      int             `json:"schema_count"`
	SecurityCount    int             `json:"security_scheme_count"`
	IndexedDocuments int             `json:"indexed_documents"`
	ConsistencyScore float64         `json:"consistency_score"`
	Stages           []StageResult   `json:"stages"`
	Warnings         []string        `json:"warnings,omitempty"`
	ParseMetrics     *parser.Metrics `json:"parse_metrics,omitempty"`
	Took             time.Duration   `json:"took"`
}

// Pipeline wires the ingestion stages over one database.
type Pipeline struct {
	cfg        *config.Config
	db         *sql.DB
	parser     *parser.StreamParser
	normalizer *normalize.Normalizer
	apis       *repository.APIRepository
	endpoints  *repository.EndpointRepository
	schemas    *repository.SchemaRepository
	schemes    *repository.SecuritySchemeRepository
	index      *search.IndexManager
	logger     logging.Logger
	onProgress parser.ProgressFunc
}

// New creates a pipeline over an open database.
func New(cfg *config.Config, db *sql.DB, logger logging.Logger) *Pipeline {
	if logger == nil {
		logger = logging.NoOp()
	}
	return &Pipeline{
		cfg:        cfg,
		db:         db,
		parser:     parser.NewStreamParser(cfg.Parser, logger),
		normalizer: normalize.New(logger),
		apis:       repository.NewAPIRepository(db),
		endpoints:  repository.NewEndpointRepository(db),
		schemas:    repository.NewSchemaRepository(db),
		schemes:    repository.NewSecuritySchemeRepository(db),
		index:      search.NewIndexManager(db, cfg.Search.IndexBatchSize, logger),
		logger:     logger.WithComponent("pipeline"),
	}
}

// OnProgress registers a callback for parse progress events.
func (p *Pipeline) OnProgress(fn parser.ProgressFunc) {
	p.onProgress = fn
	p.parser.OnProgress(fn)
}

type stageFunc func(ctx context.Context) error

func (p *Pipeline) runStage(ctx context.Context, report *Report, name string, fn stageFunc) error {
	start := time.Now()
	err := fn(ctx)
	res := StageResult{Stage: name, Success: err == nil, Duration: time.Since(start)}
	if err != nil {
		res.Errors = 1
	}
	report.Stages = append(report.Stages, res)
	return err
}

// Ingest runs the full pipeline for one specification file. A file whose
// content hash is already in the store is skipped, not re-ingested.
func (p *Pipeline) Ingest(ctx context.Context, path string) (*Report, error) {
	start := time.Now()
	report := &Report{FilePath: path}

	hash, err := fileHash(path)
	if err != nil {
		return report, err
	}
	report.FileHash = hash

	existing, err := p.apis.GetByHash(ctx, hash)
	if err != nil {
		return report, err
	}
	if existing != nil {
		report.Skipped = true
		report.APIID = existing.ID
		report.Title = existing.Title
		report.Version = existing.Version
		p.logger.InfoContext(ctx, "specification already ingested",
			"path", path, "api_id", existing.ID)
		return report, nil
	}

	var root *parser.Object
	if err := p.runStage(ctx, report, "parse", func(ctx context.Context) error {
		var metrics *parser.Metrics
		var err error
		root, metrics, err = p.parser.ParseFile(ctx, path)
		if err != nil {
			return err
		}
		report.ParseMetrics = metrics

		structure := parser.ValidateStructure(root, parser.ValidateConfig{
			MaxErrors: p.cfg.Parser.MaxErrors,
			Strict:    p.cfg.Parser.StrictMode,
		})
		for _, w := range structure.Warnings {
			report.Warnings = append(report.Warnings, w.Error())
		}
		if !structure.Valid() {
			return srverrors.New(srverrors.CodeStructureValidation,
				fmt.Sprintf("document structure is invalid: %s", structure.Errors[0].Error())).
				WithDetail("error_count", len(structure.Errors))
		}
		return nil
	}); err != nil {
		return report, err
	}

	var normalized *normalize.Result
	if err := p.runStage(ctx, report, "normalize", func(ctx context.Context) error {
		normalized = p.normalizer.Normalize(ctx, root)
		for _, w := range normalized.Warnings {
			report.Warnings = append(report.Warnings, w.Error())
		}
		if len(normalized.Errors) > 0 {
			return srverrors.New(srverrors.CodeValidation,
				fmt.Sprintf("normalization failed: %s", normalized.Errors[0].Error())).
				WithDetail("error_count", len(normalized.Errors))
		}

		category.Build(root, normalized.Endpoints)
		consistencyReport := consistency.Analyze(normalized.Endpoints, normalized.Schemas, normalized.SecuritySchemes)
		report.ConsistencyScore = consistencyReport.Score
		return nil
	}); err != nil {
		return report, err
	}

	if err := p.runStage(ctx, report, "persist", func(ctx context.Context) error {
		return p.persist(ctx, path, hash, normalized, report)
	}); err != nil {
		return report, err
	}

	if p.cfg.Pipeline.BuildIndex {
		if err := p.runStage(ctx, report, "index", func(ctx context.Context) error {
			indexed, err := p.index.CreateFromStore(ctx, report.APIID)
			report.IndexedDocuments = indexed
			return err
		}); err != nil {
			p.rollback(ctx, report)
			return report, err
		}
		if p.cfg.Pipeline.ValidateIntegrity {
			if err := p.runStage(ctx, report, "verify", func(ctx context.Context) error {
				integrity, err := p.index.ValidateIntegrity(ctx)
				if err != nil {
					return err
				}
				if !integrity.Consistent() {
					return srverrors.New(srverrors.CodeDataIntegrity, "search index does not match the store").
						WithDetail("missing", len(integrity.Missing)).
						WithDetail("orphaned", len(integrity.Orphaned))
				}
				return nil
			}); err != nil {
				p.rollback(ctx, report)
				return report, err
			}
		}
	}

	report.Took = time.Since(start)
	p.logger.InfoContext(ctx, "ingestion complete",
		"path", path,
		"api_id", report.APIID,
		"endpoints", report.EndpointCount,
		"schemas", report.SchemaCount,
		"consistency_score", report.ConsistencyScore,
		"took_ms", report.Took.Milliseconds())
	return report, nil
}

// persist writes metadata, endpoints, schemas and security schemes in one
// transaction. Child rows carry the api id assigned to the metadata row.
func (p *Pipeline) persist(ctx context.Context, path, hash string, normalized *normalize.Result, report *Report) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return srverrors.Wrap(srverrors.CodeDatabaseConnection, "failed to begin ingest transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	md := normalized.Metadata
	md.FilePath = path
	md.FileHash = hash
	md.IngestedAt = time.Now().UTC()
	if err := p.apis.Create(ctx, tx, &md); err != nil {
		return err
	}

	for _, ep := range normalized.Endpoints {
		ep.APIID = md.ID
	}
	for _, s := range normalized.Schemas {
		s.APIID = md.ID
	}
	for _, s := range normalized.SecuritySchemes {
		s.APIID = md.ID
	}
	if err := p.endpoints.CreateMany(ctx, tx, normalized.Endpoints); err != nil {
		return err
	}
	if err := p.schemas.CreateMany(ctx, tx, normalized.Schemas); err != nil {
		return err
	}
	if err := p.schemes.CreateMany(ctx, tx, normalized.SecuritySchemes); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return srverrors.Wrap(srverrors.CodeDatabaseConnection, "failed to commit ingest transaction", err)
	}

	report.APIID = md.ID
	report.Title = md.Title
	report.Version = md.Version
	report.EndpointCount = len(normalized.Endpoints)
	report.SchemaCount = len(normalized.Schemas)
	report.SecurityCount = len(normalized.SecuritySchemes)
	return nil
}

// rollback compensates a committed persist stage after an index failure.
// Deleting the metadata row cascades to endpoints, schemas and schemes;
// index rows for those endpoints go with it.
func (p *Pipeline) rollback(ctx context.Context, report *Report) {
	if report.APIID == 0 {
		return
	}
	if err := p.index.RemoveAPI(ctx, report.APIID); err != nil {
		p.logger.ErrorContext(ctx, "rollback failed to clear index rows",
			"api_id", report.APIID, "error", err)
	}
	if err := p.apis.Delete(ctx, report.APIID); err != nil {
		p.logger.ErrorContext(ctx, "rollback failed to delete specification",
			"api_id", report.APIID, "error", err)
		return
	}
	report.APIID = 0
	p.logger.WarnContext(ctx, "ingestion rolled back", "path", report.FilePath)
}

// BatchReport aggregates the outcome of a multi-file ingestion.
type BatchReport struct {
	Reports  []*Report        `json:"reports"`
	Failures map[string]error `json:"-"`
	Took     time.Duration    `json:"took"`
}

// Succeeded counts reports that persisted or were deduplicated.
func (b *BatchReport) Succeeded() int {
	return len(b.Reports)
}

// IngestBatch ingests files with bounded concurrency. Failures do not stop
// the batch; each failed path maps to its error in the report.
func (p *Pipeline) IngestBatch(ctx context.Context, paths []string) *BatchReport {
	start := time.Now()
	batch := &BatchReport{Failures: map[string]error{}}

	concurrency := p.cfg.Pipeline.BatchConcurrency
	if concurrency < 1 {
		concurrency = 1
	}
	sem := make(chan struct{}, concurrency)
	type outcome struct {
		path   string
		report *Report
		err    error
	}
	results := make(chan outcome, len(paths))

	for _, path := range paths {
		go func(path string) {
			sem <- struct{}{}
			defer func() { <-sem }()
			report, err := p.Ingest(ctx, path)
			results <- outcome{path: path, report: report, err: err}
		}(path)
	}

	for range paths {
		out := <-results
		if out.err != nil {
			batch.Failures[out.path] = out.err
			continue
		}
		batch.Reports = append(batch.Reports, out.report)
	}
	batch.Took = time.Since(start)
	p.logger.Info("batch ingestion finished",
		"files", len(paths),
		"succeeded", batch.Succeeded(),
		"failed", len(batch.Failures),
		"took_ms", batch.Took.Milliseconds())
	return batch
}

// fileHash returns the hex SHA-256 of a file's contents.
func fileHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", srverrors.New(srverrors.CodeFileNotFound,
				fmt.Sprintf("specification file %q does not exist", path))
		}
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
