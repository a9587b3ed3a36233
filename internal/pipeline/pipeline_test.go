package pipeline

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"openapi-mcp-server/internal/config"
	srverrors "openapi-mcp-server/internal/errors"
	"openapi-mcp-server/internal/parser"
	"openapi-mcp-server/internal/storage"
)

const petstoreSpec = `{
	"openapi": "3.0.3",
	"info": {"title": "Petstore", "version": "1.0.0"},
	"paths": {
		"/pets": {
			"get": {
				"operationId": "listPets",
				"summary": "List pets",
				"tags": ["Pets"],
				"responses": {"200": {"description": "A list of pets"}}
			},
			"post": {
				"operationId": "createPet",
				"summary": "Create a pet",
				"tags": ["Pets"],
				"requestBody": {
					"content": {"application/json": {"schema": {"$ref": "#/components/schemas/Pet"}}}
				},
				"responses": {
					"201": {"description": "Created"},
					"400": {"description": "Invalid input"}
				}
			}
		},
		"/pets/{petId}": {
			"get": {
				"operationId": "getPet",
				"summary": "Fetch a pet",
				"tags": ["Pets"],
				"parameters": [
					{"name": "petId", "in": "path", "required": true, "schema": {"type": "integer"}}
				],
				"responses": {"200": {"description": "A pet"}}
			}
		}
	},
	"components": {
		"schemas": {
			"Pet": {
				"type": "object",
				"properties": {
					"id": {"type": "integer"},
					"name": {"type": "string"},
					"owner": {"$ref": "#/components/schemas/Owner"}
				},
				"required": ["id", "name"]
			},
			"Owner": {
				"type": "object",
				"properties": {"name": {"type": "string"}}
			}
		},
		"securitySchemes": {
			"apiKey": {"type": "apiKey", "name": "X-API-Key", "in": "header"}
		}
	}
}`

func testPipeline(t *testing.T) (*Pipeline, *sql.DB) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Storage.DatabasePath = filepath.Join(t.TempDir(), "pipeline.db")

	engine, err := storage.Open(cfg.Storage, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close() })

	_, err = storage.NewMigrator(engine, nil).Up(context.Background(), false)
	require.NoError(t, err)
	return New(cfg, engine.DB(), nil), engine.DB()
}

func writeSpec(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestIngestPersistsAndIndexes(t *testing.T) {
	p, db := testPipeline(t)
	path := writeSpec(t, "petstore.json", petstoreSpec)

	report, err := p.Ingest(context.Background(), path)
	require.NoError(t, err)

	assert.False(t, report.Skipped)
	assert.NotZero(t, report.APIID)
	assert.Equal(t, "Petstore", report.Title)
	assert.Equal(t, 3, report.EndpointCount)
	assert.Equal(t, 2, report.SchemaCount)
	assert.Equal(t, 1, report.SecurityCount)
	assert.Equal(t, 3, report.IndexedDocuments)
	assert.Greater(t, report.ConsistencyScore, 0.0)
	assert.NotEmpty(t, report.FileHash)

	stages := make([]string, 0, len(report.Stages))
	for _, s := range report.Stages {
		assert.True(t, s.Success, s.Stage)
		stages = append(stages, s.Stage)
	}
	assert.Equal(t, []string{"parse", "normalize", "persist", "index", "verify"}, stages)

	var ftsRows int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM endpoints_fts").Scan(&ftsRows))
	assert.Equal(t, 3, ftsRows)

	var category string
	require.NoError(t, db.QueryRow(
		"SELECT category FROM endpoints WHERE operation_id = 'listPets'").Scan(&category))
	assert.Equal(t, "pets", category)
}

func TestIngestSkipsDuplicateContent(t *testing.T) {
	p, _ := testPipeline(t)
	path := writeSpec(t, "petstore.json", petstoreSpec)

	first, err := p.Ingest(context.Background(), path)
	require.NoError(t, err)

	second, err := p.Ingest(context.Background(), path)
	require.NoError(t, err)
	assert.True(t, second.Skipped)
	assert.Equal(t, first.APIID, second.APIID)
	assert.Equal(t, "Petstore", second.Title)
}

func TestIngestRejectsMissingFile(t *testing.T) {
	p, _ := testPipeline(t)

	_, err := p.Ingest(context.Background(), filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)
	assert.Equal(t, srverrors.CodeFileNotFound, srverrors.CodeOf(err))
}

func TestIngestRejectsInvalidStructure(t *testing.T) {
	p, db := testPipeline(t)
	path := writeSpec(t, "broken.json", `{"info": {"title": "No version marker"}}`)

	report, err := p.Ingest(context.Background(), path)
	require.Error(t, err)
	assert.Equal(t, srverrors.CodeStructureValidation, srverrors.CodeOf(err))
	require.NotEmpty(t, report.Stages)
	assert.False(t, report.Stages[len(report.Stages)-1].Success)

	var apis int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM api_metadata").Scan(&apis))
	assert.Zero(t, apis)
}

func TestIngestRejectsMalformedJSON(t *testing.T) {
	p, _ := testPipeline(t)
	path := writeSpec(t, "malformed.json", `{"openapi": "3.0.3",`)

	_, err := p.Ingest(context.Background(), path)
	require.Error(t, err)
	assert.Equal(t, srverrors.CodeInvalidJSON, srverrors.CodeOf(err))
}

func TestIngestBatch(t *testing.T) {
	p, db := testPipeline(t)
	good := writeSpec(t, "petstore.json", petstoreSpec)
	bad := writeSpec(t, "broken.json", `{"not": "a spec"}`)

	batch := p.IngestBatch(context.Background(), []string{good, bad})
	assert.Equal(t, 1, batch.Succeeded())
	require.Contains(t, batch.Failures, bad)
	assert.Equal(t, srverrors.CodeStructureValidation, srverrors.CodeOf(batch.Failures[bad]))

	var apis int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM api_metadata").Scan(&apis))
	assert.Equal(t, 1, apis)
}

func TestIngestProgressEvents(t *testing.T) {
	p, _ := testPipeline(t)
	path := writeSpec(t, "petstore.json", petstoreSpec)

	var events int
	p.OnProgress(func(parser.Progress) { events++ })

	_, err := p.Ingest(context.Background(), path)
	require.NoError(t, err)
	assert.Greater(t, events, 0)
}
