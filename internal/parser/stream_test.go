package parser

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"openapi-mcp-server/internal/config"
	srverrors "openapi-mcp-server/internal/errors"
	"openapi-mcp-server/internal/logging"
)

const minimalSpec = `{
  "openapi": "3.0.3",
  "info": {"title": "Petstore", "version": "1.0.0"},
  "x-api-owner": "platform",
  "paths": {
    "/pets": {
      "get": {"summary": "List pets"},
      "post": {"summary": "Create pet"}
    },
    "/pets/{petId}": {
      "get": {"summary": "Get pet"}
    }
  },
  "components": {
    "schemas": {
      "Pet": {"type": "object"},
      "Error": {"type": "object"}
    },
    "securitySchemes": {
      "apiKey": {"type": "apiKey", "name": "X-Key", "in": "header"}
    }
  }
}`

func writeSpec(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "spec.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newTestParser(mutate func(*config.ParserConfig)) *StreamParser {
	cfg := config.DefaultConfig().Parser
	if mutate != nil {
		mutate(&cfg)
	}
	return NewStreamParser(cfg, logging.NoOp())
}

func TestParseFileCollectsMetrics(t *testing.T) {
	p := newTestParser(nil)
	root, metrics, err := p.ParseFile(context.Background(), writeSpec(t, minimalSpec))
	require.NoError(t, err)
	require.NotNil(t, root)

	assert.Equal(t, 3, metrics.EndpointsFound)
	assert.Equal(t, 2, metrics.SchemasFound)
	assert.Equal(t, 1, metrics.SecuritySchemesFound)
	assert.Equal(t, 1, metrics.ExtensionsFound)
	assert.Positive(t, metrics.FileSize)

	version, ok := root.GetString("openapi")
	require.True(t, ok)
	assert.Equal(t, "3.0.3", version)
}

func TestParseFilePreservesPathOrder(t *testing.T) {
	p := newTestParser(nil)
	root, _, err := p.ParseFile(context.Background(), writeSpec(t, minimalSpec))
	require.NoError(t, err)

	paths, ok := root.GetObject("paths")
	require.True(t, ok)
	assert.Equal(t, []string{"/pets", "/pets/{petId}"}, paths.Keys())
}

func TestParseFileMissing(t *testing.T) {
	p := newTestParser(nil)
	_, _, err := p.ParseFile(context.Background(), filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
	assert.Equal(t, srverrors.CodeFileNotFound, srverrors.CodeOf(err))
}

func TestParseFileTooLarge(t *testing.T) {
	p := newTestParser(func(cfg *config.ParserConfig) { cfg.MaxFileSize = 16 })
	_, _, err := p.ParseFile(context.Background(), writeSpec(t, minimalSpec))
	require.Error(t, err)
	assert.Equal(t, srverrors.CodeFileTooLarge, srverrors.CodeOf(err))
}

func TestParseFileInvalidJSONReportsLocation(t *testing.T) {
	p := newTestParser(nil)
	_, _, err := p.ParseFile(context.Background(), writeSpec(t, "{\n  \"openapi\": \"3.0.0\",\n  \"info\": }\n}"))
	require.Error(t, err)
	assert.Equal(t, srverrors.CodeInvalidJSON, srverrors.CodeOf(err))

	se := srverrors.AsServerError(err)
	require.NotNil(t, se)
	assert.Contains(t, se.Details, "line")
}

func TestParseFileRejectsNonObjectRoot(t *testing.T) {
	p := newTestParser(nil)
	_, _, err := p.ParseFile(context.Background(), writeSpec(t, `["not", "a", "spec"]`))
	require.Error(t, err)
	assert.Equal(t, srverrors.CodeStructureValidation, srverrors.CodeOf(err))
}

func TestParseFileRejectsTrailingData(t *testing.T) {
	p := newTestParser(nil)
	_, _, err := p.ParseFile(context.Background(), writeSpec(t, `{"openapi": "3.0.0"} {"extra": true}`))
	require.Error(t, err)
	assert.Equal(t, srverrors.CodeInvalidJSON, srverrors.CodeOf(err))

	se := srverrors.AsServerError(err)
	require.NotNil(t, se)
	assert.Contains(t, se.Details, "line")
	assert.Contains(t, se.Details, "column")
}

func TestParseFileEmitsProgress(t *testing.T) {
	p := newTestParser(func(cfg *config.ParserConfig) { cfg.ProgressInterval = 8 })
	var events []Progress
	p.OnProgress(func(pr Progress) { events = append(events, pr) })

	_, _, err := p.ParseFile(context.Background(), writeSpec(t, minimalSpec))
	require.NoError(t, err)
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.InDelta(t, 100.0, last.Percent, 0.01)
}

func TestParseFileSwagger2Definitions(t *testing.T) {
	spec := `{
  "swagger": "2.0",
  "info": {"title": "Legacy", "version": "2.0"},
  "paths": {"/users": {"get": {}}},
  "definitions": {"User": {"type": "object"}},
  "securityDefinitions": {"basic": {"type": "basic"}}
}`
	p := newTestParser(nil)
	_, metrics, err := p.ParseFile(context.Background(), writeSpec(t, spec))
	require.NoError(t, err)
	assert.Equal(t, 1, metrics.EndpointsFound)
	assert.Equal(t, 1, metrics.SchemasFound)
	assert.Equal(t, 1, metrics.SecuritySchemesFound)
}
