package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func objFromPairs(pairs ...interface{}) *Object {
	o := NewObject()
	for i := 0; i < len(pairs); i += 2 {
		o.Set(pairs[i].(string), pairs[i+1])
	}
	return o
}

func validRoot() *Object {
	return objFromPairs(
		"openapi", "3.0.3",
		"info", objFromPairs("title", "API", "version", "1.0"),
		"paths", objFromPairs(
			"/users", objFromPairs("get", NewObject()),
		),
	)
}

func TestValidateStructureAccepts(t *testing.T) {
	report := ValidateStructure(validRoot(), ValidateConfig{MaxErrors: 25})
	assert.True(t, report.Valid())
	assert.Empty(t, report.Errors)
}

func TestValidateStructureMissingVersionMarker(t *testing.T) {
	root := objFromPairs("info", objFromPairs("title", "API", "version", "1.0"))
	report := ValidateStructure(root, ValidateConfig{MaxErrors: 25})
	require.False(t, report.Valid())
	assert.Equal(t, FaultMissingField, report.Errors[0].Kind)
	assert.Contains(t, report.Errors[0].Suggestion, "openapi")
}

func TestValidateStructureBothMarkers(t *testing.T) {
	root := validRoot()
	root.Set("swagger", "2.0")
	report := ValidateStructure(root, ValidateConfig{MaxErrors: 25})
	require.False(t, report.Valid())
	assert.Equal(t, FaultWrongType, report.Errors[0].Kind)
}

func TestValidateStructureMissingInfoFields(t *testing.T) {
	root := validRoot()
	root.Set("info", objFromPairs("title", "API"))
	report := ValidateStructure(root, ValidateConfig{MaxErrors: 25})
	require.Len(t, report.Errors, 1)
	assert.Equal(t, "$.info.version", report.Errors[0].Path)
}

func TestValidateStructureBadPathName(t *testing.T) {
	root := validRoot()
	paths, _ := root.GetObject("paths")
	paths.Set("users-no-slash", objFromPairs("get", NewObject()))
	report := ValidateStructure(root, ValidateConfig{MaxErrors: 25})
	require.False(t, report.Valid())
	assert.Equal(t, FaultInvalidPathName, report.Errors[0].Kind)
	assert.Contains(t, report.Errors[0].Suggestion, "'/'")
}

func TestValidateStructureOperationMustBeObject(t *testing.T) {
	root := validRoot()
	paths, _ := root.GetObject("paths")
	paths.Set("/bad", objFromPairs("post", "not an object"))
	report := ValidateStructure(root, ValidateConfig{MaxErrors: 25})
	require.False(t, report.Valid())
	assert.Equal(t, FaultWrongType, report.Errors[0].Kind)
}

func TestValidateStructureUnknownMethodWarns(t *testing.T) {
	root := validRoot()
	paths, _ := root.GetObject("paths")
	paths.Set("/odd", objFromPairs("fetch", NewObject()))
	report := ValidateStructure(root, ValidateConfig{MaxErrors: 25})
	assert.True(t, report.Valid())
	require.Len(t, report.Warnings, 1)
	assert.Equal(t, FaultInvalidMethod, report.Warnings[0].Kind)
}

func TestValidateStructureComponentsSections(t *testing.T) {
	root := validRoot()
	root.Set("components", objFromPairs("schemas", []interface{}{"wrong"}))
	report := ValidateStructure(root, ValidateConfig{MaxErrors: 25})
	require.False(t, report.Valid())
	assert.Equal(t, "$.components.schemas", report.Errors[0].Path)
}

func TestValidateStructureStrictStopsEarly(t *testing.T) {
	root := objFromPairs("openapi", "3.0.0") // missing info and paths
	report := ValidateStructure(root, ValidateConfig{MaxErrors: 25, Strict: true})
	assert.Len(t, report.Errors, 1)
}
