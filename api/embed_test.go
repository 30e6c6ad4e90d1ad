package api

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSpec(t *testing.T) {
	doc, err := LoadSpec(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "3.0.3", doc.OpenAPI)
}

func TestSpecCoversRoutes(t *testing.T) {
	doc, err := LoadSpec(context.Background())
	require.NoError(t, err)

	routes := []struct {
		method string
		path   string
	}{
		{"GET", "/health"},
		{"GET", "/health/ready"},
		{"POST", "/auth/login"},
		{"POST", "/auth/logout"},
		{"GET", "/dashboard"},
		{"POST", "/enrol/{moduleId}"},
		{"PATCH", "/enrolments/{id}/result"},
		{"DELETE", "/admin/enrolments/{id}"},
		{"GET", "/admin/modules"},
		{"POST", "/admin/modules"},
		{"PATCH", "/admin/modules/{id}/toggle"},
		{"POST", "/admin/modules/{id}/toggle"},
		{"PATCH", "/admin/modules/{id}/teacher"},
		{"DELETE", "/admin/modules/{id}"},
		{"GET", "/modules/{id}"},
		{"POST", "/admin/teachers"},
		{"DELETE", "/admin/teachers/{id}"},
		{"POST", "/admin/students"},
		{"PATCH", "/admin/users/{id}/role"},
		{"GET", "/ws/enrolments"},
	}
	for _, r := range routes {
		t.Run(r.method+" "+r.path, func(t *testing.T) {
			item := doc.Paths.Find(r.path)
			require.NotNil(t, item, "path missing")
			assert.NotNil(t, item.GetOperation(r.method), "operation missing")
		})
	}
}

func TestResultEnum(t *testing.T) {
	doc, err := LoadSpec(context.Background())
	require.NoError(t, err)

	schema := doc.Components.Schemas["Result"]
	require.NotNil(t, schema)
	assert.ElementsMatch(t, []interface{}{"pass", "fail"}, schema.Value.Enum)
}
