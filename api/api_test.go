package api_test

import (
	"context"
	"testing"

	"github.com/Olprog59/go-microservice/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	doc, err := api.Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "go-microservice API", doc.Info.Title)
	for _, path := range []string{"/health", "/readiness", "/version", "/api/v1/me"} {
		assert.NotNil(t, doc.Paths.Find(path), path)
	}
	assert.Contains(t, doc.Components.SecuritySchemes, "bearerAuth")
	assert.NotEmpty(t, api.Raw())
}
