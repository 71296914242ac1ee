package apiv1

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const documentPath = "../../../public/docs/v1/openapi.yml"

func TestDocumentIsValid(t *testing.T) {
	doc, err := LoadDocument(context.Background(), documentPath)
	require.NoError(t, err)
	assert.Equal(t, "/api/v1", doc.Servers[0].URL)
}

func TestEveryRouteIsDocumented(t *testing.T) {
	doc, err := LoadDocument(context.Background(), documentPath)
	require.NoError(t, err)
	assert.Empty(t, Undocumented(doc))
}

func TestOpenAPIPath(t *testing.T) {
	assert.Equal(t, "/plans/{code}", openAPIPath("/plans/:code"))
	assert.Equal(t, "/admin/memberships/{user_id}/renew", openAPIPath("/admin/memberships/:user_id/renew"))
	assert.Equal(t, "/membership", openAPIPath("/membership"))
}

func TestLoadDocumentMissingFile(t *testing.T) {
	_, err := LoadDocument(context.Background(), "does-not-exist.yml")
	assert.Error(t, err)
}
