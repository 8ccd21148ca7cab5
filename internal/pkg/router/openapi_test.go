package router

import (
	"net/http"
	"strings"
	"testing"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/ClubDues/internal/pkg/constants"
)

func loadOpenAPI(t *testing.T) *openapi3.T {
	t.Helper()
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromFile("../../../" + constants.OpenAPIDocumentFilePath)
	require.NoError(t, err)
	require.NoError(t, doc.Validate(loader.Context))
	return doc
}

func TestOpenAPIDocumentsEveryPaymentRoute(t *testing.T) {
	t.Parallel()

	doc := loadOpenAPI(t)
	app := newTestRouterApp(t, nil)

	seen := 0
	for _, r := range app.GetRoutes(true) {
		switch r.Method {
		case http.MethodGet, http.MethodPost, http.MethodPut:
		default:
			continue
		}
		if !strings.HasPrefix(r.Path, constants.APIRoute+constants.PaymentsRoute) {
			continue
		}
		path := strings.TrimSuffix(strings.TrimPrefix(r.Path, constants.APIRoute), "/")
		item := doc.Paths.Find(path)
		if !assert.NotNil(t, item, "undocumented path %s", path) {
			continue
		}
		assert.NotNil(t, item.GetOperation(r.Method), "undocumented operation %s %s", r.Method, path)
		seen++
	}
	assert.Equal(t, 12, seen)

	health := doc.Paths.Find(constants.HealthRoute)
	require.NotNil(t, health)
	assert.NotNil(t, health.Get)
}

func TestOpenAPIPublicOperations(t *testing.T) {
	t.Parallel()

	doc := loadOpenAPI(t)
	for _, path := range []string{
		constants.PaymentsRoute + constants.PaymentWebhookPath,
		constants.PaymentsRoute + constants.ProviderCallbackPath,
	} {
		item := doc.Paths.Find(path)
		require.NotNil(t, item, path)
		for _, op := range item.Operations() {
			require.NotNil(t, op.Security, path)
			assert.Empty(t, *op.Security, "%s must not require a bearer token", path)
		}
	}
}
