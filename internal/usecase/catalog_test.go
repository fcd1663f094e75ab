package usecase

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"llm-gateway/internal/provider"
)

func newTestCatalog(t *testing.T, creds provider.Credentials, ps ...provider.Provider) *CatalogService {
	t.Helper()
	svc, err := NewCatalogService(newTestRegistry(creds, ps...), zerolog.Nop())
	require.NoError(t, err)
	return svc
}

func TestListModels_FiltersDedupesSorts(t *testing.T) {
	fp := &fakeProvider{
		name: "fake",
		def:  "d",
		keep: func(m provider.ModelInfo) bool { return strings.HasPrefix(m.ID, "gpt-") },
		models: []provider.ModelInfo{
			{ID: "gpt-4o"}, {ID: "whisper-1"}, {ID: "gpt-3.5-turbo"}, {ID: "gpt-4o"}, {ID: ""},
		},
	}
	svc := newTestCatalog(t, nil, fp)

	models, err := svc.ListModels(context.Background(), "fake")
	require.NoError(t, err)
	require.Equal(t, []string{"gpt-3.5-turbo", "gpt-4o"}, models)
	require.Equal(t, 1, fp.listCalls)
}

func TestListModels_MissingCredentialsNoUpstreamCall(t *testing.T) {
	fp := &fakeProvider{name: "fake", def: "d", secrets: []string{"FAKE_KEY"}}
	svc := newTestCatalog(t, provider.Credentials{}, fp)

	_, err := svc.ListModels(context.Background(), "fake")
	var ue *Error
	require.ErrorAs(t, err, &ue)
	require.Equal(t, ErrorMisconfiguredProvider, ue.Code)
	require.Zero(t, fp.upstreamCalls())
}

func TestListModels_UnknownProvider(t *testing.T) {
	svc := newTestCatalog(t, nil)
	_, err := svc.ListModels(context.Background(), "nope")
	var ue *Error
	require.ErrorAs(t, err, &ue)
	require.Equal(t, ErrorUnknownProvider, ue.Code)
}

func TestListModels_UpstreamStatusYieldsEmpty(t *testing.T) {
	fp := &fakeProvider{name: "fake", def: "d", listErr: &provider.StatusError{StatusCode: http.StatusUnauthorized}}
	svc := newTestCatalog(t, nil, fp)

	models, err := svc.ListModels(context.Background(), "fake")
	require.NoError(t, err)
	require.NotNil(t, models)
	require.Empty(t, models)
}

func TestListModels_TransportFailureIs502(t *testing.T) {
	fp := &fakeProvider{name: "fake", def: "d", listErr: errors.New("no route to host")}
	svc := newTestCatalog(t, nil, fp)

	_, err := svc.ListModels(context.Background(), "fake")
	var ue *Error
	require.ErrorAs(t, err, &ue)
	require.Equal(t, ErrorUpstreamUnavailable, ue.Code)
	require.Equal(t, http.StatusBadGateway, ue.HTTPStatus())
}
