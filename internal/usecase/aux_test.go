package usecase

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"llm-gateway/internal/integrations/appsscript"
	"llm-gateway/internal/provider"
)

type fakeAux struct {
	calls     int
	lastKey   string
	lastQuery string
	lastRAG   string
	lastID    string
	err       error
}

func (f *fakeAux) Transcribe(_ context.Context, apiKey, _ string, _ io.Reader) (*http.Response, error) {
	f.calls++
	f.lastKey = apiKey
	if f.err != nil {
		return nil, f.err
	}
	return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader(`{"text":"hi"}`))}, nil
}

func (f *fakeAux) Search(_ context.Context, _ provider.Credentials, rag, query string) (*http.Response, error) {
	f.calls++
	f.lastRAG, f.lastQuery = rag, query
	if f.err != nil {
		return nil, f.err
	}
	return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader(`{}`))}, nil
}

func (f *fakeAux) ListProjects(_ context.Context, token string) ([]appsscript.Project, error) {
	f.calls++
	f.lastKey = token
	return []appsscript.Project{{ID: "p1", Title: "One"}}, f.err
}

func (f *fakeAux) ListFiles(_ context.Context, _ string, id string) ([]string, error) {
	f.calls++
	f.lastID = id
	return []string{"Code"}, f.err
}

var allAuxCreds = provider.Credentials{
	"OPENAI_API_KEY":          "sk-1",
	"CLOUDFLARE_AI_TOKEN":     "cf",
	"CLOUDFLARE_ACCOUNT_ID":   "acct",
	"CLOUDFLARE_AUTORAG_NAME": "docs",
	"GOOGLE_API_TOKEN":        "g",
}

func newTestAux(t *testing.T, f *fakeAux, creds provider.Credentials) *AuxService {
	t.Helper()
	svc, err := NewAuxService(f, f, f, creds, zerolog.Nop())
	require.NoError(t, err)
	return svc
}

func codeOf(t *testing.T, err error) ErrorCode {
	t.Helper()
	var ue *Error
	require.ErrorAs(t, err, &ue)
	return ue.Code
}

func TestTranscribe(t *testing.T) {
	f := &fakeAux{}
	svc := newTestAux(t, f, allAuxCreds)

	res, err := svc.Transcribe(context.Background(), "a.webm", strings.NewReader("audio"))
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, "sk-1", f.lastKey)

	_, err = svc.Transcribe(context.Background(), "a.webm", nil)
	require.Equal(t, ErrorInvalidRequestBody, codeOf(t, err))
	require.Equal(t, 1, f.calls)
}

func TestTranscribe_MissingKey(t *testing.T) {
	f := &fakeAux{}
	svc := newTestAux(t, f, provider.Credentials{})
	_, err := svc.Transcribe(context.Background(), "a.webm", strings.NewReader("audio"))
	require.Equal(t, ErrorMisconfiguredProvider, codeOf(t, err))
	require.Zero(t, f.calls)
}

func TestVectorSearch(t *testing.T) {
	f := &fakeAux{}
	svc := newTestAux(t, f, allAuxCreds)

	res, err := svc.VectorSearch(context.Background(), "gophers")
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, "docs", f.lastRAG)
	require.Equal(t, "gophers", f.lastQuery)

	_, err = svc.VectorSearch(context.Background(), "  ")
	require.Equal(t, ErrorInvalidRequestBody, codeOf(t, err))

	noRAG := provider.Credentials{"CLOUDFLARE_AI_TOKEN": "cf", "CLOUDFLARE_ACCOUNT_ID": "acct"}
	_, err = newTestAux(t, f, noRAG).VectorSearch(context.Background(), "q")
	require.Equal(t, ErrorMisconfiguredProvider, codeOf(t, err))
	require.Equal(t, 1, f.calls)
}

func TestProjects(t *testing.T) {
	f := &fakeAux{}
	svc := newTestAux(t, f, allAuxCreds)

	projects, err := svc.Projects(context.Background())
	require.NoError(t, err)
	require.Equal(t, []appsscript.Project{{ID: "p1", Title: "One"}}, projects)
	require.Equal(t, "g", f.lastKey)

	files, err := svc.ProjectFiles(context.Background(), "abc_D-1")
	require.NoError(t, err)
	require.Equal(t, []string{"Code"}, files)
	require.Equal(t, "abc_D-1", f.lastID)
}

func TestProjectFiles_RejectsBadID(t *testing.T) {
	f := &fakeAux{}
	svc := newTestAux(t, f, allAuxCreds)
	for _, id := range []string{"", "../etc", "a b", "x/y"} {
		_, err := svc.ProjectFiles(context.Background(), id)
		require.Equal(t, ErrorInvalidRequestBody, codeOf(t, err), id)
	}
	require.Zero(t, f.calls)
}

func TestProjects_UpstreamStatusMirrored(t *testing.T) {
	f := &fakeAux{err: &provider.StatusError{StatusCode: http.StatusForbidden, Body: `{"error":"denied"}`}}
	svc := newTestAux(t, f, allAuxCreds)

	_, err := svc.Projects(context.Background())
	var ue *Error
	require.ErrorAs(t, err, &ue)
	require.Equal(t, http.StatusForbidden, ue.HTTPStatus())
	var statusErr *provider.StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, `{"error":"denied"}`, statusErr.Body)
}
