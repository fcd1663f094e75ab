package usecase

import (
	"context"
	"errors"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"llm-gateway/internal/integrations/appsscript"
	"llm-gateway/internal/integrations/openai"
	"llm-gateway/internal/integrations/workersai"
	"llm-gateway/internal/provider"
)

var scriptIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

type Transcriber interface {
	Transcribe(ctx context.Context, apiKey, filename string, audio io.Reader) (*http.Response, error)
}

type VectorSearcher interface {
	Search(ctx context.Context, creds provider.Credentials, rag, query string) (*http.Response, error)
}

type ProjectLister interface {
	ListProjects(ctx context.Context, token string) ([]appsscript.Project, error)
	ListFiles(ctx context.Context, token, scriptID string) ([]string, error)
}

// AuxService backs the pass-through endpoints. Each operation checks its
// configuration and input, then makes exactly one upstream call.
type AuxService struct {
	transcriber Transcriber
	search      VectorSearcher
	projects    ProjectLister
	creds       provider.Credentials
	log         zerolog.Logger
}

func NewAuxService(t Transcriber, vs VectorSearcher, pl ProjectLister, creds provider.Credentials, log zerolog.Logger) (*AuxService, error) {
	if t == nil {
		return nil, errors.New("usecase: transcriber must not be nil")
	}
	if vs == nil {
		return nil, errors.New("usecase: vector searcher must not be nil")
	}
	if pl == nil {
		return nil, errors.New("usecase: project lister must not be nil")
	}
	return &AuxService{
		transcriber: t,
		search:      vs,
		projects:    pl,
		creds:       creds,
		log:         log.With().Str("component", "aux").Logger(),
	}, nil
}

// Transcribe forwards an audio file to the transcription endpoint. The
// caller relays and closes the returned response.
func (s *AuxService) Transcribe(ctx context.Context, filename string, audio io.Reader) (*http.Response, error) {
	if err := s.creds.Require("transcribe", openai.SecretAPIKey); err != nil {
		return nil, newError(ErrorMisconfiguredProvider, err.Error(), err)
	}
	if audio == nil {
		return nil, newError(ErrorInvalidRequestBody, "audio file is required", nil)
	}
	res, err := s.transcriber.Transcribe(ctx, s.creds.Get(openai.SecretAPIKey), filename, audio)
	if err != nil {
		s.log.Warn().Err(err).Msg("transcription upstream failed")
		return nil, upstreamError("transcription request failed", err)
	}
	return res, nil
}

// VectorSearch forwards a query to the configured AutoRAG index.
func (s *AuxService) VectorSearch(ctx context.Context, query string) (*http.Response, error) {
	if strings.TrimSpace(query) == "" {
		return nil, newError(ErrorInvalidRequestBody, "query must not be empty", nil)
	}
	if err := s.creds.Require("vectorize", workersai.SecretToken, workersai.SecretAccountID, workersai.SecretAutoRAG); err != nil {
		return nil, newError(ErrorMisconfiguredProvider, err.Error(), err)
	}
	res, err := s.search.Search(ctx, s.creds, s.creds.Get(workersai.SecretAutoRAG), query)
	if err != nil {
		s.log.Warn().Err(err).Msg("vector search upstream failed")
		return nil, upstreamError("vector search request failed", err)
	}
	return res, nil
}

// Projects lists Apps Script projects. Upstream status failures keep the
// *provider.StatusError so the body can be relayed as is.
func (s *AuxService) Projects(ctx context.Context) ([]appsscript.Project, error) {
	if err := s.creds.Require("projects", appsscript.SecretToken); err != nil {
		return nil, newError(ErrorMisconfiguredProvider, err.Error(), err)
	}
	projects, err := s.projects.ListProjects(ctx, s.creds.Get(appsscript.SecretToken))
	if err != nil {
		s.log.Warn().Err(err).Msg("project listing upstream failed")
		return nil, upstreamError("project listing failed", err)
	}
	return projects, nil
}

// ProjectFiles lists the file names of one Apps Script project.
func (s *AuxService) ProjectFiles(ctx context.Context, scriptID string) ([]string, error) {
	if !scriptIDPattern.MatchString(scriptID) {
		return nil, newError(ErrorInvalidRequestBody, "invalid or missing id", nil)
	}
	if err := s.creds.Require("projects", appsscript.SecretToken); err != nil {
		return nil, newError(ErrorMisconfiguredProvider, err.Error(), err)
	}
	files, err := s.projects.ListFiles(ctx, s.creds.Get(appsscript.SecretToken), scriptID)
	if err != nil {
		s.log.Warn().Err(err).Msg("project files upstream failed")
		return nil, upstreamError("project file listing failed", err)
	}
	return files, nil
}
