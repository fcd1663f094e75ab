package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"llm-gateway/internal/provider"
)

type CatalogService struct {
	providers ProviderResolver
	log       zerolog.Logger
}

func NewCatalogService(providers ProviderResolver, log zerolog.Logger) (*CatalogService, error) {
	if providers == nil {
		return nil, errors.New("usecase: provider resolver must not be nil")
	}
	return &CatalogService{
		providers: providers,
		log:       log.With().Str("component", "catalog").Logger(),
	}, nil
}

// ListModels returns the sorted, de-duplicated chat model ids a provider
// offers. An upstream status failure yields an empty list.
func (s *CatalogService) ListModels(ctx context.Context, providerName string) ([]string, error) {
	p, err := s.providers.Resolve(providerName)
	if err != nil {
		return nil, resolveError(providerName, err)
	}
	creds, err := s.providers.Credentials(p)
	if err != nil {
		return nil, resolveError(p.Name(), err)
	}
	m, err := p.Build(p.DefaultModel(), creds)
	if err != nil {
		return nil, resolveError(p.Name(), err)
	}

	infos, err := m.ListModels(ctx)
	if err != nil {
		if status, ok := provider.UpstreamStatus(err); ok {
			s.log.Warn().Err(err).Str("provider", p.Name()).Int("status", status).Msg("model catalog unavailable")
			return []string{}, nil
		}
		return nil, upstreamError(fmt.Sprintf("%s model catalog unreachable", p.Name()), err)
	}
	return filterModels(p, infos), nil
}

func filterModels(p provider.Provider, infos []provider.ModelInfo) []string {
	kept := lo.Filter(infos, func(m provider.ModelInfo, _ int) bool {
		return p.KeepModel(m)
	})
	ids := lo.Uniq(lo.Compact(lo.Map(kept, func(m provider.ModelInfo, _ int) string {
		return m.ID
	})))
	sort.Strings(ids)
	return ids
}
