package pipeline

import (
	"strings"

	"github.com/rs/zerolog"
)

// Filter drops candidates from denied domains and denied publishers, and
// annotates survivors with their normalized publisher name.
type Filter struct {
	deniedDomains    []string
	deniedPublishers map[string]struct{}
	publishers       map[string]string
	logger           zerolog.Logger
}

// NewFilter builds a filter. deniedDomains entries match the host exactly or
// as a parent domain suffix. publishers maps lowercased host to its display
// name and doubles as the known-publisher registry.
func NewFilter(deniedDomains, deniedPublishers []string, publishers map[string]string, logger zerolog.Logger) *Filter {
	domains := make([]string, 0, len(deniedDomains))
	for _, domain := range deniedDomains {
		domain = strings.ToLower(strings.TrimSpace(domain))
		if domain != "" {
			domains = append(domains, domain)
		}
	}

	denied := make(map[string]struct{}, len(deniedPublishers))
	for _, name := range deniedPublishers {
		name = strings.ToLower(strings.TrimSpace(name))
		if name != "" {
			denied[name] = struct{}{}
		}
	}

	known := make(map[string]string, len(publishers))
	for host, name := range publishers {
		known[strings.ToLower(strings.TrimSpace(host))] = name
	}

	return &Filter{
		deniedDomains:    domains,
		deniedPublishers: denied,
		publishers:       known,
		logger:           logger.With().Str("component", "filter").Logger(),
	}
}

// Apply returns the candidates that survive the deny lists, with Publisher
// filled from the feed declaration or the host registry. A candidate whose
// publisher cannot be derived from either source is dropped. All rejections
// are terminal and counted.
func (f *Filter) Apply(candidates []Candidate) ([]Candidate, Stats) {
	stats := Stats{}
	kept := make([]Candidate, 0, len(candidates))

	for _, candidate := range candidates {
		host := hostOf(candidate.Link())
		if f.deniedDomain(host) {
			stats.Add(StatDomainExcluded, 1)
			f.logger.Debug().Str("host", host).Str("link", candidate.Link()).Msg("denied domain dropped")
			continue
		}

		publisher := strings.TrimSpace(candidate.Publisher)
		if publisher == "" {
			publisher = f.publishers[host]
		}
		if publisher == "" {
			stats.Add(StatUnknownPublisher, 1)
			f.logger.Debug().Str("host", host).Msg("unknown publisher dropped")
			continue
		}
		if _, denied := f.deniedPublishers[strings.ToLower(publisher)]; denied {
			stats.Add(StatPublisherExcluded, 1)
			f.logger.Debug().Str("publisher", publisher).Msg("denied publisher dropped")
			continue
		}

		candidate.Publisher = publisher
		kept = append(kept, candidate)
	}
	return kept, stats
}

func (f *Filter) deniedDomain(host string) bool {
	if host == "" {
		return false
	}
	for _, domain := range f.deniedDomains {
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return true
		}
	}
	return false
}
