package pipeline

import "sort"

// Counter names recorded over one run.
const (
	StatCacheHit          = "cache_hit"
	StatCacheMiss         = "cache_miss"
	StatResolveTimeout    = "resolution_timeout"
	StatResolveFailure    = "resolution_failure"
	StatDomainExcluded    = "domain_excluded"
	StatPublisherExcluded = "publisher_excluded"
	StatUnknownPublisher  = "unknown_publisher"
	StatDuplicateExcluded = "duplicate_excluded"
	StatClassifyFailure   = "classify_failure"
	StatForcedPick        = "forced_pick"
	StatFallbackEntities  = "fallback_entities"
)

// Stats counts pipeline decisions for one run. Each unit of work fills its
// own Stats value; owners merge at collection points, so no counter is ever
// shared between goroutines.
type Stats map[string]int

func (s Stats) Add(name string, delta int) {
	s[name] += delta
}

func (s Stats) Merge(other Stats) {
	for name, count := range other {
		s[name] += count
	}
}

func (s Stats) Get(name string) int {
	return s[name]
}

// Names returns counter names in sorted order for stable reporting.
func (s Stats) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
