package metrics

import (
	"sync"

	apperrors "supplygraph-a2a/internal/errors"
	"supplygraph-a2a/pkg/gateway"
	"supplygraph-a2a/sdk/go/a2a"
)

// otherLabel replaces label values outside the bounded vocabulary.
const otherLabel = "other"

// maxUnknownCodes bounds the distinct code values of unknown_codes_total.
const maxUnknownCodes = 32

var (
	knownAgents = setOf(a2a.KnownAgents)
	knownCodes  = setOf(gateway.KnownCodes)
)

func setOf(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

func agentLabel(agentID string) string {
	if _, ok := knownAgents[agentID]; ok {
		return agentID
	}
	return otherLabel
}

// codeLabel keeps gateway codes and registered error codes.
func codeLabel(code string) string {
	if _, ok := knownCodes[code]; ok {
		return code
	}
	if _, ok := apperrors.Lookup(apperrors.Code(code)); ok {
		return code
	}
	return otherLabel
}

// labelSet admits the first limit distinct values and folds the rest
// into otherLabel.
type labelSet struct {
	mu    sync.Mutex
	seen  map[string]struct{}
	limit int
}

func newLabelSet(limit int) *labelSet {
	return &labelSet{seen: make(map[string]struct{}), limit: limit}
}

func (s *labelSet) label(v string) string {
	if v == "" {
		return otherLabel
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[v]; ok {
		return v
	}
	if len(s.seen) >= s.limit {
		return otherLabel
	}
	s.seen[v] = struct{}{}
	return v
}
