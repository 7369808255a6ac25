package config

import (
	"net/http"
	"strings"
	"sync"
)

// HeaderStore resolves per-host headers by walking the domain labels of a
// host from the most to the least specific suffix. Lookups are memoized.
type HeaderStore struct {
	hosts map[string]http.Header
	mu    sync.RWMutex
	cache map[string]http.Header
}

func NewHeaderStore(hosts map[string]HostConfig) *HeaderStore {
	s := &HeaderStore{hosts: map[string]http.Header{}, cache: map[string]http.Header{}}
	for host, hc := range hosts {
		if len(hc.Headers) == 0 {
			continue
		}
		h := http.Header{}
		for k, v := range hc.Headers {
			h.Set(k, v)
		}
		s.hosts[normalizeHost(host)] = h
	}
	return s
}

// Find returns a copy of the headers for host, or nil.
func (s *HeaderStore) Find(host string) http.Header {
	host = normalizeHost(host)
	if host == "" || len(s.hosts) == 0 {
		return nil
	}
	s.mu.RLock()
	h, ok := s.cache[host]
	s.mu.RUnlock()
	if ok {
		return h.Clone()
	}

	labels := strings.Split(host, ".")
	for i := 0; i < len(labels); i++ {
		if found, ok := s.hosts[strings.Join(labels[i:], ".")]; ok {
			h = found
			break
		}
	}
	s.mu.Lock()
	s.cache[host] = h
	s.mu.Unlock()
	return h.Clone()
}

func normalizeHost(h string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(h)), ".")
}
