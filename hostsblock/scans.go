package hostsblock

import (
	"sync"

	"github.com/ipshipyard/hostrep/hostcheck"
	"github.com/ipshipyard/hostrep/hostlist"
)

// scanRegistry holds one hostcheck.Module per scan. Each Module gets its own
// hostlist.Service so a failed download only disables the scan that saw it;
// all of them share the configured cache.
type scanRegistry struct {
	cfg *config

	mu   sync.Mutex
	byID map[string]*hostcheck.Module
}

func newScanRegistry(cfg *config) *scanRegistry {
	return &scanRegistry{
		cfg:  cfg,
		byID: make(map[string]*hostcheck.Module),
	}
}

// get returns the Module of a running scan.
func (r *scanRegistry) get(id string) (*hostcheck.Module, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.byID[id]
	return m, ok
}

// getOrCreate returns the Module of scan id, creating it from opts on first
// use. Options of an existing scan cannot be changed; opts is then ignored.
func (r *scanRegistry) getOrCreate(id string, opts map[string]string) (m *hostcheck.Module, created bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if m, ok := r.byID[id]; ok {
		return m, false, nil
	}

	check, err := r.scanConfig(opts)
	if err != nil {
		return nil, false, err
	}

	svc := hostlist.NewService(r.cfg.serviceConfig(check.CachePeriod))
	m = hostcheck.New(check, svc)
	r.byID[id] = m
	log.Infof("scan %s started", id)
	return m, true, nil
}

// scanConfig applies per-scan options over the Corefile defaults.
func (r *scanRegistry) scanConfig(opts map[string]string) (hostcheck.Config, error) {
	return hostcheck.ApplyOptions(r.cfg.Check, opts)
}

// remove discards a scan and reports whether it existed.
func (r *scanRegistry) remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; !ok {
		return false
	}
	delete(r.byID, id)
	log.Infof("scan %s finished", id)
	return true
}

// len returns the number of running scans.
func (r *scanRegistry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}
