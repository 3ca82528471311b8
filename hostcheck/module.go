// Package hostcheck classifies hostname events of a scan against the Steven
// Black Hosts block list.
//
// A Module belongs to exactly one scan. It remembers every hostname it has
// seen so each is checked once, and it shares the error latch of its
// hostlist.Service: after a failed download the rest of the scan is skipped.
package hostcheck

import (
	"context"
	"fmt"
	"sync"

	logging "github.com/ipfs/go-log/v2"

	"github.com/ipshipyard/hostrep/event"
	"github.com/ipshipyard/hostrep/hostlist"
)

var log = logging.Logger("hostcheck")

// ModuleName identifies events produced by this package.
const ModuleName = "hostcheck"

// Meta describes the module to scan front-ends.
type Meta struct {
	Name       string   `json:"name"`
	Summary    string   `json:"summary"`
	UseCases   []string `json:"useCases"`
	Categories []string `json:"categories"`
	Website    string   `json:"website"`
	Model      string   `json:"model"`
	Source     string   `json:"source"`
}

// Info is the module metadata.
var Info = Meta{
	Name:       hostlist.ListName,
	Summary:    "Check if a domain is malicious (malware or adware) according to Steven Black Hosts list.",
	UseCases:   []string{"Investigate", "Passive"},
	Categories: []string{"Reputation Systems"},
	Website:    "https://github.com/StevenBlack/hosts",
	Model:      "FREE_NOAUTH_UNLIMITED",
	Source:     "Consolidating and extending hosts files (for malware and adware) from several well-curated sources.",
}

// Describe renders the data of an emitted event.
func Describe(hostname string) string {
	return fmt.Sprintf("%s Blocklist [%s]\n<SFURL>%s</SFURL>", hostlist.ListName, hostname, hostlist.ListURL)
}

// Module is the per-scan classifier.
type Module struct {
	cfg Config
	svc *hostlist.Service

	mu   sync.Mutex
	seen map[string]struct{}
}

// New creates a Module for one scan. svc must not be shared with another scan.
func New(cfg Config, svc *hostlist.Service) *Module {
	return &Module{
		cfg:  cfg,
		svc:  svc,
		seen: make(map[string]struct{}),
	}
}

// Config returns the configuration the Module was created with.
func (m *Module) Config() Config {
	return m.cfg
}

// Errored reports whether the block list could not be downloaded for this scan.
func (m *Module) Errored() bool {
	return m.svc.Errored()
}

// Checked returns how many distinct hostnames have been handled.
func (m *Module) Checked() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.seen)
}

// WatchedEvents returns the event types HandleEvent acts on.
func (m *Module) WatchedEvents() []string {
	kinds := event.InputKinds()
	out := make([]string, 0, len(kinds))
	for _, k := range kinds {
		out = append(out, k.String())
	}
	return out
}

// ProducedEvents returns the event types HandleEvent may emit.
func (m *Module) ProducedEvents() []string {
	kinds := event.OutputKinds()
	out := make([]string, 0, len(kinds))
	for _, k := range kinds {
		out = append(out, k.String())
	}
	return out
}

// markSeen records hostname and reports whether it was new.
func (m *Module) markSeen(hostname string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.seen[hostname]; ok {
		return false
	}
	m.seen[hostname] = struct{}{}
	return true
}

// classify picks the output kind for an input kind, honoring the category
// switches. ok is false when the category is disabled.
func (m *Module) classify(kind event.InputKind) (out event.OutputKind, ok bool) {
	switch kind {
	case event.InternetName:
		return event.MaliciousInternetName, true
	case event.AffiliateInternetName:
		if !m.cfg.CheckAffiliates {
			return 0, false
		}
		return event.MaliciousAffiliateInternetName, true
	case event.CoHostedSite:
		if !m.cfg.CheckCohosts {
			return 0, false
		}
		return event.MaliciousCohost, true
	default:
		return 0, false
	}
}

// HandleEvent checks the hostname carried by in. It returns the
// classification event when the hostname is on the block list, with in as
// its parent. Repeated hostnames, disabled categories, unknown event types
// and an errored list all produce nothing.
func (m *Module) HandleEvent(ctx context.Context, in event.Event) (event.Event, bool) {
	log.Debugf("Received event, %s, from %s", in.Type, in.Module)

	if !m.markSeen(in.Data) {
		log.Debugf("Skipping %s, already checked.", in.Data)
		return event.Event{}, false
	}

	if m.svc.Errored() {
		return event.Event{}, false
	}

	kind, ok := event.ParseInputKind(in.Type)
	if !ok {
		return event.Event{}, false
	}
	out, ok := m.classify(kind)
	if !ok {
		return event.Event{}, false
	}

	log.Debugf("Checking maliciousness of %s (%s) with %s blocklist", in.Data, in.Type, hostlist.ListName)

	if !m.svc.IsBlocked(ctx, in.Data) {
		return event.Event{}, false
	}

	parent := in
	return event.New(out.String(), Describe(in.Data), ModuleName, &parent), true
}
