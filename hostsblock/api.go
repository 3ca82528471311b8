package hostsblock

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/coredns/coredns/plugin/pkg/reuseport"
	"github.com/felixge/httpsnoop"
	"github.com/gorilla/mux"

	"github.com/ipshipyard/hostrep/event"
	"github.com/ipshipyard/hostrep/hostcheck"
	"github.com/ipshipyard/hostrep/hostlist"
)

const (
	// TokenEnv names the environment variable holding the API token. When it
	// is unset the API is open.
	TokenEnv = "HOSTREP_API_TOKEN"
	// TokenHeader carries the API token on requests.
	TokenHeader = "Hostrep-Authorization"
)

// maxBodySize bounds scan event submissions.
const maxBodySize = 4 << 20

// apiServer exposes the block list check over HTTP. Scans submit hostname
// events and receive the classification events back.
type apiServer struct {
	Addr    string
	Lookups *hostlist.Service
	Scans   *scanRegistry

	ln      net.Listener
	nlSetup bool

	handler http.Handler

	token string
}

func (a *apiServer) OnStartup() error {
	ln, err := reuseport.Listen("tcp", a.Addr)
	if err != nil {
		return err
	}

	if token, found := os.LookupEnv(TokenEnv); found {
		a.token = token
	} else {
		log.Warningf("environment variable %s not set, scan API is open to all clients", TokenEnv)
	}

	a.ln = ln
	a.nlSetup = true
	a.handler = withRequestMetrics(a.routes())

	go func() {
		log.Infof("Scan HTTP API listener at %s", a.ln.Addr().String())
		if err := http.Serve(a.ln, a.handler); err != nil && !errors.Is(err, net.ErrClosed) {
			log.Errorf("scan API stopped: %v", err)
		}
	}()

	return nil
}

// routes builds the API router.
func (a *apiServer) routes() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/v1/module", a.handleModule).Methods(http.MethodGet)
	r.HandleFunc("/v1/lookup/{host}", a.handleLookup).Methods(http.MethodGet)
	r.HandleFunc("/v1/scans/{scan}", a.handleScanStatus).Methods(http.MethodGet)
	r.HandleFunc("/v1/scans/{scan}", a.handleScanFinish).Methods(http.MethodDelete)
	r.HandleFunc("/v1/scans/{scan}/events", a.handleScanEvents).Methods(http.MethodPost)
	r.Use(a.authorize)
	return r
}

func (a *apiServer) authorize(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.token != "" && r.Header.Get(TokenHeader) != a.token {
			w.WriteHeader(http.StatusForbidden)
			fmt.Fprintf(w, "403 Forbidden: Missing %s header.", TokenHeader)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type moduleResponse struct {
	Module   hostcheck.Meta    `json:"module"`
	Watched  []string          `json:"watchedEvents"`
	Produced []string          `json:"producedEvents"`
	Options  map[string]string `json:"options"`
}

func (a *apiServer) handleModule(w http.ResponseWriter, r *http.Request) {
	// any Module answers the event type questions the same way
	m := hostcheck.New(hostcheck.DefaultConfig(), a.Lookups)
	writeJSON(w, http.StatusOK, moduleResponse{
		Module:   hostcheck.Info,
		Watched:  m.WatchedEvents(),
		Produced: m.ProducedEvents(),
		Options:  hostcheck.OptionDescriptions,
	})
}

type lookupResponse struct {
	Host    string `json:"host"`
	Blocked bool   `json:"blocked"`
	Errored bool   `json:"errored,omitempty"`
}

func (a *apiServer) handleLookup(w http.ResponseWriter, r *http.Request) {
	host := strings.TrimSuffix(mux.Vars(r)["host"], ".")
	blocked := a.Lookups.IsBlocked(r.Context(), host)
	writeJSON(w, http.StatusOK, lookupResponse{
		Host:    host,
		Blocked: blocked,
		Errored: a.Lookups.Errored(),
	})
}

type scanStatus struct {
	Scan            string `json:"scan"`
	Checked         int    `json:"checked"`
	Errored         bool   `json:"errored"`
	CheckAffiliates bool   `json:"checkaffiliates"`
	CheckCohosts    bool   `json:"checkcohosts"`
	CachePeriod     int    `json:"cacheperiod"`
}

func statusOf(id string, m *hostcheck.Module) scanStatus {
	cfg := m.Config()
	return scanStatus{
		Scan:            id,
		Checked:         m.Checked(),
		Errored:         m.Errored(),
		CheckAffiliates: cfg.CheckAffiliates,
		CheckCohosts:    cfg.CheckCohosts,
		CachePeriod:     int(cfg.CachePeriod.Hours()),
	}
}

func (a *apiServer) handleScanStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["scan"]
	m, ok := a.Scans.get(id)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown scan %q", id))
		return
	}
	writeJSON(w, http.StatusOK, statusOf(id, m))
}

func (a *apiServer) handleScanFinish(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["scan"]
	if !a.Scans.remove(id) {
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown scan %q", id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type eventsRequest struct {
	Options map[string]string `json:"options"`
	Events  []inputEvent      `json:"events"`
}

type inputEvent struct {
	Type   string `json:"type"`
	Data   string `json:"data"`
	Module string `json:"module"`
}

type eventsResponse struct {
	Scan    string        `json:"scan"`
	Created bool          `json:"created"`
	Errored bool          `json:"errored"`
	Events  []event.Event `json:"events"`
}

func (a *apiServer) handleScanEvents(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["scan"]

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("error reading body: %w", err))
		return
	}

	var req eventsRequest
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("error decoding body: %w", err))
		return
	}

	for _, in := range req.Events {
		if in.Data == "" {
			writeError(w, http.StatusBadRequest, errors.New("event data must not be empty"))
			return
		}
	}

	m, created, err := a.Scans.getOrCreate(id, req.Options)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	out := make([]event.Event, 0, len(req.Events))
	for _, in := range req.Events {
		scanEventCount.WithLabelValues("in", in.Type).Add(1)
		ev, ok := m.HandleEvent(r.Context(), event.New(in.Type, in.Data, in.Module, nil))
		if !ok {
			continue
		}
		scanEventCount.WithLabelValues("out", ev.Type).Add(1)
		out = append(out, ev)
	}

	writeJSON(w, http.StatusOK, eventsResponse{
		Scan:    id,
		Created: created,
		Errored: m.Errored(),
		Events:  out,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debugf("writing response: %v", err)
	}
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func withRequestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(next, w, r)
		apiRequestCount.WithLabelValues(strconv.Itoa(m.Code)).Add(1)
		from := "unknown"
		if ip, ok := clientAddr(r); ok {
			from = ip.String()
		}
		log.Debugf("%s %s from %s (status=%d dt=%s ua=%q)", r.Method, r.URL, from, m.Code, m.Duration, r.UserAgent())
	})
}

func (a *apiServer) OnFinalShutdown() error {
	if !a.nlSetup {
		return nil
	}

	a.ln.Close()
	a.nlSetup = false
	return nil
}

func (a *apiServer) OnReload() error {
	if !a.nlSetup {
		return nil
	}

	a.ln.Close()
	a.nlSetup = false
	return nil
}
