// Package event defines the records exchanged between a scan and the modules
// that analyze it.
package event

import (
	"fmt"

	"github.com/google/uuid"
)

// Event is one observation produced during a scan. Parent links an event to
// the event that caused it.
type Event struct {
	ID     string `json:"id"`
	Type   string `json:"type"`
	Data   string `json:"data"`
	Module string `json:"module"`
	Parent *Event `json:"parent,omitempty"`
}

// New creates an Event with a fresh ID.
func New(typ, data, module string, parent *Event) Event {
	return Event{
		ID:     uuid.NewString(),
		Type:   typ,
		Data:   data,
		Module: module,
		Parent: parent,
	}
}

// InputKind is a hostname event accepted by the block list check.
type InputKind int

const (
	// InternetName is a hostname belonging to the scan target.
	InternetName InputKind = iota + 1
	// AffiliateInternetName is a hostname related to, but not part of, the target.
	AffiliateInternetName
	// CoHostedSite is a hostname sharing an IP address with the target.
	CoHostedSite
)

var inputNames = map[InputKind]string{
	InternetName:          "INTERNET_NAME",
	AffiliateInternetName: "AFFILIATE_INTERNET_NAME",
	CoHostedSite:          "CO_HOSTED_SITE",
}

func (k InputKind) String() string {
	if s, ok := inputNames[k]; ok {
		return s
	}
	return fmt.Sprintf("InputKind(%d)", int(k))
}

// InputKinds lists every input kind in declaration order.
func InputKinds() []InputKind {
	return []InputKind{InternetName, AffiliateInternetName, CoHostedSite}
}

// ParseInputKind maps an event type name to its kind. ok is false for types
// this package does not know.
func ParseInputKind(typ string) (kind InputKind, ok bool) {
	for k, s := range inputNames {
		if s == typ {
			return k, true
		}
	}
	return 0, false
}

// OutputKind is a classification emitted for a listed hostname.
type OutputKind int

const (
	MaliciousInternetName OutputKind = iota + 1
	MaliciousAffiliateInternetName
	MaliciousCohost
)

var outputNames = map[OutputKind]string{
	MaliciousInternetName:          "MALICIOUS_INTERNET_NAME",
	MaliciousAffiliateInternetName: "MALICIOUS_AFFILIATE_INTERNET_NAME",
	MaliciousCohost:                "MALICIOUS_COHOST",
}

func (k OutputKind) String() string {
	if s, ok := outputNames[k]; ok {
		return s
	}
	return fmt.Sprintf("OutputKind(%d)", int(k))
}

// OutputKinds lists every output kind in declaration order.
func OutputKinds() []OutputKind {
	return []OutputKind{MaliciousInternetName, MaliciousAffiliateInternetName, MaliciousCohost}
}
