package offlineagent

import "fmt"

type FwdReason string

const (
	// The request was not eligible for caching (e.g. cross-origin).
	FwdReasonBypass FwdReason = "bypass"

	// The request method's semantics require the request to be
	// forwarded.
	FwdReasonMethod FwdReason = "method"

	// The store did not contain an entry for the request identity.
	FwdReasonMiss FwdReason = "miss"
)

// CacheStatus renders the Cache-Status response header (RFC 9211 syntax).
type CacheStatus struct {
	hit       bool
	fwdReason FwdReason
	detail    string
}

func (cs *CacheStatus) Hit() {
	cs.hit = true
}

func (cs *CacheStatus) Forward(reason FwdReason) {
	cs.hit = false
	cs.fwdReason = reason
}

func (cs *CacheStatus) Detail(detail string) {
	cs.detail = detail
}

func (cs *CacheStatus) String() string {
	var status string
	if cs.hit {
		status = "offline-agent; hit"
	} else {
		status = fmt.Sprintf("offline-agent; fwd=%s", cs.fwdReason)
	}
	if cs.detail != "" {
		status = status + "; detail=" + cs.detail
	}
	return status
}
