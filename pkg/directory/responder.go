package directory

import (
	"context"
	"encoding/json"
	"log"
	"time"
)

// Responder answers inbound discovery queries with the local profile when
// the visibility decision table allows it. Responses go directly to the
// requester, never over broadcast.
type Responder struct {
	store     *ProfileStore
	transport Transport
	nowMS     func() int64
}

// NewResponder creates a query responder over the local profile store.
func NewResponder(store *ProfileStore, transport Transport) *Responder {
	return &Responder{
		store:     store,
		transport: transport,
		nowMS:     func() int64 { return time.Now().UnixMilli() },
	}
}

// Handle evaluates one query and, when eligible, sends exactly one direct
// response. Send failures are logged and dropped: repeated queries are
// answered idempotently and the coordinator deduplicates on its side.
func (r *Responder) Handle(ctx context.Context, q DiscoveryQuery) {
	local, ok := r.store.Get()
	if !ok {
		return
	}
	// Our own queries loop back through the transport; answering them
	// would plant the local profile in our own results.
	if q.RequesterAddress == local.NetworkAddress {
		return
	}
	if !ShouldRespond(q, local) {
		return
	}

	resp := DiscoveryResponse{
		Kind:      KindResponse,
		RequestID: q.RequestID,
		Profiles:  []Profile{local},
		Timestamp: r.nowMS(),
	}
	data, err := json.Marshal(resp)
	if err != nil {
		log.Printf("responder: marshal response: %v", err)
		return
	}
	if err := r.transport.SendDirect(ctx, q.RequesterAddress, data); err != nil {
		log.Printf("responder: send to %s failed: %v", q.RequesterAddress, err)
	}
}
