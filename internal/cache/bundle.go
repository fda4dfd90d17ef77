package cache

import (
	"encoding/json"

	"github.com/jroosing/chaingate/internal/chain"
)

// Bundle groups the gateway's two singleton slots (head state, active
// witnesses) and its three bounded per-block maps (headers, full blocks,
// operations) behind a single DropAll, used whenever the upstream pool
// switches to a different endpoint.
type Bundle struct {
	Head     Slot[chain.HeadState]
	Witness  Slot[[]string]
	Headers  *BoundedMap[int64, json.RawMessage]
	Blocks   *BoundedMap[int64, json.RawMessage]
	Ops      *BoundedMap[chain.OpsKey, json.RawMessage]
	Counters Counters
}

// NewBundle constructs a Bundle whose bounded maps hold at most the given
// number of entries each.
func NewBundle(headersMax, blocksMax, opsMax int) *Bundle {
	return &Bundle{
		Headers: NewBoundedMap[int64, json.RawMessage](headersMax),
		Blocks:  NewBoundedMap[int64, json.RawMessage](blocksMax),
		Ops:     NewBoundedMap[chain.OpsKey, json.RawMessage](opsMax),
	}
}

// DropAll clears every cache shape in the bundle. Called after the upstream
// pool fails over to a different endpoint, since a different endpoint may
// disagree with the previous one on not-yet-irreversible heights.
func (b *Bundle) DropAll() {
	b.Head.Drop()
	b.Witness.Drop()
	b.Headers.Drop()
	b.Blocks.Drop()
	b.Ops.Drop()
}
