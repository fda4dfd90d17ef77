// Package chain holds the small set of domain shapes the gateway needs to
// look inside an otherwise-opaque upstream response: the head block height
// and the active witness list. Everything else upstreams return is passed
// through to clients untouched as json.RawMessage.
package chain

import "encoding/json"

// HeadState is the gateway's view of an upstream's dynamic global
// properties response: the raw payload plus the head block height pulled
// out of it for change detection.
type HeadState struct {
	Height int64
	Raw    json.RawMessage
}

type headStateWire struct {
	HeadBlockNumber int64 `json:"head_block_number"`
}

// ParseHeadState extracts the head block height from a get_dynamic_global_properties
// response, keeping the original payload for pass-through to clients.
func ParseHeadState(raw json.RawMessage) (HeadState, error) {
	var wire headStateWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		return HeadState{}, err
	}
	return HeadState{Height: wire.HeadBlockNumber, Raw: raw}, nil
}

type witnessListWire struct {
	Witnesses []string `json:"witnesses"`
}

// ParseWitnesses extracts the ordered list of active witness account names
// from a get_active_witnesses response.
func ParseWitnesses(raw json.RawMessage) ([]string, error) {
	var wire witnessListWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, err
	}
	return wire.Witnesses, nil
}

// OpsKey identifies a cached operations-in-block lookup: the block height
// plus whether only virtual operations were requested.
type OpsKey struct {
	Height      int64
	OnlyVirtual bool
}
