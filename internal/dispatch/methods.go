package dispatch

import "sort"

// handlerID identifies which of the dispatcher's fixed behaviors a resolved
// method name routes to.
type handlerID int

const (
	handlerHeadState handlerID = iota
	handlerBlockHeader
	handlerFullBlock
	handlerOperationsInBlock
	handlerActiveWitnesses
	handlerTransaction
	handlerSubscribe
	handlerUnsubscribe
)

// bareMethod names the canonical, unprefixed spelling for each handler.
var bareMethods = map[handlerID]string{
	handlerHeadState:         HeadStateMethod,
	handlerBlockHeader:       "get_block_header",
	handlerFullBlock:         "get_block",
	handlerOperationsInBlock: "get_ops_in_block",
	handlerActiveWitnesses:   "get_active_witnesses",
	handlerTransaction:       "get_transaction",
	handlerSubscribe:         "subscribe",
	handlerUnsubscribe:       "unsubscribe",
}

// AllBareMethods returns every canonical bare method name, for the
// connection hello frame's availableApis field.
func AllBareMethods() []string {
	names := make([]string, 0, len(bareMethods))
	for _, name := range bareMethods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// namespacePrefixes lists the namespace prefixes under which every bare
// method is also reachable; "foo" and "ns.foo" denote the same handler.
var namespacePrefixes = []string{"condenser_api.", "market_history_api."}

// HeadStateMethod is the bare upstream method name used for head-state
// calls, exported so collaborators outside this package (the health probe)
// can issue the same cheap call without reaching into the method table.
const HeadStateMethod = "get_dynamic_global_properties"

// methodTable is the closed map of every accepted method spelling (bare and
// prefixed) to its handler, built once at package init.
var methodTable = buildMethodTable()

func buildMethodTable() map[string]handlerID {
	table := make(map[string]handlerID, len(bareMethods)*(1+len(namespacePrefixes)))
	for id, name := range bareMethods {
		table[name] = id
		for _, prefix := range namespacePrefixes {
			table[prefix+name] = id
		}
	}
	return table
}
