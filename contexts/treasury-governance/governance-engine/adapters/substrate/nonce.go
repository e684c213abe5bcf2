package substrate

import (
	"fmt"
)

// rpcCaller is the raw JSON-RPC surface of gsrpc's client.Client.
type rpcCaller interface {
	Call(result interface{}, method string, args ...interface{}) error
}

// nonceTracker hands out signing nonces for one account. Callers must
// serialize reserve/commit/reset (Oracle holds submitMu).
//
// system_accountNextIndex counts ready pool transactions, but a load
// balanced RPC endpoint may answer from a node that has not seen the last
// submission yet, so the locally committed nonce wins when it is ahead.
type nonceTracker struct {
	rpc     rpcCaller
	address string
	local   uint64
	primed  bool
}

func newNonceTracker(rpc rpcCaller, address string) *nonceTracker {
	return &nonceTracker{rpc: rpc, address: address}
}

func (n *nonceTracker) reserve() (uint64, error) {
	var remote uint64
	if err := n.rpc.Call(&remote, "system_accountNextIndex", n.address); err != nil {
		return 0, fmt.Errorf("read treasury next index: %w", err)
	}
	if n.primed && n.local > remote {
		return n.local, nil
	}
	return remote, nil
}

// commit records that nonce was accepted by the pool.
func (n *nonceTracker) commit(nonce uint64) {
	n.local = nonce + 1
	n.primed = true
}

// reset drops the local counter after a rejected submission so the next
// reserve trusts the node again.
func (n *nonceTracker) reset() {
	n.local = 0
	n.primed = false
}
