// Package suitest provides an in-process Sui JSON-RPC node for tests.
package suitest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/ava-labs/sui-checkpoint-indexer/pkg/sui"
)

type rpcRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      json.RawMessage   `json:"id"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
	ID      json.RawMessage `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Node serves sui_getLatestCheckpointSequenceNumber, sui_getCheckpoint,
// sui_multiGetTransactionBlocks and sui_getChainIdentifier from memory.
// Batch requests are supported.
type Node struct {
	*httptest.Server

	mu          sync.Mutex
	chainID     string
	latest      uint64
	checkpoints map[uint64]sui.Checkpoint
	txs         map[string]sui.TransactionBlock
	failures    map[string]string
	calls       map[string]int
}

// NewNode starts a node and closes it when the test ends.
func NewNode(t testing.TB) *Node {
	t.Helper()
	n := &Node{
		chainID:     "35834a8a",
		checkpoints: make(map[uint64]sui.Checkpoint),
		txs:         make(map[string]sui.TransactionBlock),
		failures:    make(map[string]string),
		calls:       make(map[string]int),
	}
	n.Server = httptest.NewServer(http.HandlerFunc(n.serve))
	t.Cleanup(n.Close)
	return n
}

// AddCheckpoint stores cp and its transaction blocks. The digests listed in
// cp.Transactions are taken from txs when empty. Latest is raised to cp.
func (n *Node) AddCheckpoint(cp sui.Checkpoint, txs ...sui.TransactionBlock) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(cp.Transactions) == 0 {
		for _, tx := range txs {
			cp.Transactions = append(cp.Transactions, tx.Digest)
		}
	}
	for _, tx := range txs {
		n.txs[tx.Digest] = tx
	}
	n.checkpoints[uint64(cp.SequenceNumber)] = cp
	n.latest = max(n.latest, uint64(cp.SequenceNumber))
}

func (n *Node) SetLatest(seq uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.latest = seq
}

// Fail makes every call to method return a JSON-RPC error with msg. An empty
// msg clears the failure.
func (n *Node) Fail(method, msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if msg == "" {
		delete(n.failures, method)
		return
	}
	n.failures[method] = msg
}

// Calls returns how many requests for method the node has answered.
func (n *Node) Calls(method string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[method]
}

func (n *Node) serve(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if len(body) > 0 && body[0] == '[' {
		var reqs []rpcRequest
		if err := json.Unmarshal(body, &reqs); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		resps := make([]rpcResponse, 0, len(reqs))
		for _, req := range reqs {
			resps = append(resps, n.handle(req))
		}
		_ = json.NewEncoder(w).Encode(resps)
		return
	}

	var req rpcRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	_ = json.NewEncoder(w).Encode(n.handle(req))
}

func (n *Node) handle(req rpcRequest) rpcResponse {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls[req.Method]++

	resp := rpcResponse{JSONRPC: "2.0", ID: req.ID}
	if msg, ok := n.failures[req.Method]; ok {
		resp.Error = &rpcError{Code: -32000, Message: msg}
		return resp
	}

	switch req.Method {
	case "sui_getLatestCheckpointSequenceNumber":
		resp.Result = strconv.FormatUint(n.latest, 10)
	case "sui_getChainIdentifier":
		resp.Result = n.chainID
	case "sui_getCheckpoint":
		var id sui.BigInt
		if len(req.Params) < 1 || json.Unmarshal(req.Params[0], &id) != nil {
			resp.Error = &rpcError{Code: -32602, Message: "invalid checkpoint id"}
			return resp
		}
		cp, ok := n.checkpoints[uint64(id)]
		if !ok {
			resp.Error = &rpcError{Code: -32602, Message: fmt.Sprintf("Could not find the referenced checkpoint: %d", id)}
			return resp
		}
		resp.Result = cp
	case "sui_multiGetTransactionBlocks":
		var digests []string
		if len(req.Params) < 1 || json.Unmarshal(req.Params[0], &digests) != nil {
			resp.Error = &rpcError{Code: -32602, Message: "invalid digests"}
			return resp
		}
		blocks := make([]sui.TransactionBlock, 0, len(digests))
		for _, d := range digests {
			if tx, ok := n.txs[d]; ok {
				blocks = append(blocks, tx)
			}
		}
		resp.Result = blocks
	default:
		resp.Error = &rpcError{Code: -32601, Message: "method not found: " + req.Method}
	}
	return resp
}
