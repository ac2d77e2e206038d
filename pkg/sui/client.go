// Package sui is a minimal Sui JSON-RPC client covering what the checkpoint
// pipeline needs: the chain tip and full checkpoints with transaction events.
package sui

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"

	"github.com/ava-labs/sui-checkpoint-indexer/pkg/checkpoint"
	"github.com/ava-labs/sui-checkpoint-indexer/pkg/metrics"
)

const (
	methodLatestCheckpoint  = "sui_getLatestCheckpointSequenceNumber"
	methodGetCheckpoint     = "sui_getCheckpoint"
	methodMultiGetTxBlocks  = "sui_multiGetTransactionBlocks"
	methodChainIdentifier   = "sui_getChainIdentifier"
	methodMultiGetTxBatched = methodMultiGetTxBlocks + "_batch"

	// MaxTransactionsPerRequest is the node-side cap on digests per
	// sui_multiGetTransactionBlocks call.
	MaxTransactionsPerRequest = 50
)

var ErrTransactionMissing = errors.New("transaction missing from response")

type txBlockOptions struct {
	ShowEvents bool `json:"showEvents"`
}

type Client struct {
	rpc       *rpc.Client
	log       *zap.SugaredLogger
	metrics   *metrics.Metrics
	batchSize int
}

// Dial connects to a Sui fullnode JSON-RPC endpoint.
func Dial(ctx context.Context, url string, log *zap.SugaredLogger, m *metrics.Metrics, opts ...Option) (*Client, error) {
	c, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial sui rpc: %w", err)
	}
	return NewClient(c, log, m, opts...), nil
}

type Option func(*Client)

// WithBatchSize caps the number of digests per sui_multiGetTransactionBlocks
// request. Values outside (0, MaxTransactionsPerRequest] are ignored.
func WithBatchSize(n int) Option {
	return func(c *Client) {
		if n > 0 && n <= MaxTransactionsPerRequest {
			c.batchSize = n
		}
	}
}

// NewClient wraps an established rpc connection. m may be nil.
func NewClient(c *rpc.Client, log *zap.SugaredLogger, m *metrics.Metrics, opts ...Option) *Client {
	cl := &Client{
		rpc:       c,
		log:       log,
		metrics:   m,
		batchSize: MaxTransactionsPerRequest,
	}
	for _, opt := range opts {
		opt(cl)
	}
	return cl
}

func (c *Client) Close() {
	c.rpc.Close()
}

// LatestCheckpoint returns the sequence number of the most recent executed
// checkpoint.
func (c *Client) LatestCheckpoint(ctx context.Context) (uint64, error) {
	var seq BigInt
	if err := c.call(ctx, &seq, methodLatestCheckpoint); err != nil {
		return 0, fmt.Errorf("latest checkpoint: %w", err)
	}
	return uint64(seq), nil
}

// ChainIdentifier returns the digest prefix of the genesis checkpoint, which
// distinguishes mainnet, testnet and local networks.
func (c *Client) ChainIdentifier(ctx context.Context) (string, error) {
	var id string
	if err := c.call(ctx, &id, methodChainIdentifier); err != nil {
		return "", fmt.Errorf("chain identifier: %w", err)
	}
	return id, nil
}

// GetCheckpoint fetches checkpoint seq together with every transaction it
// contains and their events. Transactions keep checkpoint order.
func (c *Client) GetCheckpoint(ctx context.Context, seq uint64) (*checkpoint.Checkpoint, error) {
	var raw Checkpoint
	if err := c.call(ctx, &raw, methodGetCheckpoint, BigInt(seq)); err != nil {
		return nil, fmt.Errorf("get checkpoint %d: %w", seq, err)
	}
	if uint64(raw.SequenceNumber) != seq {
		return nil, fmt.Errorf("get checkpoint %d: node returned checkpoint %d", seq, raw.SequenceNumber)
	}

	blocks, err := c.transactionBlocks(ctx, raw.Transactions)
	if err != nil {
		return nil, fmt.Errorf("get checkpoint %d: %w", seq, err)
	}

	cp := &checkpoint.Checkpoint{
		Summary:      raw.summary(),
		Transactions: make([]*checkpoint.Transaction, 0, len(raw.Transactions)),
	}
	for _, digest := range raw.Transactions {
		block, ok := blocks[digest]
		if !ok {
			return nil, fmt.Errorf("get checkpoint %d: %w: %s", seq, ErrTransactionMissing, digest)
		}
		tx := &checkpoint.Transaction{
			Digest: digest,
			Events: make([]*checkpoint.Event, 0, len(block.Events)),
		}
		for _, e := range block.Events {
			ev := e.toEvent()
			if ev.ContentsErr != nil {
				c.log.Debugw("event payload not decodable",
					"checkpoint", seq,
					"tx", digest,
					"eventSeq", ev.EventSeq,
					"type", ev.Type,
					"error", ev.ContentsErr,
				)
			}
			tx.Events = append(tx.Events, ev)
		}
		cp.Transactions = append(cp.Transactions, tx)
	}
	c.metrics.AddTransactionsLoaded(len(cp.Transactions))
	return cp, nil
}

// transactionBlocks loads digests in chunks of batchSize, sending all chunks
// in one JSON-RPC batch.
func (c *Client) transactionBlocks(ctx context.Context, digests []string) (map[string]TransactionBlock, error) {
	out := make(map[string]TransactionBlock, len(digests))
	if len(digests) == 0 {
		return out, nil
	}

	opts := txBlockOptions{ShowEvents: true}
	var (
		elems   []rpc.BatchElem
		results []*[]TransactionBlock
	)
	for start := 0; start < len(digests); start += c.batchSize {
		end := min(start+c.batchSize, len(digests))
		res := new([]TransactionBlock)
		results = append(results, res)
		elems = append(elems, rpc.BatchElem{
			Method: methodMultiGetTxBlocks,
			Args:   []any{digests[start:end], opts},
			Result: res,
		})
	}

	method := methodMultiGetTxBlocks
	if len(elems) > 1 {
		method = methodMultiGetTxBatched
	}
	if err := c.batch(ctx, method, elems); err != nil {
		return nil, err
	}
	for i, el := range elems {
		if el.Error != nil {
			return nil, fmt.Errorf("%s chunk %d: %w", methodMultiGetTxBlocks, i, el.Error)
		}
		for _, b := range *results[i] {
			out[b.Digest] = b
		}
	}
	return out, nil
}

func (c *Client) call(ctx context.Context, result any, method string, args ...any) error {
	start := time.Now()
	c.metrics.IncRPCInFlight()
	defer c.metrics.DecRPCInFlight()

	err := c.rpc.CallContext(ctx, result, method, args...)
	c.metrics.RecordRPCCall(method, err, time.Since(start).Seconds())
	return err
}

func (c *Client) batch(ctx context.Context, method string, elems []rpc.BatchElem) error {
	start := time.Now()
	c.metrics.IncRPCInFlight()
	defer c.metrics.DecRPCInFlight()

	err := c.rpc.BatchCallContext(ctx, elems)
	c.metrics.RecordRPCCall(method, err, time.Since(start).Seconds())
	if err != nil {
		c.log.Debugw("batch call failed", "method", method, "requests", len(elems), "error", err)
	}
	return err
}
