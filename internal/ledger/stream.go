package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"time"
)

// Entry is one decoded stream item. Position is the zero-based index of the
// item within its stream and is only known for entries returned by ListAll.
type Entry struct {
	Key           string
	Keys          []string
	Payload       json.RawMessage
	TxID          string
	Position      int64
	Confirmations int
	BlockTime     time.Time
}

type streamItem struct {
	Publishers    []string        `json:"publishers"`
	Keys          []string        `json:"keys"`
	Key           string          `json:"key"`
	Data          json.RawMessage `json:"data"`
	Confirmations int             `json:"confirmations"`
	BlockTime     int64           `json:"blocktime"`
	TxID          string          `json:"txid"`
}

// CreateStream creates an open stream. A name that is already taken fails
// with an *RPCError for which IsStreamExists reports true.
func (c *Client) CreateStream(ctx context.Context, name string) error {
	if name == "" {
		return errors.New("stream name is required")
	}
	var txid string
	if err := c.call(ctx, "create", []any{"stream", name, true}, &txid); err != nil {
		return err
	}
	c.logger.Info("stream created", "stream", name, "txid", txid)
	return nil
}

// Publish appends payload under key and returns the transaction id
func (c *Client) Publish(ctx context.Context, stream, key string, payload json.RawMessage) (string, error) {
	data, err := encodePayload(c.encoding, payload)
	if err != nil {
		return "", err
	}

	var txid string
	if err := c.call(ctx, "publish", []any{stream, key, data}, &txid); err != nil {
		return "", err
	}
	if txid == "" {
		return "", &RPCError{Method: "publish", Message: "empty transaction id"}
	}
	return txid, nil
}

// GetLatest returns the most recently appended item under key, or nil when
// the key has never been published. When that item cannot be decoded the
// entry is returned without a payload, together with an error wrapping
// ErrUndecodable.
func (c *Client) GetLatest(ctx context.Context, stream, key string) (*Entry, error) {
	var items []streamItem
	if err := c.call(ctx, "liststreamkeyitems", []any{stream, key, false, 1, -1}, &items); err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}

	item := items[len(items)-1]
	entry, err := c.decodeItem(ctx, item)
	if errors.Is(err, ErrUndecodable) {
		return &Entry{Key: key, Keys: item.Keys, TxID: item.TxID}, err
	}
	if err != nil {
		return nil, err
	}
	if entry.Key == "" {
		entry.Key = key
	}
	return &entry, nil
}

// ListAll iterates over every item of stream in append order. Pages are
// fetched lazily; items that cannot be decoded are logged and skipped. A
// failed call is yielded once and ends the sequence. Each range over the
// returned sequence starts again from the beginning.
func (c *Client) ListAll(ctx context.Context, stream string) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		start := 0
		for {
			var items []streamItem
			params := []any{stream, false, c.pageSize, start}
			if err := c.call(ctx, "liststreamitems", params, &items); err != nil {
				yield(Entry{}, err)
				return
			}

			for i, item := range items {
				entry, err := c.decodeItem(ctx, item)
				if err != nil {
					if !errors.Is(err, ErrUndecodable) {
						yield(Entry{}, err)
						return
					}
					c.logger.Warn("skipping stream item",
						"stream", stream,
						"position", start+i,
						"txid", item.TxID,
						"error", err,
					)
					continue
				}
				entry.Position = int64(start + i)
				if !yield(entry, nil) {
					return
				}
			}

			if len(items) < c.pageSize {
				return
			}
			start += len(items)
		}
	}
}

func (c *Client) decodeItem(ctx context.Context, item streamItem) (Entry, error) {
	payload, ref, err := decodeData(item.Data)
	if err != nil {
		return Entry{}, fmt.Errorf("item %s: %w", item.TxID, err)
	}
	if ref != nil {
		payload, err = c.fetchOffchain(ctx, ref)
		if err != nil {
			return Entry{}, err
		}
	}

	entry := Entry{
		Key:           item.Key,
		Keys:          item.Keys,
		Payload:       payload,
		TxID:          item.TxID,
		Confirmations: item.Confirmations,
	}
	if entry.Key == "" && len(item.Keys) > 0 {
		entry.Key = item.Keys[0]
	}
	if item.BlockTime > 0 {
		entry.BlockTime = time.Unix(item.BlockTime, 0).UTC()
	}
	return entry, nil
}

func (c *Client) fetchOffchain(ctx context.Context, ref *offchainRef) (json.RawMessage, error) {
	var data json.RawMessage
	if err := c.call(ctx, "gettxoutdata", []any{ref.TxID, ref.Vout}, &data); err != nil {
		return nil, err
	}
	payload, nested, err := decodeData(data)
	if err != nil {
		return nil, fmt.Errorf("offchain %s:%d: %w", ref.TxID, ref.Vout, err)
	}
	if nested != nil {
		return nil, fmt.Errorf("%w: offchain %s:%d resolves to another reference", ErrUndecodable, ref.TxID, ref.Vout)
	}
	return payload, nil
}
