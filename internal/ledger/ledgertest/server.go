// Package ledgertest provides an in-memory MultiChain JSON-RPC node for tests.
package ledgertest

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
)

const (
	User     = "multichainrpc"
	Password = "secret"
)

// Failure is an injected fault for the next call of a method
type Failure int

const (
	// FailUnavailable answers with a 500 and a non-JSON body
	FailUnavailable Failure = iota + 1
	// FailReject answers with a JSON-RPC error member
	FailReject
	// FailHang never answers until the request is cancelled
	FailHang
)

// Item is one stored stream item. Data is kept exactly as published.
type Item struct {
	Keys []string
	Data json.RawMessage
	TxID string
}

// Node is a fake ledger node. The zero value is not usable; call New.
type Node struct {
	mu       sync.Mutex
	streams  map[string][]Item
	offchain map[string]json.RawMessage
	failures map[string][]Failure
	calls    map[string]int
	seq      int

	server *httptest.Server
}

// New starts a node and registers its shutdown with t.Cleanup
func New(t interface{ Cleanup(func()) }) *Node {
	n := &Node{
		streams:  make(map[string][]Item),
		offchain: make(map[string]json.RawMessage),
		failures: make(map[string][]Failure),
		calls:    make(map[string]int),
	}
	n.server = httptest.NewServer(http.HandlerFunc(n.handle))
	t.Cleanup(n.server.Close)
	return n
}

// URL returns the JSON-RPC endpoint
func (n *Node) URL() string {
	return n.server.URL
}

// CreateStream creates a stream directly, bypassing RPC
func (n *Node) CreateStream(name string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.streams[name]; !ok {
		n.streams[name] = []Item{}
	}
}

// Fail queues a fault for the next call of method
func (n *Node) Fail(method string, f Failure) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failures[method] = append(n.failures[method], f)
}

// Append stores raw item data under key and returns its txid. It is used to
// plant items in wire shapes the client never publishes itself.
func (n *Node) Append(stream, key string, data json.RawMessage) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.appendLocked(stream, key, data)
}

// AppendOffchain stores payload as off-chain data and appends a reference
// item pointing at it.
func (n *Node) AppendOffchain(stream, key string, payload json.RawMessage) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.seq++
	dataTx := txid(n.seq)
	n.offchain[dataTx+":0"] = json.RawMessage(strconv.Quote(hex.EncodeToString(payload)))
	ref := fmt.Sprintf(`{"txid":%q,"vout":0}`, dataTx)
	return n.appendLocked(stream, key, json.RawMessage(ref))
}

// Items returns a copy of the items of stream
func (n *Node) Items(stream string) []Item {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Item(nil), n.streams[stream]...)
}

// Payloads returns the decoded JSON payloads published under key
func (n *Node) Payloads(stream, key string) []json.RawMessage {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []json.RawMessage
	for _, item := range n.streams[stream] {
		if item.Keys[0] != key {
			continue
		}
		if payload, ok := decode(item.Data); ok {
			out = append(out, payload)
		}
	}
	return out
}

// Calls returns how many times method has been called
func (n *Node) Calls(method string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[method]
}

func (n *Node) appendLocked(stream, key string, data json.RawMessage) string {
	n.seq++
	id := txid(n.seq)
	n.streams[stream] = append(n.streams[stream], Item{Keys: []string{key}, Data: data, TxID: id})
	return id
}

type request struct {
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
	ID     any               `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type response struct {
	Result any       `json:"result"`
	Error  *rpcError `json:"error"`
	ID     any       `json:"id"`
}

type wireItem struct {
	Publishers    []string        `json:"publishers"`
	Keys          []string        `json:"keys"`
	Data          json.RawMessage `json:"data"`
	Confirmations int             `json:"confirmations"`
	TxID          string          `json:"txid"`
}

func (n *Node) handle(w http.ResponseWriter, r *http.Request) {
	user, pass, ok := r.BasicAuth()
	if !ok || user != User || pass != Password {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	var req request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	n.mu.Lock()
	n.calls[req.Method]++
	var failure Failure
	if queued := n.failures[req.Method]; len(queued) > 0 {
		failure = queued[0]
		n.failures[req.Method] = queued[1:]
	}
	n.mu.Unlock()

	switch failure {
	case FailUnavailable:
		http.Error(w, "node unavailable", http.StatusInternalServerError)
		return
	case FailReject:
		writeJSON(w, http.StatusInternalServerError, response{
			Error: &rpcError{Code: -1, Message: "injected rejection"},
			ID:    req.ID,
		})
		return
	case FailHang:
		<-r.Context().Done()
		return
	}

	result, rerr := n.dispatch(req)
	status := http.StatusOK
	if rerr != nil {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, response{Result: result, Error: rerr, ID: req.ID})
}

func (n *Node) dispatch(req request) (any, *rpcError) {
	n.mu.Lock()
	defer n.mu.Unlock()

	switch req.Method {
	case "create":
		var kind, name string
		if len(req.Params) < 2 || json.Unmarshal(req.Params[0], &kind) != nil || json.Unmarshal(req.Params[1], &name) != nil {
			return nil, &rpcError{Code: -8, Message: "invalid parameters"}
		}
		if _, exists := n.streams[name]; exists {
			return nil, &rpcError{Code: -705, Message: "Stream, Asset or Upgrade with this name already exists"}
		}
		n.streams[name] = []Item{}
		n.seq++
		return txid(n.seq), nil

	case "publish":
		var stream, key string
		if len(req.Params) < 3 || json.Unmarshal(req.Params[0], &stream) != nil || json.Unmarshal(req.Params[1], &key) != nil {
			return nil, &rpcError{Code: -8, Message: "invalid parameters"}
		}
		if _, ok := n.streams[stream]; !ok {
			return nil, &rpcError{Code: -708, Message: "Stream with this name not found: " + stream}
		}
		if _, ok := decode(req.Params[2]); !ok {
			return nil, &rpcError{Code: -8, Message: "data must be hex or a json object"}
		}
		return n.appendLocked(stream, key, req.Params[2]), nil

	case "liststreamkeyitems":
		var stream, key string
		if len(req.Params) < 2 || json.Unmarshal(req.Params[0], &stream) != nil || json.Unmarshal(req.Params[1], &key) != nil {
			return nil, &rpcError{Code: -8, Message: "invalid parameters"}
		}
		items, ok := n.streams[stream]
		if !ok {
			return nil, &rpcError{Code: -708, Message: "Stream with this name not found: " + stream}
		}
		var matched []Item
		for _, item := range items {
			if item.Keys[0] == key {
				matched = append(matched, item)
			}
		}
		count, start := len(matched), 0
		if len(req.Params) >= 5 {
			_ = json.Unmarshal(req.Params[3], &count)
			_ = json.Unmarshal(req.Params[4], &start)
		}
		return toWire(window(matched, count, start)), nil

	case "liststreamitems":
		var stream string
		if len(req.Params) < 1 || json.Unmarshal(req.Params[0], &stream) != nil {
			return nil, &rpcError{Code: -8, Message: "invalid parameters"}
		}
		items, ok := n.streams[stream]
		if !ok {
			return nil, &rpcError{Code: -708, Message: "Stream with this name not found: " + stream}
		}
		count, start := 10, -10
		if len(req.Params) >= 4 {
			_ = json.Unmarshal(req.Params[2], &count)
			_ = json.Unmarshal(req.Params[3], &start)
		}
		return toWire(window(items, count, start)), nil

	case "gettxoutdata":
		var tx string
		var vout int
		if len(req.Params) < 2 || json.Unmarshal(req.Params[0], &tx) != nil || json.Unmarshal(req.Params[1], &vout) != nil {
			return nil, &rpcError{Code: -8, Message: "invalid parameters"}
		}
		data, ok := n.offchain[fmt.Sprintf("%s:%d", tx, vout)]
		if !ok {
			return nil, &rpcError{Code: -5, Message: "No information available about transaction"}
		}
		return data, nil

	default:
		return nil, &rpcError{Code: -32601, Message: "Method not found"}
	}
}

// window mirrors the node's count/start semantics: a negative start counts
// back from the end of the list.
func window(items []Item, count, start int) []Item {
	if start < 0 {
		start = len(items) + start
		if start < 0 {
			start = 0
		}
	}
	if start >= len(items) || count <= 0 {
		return nil
	}
	end := start + count
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

func toWire(items []Item) []wireItem {
	out := make([]wireItem, 0, len(items))
	for _, item := range items {
		out = append(out, wireItem{
			Publishers:    []string{"1FakePublisherAddress"},
			Keys:          item.Keys,
			Data:          item.Data,
			Confirmations: 1,
			TxID:          item.TxID,
		})
	}
	return out
}

// decode extracts the JSON payload from the two shapes a client publishes
func decode(data json.RawMessage) (json.RawMessage, bool) {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		raw, err := hex.DecodeString(s)
		if err != nil || !json.Valid(raw) {
			return nil, false
		}
		return raw, true
	}
	var obj struct {
		JSON json.RawMessage `json:"json"`
	}
	if err := json.Unmarshal(data, &obj); err == nil && len(obj.JSON) > 0 {
		return obj.JSON, true
	}
	return nil, false
}

func txid(seq int) string {
	sum := sha256.Sum256([]byte(strconv.Itoa(seq)))
	return hex.EncodeToString(sum[:])
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
