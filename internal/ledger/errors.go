package ledger

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnavailable marks transport failures and timeouts. The request may
	// or may not have reached the node; retrying is safe for appends.
	ErrUnavailable = errors.New("ledger unavailable")
	// ErrRejected marks protocol-level refusals from the node. Retrying the
	// same request will fail the same way.
	ErrRejected = errors.New("ledger rejected request")
	// ErrUndecodable marks stream item data that is not a JSON payload in
	// any supported wire encoding.
	ErrUndecodable = errors.New("undecodable stream item")
)

// codeDuplicateName is the MultiChain RPC error code for an entity name that
// is already taken.
const codeDuplicateName = -705

// RPCError is an error member returned by the node in a JSON-RPC response
type RPCError struct {
	Method  string
	Code    int
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("ledger %s: rpc error %d: %s", e.Method, e.Code, e.Message)
}

// Is lets errors.Is(err, ErrRejected) match any RPCError
func (e *RPCError) Is(target error) bool {
	return target == ErrRejected
}

// IsStreamExists reports whether err is the node refusing to create a stream
// whose name is already in use.
func IsStreamExists(err error) bool {
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		return false
	}
	return rpcErr.Code == codeDuplicateName ||
		strings.Contains(strings.ToLower(rpcErr.Message), "already exists")
}

func unavailable(method string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, method, err)
}
