package jsonrpc

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/c360/moonraker/errors"
)

// Call is the pending result of an in-flight RPC. It resolves exactly once,
// normally from the receipt goroutine. A caller that stops waiting purges the
// pending entry so the table cannot accumulate orphaned slots.
type Call struct {
	// Method is the RPC method this call was issued for.
	Method string
	// ID is the message id assigned by the client. Never reused.
	ID int64

	client *Client
	done   chan struct{}
	once   sync.Once
	result json.RawMessage
	err    error
}

func newCall(client *Client, method string, id int64) *Call {
	return &Call{
		Method: method,
		ID:     id,
		client: client,
		done:   make(chan struct{}),
	}
}

// complete resolves the call. Safe to invoke from both the receipt goroutine
// and a timed-out waiter; the first resolution wins.
func (c *Call) complete(result json.RawMessage, err error) {
	c.once.Do(func() {
		c.result = result
		c.err = err
		close(c.done)
	})
}

// Done returns a channel closed when the call resolves.
func (c *Call) Done() <-chan struct{} {
	return c.done
}

// Err returns the call error. Only valid after Done is closed.
func (c *Call) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

// Wait blocks until the call resolves or the context ends. On context end the
// pending entry is removed from the client's table and the call fails; a late
// response for this id is then dropped as unmatched.
func (c *Call) Wait(ctx context.Context) (json.RawMessage, error) {
	select {
	case <-c.done:
		return c.result, c.err
	case <-ctx.Done():
		c.client.forget(c.ID)
		c.complete(nil, errors.WrapTransient(ctx.Err(), "Client", "Wait", c.Method))
		<-c.done
		return c.result, c.err
	}
}

// Decode waits for the call and unmarshals a successful result into v.
// A nil v discards the result.
func (c *Call) Decode(ctx context.Context, v any) error {
	result, err := c.Wait(ctx)
	if err != nil {
		return err
	}
	if v == nil {
		return nil
	}
	if err := json.Unmarshal(result, v); err != nil {
		return errors.WrapInvalid(err, "Client", "Decode", c.Method)
	}
	return nil
}
