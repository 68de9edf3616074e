// Package contracts holds thin typed clients for the protocol contracts the
// coordinator observes. Message shapes are the contracts' JSON query API.
package contracts

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// Querier sends a JSON smart query to a contract and decodes the answer into out.
type Querier interface {
	QuerySmart(ctx context.Context, contract string, msg, out interface{}) error
}

// empty is the `{}` argument every query message carries.
type empty struct{}

type contract struct {
	querier Querier
	address string
	timeout time.Duration
}

func newContract(q Querier, address string, timeout time.Duration) contract {
	return contract{querier: q, address: address, timeout: timeout}
}

// Address returns the contract address the client is bound to.
func (c contract) Address() string {
	return c.address
}

func (c contract) query(ctx context.Context, name string, out interface{}) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	msg := map[string]empty{name: {}}
	if err := c.querier.QuerySmart(ctx, c.address, msg, out); err != nil {
		return errors.Wrapf(err, "query %s", name)
	}
	return nil
}
