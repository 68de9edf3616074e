package contracts

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
)

// FactoryClient queries the registry contract that knows every protocol sub-contract.
type FactoryClient struct {
	contract
}

func NewFactoryClient(q Querier, address string, timeout time.Duration) *FactoryClient {
	return &FactoryClient{contract: newContract(q, address, timeout)}
}

// State returns the raw field → address map of the factory's `state` query.
// Non-string fields are ignored.
func (c *FactoryClient) State(ctx context.Context) (map[string]string, error) {
	var raw map[string]json.RawMessage
	if err := c.query(ctx, "state", &raw); err != nil {
		return nil, err
	}

	out := make(map[string]string, len(raw))
	for field, value := range raw {
		var addr string
		if err := json.Unmarshal(value, &addr); err != nil {
			continue
		}
		if addr != "" {
			out[field] = addr
		}
	}
	if len(out) == 0 && len(raw) > 0 {
		return nil, errors.New("factory state contains no addresses")
	}
	return out, nil
}
