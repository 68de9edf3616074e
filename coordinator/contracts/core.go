package contracts

import (
	"context"
	"encoding/json"
	"time"
)

// CoreClient queries the protocol core contract.
type CoreClient struct {
	contract
}

func NewCoreClient(q Querier, address string, timeout time.Duration) *CoreClient {
	return &CoreClient{contract: newContract(q, address, timeout)}
}

// ContractState returns the core contract's lifecycle state, e.g. "idle".
func (c *CoreClient) ContractState(ctx context.Context) (string, error) {
	var state string
	if err := c.query(ctx, "contract_state", &state); err != nil {
		return "", err
	}
	return state, nil
}

// LastIcaTransferAck returns the acknowledgement of the last cross-chain transfer as raw JSON.
func (c *CoreClient) LastIcaTransferAck(ctx context.Context) (json.RawMessage, error) {
	var ack json.RawMessage
	if err := c.query(ctx, "last_ica_transfer_ack", &ack); err != nil {
		return nil, err
	}
	return ack, nil
}
