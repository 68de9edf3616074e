package chainclient

import (
	"context"

	rpchttp "github.com/cometbft/cometbft/rpc/client/http"
	"github.com/pkg/errors"
)

// NodeStatus is the subset of a node's status the coordinator cares about.
type NodeStatus struct {
	Network           string `json:"network"`
	LatestBlockHeight int64  `json:"latest_block_height"`
	CatchingUp        bool   `json:"catching_up"`
}

// StatusClient reports the status of a chain node.
type StatusClient interface {
	Status(ctx context.Context) (NodeStatus, error)
}

type cometStatus struct {
	rpc *rpchttp.HTTP
}

// NewStatusClient builds a StatusClient over the cometbft RPC HTTP endpoint.
func NewStatusClient(rpcURL string) (StatusClient, error) {
	if rpcURL == "" {
		return nil, errors.New("empty RPC URL provided")
	}
	rpc, err := rpchttp.New(rpcURL, "/websocket")
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create RPC client for %s", rpcURL)
	}
	return &cometStatus{rpc: rpc}, nil
}

func (s *cometStatus) Status(ctx context.Context) (NodeStatus, error) {
	res, err := s.rpc.Status(ctx)
	if err != nil {
		return NodeStatus{}, errors.Wrap(err, "failed to query node status")
	}
	return NodeStatus{
		Network:           res.NodeInfo.Network,
		LatestBlockHeight: res.SyncInfo.LatestBlockHeight,
		CatchingUp:        res.SyncInfo.CatchingUp,
	}, nil
}
