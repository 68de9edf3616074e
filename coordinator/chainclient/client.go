package chainclient

import (
	"context"
	"encoding/json"
	"sync/atomic"

	wasmtypes "github.com/CosmWasm/wasmd/x/wasm/types"
	cmtservice "github.com/cosmos/cosmos-sdk/client/grpc/cmtservice"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
)

// Client is a read-only fan-out client over multiple gRPC endpoints of one chain.
// Each call tries endpoints in round-robin order and returns the first success.
type Client struct {
	logger     zerolog.Logger
	wasm       []wasmtypes.QueryClient
	cmtClients []cmtservice.ServiceClient
	conns      []*grpc.ClientConn // owned connections for Close()
	rr         uint32             // round-robin counter
}

// NewClient dials the provided gRPC URLs and builds a Client.
// Endpoints that fail to dial are skipped; at least one must succeed.
func NewClient(urls []string, logger zerolog.Logger) (*Client, error) {
	if len(urls) == 0 {
		return nil, errors.New("chainclient: at least one gRPC URL is required")
	}

	c := &Client{logger: logger}
	for i, u := range urls {
		conn, err := CreateGRPCConnection(u)
		if err != nil {
			c.logger.Warn().Str("url", u).Int("index", i).Err(err).Msg("dial failed; skipping endpoint")
			continue
		}
		c.conns = append(c.conns, conn)
		c.wasm = append(c.wasm, wasmtypes.NewQueryClient(conn))
		c.cmtClients = append(c.cmtClients, cmtservice.NewServiceClient(conn))
	}

	if len(c.conns) == 0 {
		return nil, errors.Errorf("chainclient: all dials failed (%d urls)", len(urls))
	}
	return c, nil
}

// Conn returns the first owned connection, used by the signer for auth and tx services.
func (c *Client) Conn() *grpc.ClientConn {
	if len(c.conns) == 0 {
		return nil
	}
	return c.conns[0]
}

// Close closes all owned connections.
func (c *Client) Close() error {
	var firstErr error
	for _, conn := range c.conns {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	c.conns = nil
	c.wasm = nil
	c.cmtClients = nil
	return firstErr
}

// QuerySmart sends a JSON smart query to a contract and decodes the JSON answer into out.
func (c *Client) QuerySmart(ctx context.Context, contract string, msg, out interface{}) error {
	if len(c.wasm) == 0 {
		return errors.New("chainclient: no endpoints configured")
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "failed to encode query message")
	}

	req := &wasmtypes.QuerySmartContractStateRequest{
		Address:   contract,
		QueryData: wasmtypes.RawContractMessage(payload),
	}

	start := c.next(len(c.wasm))
	var lastErr error
	for i := 0; i < len(c.wasm); i++ {
		idx := (start + i) % len(c.wasm)

		resp, err := c.wasm[idx].SmartContractState(ctx, req)
		if err == nil {
			if out == nil {
				return nil
			}
			if err := json.Unmarshal(resp.Data, out); err != nil {
				return errors.Wrapf(err, "failed to decode response of %s", contract)
			}
			return nil
		}

		lastErr = err
		if ctx.Err() != nil {
			break
		}
		c.logger.Debug().
			Int("attempt", i+1).
			Int("endpoint_index", idx).
			Str("contract", contract).
			Err(err).
			Msg("SmartContractState failed; trying next endpoint")
	}

	return errors.Wrapf(lastErr, "chainclient: smart query to %s failed on all %d endpoints", contract, len(c.wasm))
}

// LatestHeight returns the latest block height reported by any endpoint.
func (c *Client) LatestHeight(ctx context.Context) (int64, error) {
	if len(c.cmtClients) == 0 {
		return 0, errors.New("chainclient: no endpoints configured")
	}

	start := c.next(len(c.cmtClients))
	var lastErr error
	for i := 0; i < len(c.cmtClients); i++ {
		idx := (start + i) % len(c.cmtClients)

		resp, err := c.cmtClients[idx].GetLatestBlock(ctx, &cmtservice.GetLatestBlockRequest{})
		if err == nil {
			if resp.SdkBlock != nil {
				return resp.SdkBlock.Header.Height, nil
			}
			if resp.Block != nil {
				return resp.Block.Header.Height, nil
			}
			lastErr = errors.New("empty block in response")
			continue
		}

		lastErr = err
		c.logger.Debug().
			Int("attempt", i+1).
			Int("endpoint_index", idx).
			Err(err).
			Msg("GetLatestBlock failed; trying next endpoint")
	}

	return 0, errors.Wrapf(lastErr, "chainclient: GetLatestBlock failed on all %d endpoints", len(c.cmtClients))
}

func (c *Client) next(n int) int {
	return int(atomic.AddUint32(&c.rr, 1)-1) % n
}
