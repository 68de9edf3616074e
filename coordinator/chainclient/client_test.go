package chainclient

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	wasmtypes "github.com/CosmWasm/wasmd/x/wasm/types"
	cmtservice "github.com/cosmos/cosmos-sdk/client/grpc/cmtservice"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
)

type fakeWasmClient struct {
	wasmtypes.QueryClient
	data    []byte
	err     error
	calls   int
	lastReq *wasmtypes.QuerySmartContractStateRequest
}

func (f *fakeWasmClient) SmartContractState(_ context.Context, in *wasmtypes.QuerySmartContractStateRequest, _ ...grpc.CallOption) (*wasmtypes.QuerySmartContractStateResponse, error) {
	f.calls++
	f.lastReq = in
	if f.err != nil {
		return nil, f.err
	}
	return &wasmtypes.QuerySmartContractStateResponse{Data: f.data}, nil
}

type fakeCmtClient struct {
	cmtservice.ServiceClient
	height int64
	err    error
}

func (f *fakeCmtClient) GetLatestBlock(_ context.Context, _ *cmtservice.GetLatestBlockRequest, _ ...grpc.CallOption) (*cmtservice.GetLatestBlockResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &cmtservice.GetLatestBlockResponse{
		SdkBlock: &cmtservice.Block{Header: cmtservice.Header{Height: f.height}},
	}, nil
}

func TestNewClient(t *testing.T) {
	logger := zerolog.Nop()

	t.Run("no urls", func(t *testing.T) {
		c, err := NewClient(nil, logger)
		require.Error(t, err)
		assert.Nil(t, c)
		assert.Contains(t, err.Error(), "at least one gRPC URL is required")
	})

	t.Run("multiple urls", func(t *testing.T) {
		c, err := NewClient([]string{"localhost:9090", "http://localhost:9091"}, logger)
		require.NoError(t, err)
		assert.Len(t, c.wasm, 2)
		assert.Len(t, c.cmtClients, 2)
		assert.NotNil(t, c.Conn())
		assert.NoError(t, c.Close())
		assert.Nil(t, c.Conn())
	})
}

func TestQuerySmart(t *testing.T) {
	t.Run("decodes first successful answer", func(t *testing.T) {
		bad := &fakeWasmClient{err: errors.New("unavailable")}
		good := &fakeWasmClient{data: []byte(`{"status":"idle"}`)}
		c := &Client{logger: zerolog.Nop(), wasm: []wasmtypes.QueryClient{bad, good}}

		var out struct {
			Status string `json:"status"`
		}
		err := c.QuerySmart(context.Background(), "neutron1core", map[string]interface{}{"contract_state": struct{}{}}, &out)
		require.NoError(t, err)
		assert.Equal(t, "idle", out.Status)

		require.NotNil(t, good.lastReq)
		assert.Equal(t, "neutron1core", good.lastReq.Address)
		assert.JSONEq(t, `{"contract_state":{}}`, string(good.lastReq.QueryData))
	})

	t.Run("round robin start rotates", func(t *testing.T) {
		a := &fakeWasmClient{data: []byte(`{}`)}
		b := &fakeWasmClient{data: []byte(`{}`)}
		c := &Client{logger: zerolog.Nop(), wasm: []wasmtypes.QueryClient{a, b}}

		for i := 0; i < 4; i++ {
			require.NoError(t, c.QuerySmart(context.Background(), "addr", struct{}{}, nil))
		}
		assert.Equal(t, 2, a.calls)
		assert.Equal(t, 2, b.calls)
	})

	t.Run("all endpoints fail", func(t *testing.T) {
		a := &fakeWasmClient{err: errors.New("boom")}
		b := &fakeWasmClient{err: errors.New("boom")}
		c := &Client{logger: zerolog.Nop(), wasm: []wasmtypes.QueryClient{a, b}}

		err := c.QuerySmart(context.Background(), "addr", struct{}{}, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed on all 2 endpoints")
		assert.Equal(t, 1, a.calls)
		assert.Equal(t, 1, b.calls)
	})

	t.Run("malformed answer", func(t *testing.T) {
		c := &Client{logger: zerolog.Nop(), wasm: []wasmtypes.QueryClient{&fakeWasmClient{data: []byte(`not json`)}}}

		var out map[string]interface{}
		err := c.QuerySmart(context.Background(), "addr", struct{}{}, &out)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to decode response")
	})

	t.Run("unencodable message", func(t *testing.T) {
		c := &Client{logger: zerolog.Nop(), wasm: []wasmtypes.QueryClient{&fakeWasmClient{}}}

		err := c.QuerySmart(context.Background(), "addr", json.RawMessage(`{`), nil)
		require.Error(t, err)
	})

	t.Run("no endpoints", func(t *testing.T) {
		c := &Client{logger: zerolog.Nop()}
		err := c.QuerySmart(context.Background(), "addr", struct{}{}, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no endpoints configured")
	})
}

func TestLatestHeight(t *testing.T) {
	c := &Client{
		logger:     zerolog.Nop(),
		cmtClients: []cmtservice.ServiceClient{&fakeCmtClient{err: errors.New("down")}, &fakeCmtClient{height: 42}},
	}

	height, err := c.LatestHeight(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(42), height)

	failing := &Client{logger: zerolog.Nop(), cmtClients: []cmtservice.ServiceClient{&fakeCmtClient{err: errors.New("down")}}}
	_, err = failing.LatestHeight(context.Background())
	require.Error(t, err)
}
