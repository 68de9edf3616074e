package contracts

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strconv"
	"time"

	"github.com/pkg/errors"

	coorderrors "github.com/drop-protocol/coordinator/coordinator/errors"
)

// QueryID is one registered interchain query identifier, keyed by the response field
// that carried it. Value is nil when the contract reports the field as unset.
type QueryID struct {
	Field string
	Value interface{}
}

// String renders the identifier the way the relayer expects it on the command line.
func (q QueryID) String() string {
	switch v := q.Value.(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	}
	return ""
}

// Set reports whether the identifier is present: null, "", the number 0 and false
// are unset. The string "0" is an identifier like any other.
func (q QueryID) Set() bool {
	switch v := q.Value.(type) {
	case nil:
		return false
	case string:
		return v != ""
	case json.Number:
		f, err := v.Float64()
		return err == nil && f != 0
	case bool:
		return v
	}
	return false
}

// ValidatorsStatsClient queries the validator statistics contract.
type ValidatorsStatsClient struct {
	contract
}

func NewValidatorsStatsClient(q Querier, address string, timeout time.Duration) *ValidatorsStatsClient {
	return &ValidatorsStatsClient{contract: newContract(q, address, timeout)}
}

// QueryIds returns the registered interchain query identifiers in response order.
func (c *ValidatorsStatsClient) QueryIds(ctx context.Context) ([]QueryID, error) {
	var raw json.RawMessage
	if err := c.query(ctx, "query_ids", &raw); err != nil {
		return nil, err
	}
	return DecodeQueryIDs(raw)
}

// DecodeQueryIDs decodes a query_ids answer, either an object of named identifiers
// or a plain array, keeping the order the contract produced. A malformed answer
// is an ErrCodeDecode error.
func DecodeQueryIDs(raw json.RawMessage) ([]QueryID, error) {
	ids, err := decodeQueryIDs(raw)
	if err != nil {
		return nil, coorderrors.NewDecodeError("", "malformed query_ids answer", err)
	}
	return ids, nil
}

func decodeQueryIDs(raw json.RawMessage) ([]QueryID, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, errors.Wrap(err, "decode query ids")
	}

	var ids []QueryID
	switch tok {
	case json.Delim('{'):
		for dec.More() {
			keyTok, err := dec.Token()
			if err != nil {
				return nil, errors.Wrap(err, "decode query ids")
			}
			key, _ := keyTok.(string)
			value, err := scalar(dec)
			if err != nil {
				return nil, errors.Wrapf(err, "decode query id %q", key)
			}
			ids = append(ids, QueryID{Field: key, Value: value})
		}
	case json.Delim('['):
		for i := 0; dec.More(); i++ {
			value, err := scalar(dec)
			if err != nil {
				return nil, errors.Wrapf(err, "decode query id #%d", i)
			}
			ids = append(ids, QueryID{Field: strconv.Itoa(i), Value: value})
		}
	case nil:
		return nil, nil
	default:
		return nil, errors.Errorf("decode query ids: unexpected token %v", tok)
	}

	if _, err := dec.Token(); err != nil && err != io.EOF {
		return nil, errors.Wrap(err, "decode query ids")
	}
	return ids, nil
}

func scalar(dec *json.Decoder) (interface{}, error) {
	var value interface{}
	if err := dec.Decode(&value); err != nil {
		return nil, err
	}
	switch value.(type) {
	case nil, string, json.Number, bool:
		return value, nil
	}
	return nil, errors.New("identifier is not a scalar")
}
