// Package contractstest provides an in-memory contract querier for tests.
package contractstest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

type key struct {
	contract string
	query    string
}

// Querier answers smart queries from canned JSON, keyed by contract address and query name.
type Querier struct {
	mu        sync.Mutex
	responses map[key]string
	failures  map[key]error
	calls     []string
	block     map[key]chan struct{}
}

func NewQuerier() *Querier {
	return &Querier{
		responses: make(map[key]string),
		failures:  make(map[key]error),
		block:     make(map[key]chan struct{}),
	}
}

// Respond sets the JSON answer of query on contract and clears any failure.
func (q *Querier) Respond(contract, query, answer string) *Querier {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.responses[key{contract, query}] = answer
	delete(q.failures, key{contract, query})
	return q
}

// Fail makes query on contract return err.
func (q *Querier) Fail(contract, query string, err error) *Querier {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.failures[key{contract, query}] = err
	return q
}

// Block makes query on contract wait until the returned function is called or ctx ends.
func (q *Querier) Block(contract, query string) (release func()) {
	q.mu.Lock()
	defer q.mu.Unlock()
	ch := make(chan struct{})
	q.block[key{contract, query}] = ch
	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

// Calls returns the "contract/query" pairs seen so far, in order.
func (q *Querier) Calls() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.calls...)
}

func (q *Querier) QuerySmart(ctx context.Context, contract string, msg, out interface{}) error {
	name, err := queryName(msg)
	if err != nil {
		return err
	}
	k := key{contract, name}

	q.mu.Lock()
	q.calls = append(q.calls, contract+"/"+name)
	answer, ok := q.responses[k]
	failure := q.failures[k]
	wait := q.block[k]
	q.mu.Unlock()

	if wait != nil {
		select {
		case <-wait:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if failure != nil {
		return failure
	}
	if !ok {
		return fmt.Errorf("no response for %s on %s", name, contract)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal([]byte(answer), out)
}

func queryName(msg interface{}) (string, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return "", err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return "", err
	}
	if len(fields) != 1 {
		return "", fmt.Errorf("query message must have exactly one field, got %d", len(fields))
	}
	for name := range fields {
		return name, nil
	}
	return "", nil
}
