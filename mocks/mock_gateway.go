package mocks

import (
	"context"
	"encoding/json"
	"net/url"

	"github.com/stretchr/testify/mock"
)

// MockGateway is a mock implementation of executor.Gateway. The first return
// value of an expectation is the response document; it is round-tripped
// through JSON into the caller's output value the way the real client decodes
// a response body.
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) Get(ctx context.Context, path string, params url.Values, out any) error {
	args := m.Called(ctx, path, params)
	return decodeInto(out, args.Get(0), args.Error(1))
}

func (m *MockGateway) Post(ctx context.Context, path string, body, out any) error {
	args := m.Called(ctx, path, body)
	return decodeInto(out, args.Get(0), args.Error(1))
}

func (m *MockGateway) Put(ctx context.Context, path string, body, out any) error {
	args := m.Called(ctx, path, body)
	return decodeInto(out, args.Get(0), args.Error(1))
}

func decodeInto(out, response any, err error) error {
	if err != nil {
		return err
	}
	if out == nil || response == nil {
		return nil
	}
	raw, err := json.Marshal(response)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}
