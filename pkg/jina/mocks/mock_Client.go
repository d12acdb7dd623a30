// Package mocks provides test doubles for the jina client.
package mocks

import (
	"context"

	mock "github.com/stretchr/testify/mock"
)

// MockClient is a mock type for the Client interface.
type MockClient struct {
	mock.Mock
}

// Embed provides a mock function with given fields: ctx, inputs, task
func (_m *MockClient) Embed(ctx context.Context, inputs []string, task string) ([][]float64, error) {
	ret := _m.Called(ctx, inputs, task)

	if len(ret) == 0 {
		panic("no return value specified for Embed")
	}

	var r0 [][]float64
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, []string, string) ([][]float64, error)); ok {
		return rf(ctx, inputs, task)
	}
	if rf, ok := ret.Get(0).(func(context.Context, []string, string) [][]float64); ok {
		r0 = rf(ctx, inputs, task)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).([][]float64)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context, []string, string) error); ok {
		r1 = rf(ctx, inputs, task)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// NewMockClient creates a new instance of MockClient. It also registers a
// testing interface on the mock and a cleanup function to assert the mocks
// expectations.
func NewMockClient(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockClient {
	m := &MockClient{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}
