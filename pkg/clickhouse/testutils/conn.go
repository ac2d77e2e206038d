package testutils

import (
	"context"
	"errors"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/stretchr/testify/mock"
)

// ErrNotRecorded is returned by the driver.Conn methods no repository calls.
var ErrNotRecorded = errors.New("testutils: call not recorded by MockConn")

// MockConn records the calls the repositories make: Exec, QueryRow, Ping and
// Close. Expectations are set on the query string followed by the bound args.
// The rest of driver.Conn fails with ErrNotRecorded.
type MockConn struct {
	mock.Mock
}

var _ driver.Conn = (*MockConn)(nil)

func (m *MockConn) Exec(ctx context.Context, query string, args ...any) error {
	return m.Called(queryCall(ctx, query, args)...).Error(0)
}

// QueryRow returns the row given to Return. A nil row reads as ErrNotRecorded.
func (m *MockConn) QueryRow(ctx context.Context, query string, args ...any) driver.Row {
	ret := m.Called(queryCall(ctx, query, args)...)
	if row, ok := ret.Get(0).(driver.Row); ok && row != nil {
		return row
	}
	return ErrRow{Error: ErrNotRecorded}
}

func (m *MockConn) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockConn) Close() error {
	return m.Called().Error(0)
}

func queryCall(ctx context.Context, query string, args []any) []any {
	return append([]any{ctx, query}, args...)
}

func (m *MockConn) Contributors() []string { return nil }

func (m *MockConn) ServerVersion() (*driver.ServerVersion, error) { return nil, ErrNotRecorded }

func (m *MockConn) Stats() driver.Stats { return driver.Stats{} }

func (m *MockConn) Select(context.Context, any, string, ...any) error { return ErrNotRecorded }

func (m *MockConn) Query(context.Context, string, ...any) (driver.Rows, error) {
	return nil, ErrNotRecorded
}

func (m *MockConn) AsyncInsert(context.Context, string, bool, ...any) error { return ErrNotRecorded }

func (m *MockConn) PrepareBatch(context.Context, string, ...driver.PrepareBatchOption) (driver.Batch, error) {
	return nil, ErrNotRecorded
}

// ErrRow is a driver.Row whose every read fails with Error.
type ErrRow struct {
	Error error
}

func (r ErrRow) Err() error { return r.Error }

func (r ErrRow) Scan(...any) error { return r.Error }

func (r ErrRow) ScanStruct(any) error { return r.Error }
