package eodobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockSummarizer struct {
	mock.Mock
}

func (m *mockSummarizer) SummarizeDay(ctx context.Context, t time.Time) (string, error) {
	args := m.Called(ctx, t)
	return args.String(0), args.Error(1)
}

func (m *mockSummarizer) SummarizeToday(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *mockSummarizer) ShouldRunNow() (bool, string) {
	args := m.Called()
	return args.Bool(0), args.String(1)
}

func TestWrapDelegates(t *testing.T) {
	inner := &mockSummarizer{}
	day := time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC)
	inner.On("SummarizeDay", mock.Anything, day).Return("logs/eod/2024-03-20.csv", nil)
	inner.On("SummarizeToday", mock.Anything).Return("", nil)
	inner.On("ShouldRunNow").Return(true, "logs/eod/2024-03-20.csv")

	s := Wrap(inner)

	p, err := s.SummarizeDay(context.Background(), day)
	require.NoError(t, err)
	assert.Equal(t, "logs/eod/2024-03-20.csv", p)

	p, err = s.SummarizeToday(context.Background())
	require.NoError(t, err)
	assert.Empty(t, p)

	run, p := s.ShouldRunNow()
	assert.True(t, run)
	assert.Equal(t, "logs/eod/2024-03-20.csv", p)

	inner.AssertExpectations(t)
}

func TestWrapReturnsErrors(t *testing.T) {
	inner := &mockSummarizer{}
	boom := errors.New("disk full")
	inner.On("SummarizeToday", mock.Anything).Return("ignored", boom)

	p, err := Wrap(inner).SummarizeToday(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, p)
}
