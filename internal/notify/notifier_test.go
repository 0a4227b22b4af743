package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	name   string
	err    error
	titles []string
}

func (s *fakeSender) Send(_ context.Context, title, _ string) error {
	if s.err != nil {
		return s.err
	}
	s.titles = append(s.titles, title)
	return nil
}

func (s *fakeSender) Name() string { return s.name }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifyFiltersDisallowedEvents(t *testing.T) {
	s := &fakeSender{name: "telegram"}
	n := NewNotifier([]Sender{s}, []string{"pair_suspended"}, discardLogger())

	require.NoError(t, n.Notify(context.Background(), "position_opened", "opened", "ADA/USDT"))
	require.NoError(t, n.Notify(context.Background(), "pair_suspended", "suspended", "ADA/USDT"))

	assert.Equal(t, []string{"suspended"}, s.titles)
}

func TestNotifyEmptyFilterAllowsEverything(t *testing.T) {
	s := &fakeSender{name: "discord"}
	n := NewNotifier([]Sender{s}, nil, discardLogger())

	require.NoError(t, n.Notify(context.Background(), "position_closed", "closed", "ADA/USDT"))
	assert.Len(t, s.titles, 1)
}

func TestNotifyDeliversPastFailedSender(t *testing.T) {
	dead := &fakeSender{name: "telegram", err: errors.New("boom")}
	live := &fakeSender{name: "discord"}
	n := NewNotifier([]Sender{dead, live}, nil, discardLogger())

	err := n.Notify(context.Background(), "position_opened", "opened", "ADA/USDT")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "telegram")
	assert.Len(t, live.titles, 1)
}

func TestNotifyNoSenders(t *testing.T) {
	n := NewNotifier(nil, nil, discardLogger())
	assert.NoError(t, n.Notify(context.Background(), "position_opened", "opened", "ADA/USDT"))
}
