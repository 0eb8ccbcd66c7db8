package commands

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/stroller-protocol/custos/internal/config"
	"github.com/stroller-protocol/custos/internal/custos"
	"github.com/stroller-protocol/custos/internal/metrics"
	"github.com/stroller-protocol/custos/internal/models"
	"github.com/stroller-protocol/custos/internal/repository"
	"github.com/stroller-protocol/custos/pkg/logger"
)

const checksummed = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"

func newInterpreter(t *testing.T) (*Interpreter, *custos.Custos) {
	t.Helper()
	repo := repository.NewMemoryDB()
	app := custos.NewCustos(repo, nil, nil, nil, logger.NewNop(), &config.Config{RequestTimeout: time.Second})
	return NewInterpreter(app, nil, logger.NewNop()), app
}

func TestHandleReplies(t *testing.T) {
	interp, app := newInterpreter(t)
	ctx := context.Background()
	netID := int64(80001)
	if _, err := app.AddTopUp(ctx, models.TopUpRequest{Address: checksummed, Index: "i1", NetID: &netID}); err != nil {
		t.Fatalf("add top-up: %v", err)
	}

	tests := []struct {
		name string
		text string
		want string
	}{
		{"start", "/start", ReplyStart},
		{"start with payload", "/start abc", ReplyStart},
		{"unknown", "hello", ReplyUnknownCommand},
		{"watch without address", "/watch", "Please enter an address after /watch"},
		{"unwatch without address", "/unwatch", "Please enter an address after /unwatch"},
		{"invalid address", "/watch 0xInvalidAddr", ReplyInvalidAddress},
		{"unwatch before watching", "/unwatch " + checksummed, ReplyNotAWatcher},
		{"unknown wallet", "/watch 0x0000000000000000000000000000000000000001", ReplyWalletNotFound},
		{"watch lowercase", "/watch 0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed", "Watching address " + checksummed},
		{"watch with bot suffix", "/watch@StrollerBot " + checksummed, "Watching address " + checksummed},
		{"unwatch", "/unwatch " + checksummed, "Unwatched address " + checksummed},
		{"unwatch again", "/unwatch " + checksummed, ReplyNotWatching},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply, ok := interp.Handle(ctx, models.ChannelTelegram, "42", tt.text)
			if !ok {
				t.Fatal("expected a reply")
			}
			if reply != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, reply)
			}
		})
	}
}

func TestHandleEmptyMessage(t *testing.T) {
	interp, _ := newInterpreter(t)
	for _, text := range []string{"", "   ", "\n"} {
		if _, ok := interp.Handle(context.Background(), models.ChannelTelegram, "42", text); ok {
			t.Fatalf("expected no reply for %q", text)
		}
	}
}

type failingRegistry struct{ err error }

func (f failingRegistry) Watch(context.Context, models.Channel, string, string) error   { return f.err }
func (f failingRegistry) Unwatch(context.Context, models.Channel, string, string) error { return f.err }

func TestHandleUpstreamFailure(t *testing.T) {
	m := metrics.New()
	interp := NewInterpreter(failingRegistry{err: errors.Join(models.ErrUpstream, errors.New("db down"))}, m, logger.NewNop())
	ctx := context.Background()

	if reply, _ := interp.Handle(ctx, models.ChannelTelegram, "42", "/watch "+checksummed); reply != ReplyWatchFailed {
		t.Fatalf("unexpected reply %q", reply)
	}
	if reply, _ := interp.Handle(ctx, models.ChannelTelegram, "42", "/unwatch "+checksummed); reply != ReplyUnwatchFailed {
		t.Fatalf("unexpected reply %q", reply)
	}
	if got := testutil.ToFloat64(m.Commands.WithLabelValues("watch", "rejected")); got != 1 {
		t.Fatalf("expected 1 rejected watch, got %v", got)
	}
}

func TestCommandName(t *testing.T) {
	tests := map[string]string{
		"/watch":             "/watch",
		"/WATCH":             "/watch",
		"/watch@StrollerBot": "/watch",
		"@odd":               "@odd",
	}
	for in, want := range tests {
		if got := commandName(in); got != want {
			t.Fatalf("commandName(%q) = %q, want %q", in, got, want)
		}
	}
}
