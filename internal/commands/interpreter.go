package commands

import (
	"context"
	"errors"
	"strings"

	"github.com/stroller-protocol/custos/internal/metrics"
	"github.com/stroller-protocol/custos/internal/models"
	"github.com/stroller-protocol/custos/pkg/logger"
	"github.com/stroller-protocol/custos/pkg/validation"
)

const (
	CommandStart   = "/start"
	CommandWatch   = "/watch"
	CommandUnwatch = "/unwatch"
)

const (
	ReplyStart = "Hello! I can notify you about an address' Stroller top-up status.\n\n" +
		"Please enter /watch followed by an address you would like to monitor .\n\n" +
		"To stop notifications, run command /unwatch followed by an address."
	ReplyUnknownCommand  = "Please enter one of the commands or type /start"
	ReplyInvalidAddress  = "Invalid address entered"
	ReplyWalletNotFound  = "Given address doesn't have a top-up"
	ReplyNotAWatcher     = "You are not a watcher \U0001F914"
	ReplyNotWatching     = "You don't watch this address."
	ReplyWatchFailed     = "Couldn't watch given address \U0001F615"
	ReplyUnwatchFailed   = "Couldn't unwatch given address \U0001F615"
	ReplyInternalFailure = "Sorry, I ran into an error"
)

// Registry is the part of the application the interpreter drives.
type Registry interface {
	Watch(ctx context.Context, channel models.Channel, subscriberID, address string) error
	Unwatch(ctx context.Context, channel models.Channel, subscriberID, address string) error
}

// Interpreter maps an inbound chat message to a registry call and the
// reply text. Every message is handled on its own.
type Interpreter struct {
	registry Registry
	metrics  *metrics.Metrics
	logger   *logger.Logger
}

func NewInterpreter(registry Registry, metrics *metrics.Metrics, logger *logger.Logger) *Interpreter {
	return &Interpreter{registry: registry, metrics: metrics, logger: logger}
}

// Handle interprets text sent by subscriberID on channel. It returns false
// when the message needs no reply.
func (i *Interpreter) Handle(ctx context.Context, channel models.Channel, subscriberID, text string) (string, bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return "", false
	}

	command := commandName(fields[0])
	var arg string
	if len(fields) > 1 {
		arg = fields[1]
	}

	var reply, outcome string
	switch command {
	case CommandStart:
		reply, outcome = ReplyStart, "ok"
	case CommandWatch:
		reply, outcome = i.subscription(ctx, channel, subscriberID, command, arg)
	case CommandUnwatch:
		reply, outcome = i.subscription(ctx, channel, subscriberID, command, arg)
	default:
		command = "unknown"
		reply, outcome = ReplyUnknownCommand, "unknown"
	}

	i.metrics.Command(strings.TrimPrefix(command, "/"), outcome)
	return reply, true
}

func (i *Interpreter) subscription(ctx context.Context, channel models.Channel, subscriberID, command, arg string) (string, string) {
	if arg == "" {
		return "Please enter an address after " + command, "missing_argument"
	}
	address, err := validation.NormalizeAddress(arg)
	if err != nil {
		i.logger.Debug("Invalid address entered", "command", command, "address", arg, "error", err)
		return ReplyInvalidAddress, "invalid_address"
	}

	if command == CommandWatch {
		err = i.registry.Watch(ctx, channel, subscriberID, address)
	} else {
		err = i.registry.Unwatch(ctx, channel, subscriberID, address)
	}
	if err != nil {
		return i.failureReply(command, address, err), "rejected"
	}

	if command == CommandWatch {
		return "Watching address " + address, "ok"
	}
	return "Unwatched address " + address, "ok"
}

func (i *Interpreter) failureReply(command, address string, err error) string {
	switch {
	case errors.Is(err, models.ErrWalletNotFound):
		return ReplyWalletNotFound
	case errors.Is(err, models.ErrNotAWatcher):
		return ReplyNotAWatcher
	case errors.Is(err, models.ErrNotWatchingThisWallet):
		return ReplyNotWatching
	}

	i.logger.Error("Failed to handle command", "command", command, "address", address, "error", err)
	switch command {
	case CommandWatch:
		return ReplyWatchFailed
	case CommandUnwatch:
		return ReplyUnwatchFailed
	}
	return ReplyInternalFailure
}

// commandName lowercases the command and drops a "@BotName" suffix.
func commandName(token string) string {
	if at := strings.IndexByte(token, '@'); at > 0 {
		token = token[:at]
	}
	return strings.ToLower(token)
}
