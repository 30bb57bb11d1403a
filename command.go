// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqtt

import (
	"context"
	"log/slog"
)

// CommandTable maps a command token to the action it triggers. Tokens are
// matched exactly, and case-sensitively, against the whole payload of a
// PUBLISH on the command topic.
type CommandTable map[string]func()

type commandDispatcher struct {
	table   CommandTable
	log     logger
	metrics *Metrics
}

// dispatch runs the action named by the payload. Acknowledgment of the
// PUBLISH is handled separately and does not depend on the outcome.
func (d *commandDispatcher) dispatch(
	ctx context.Context,
	payload []byte,
) (handled bool) {
	token := string(payload)
	action, ok := d.table[token]
	if !ok || action == nil {
		d.log.Log(ctx, slog.LevelWarn, "unknown command",
			slog.String("command", token),
		)
		d.metrics.command(token, false)
		return false
	}

	d.log.Log(ctx, slog.LevelInfo, "executing command",
		slog.String("command", token),
	)
	action()
	d.metrics.command(token, true)
	return true
}
