package cmd

import (
	"errors"
	"fmt"
	"strings"

	"rewind/api/model"
	"rewind/cli/api"
	"rewind/cli/style"
)

// formatError renders err for the terminal with a suggestion when the
// failure is one the user can act on.
func formatError(err error) string {
	msg := err.Error()
	hint := ""

	var e *model.Error
	var apiErr *api.Error
	switch {
	case errors.As(err, &e):
		msg, hint = describe(e)
	case errors.As(err, &apiErr):
		msg = apiErr.Message
		hint = apiErr.Hint
	}

	out := style.ErrorBox.Render("✗ " + msg)
	if hint != "" {
		out += "\n" + style.Hint.Render("  "+hint)
	}
	return out
}

func describe(e *model.Error) (string, string) {
	switch e.Kind {
	case model.KindNoDeploymentsFound:
		return fmt.Sprintf("Couldn't find any existing deployments for %s.", e.Service),
			"Please verify that stage and region are correct."
	case model.KindTimestampNotFound:
		msg := fmt.Sprintf("Couldn't find a deployment for the timestamp: %s.", e.Timestamp)
		if e.Reason != "" {
			msg += " (" + e.Reason + ")"
		}
		return msg, "Please verify that the timestamp, stage and region are correct. Run `rewind deployments` to see what exists."
	case model.KindValidationFailed:
		lines := make([]string, 0, len(e.Findings))
		for _, f := range e.Findings {
			lines = append(lines, "• "+f.Message)
		}
		return "Invalid rollback request:\n" + strings.Join(lines, "\n"), ""
	case model.KindBucketResolutionFailed:
		return e.Error(), "Check that the stack exists in this region, or pass --bucket."
	case model.KindUpdateRejected:
		return e.Error(), "Wait for the running stack operation to finish, then retry."
	case model.KindMonitorTimeout, model.KindMonitorUnreachable:
		return e.Error(), "The update may still be running. Check the stack before retrying."
	case model.KindRemoteAutoRolledBack:
		return e.Error(), "The provider restored the previous state; the stack is as it was before this rollback."
	}
	return e.Error(), ""
}
