package handler

import (
	"errors"
	"net/http"

	"rewind/api/model"
)

type errorBody struct {
	Error    string                    `json:"error"`
	Kind     model.ErrorKind           `json:"kind,omitempty"`
	Hint     string                    `json:"hint,omitempty"`
	Status   string                    `json:"status,omitempty"`
	Findings []model.ValidationFinding `json:"findings,omitempty"`
}

func statusFor(kind model.ErrorKind) int {
	switch kind {
	case model.KindValidationFailed:
		return http.StatusBadRequest
	case model.KindBucketResolutionFailed, model.KindNoDeploymentsFound, model.KindTimestampNotFound:
		return http.StatusNotFound
	case model.KindUpdateRejected:
		return http.StatusConflict
	case model.KindMonitorTimeout:
		return http.StatusGatewayTimeout
	case model.KindListingFailed, model.KindMonitorUnreachable, model.KindRemoteUpdateFailed, model.KindRemoteAutoRolledBack:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func hintFor(kind model.ErrorKind) string {
	switch kind {
	case model.KindNoDeploymentsFound:
		return "verify that the stage and region are correct"
	case model.KindTimestampNotFound:
		return "verify that the timestamp, stage and region are correct; list deployments to see what exists"
	case model.KindBucketResolutionFailed:
		return "check that the stack exists or set a deployment bucket"
	case model.KindUpdateRejected:
		return "wait for the current stack operation to finish and retry"
	case model.KindMonitorTimeout, model.KindMonitorUnreachable:
		return "the update may still be running; check the stack status before retrying"
	}
	return ""
}

func writeRollbackError(w http.ResponseWriter, err error) {
	var e *model.Error
	if !errors.As(err, &e) {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSONStatus(w, statusFor(e.Kind), errorBody{
		Error:    e.Error(),
		Kind:     e.Kind,
		Hint:     hintFor(e.Kind),
		Status:   e.Status,
		Findings: e.Findings,
	})
}
