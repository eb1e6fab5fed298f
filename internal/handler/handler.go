// Package handler exposes the read-side HTTP surface: submission
// status and contest leaderboards.
package handler

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/zeromicro/go-zero/rest"
	"github.com/zeromicro/go-zero/rest/httpx"

	"gavel/internal/leaderboard"
	"gavel/internal/submission"
	"gavel/pkg/errors"
)

type statusRequest struct {
	ID string `path:"id"`
}

type statusResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Answer string `json:"answer"`
}

type leaderboardRequest struct {
	ID           string `path:"id"`
	BypassFreeze bool   `form:"bypassFreeze,optional"`
}

// RegisterHandlers mounts the routes on the rest server.
func RegisterHandlers(server *rest.Server, subs submission.Store, boards *leaderboard.Service) {
	server.AddRoutes([]rest.Route{
		{
			Method:  http.MethodGet,
			Path:    "/v1/submissions/:id/status",
			Handler: submissionStatusHandler(subs),
		},
		{
			Method:  http.MethodGet,
			Path:    "/v1/contests/:id/leaderboard",
			Handler: leaderboardHandler(boards),
		},
	})
}

func submissionStatusHandler(subs submission.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req statusRequest
		if err := httpx.Parse(r, &req); err != nil {
			writeError(w, r, errors.Wrapf(err, errors.InvalidParams, "parse request"))
			return
		}
		id, err := uuid.Parse(req.ID)
		if err != nil {
			writeError(w, r, errors.Wrapf(err, errors.InvalidParams, "invalid submission id"))
			return
		}

		sub, err := subs.FindByID(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		httpx.OkJsonCtx(r.Context(), w, statusResponse{
			ID:     sub.ID.String(),
			Status: string(sub.Status),
			Answer: string(sub.Answer),
		})
	}
}

func leaderboardHandler(boards *leaderboard.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req leaderboardRequest
		if err := httpx.Parse(r, &req); err != nil {
			writeError(w, r, errors.Wrapf(err, errors.InvalidParams, "parse request"))
			return
		}
		id, err := uuid.Parse(req.ID)
		if err != nil {
			writeError(w, r, errors.Wrapf(err, errors.InvalidParams, "invalid contest id"))
			return
		}

		board, err := boards.Get(r.Context(), id, req.BypassFreeze)
		if err != nil {
			writeError(w, r, err)
			return
		}
		httpx.OkJsonCtx(r.Context(), w, board)
	}
}

type errorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := errors.GetCode(err)
	status := http.StatusInternalServerError
	switch code {
	case errors.NotFound, errors.SubmissionNotFound, errors.ContestNotFound, errors.ConfigurationNotFound:
		status = http.StatusNotFound
	case errors.InvalidParams, errors.ValidationFailed, errors.BusinessRule, errors.InvalidStateTransition:
		status = http.StatusBadRequest
	case errors.OptimisticConcurrency:
		status = http.StatusConflict
	case errors.ServiceUnavailable:
		status = http.StatusServiceUnavailable
	}
	httpx.WriteJsonCtx(r.Context(), w, status, errorBody{Code: int(code), Message: err.Error()})
}
