package httpexec

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/juju/errors"
	"github.com/warriorguo/taskgraph/types"
)

var (
	_ types.Executor = &Executor{}
)

type execRequest struct {
	Command   string `json:"command"`
	TimeoutMS int64  `json:"timeout_ms,omitempty"`
}

type execResponse struct {
	ExitCode int    `json:"exit_code"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	TimedOut bool   `json:"timed_out"`
}

/**
 * Executor talks to an HTTP exec endpoint: POST {command, timeout_ms} to
 * the endpoint URL, expect {exit_code, stdout, stderr, timed_out} back.
 * The remote side enforces the command timeout; the client adds a grace
 * period on top so a dead endpoint cannot hang an attempt forever.
 */
type Executor struct {
	Endpoint string
	// Token is sent as a bearer token when set.
	Token string
	// Grace is added to the command timeout for the round trip, default 30s.
	Grace time.Duration

	Client *http.Client
}

func New(endpoint string) *Executor {
	return &Executor{Endpoint: endpoint}
}

func (e *Executor) Execute(ctx context.Context, command string, timeout time.Duration) (*types.ExecResult, error) {
	body, err := json.Marshal(&execRequest{
		Command:   command,
		TimeoutMS: timeout.Milliseconds(),
	})
	if err != nil {
		return nil, errors.Trace(err)
	}

	grace := e.Grace
	if grace == 0 {
		grace = 30 * time.Second
	}
	reqCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		reqCtx, cancel = context.WithTimeout(ctx, timeout+grace)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, e.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Trace(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.Token != "" {
		req.Header.Set("Authorization", "Bearer "+e.Token)
	}

	client := e.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		if reqCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return nil, types.NewTimeoutError(command, timeout)
		}
		return nil, errors.Annotatef(err, "post %s", e.Endpoint)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, errors.Errorf("exec endpoint returned %d: %s", resp.StatusCode, string(b))
	}

	var er execResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return nil, errors.Annotatef(err, "decode exec response")
	}
	if er.TimedOut {
		return nil, types.NewTimeoutError(command, timeout)
	}

	return &types.ExecResult{
		ExitCode: er.ExitCode,
		Stdout:   er.Stdout,
		Stderr:   er.Stderr,
	}, nil
}
