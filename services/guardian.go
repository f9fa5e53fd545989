package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// GuardianClient talks to the SSH Guardian core service: the log
// injector, detection engine and blocking pipeline live there. The
// dashboard only consumes its REST contract.
type GuardianClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewGuardianClient(baseURL, apiKey string, timeout time.Duration) *GuardianClient {
	return &GuardianClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// RunRequest is the payload submitted to start a simulation
type RunRequest struct {
	TargetID   string `json:"target_id"`
	ScenarioID string `json:"scenario_id"`
	SourceIP   string `json:"source_ip"`
	Username   string `json:"username"`
	AuthType   string `json:"auth_type"`   // password, publickey, keyboard-interactive
	AuthResult string `json:"auth_result"` // Accepted, Failed
	EventCount int    `json:"event_count"`
	ActionType string `json:"action_type"` // baseline, normal, attack
}

// RunHandle is the server-assigned identity of one simulation run
type RunHandle struct {
	RunID        string `json:"run_id"`
	LinesWritten int    `json:"lines_written"`
	TargetName   string `json:"target_name"`
}

// BlockRecord describes a blocking action reported in a status snapshot
type BlockRecord struct {
	Source  string      `json:"source"`
	BlockID json.Number `json:"block_id"`
}

// RunStatusSnapshot is one point-in-time poll result for a run
type RunStatusSnapshot struct {
	EventsDetected int             `json:"events_detected"`
	IsComplete     bool            `json:"is_complete"`
	Fail2banBlock  *BlockRecord    `json:"fail2ban_block,omitempty"`
	IPBlock        *BlockRecord    `json:"ip_block,omitempty"`
	SourceIP       string          `json:"source_ip"`
	MLEvaluation   json.RawMessage `json:"ml_evaluation,omitempty"`
}

// HasBlock reports whether any blocking source fired
func (s *RunStatusSnapshot) HasBlock() bool {
	return s.Fail2banBlock != nil || s.IPBlock != nil
}

// Target is a managed server simulations can be run against
type Target struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Run submits a simulation run. Application-level failures
// (success:false) return the server's error text verbatim.
func (g *GuardianClient) Run(ctx context.Context, req RunRequest) (*RunHandle, error) {
	var resp struct {
		Success      bool   `json:"success"`
		Error        string `json:"error"`
		RunID        string `json:"run_id"`
		LinesWritten int    `json:"lines_written"`
		TargetName   string `json:"target_name"`
	}
	if err := g.post(ctx, "/api/live-sim/live/run", req, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, apiError(resp.Error, "simulation run rejected")
	}
	return &RunHandle{
		RunID:        resp.RunID,
		LinesWritten: resp.LinesWritten,
		TargetName:   resp.TargetName,
	}, nil
}

// Status fetches the current run status snapshot
func (g *GuardianClient) Status(ctx context.Context, runID string) (*RunStatusSnapshot, error) {
	var resp struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
		RunStatusSnapshot
	}
	if err := g.get(ctx, "/api/live-sim/live/"+runID+"/status", &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, apiError(resp.Error, "status query rejected")
	}
	snap := resp.RunStatusSnapshot
	return &snap, nil
}

// CredentialProgress returns the usernames already injected from the
// given source IP, for credential stuffing progress display.
func (g *GuardianClient) CredentialProgress(ctx context.Context, ip string) ([]string, int, error) {
	var resp struct {
		Success     bool     `json:"success"`
		Error       string   `json:"error"`
		Usernames   []string `json:"usernames"`
		UniqueCount int      `json:"unique_count"`
	}
	if err := g.get(ctx, "/api/live-sim/progress/"+ip, &resp); err != nil {
		return nil, 0, err
	}
	if !resp.Success {
		return nil, 0, apiError(resp.Error, "progress query rejected")
	}
	return resp.Usernames, resp.UniqueCount, nil
}

// Targets lists the servers available as simulation targets
func (g *GuardianClient) Targets(ctx context.Context) ([]Target, error) {
	var resp struct {
		Success bool     `json:"success"`
		Error   string   `json:"error"`
		Targets []Target `json:"targets"`
	}
	if err := g.get(ctx, "/api/live-sim/targets", &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, apiError(resp.Error, "target query rejected")
	}
	return resp.Targets, nil
}

func (g *GuardianClient) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+path, nil)
	if err != nil {
		return err
	}
	return g.do(req, out)
}

func (g *GuardianClient) post(ctx context.Context, path string, body, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return g.do(req, out)
}

func (g *GuardianClient) do(req *http.Request, out interface{}) error {
	if g.apiKey != "" {
		req.Header.Set("X-API-Key", g.apiKey)
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("guardian core unreachable: %w", err)
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("invalid response from guardian core: %w", err)
	}
	return nil
}

// apiError wraps a server-provided error string, falling back to a
// generic message when the server gave none.
func apiError(serverText, fallback string) error {
	if serverText != "" {
		return fmt.Errorf("%s", serverText)
	}
	return fmt.Errorf("%s", fallback)
}
