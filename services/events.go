package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ssh-guardian-dashboard/system"
)

// EventsClient queries the events-analysis service. It is used only
// for block-reason enrichment and must tolerate the service being
// absent entirely.
type EventsClient struct {
	baseURL string
	client  *http.Client
}

func NewEventsClient(baseURL string, timeout time.Duration) *EventsClient {
	return &EventsClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// AnalyzedEvent is one detection event as stored by the analysis service
type AnalyzedEvent struct {
	ID        int64  `json:"id"`
	SourceIP  string `json:"source_ip"`
	Timestamp string `json:"timestamp"`
}

// EventAnalysis is the detail record for one analyzed event
type EventAnalysis struct {
	Reason  string `json:"reason"`
	Factors []struct {
		Label string `json:"label"`
		Value string `json:"value"`
	} `json:"factors"`
}

// EventsByIP lists analyzed events for a source IP, most recent first
func (e *EventsClient) EventsByIP(ctx context.Context, ip string) ([]AnalyzedEvent, error) {
	var resp struct {
		Success bool            `json:"success"`
		Error   string          `json:"error"`
		Events  []AnalyzedEvent `json:"events"`
	}
	path := "/api/dashboard/events/by-ip?ip=" + url.QueryEscape(ip)
	if err := e.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, apiError(resp.Error, "event query rejected")
	}
	return resp.Events, nil
}

// Analysis fetches the detail record for one event
func (e *EventsClient) Analysis(ctx context.Context, eventID int64) (*EventAnalysis, error) {
	var resp struct {
		Success  bool           `json:"success"`
		Error    string         `json:"error"`
		Analysis *EventAnalysis `json:"analysis"`
	}
	if err := e.get(ctx, fmt.Sprintf("/api/dashboard/events-analysis/%d", eventID), &resp); err != nil {
		return nil, err
	}
	if !resp.Success || resp.Analysis == nil {
		return nil, apiError(resp.Error, "no analysis available")
	}
	return resp.Analysis, nil
}

// BuildBlockReason produces a human-readable reason for a block:
// the most recent analyzed event for the IP, enriched with its
// contributing factors. Every failure degrades to the minimal
// fallback string; it never returns an error.
func (e *EventsClient) BuildBlockReason(ctx context.Context, ip, blockID string) string {
	events, err := e.EventsByIP(ctx, ip)
	if err != nil || len(events) == 0 {
		if err != nil {
			system.Warn("Block reason lookup failed for %s: %v", ip, err)
		}
		return FallbackBlockReason(blockID)
	}

	analysis, err := e.Analysis(ctx, events[0].ID)
	if err != nil || analysis.Reason == "" {
		if err != nil {
			system.Warn("Event analysis fetch failed for %s: %v", ip, err)
		}
		return FallbackBlockReason(blockID)
	}

	reason := analysis.Reason
	if len(analysis.Factors) > 0 {
		pairs := make([]string, 0, len(analysis.Factors))
		for _, f := range analysis.Factors {
			pairs = append(pairs, f.Label+": "+f.Value)
		}
		reason += " | Factors: " + strings.Join(pairs, ", ")
	}
	return reason
}

// FallbackBlockReason is the minimal reason string used when the
// analysis service cannot supply anything richer.
func FallbackBlockReason(blockID string) string {
	if blockID == "" {
		return "Block ID: #N/A"
	}
	return fmt.Sprintf("Block ID: #%s | Triggered by ML threshold", blockID)
}

func (e *EventsClient) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("events service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("invalid response from events service: %w", err)
	}
	return nil
}
