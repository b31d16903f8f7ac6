package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/chaz8081/octoctl/internal/server"
)

// apiClient talks to a running octoctl daemon over its HTTP API.
type apiClient struct {
	base string
	http *http.Client
}

func newAPIClient() *apiClient {
	return &apiClient{
		base: strings.TrimRight(serverURL, "/"),
		http: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *apiClient) get(path string, out any) error {
	resp, err := c.http.Get(c.base + path)
	if err != nil {
		return fmt.Errorf("is the daemon running? %w", err)
	}
	return decodeResponse(resp, out)
}

func (c *apiClient) post(path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	resp, err := c.http.Post(c.base+path, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("is the daemon running? %w", err)
	}
	return decodeResponse(resp, out)
}

func decodeResponse(resp *http.Response, out any) error {
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		var apiErr server.APIError
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
			return fmt.Errorf("daemon: %s", apiErr.Error)
		}
		return fmt.Errorf("daemon returned status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *apiClient) Status() (*server.StatusResponse, error) {
	var st server.StatusResponse
	if err := c.get("/api/status", &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (c *apiClient) Command(bedName, action string) error {
	return c.post("/api/command", server.CommandRequest{Bed: bedName, Action: action}, nil)
}

func (c *apiClient) Move(bedName, group string, position int) error {
	return c.post("/api/move", server.MoveRequest{Bed: bedName, Group: group, Position: position}, nil)
}

func (c *apiClient) Stop(bedName string) error {
	return c.post("/api/stop", server.CommandRequest{Bed: bedName}, nil)
}

func (c *apiClient) CalibrationStart(bedName, part string) error {
	return c.post("/api/calibration/start", server.CalStartRequest{Bed: bedName, Part: part}, nil)
}

func (c *apiClient) CalibrationComplete(bedName string) (*server.CalCompleteResponse, error) {
	var out server.CalCompleteResponse
	if err := c.post("/api/calibration/complete", server.CommandRequest{Bed: bedName}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
