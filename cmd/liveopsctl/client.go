package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

type liveopsClient struct {
	baseURL string
	http    *http.Client
}

func newClient() *liveopsClient {
	return &liveopsClient{
		baseURL: serverURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// doJSON performs a request with an optional JSON body and decodes the
// response into v when v is non-nil.
func (c *liveopsClient) doJSON(method, path string, body any, v any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal error: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("request creation failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if actor := resolvedPrincipal(); actor != "" {
		req.Header.Set("X-User-Principal", actor)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(bodyBytes))
	}

	if v != nil {
		return json.NewDecoder(resp.Body).Decode(v)
	}
	return nil
}

func (c *liveopsClient) getJSON(path string, v any) error {
	return c.doJSON(http.MethodGet, path, nil, v)
}

func (c *liveopsClient) postJSON(path string, body any, v any) error {
	return c.doJSON(http.MethodPost, path, body, v)
}

func (c *liveopsClient) putJSON(path string, body any, v any) error {
	return c.doJSON(http.MethodPut, path, body, v)
}

func (c *liveopsClient) deleteJSON(path string, v any) error {
	return c.doJSON(http.MethodDelete, path, nil, v)
}

// getRaw performs a GET request and returns the raw JSON.
func (c *liveopsClient) getRaw(path string) (map[string]any, error) {
	var result map[string]any
	if err := c.getJSON(path, &result); err != nil {
		return nil, err
	}
	return result, nil
}
