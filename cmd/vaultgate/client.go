package main

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

const requestTimeout = 30 * time.Second

type operatorClient struct {
	baseURL    string
	macaroon   string
	httpClient *http.Client
}

// operatorError is the error reply of the operator interface.
type operatorError struct {
	Message          string `json:"error"`
	Code             string `json:"code"`
	RemainingSeconds int64  `json:"remainingSeconds"`
}

func (e *operatorError) Error() string {
	if e.RemainingSeconds > 0 {
		return fmt.Sprintf(
			"%s (%s, retry in %ds)", e.Message, e.Code, e.RemainingSeconds,
		)
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Code)
}

func getOperatorClient() (*operatorClient, error) {
	state, err := getState()
	if err != nil {
		return nil, err
	}
	address, ok := state["rpcserver"]
	if !ok || address == "" {
		return nil, errors.New("set rpcserver with `config set rpcserver`")
	}

	var macaroon string
	if macPath := state["macaroons_path"]; macPath != "" {
		macBytes, err := os.ReadFile(macPath)
		if err != nil {
			return nil, fmt.Errorf("unable to read macaroon: %w", err)
		}
		macaroon = hex.EncodeToString(macBytes)
	}
	return newOperatorClient(address, macaroon), nil
}

// newOperatorClient returns a client for the given address. The hex encoded
// macaroon, if not empty, is attached to every request.
func newOperatorClient(address, macaroon string) *operatorClient {
	baseURL := strings.TrimSuffix(address, "/")
	if !strings.HasPrefix(baseURL, "http://") &&
		!strings.HasPrefix(baseURL, "https://") {
		baseURL = "http://" + baseURL
	}
	return &operatorClient{
		baseURL:    baseURL,
		macaroon:   macaroon,
		httpClient: &http.Client{Timeout: requestTimeout},
	}
}

func (c *operatorClient) get(path string, reply interface{}) error {
	return c.do(http.MethodGet, path, nil, reply)
}

func (c *operatorClient) post(path string, body, reply interface{}) error {
	return c.do(http.MethodPost, path, body, reply)
}

func (c *operatorClient) do(
	method, path string, body, reply interface{},
) error {
	var reqBody io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(buf)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	if method == http.MethodPost {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.macaroon != "" {
		req.Header.Set("Macaroon", c.macaroon)
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("unable to connect to operator interface: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		opErr := &operatorError{}
		if err := json.NewDecoder(res.Body).Decode(opErr); err != nil {
			return fmt.Errorf("operator interface replied with status %d", res.StatusCode)
		}
		return opErr
	}
	if reply == nil {
		return nil
	}
	return json.NewDecoder(res.Body).Decode(reply)
}
