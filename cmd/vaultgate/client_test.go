package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func withTempState(t *testing.T) {
	prev := statePath
	statePath = filepath.Join(t.TempDir(), "state.json")
	t.Cleanup(func() { statePath = prev })
}

func TestState(t *testing.T) {
	withTempState(t)

	_, err := getState()
	require.Error(t, err)

	require.NoError(t, setState(map[string]string{"rpcserver": "localhost:9000"}))
	require.NoError(t, setState(map[string]string{"foo": "bar"}))

	state, err := getState()
	require.NoError(t, err)
	require.Equal(t, map[string]string{
		"rpcserver": "localhost:9000",
		"foo":       "bar",
	}, state)
}

func TestGetOperatorClient(t *testing.T) {
	withTempState(t)

	require.NoError(t, setState(map[string]string{"foo": "bar"}))
	_, err := getOperatorClient()
	require.Error(t, err)

	require.NoError(t, setState(map[string]string{"rpcserver": "localhost:9000"}))
	client, err := getOperatorClient()
	require.NoError(t, err)
	require.Equal(t, "http://localhost:9000", client.baseURL)
	require.Empty(t, client.macaroon)

	macPath := filepath.Join(t.TempDir(), "admin.macaroon")
	require.NoError(t, setState(map[string]string{"macaroons_path": macPath}))
	_, err = getOperatorClient()
	require.Error(t, err)

	require.NoError(t, os.WriteFile(macPath, []byte{0x02, 0x01}, 0600))
	client, err = getOperatorClient()
	require.NoError(t, err)
	require.Equal(t, "0201", client.macaroon)
}

func TestOperatorClient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			if r.Header.Get("Macaroon") != "0201" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			if r.Method == http.MethodPost &&
				r.Header.Get("Content-Type") != "application/json" {
				w.WriteHeader(http.StatusUnsupportedMediaType)
				return
			}
			switch r.URL.Path {
			case "/v1/wallet/status":
				// nolint
				json.NewEncoder(w).Encode(map[string]interface{}{
					"initialized": true,
				})
			case "/v1/wallet/lock":
				w.Write([]byte("{}"))
			case "/v1/wallet/unlock":
				var body map[string]string
				// nolint
				json.NewDecoder(r.Body).Decode(&body)
				if body["pin"] == "123456" {
					w.Write([]byte("{}"))
					return
				}
				w.WriteHeader(http.StatusTooManyRequests)
				// nolint
				json.NewEncoder(w).Encode(map[string]interface{}{
					"error":            "too many failed unlock attempts",
					"code":             "LOCKED_OUT",
					"remainingSeconds": 42,
				})
			default:
				w.WriteHeader(http.StatusNotFound)
			}
		},
	))
	defer server.Close()

	client := newOperatorClient(server.URL, "0201")

	var reply map[string]interface{}
	require.NoError(t, client.get("/v1/wallet/status", &reply))
	require.Equal(t, true, reply["initialized"])

	require.NoError(t, client.post(
		"/v1/wallet/unlock", map[string]string{"pin": "123456"}, nil,
	))

	err := client.post("/v1/wallet/unlock", map[string]string{"pin": "0"}, nil)
	var opErr *operatorError
	require.True(t, errors.As(err, &opErr))
	require.Equal(t, "LOCKED_OUT", opErr.Code)
	require.Equal(t, int64(42), opErr.RemainingSeconds)
	require.Contains(t, err.Error(), "retry in 42s")

	require.NoError(t, client.post("/v1/wallet/lock", nil, nil))

	err = client.get("/unknown", nil)
	require.Error(t, err)

	err = newOperatorClient(server.URL, "").get("/v1/wallet/status", nil)
	require.Error(t, err)
}
