package client

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthz_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	require.NoError(t, c.Healthz(context.Background()))
}

func TestCompileWasm_SendsHeadersAndReturnsArtifact(t *testing.T) {
	var gotBuild, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBuild = r.Header.Get("build")
		gotAuth = r.Header.Get("authorization")
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "fake-zip-bytes", string(body))
		w.Header().Set("X-Session-Id", "42")
		w.Header().Set("X-Session-Info", "created")
		w.Write([]byte("artifact-bytes"))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, AuthToken: "tok"})
	result, err := c.CompileWasm(context.Background(), strings.NewReader("fake-zip-bytes"), CompileOptions{Build: "release"})
	require.NoError(t, err)

	assert.Equal(t, "release", gotBuild)
	assert.Equal(t, "tok", gotAuth)
	assert.Equal(t, []byte("artifact-bytes"), result.Artifact)
	assert.Equal(t, "42", result.SessionID)
	assert.Equal(t, "created", result.SessionInfo)
}

func TestCompileWasm_NonOKReturnsLogAsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte("compile error log"))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	_, err := c.CompileWasm(context.Background(), strings.NewReader("x"), CompileOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "compile error log")
}

func TestStreamRebuild_DeliversParsedEvents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		for _, line := range []string{
			"data: Using BUILD_MODE: QUICK",
			"data: COMPILATION_COMPLETE",
			"data: EXIT_CODE: 0",
			"data: STATUS: SUCCESS",
			"data: HTTP_STATUS: 200",
		} {
			w.Write([]byte(line + "\n"))
		}
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	var payloads []string
	err := c.StreamRebuild(context.Background(), RebuildOptions{Build: "quick", DryRun: true}, func(e RebuildEvent) {
		payloads = append(payloads, e.Payload)
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"Using BUILD_MODE: QUICK",
		"COMPILATION_COMPLETE",
		"EXIT_CODE: 0",
		"STATUS: SUCCESS",
		"HTTP_STATUS: 200",
	}, payloads)
}
