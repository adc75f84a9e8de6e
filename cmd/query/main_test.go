package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kr/pretty"

	graphqlws "github.com/uswitch/graphql-ws/pkg/graphql/ws"
	"github.com/uswitch/graphql-ws/pkg/graphql/ws/wstest"
)

func TestParseVariables(t *testing.T) {
	variables, err := parseVariables(`{"x": 1, "y": "a"}`, []string{"y=\"b\"", "z=plain", "w=[1,2]"})
	if err != nil {
		t.Fatalf("Error from parseVariables(): %v", err)
	}

	expected := map[string]interface{}{
		"x": float64(1),
		"y": "b",
		"z": "plain",
		"w": []interface{}{float64(1), float64(2)},
	}
	if diff := pretty.Diff(expected, variables); len(diff) > 0 {
		t.Errorf("variables didn't match: %v", diff)
	}

	if variables, _ := parseVariables("", nil); variables != nil {
		t.Errorf("Expected no variables, but got %v", variables)
	}

	if _, err := parseVariables("[1]", nil); err == nil {
		t.Errorf("Expected an error for a non-object --variables")
	}

	if _, err := parseVariables("", []string{"=1"}); err == nil {
		t.Errorf("Expected an error for a variable without a name")
	}
}

func TestReadQuery(t *testing.T) {
	if query, _ := readQuery([]string{"{ ping }"}, "", nil); query != "{ ping }" {
		t.Errorf("Expected the argument, but got '%s'", query)
	}

	if query, _ := readQuery([]string{"-"}, "", strings.NewReader("{ stdin }")); query != "{ stdin }" {
		t.Errorf("Expected stdin, but got '%s'", query)
	}

	if query, _ := readQuery(nil, "", strings.NewReader("{ stdin }")); query != "{ stdin }" {
		t.Errorf("Expected stdin, but got '%s'", query)
	}

	path := writeFile(t, "query.graphql", "{ file }")
	if query, _ := readQuery(nil, path, nil); query != "{ file }" {
		t.Errorf("Expected the file, but got '%s'", query)
	}

	if _, err := readQuery([]string{"{ ping }"}, path, nil); err == nil {
		t.Errorf("Expected an error when given both a file and an argument")
	}
}

func TestRunQuery(t *testing.T) {
	server := wstest.NewServer(wstest.Results(
		&wstest.Result{Data: map[string]interface{}{"n": 1}},
		&wstest.Result{Data: map[string]interface{}{"n": 2}},
	), wstest.WithKeepAlive(1))
	defer server.Close()

	config := DefaultConfig()
	config.URL = server.WSURL()

	out := &bytes.Buffer{}
	if err := runQuery(context.Background(), config, graphqlws.OperationParams{Query: "subscription { n }"}, out, nil); err != nil {
		t.Fatalf("Error from runQuery(): %v", err)
	}

	expected := "{\"data\":{\"n\":1}}\n{\"data\":{\"n\":2}}\n"
	if out.String() != expected {
		t.Errorf("Expected '%s', but got '%s'", expected, out.String())
	}

	if got := server.Headers()[0].Get("Origin"); got != config.Origin {
		t.Errorf("Expected origin '%s', but got '%s'", config.Origin, got)
	}
}

func TestRunQueryHandshakeError(t *testing.T) {
	server := wstest.NewServer(wstest.Results(), wstest.WithConnectionError())
	defer server.Close()

	config := DefaultConfig()
	config.URL = server.WSURL()

	err := runQuery(context.Background(), config, graphqlws.OperationParams{Query: "{ n }"}, &bytes.Buffer{}, nil)
	if !errors.Is(err, graphqlws.ErrProtocol) {
		t.Errorf("Expected a protocol error, but got: %v", err)
	}
}

func TestCommand(t *testing.T) {
	server := wstest.NewServer(wstest.Results(&wstest.Result{Data: map[string]interface{}{"ping": "pong"}}))
	defer server.Close()

	out := &bytes.Buffer{}
	rootCmd.SetOut(out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs([]string{
		"--url", server.WSURL(),
		"--env-file", writeFile(t, ".env", ""),
		"-H", "Authorization: Bearer wibble",
		"--var", "x=1",
		"{ ping }",
	})

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("Error from Execute(): %v", err)
	}

	if expected := "{\"data\":{\"ping\":\"pong\"}}\n"; out.String() != expected {
		t.Errorf("Expected '%s', but got '%s'", expected, out.String())
	}

	if got := server.Headers()[0].Get("Authorization"); got != "Bearer wibble" {
		t.Errorf("Expected 'Bearer wibble', but got '%s'", got)
	}
}

func TestHandshakeTimeoutSecs(t *testing.T) {
	cases := []struct {
		timeout  time.Duration
		expected uint
	}{
		{0, 0},
		{500 * time.Millisecond, 1},
		{time.Second, 1},
		{1500 * time.Millisecond, 2},
		{15 * time.Second, 15},
	}

	for _, c := range cases {
		secs, err := handshakeTimeoutSecs(c.timeout)
		if err != nil {
			t.Errorf("Error from handshakeTimeoutSecs(%s): %v", c.timeout, err)
			continue
		}

		if secs != c.expected {
			t.Errorf("Expected %d seconds for %s, but got %d", c.expected, c.timeout, secs)
		}
	}

	if _, err := handshakeTimeoutSecs(-time.Second); err == nil {
		t.Errorf("Expected a negative timeout to be rejected")
	}
}

func TestCommandRejectsNegativeHandshakeTimeout(t *testing.T) {
	rootCmd.SetOut(&bytes.Buffer{})
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs([]string{
		"--env-file", writeFile(t, ".env", ""),
		"--handshake-timeout=-500ms",
		"{ ping }",
	})

	err := rootCmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "can't be negative") {
		t.Errorf("Expected the negative timeout to be rejected, but got: %v", err)
	}
}
