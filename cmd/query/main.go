package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	graphqlws "github.com/uswitch/graphql-ws/pkg/graphql/ws"
)

var (
	configPath string
	envFile    string

	serverURL        string
	origin           string
	headers          []string
	insecure         bool
	keepAlives       []string
	handshakeTimeout time.Duration

	queryFile     string
	variablesJSON string
	vars          []string
	operationName string

	indent  bool
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "query [QUERY|-]",
	Short: "Run a GraphQL query, mutation or subscription over graphql-ws",
	Long: `Runs a single GraphQL operation over a graphql-ws websocket and prints every
result as a JSON document. The operation is read from the argument, from --file,
or from stdin when the argument is '-' or missing.`,
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		query, err := readQuery(args, queryFile, cmd.InOrStdin())
		if err != nil {
			return err
		}

		variables, err := parseVariables(variablesJSON, vars)
		if err != nil {
			return err
		}

		var logger *log.Logger
		if verbose {
			logger = log.New(cmd.ErrOrStderr(), "[graphql-ws] ", log.LstdFlags|log.Lmicroseconds)
		}

		return runQuery(context.Background(), config, graphqlws.OperationParams{
			Query:         query,
			Variables:     variables,
			OperationName: operationName,
		}, cmd.OutOrStdout(), logger)
	},
}

func loadConfig(cmd *cobra.Command) (Config, error) {
	config := DefaultConfig()

	if configPath != "" {
		loaded, err := ConfigFromPath(configPath)
		if err != nil {
			return Config{}, fmt.Errorf("Could not load config file from '%s': %w", configPath, err)
		}
		config = *loaded
	}

	if err := overrideWithEnv(&config, envFile); err != nil {
		return Config{}, err
	}

	flags := cmd.Flags()

	if flags.Changed("url") {
		config.URL = serverURL
	}
	if flags.Changed("origin") {
		config.Origin = origin
	}
	if flags.Changed("insecure") {
		config.InsecureSkipVerify = insecure
	}
	if flags.Changed("keep-alive") {
		config.KeepAlives = keepAlives
	}
	if flags.Changed("handshake-timeout") {
		secs, err := handshakeTimeoutSecs(handshakeTimeout)
		if err != nil {
			return Config{}, err
		}
		config.HandshakeTimeoutSecs = secs
	}

	for _, header := range headers {
		parts := strings.SplitN(header, ":", 2)
		if len(parts) != 2 {
			return Config{}, fmt.Errorf("header '%s' should look like 'Name: value'", header)
		}

		if config.Headers == nil {
			config.Headers = map[string]string{}
		}
		config.Headers[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
	}

	return config, config.validate()
}

// handshakeTimeoutSecs rounds up to whole seconds, so 500ms waits a second
// rather than turning into no timeout at all.
func handshakeTimeoutSecs(timeout time.Duration) (uint, error) {
	if timeout < 0 {
		return 0, fmt.Errorf("--handshake-timeout can't be negative, got %s", timeout)
	}

	return uint((timeout + time.Second - 1) / time.Second), nil
}

func readQuery(args []string, file string, stdin io.Reader) (string, error) {
	if file != "" {
		if len(args) > 0 {
			return "", fmt.Errorf("can't use --file and a query argument together")
		}

		content, err := os.ReadFile(file)
		if err != nil {
			return "", err
		}
		return string(content), nil
	}

	if len(args) == 0 || args[0] == "-" {
		content, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("reading query from stdin: %w", err)
		}
		return string(content), nil
	}

	return args[0], nil
}

// parseVariables merges --variables with every --var name=json, falling back
// to a plain string when the value isn't valid JSON.
func parseVariables(variablesJSON string, vars []string) (map[string]interface{}, error) {
	variables := map[string]interface{}{}

	if variablesJSON != "" {
		if err := json.Unmarshal([]byte(variablesJSON), &variables); err != nil {
			return nil, fmt.Errorf("--variables should be a JSON object: %w", err)
		}
	}

	for _, v := range vars {
		parts := strings.SplitN(v, "=", 2)
		if len(parts) != 2 || parts[0] == "" {
			return nil, fmt.Errorf("variable '%s' should look like name=value", v)
		}

		var value interface{}
		if err := json.Unmarshal([]byte(parts[1]), &value); err != nil {
			value = parts[1]
		}

		variables[parts[0]] = value
	}

	if len(variables) == 0 {
		return nil, nil
	}

	return variables, nil
}

func runQuery(ctx context.Context, config Config, params graphqlws.OperationParams, out io.Writer, logger *log.Logger) error {
	endpoint := graphqlws.NewEndpoint(
		config.URL,
		graphqlws.WithDialOptions(config.DialOptions()),
		graphqlws.WithKeepAlives(config.keepAliveTypes()...),
		graphqlws.WithLogger(logger),
	)

	if logger != nil {
		logger.Printf("connecting to %s", endpoint)
	}

	results, err := endpoint.Do(ctx, params)
	if err != nil {
		return fmt.Errorf("Failed to query graphql server: %w", err)
	}

	enc := json.NewEncoder(out)
	if indent {
		enc.SetIndent("", "  ")
	}

	for payload, err := range results.All() {
		if err != nil {
			return fmt.Errorf("Failed reading results: %w", err)
		}

		if err := enc.Encode(payload); err != nil {
			return err
		}
	}

	return nil
}

func init() {
	flags := rootCmd.Flags()

	flags.StringVar(&configPath, "config", "", "path to a JSON, YAML or TOML config file")
	flags.StringVar(&envFile, "env-file", ".env", "dotenv file to load GRAPHQL_WS_* variables from")

	flags.StringVar(&serverURL, "url", DefaultConfig().URL, "url to connect to")
	flags.StringVar(&origin, "origin", DefaultConfig().Origin, "origin to send to the server")
	flags.StringArrayVarP(&headers, "header", "H", []string{}, "extra header to send, as 'Name: value'")
	flags.BoolVar(&insecure, "insecure", false, "skip TLS certificate verification")
	flags.StringSliceVar(&keepAlives, "keep-alive", DefaultConfig().KeepAlives, "message types to treat as keep alives")
	flags.DurationVar(&handshakeTimeout, "handshake-timeout", 15*time.Second, "how long to wait for the websocket handshake")

	flags.StringVarP(&queryFile, "file", "f", "", "read the operation from a file")
	flags.StringVar(&variablesJSON, "variables", "", "variables as a JSON object")
	flags.StringArrayVar(&vars, "var", []string{}, "a single variable as name=json")
	flags.StringVar(&operationName, "operation-name", "", "operation to run when the document has several")

	flags.BoolVar(&indent, "indent", false, "indent the JSON output")
	flags.BoolVarP(&verbose, "verbose", "v", false, "trace every frame to stderr")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
