package main

import (
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	graphqlws "github.com/uswitch/graphql-ws/pkg/graphql/ws"
)

type Config struct {
	URL    string `json:"url" yaml:"url" toml:"url"`
	Origin string `json:"origin" yaml:"origin" toml:"origin"`

	Headers map[string]string `json:"headers" yaml:"headers" toml:"headers"`

	InsecureSkipVerify   bool `json:"insecure_skip_verify" yaml:"insecure_skip_verify" toml:"insecure_skip_verify"`
	HandshakeTimeoutSecs uint `json:"handshake_timeout_secs" yaml:"handshake_timeout_secs" toml:"handshake_timeout_secs"`

	KeepAlives   []string `json:"keep_alives" yaml:"keep_alives" toml:"keep_alives"`
	Subprotocols []string `json:"subprotocols" yaml:"subprotocols" toml:"subprotocols"`
}

func DefaultConfig() Config {
	return Config{
		URL:                  "ws://localhost:8080/graphqlws",
		Origin:               "cli://graphql-ws-query",
		Headers:              map[string]string{},
		HandshakeTimeoutSecs: 15,
		KeepAlives:           []string{string(graphqlws.GQL_CONNECTION_KEEP_ALIVE)},
		Subprotocols:         []string{graphqlws.Protocol},
	}
}

func (c Config) validate() error {
	u, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("'%s' is an invalid URL: %w", c.URL, err)
	}

	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("'%s' needs to be a ws:// or wss:// URL", c.URL)
	}

	for _, keepAlive := range c.KeepAlives {
		if keepAlive == "" {
			return fmt.Errorf("keep alive types can't be empty")
		}
	}

	for name := range c.Headers {
		if name == "" {
			return fmt.Errorf("header names can't be empty")
		}
	}

	return nil
}

// ConfigFromPath loads JSON, YAML or TOML depending on the file extension
// on top of the defaults.
func ConfigFromPath(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	config := DefaultConfig()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(content, &config)
	case ".toml":
		err = toml.Unmarshal(content, &config)
	default:
		err = json.Unmarshal(content, &config)
	}

	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// overrideWithEnv applies a .env file, if there is one, and then the
// GRAPHQL_WS_* variables.
func overrideWithEnv(config *Config, envFile string) error {
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("Failed to load %s: %v", envFile, err)
	}

	if u := os.Getenv("GRAPHQL_WS_URL"); u != "" {
		config.URL = u
	}

	if origin := os.Getenv("GRAPHQL_WS_ORIGIN"); origin != "" {
		config.Origin = origin
	}

	if insecure := os.Getenv("GRAPHQL_WS_INSECURE"); insecure != "" {
		value, err := strconv.ParseBool(insecure)
		if err != nil {
			return fmt.Errorf("GRAPHQL_WS_INSECURE: %w", err)
		}
		config.InsecureSkipVerify = value
	}

	return config.validate()
}

func (c Config) DialOptions() graphqlws.DialOptions {
	header := http.Header{}

	if c.Origin != "" {
		header.Set("Origin", c.Origin)
	}

	for name, value := range c.Headers {
		header.Set(name, value)
	}

	options := graphqlws.DialOptions{
		Header:           header,
		HandshakeTimeout: time.Duration(c.HandshakeTimeoutSecs) * time.Second,
		Subprotocols:     c.Subprotocols,
	}

	if c.InsecureSkipVerify {
		options.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return options
}

func (c Config) keepAliveTypes() []graphqlws.MessageType {
	types := make([]graphqlws.MessageType, len(c.KeepAlives))
	for idx, keepAlive := range c.KeepAlives {
		types[idx] = graphqlws.MessageType(keepAlive)
	}
	return types
}
