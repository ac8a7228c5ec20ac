// MIT License
//
// Copyright (c) 2022-2026 GoAkt Team
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

// Package config loads the YAML configuration shared by coordinators and
// clients of highly available nameservices and builds the components it
// describes.
package config

import (
	"context"
	"fmt"
	"os"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"gopkg.in/yaml.v3"

	"github.com/tochemey/dtoken/client"
	gerrors "github.com/tochemey/dtoken/errors"
	"github.com/tochemey/dtoken/internal/validation"
	"github.com/tochemey/dtoken/log"
	"github.com/tochemey/dtoken/principal"
	"github.com/tochemey/dtoken/resolver"
	"github.com/tochemey/dtoken/secretmanager"
)

// Version is the only configuration version understood
const Version = 1

const (
	StoreMemory = "memory"
	StoreBolt   = "bolt"
	StoreEtcd   = "etcd"

	TransportRPC  = "rpc"
	TransportREST = "rest"
)

// Config is the parsed configuration file
type Config struct {
	Version      int                 `yaml:"version"`
	Token        Token               `yaml:"token"`
	Security     Security            `yaml:"security"`
	Nameservices map[string][]string `yaml:"nameservices"`
	Store        Store               `yaml:"store"`
	Coordinator  Coordinator         `yaml:"coordinator"`
	Client       Client              `yaml:"client"`
}

// Token holds the secret manager intervals
type Token struct {
	KeyUpdateInterval   time.Duration `yaml:"key_update_interval"`
	MaxLifetime         time.Duration `yaml:"max_lifetime"`
	RenewInterval       time.Duration `yaml:"renew_interval"`
	RemoverScanInterval time.Duration `yaml:"remover_scan_interval"`
}

// Security holds the identity settings
type Security struct {
	// TokenServiceUseIP tags endpoint tokens with ip:port rather than host:port
	TokenServiceUseIP *bool `yaml:"token_service_use_ip"`
	// AuthToLocal holds the principal mapping rules
	AuthToLocal  string `yaml:"auth_to_local"`
	DefaultRealm string `yaml:"default_realm"`
}

// Store selects where the secret state is kept
type Store struct {
	Type string `yaml:"type"`
	// Path is the database file of a bolt store
	Path string `yaml:"path"`
	Etcd Etcd   `yaml:"etcd"`
}

// Etcd configures an etcd backed store
type Etcd struct {
	Endpoints   []string      `yaml:"endpoints"`
	Prefix      string        `yaml:"prefix"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
	Timeout     time.Duration `yaml:"timeout"`
	Username    string        `yaml:"username"`
	Password    string        `yaml:"password"`
}

// Coordinator configures a coordinator process
type Coordinator struct {
	BindAddress string `yaml:"bind_address"`
	LogLevel    string `yaml:"log_level"`
}

// Client configures the failover client
type Client struct {
	Timeout   time.Duration `yaml:"timeout"`
	Transport string        `yaml:"transport"`
}

// Load reads, defaults and validates the file at path
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration %s: %w", path, err)
	}
	return Parse(data)
}

// Parse defaults and validates a YAML document
func Parse(data []byte) (*Config, error) {
	config := new(Config)
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, gerrors.NewErrInvalidConfig(err)
	}

	config.setDefaults()
	if err := config.Validate(); err != nil {
		return nil, gerrors.NewErrInvalidConfig(err)
	}
	return config, nil
}

func (c *Config) setDefaults() {
	if c.Version == 0 {
		c.Version = Version
	}
	if c.Token.KeyUpdateInterval == 0 {
		c.Token.KeyUpdateInterval = secretmanager.DefaultKeyUpdateInterval
	}
	if c.Token.MaxLifetime == 0 {
		c.Token.MaxLifetime = secretmanager.DefaultMaxLifetime
	}
	if c.Token.RenewInterval == 0 {
		c.Token.RenewInterval = secretmanager.DefaultRenewInterval
	}
	if c.Token.RemoverScanInterval == 0 {
		c.Token.RemoverScanInterval = secretmanager.DefaultRemoverScanInterval
	}
	if c.Security.TokenServiceUseIP == nil {
		useIP := true
		c.Security.TokenServiceUseIP = &useIP
	}
	if c.Security.AuthToLocal == "" {
		c.Security.AuthToLocal = principal.DefaultRules
	}
	if c.Store.Type == "" {
		c.Store.Type = StoreMemory
	}
	if c.Store.Etcd.DialTimeout == 0 {
		c.Store.Etcd.DialTimeout = 5 * time.Second
	}
	if c.Store.Etcd.Timeout == 0 {
		c.Store.Etcd.Timeout = 5 * time.Second
	}
	if c.Client.Timeout == 0 {
		c.Client.Timeout = client.DefaultTimeout
	}
	if c.Client.Transport == "" {
		c.Client.Transport = TransportRPC
	}
}

// Validate checks the whole configuration and reports every violation.
// An empty nameservices section is valid.
func (c *Config) Validate() error {
	chain := validation.New(validation.AllErrors()).
		AddAssertion(c.Version == Version, fmt.Sprintf("unsupported configuration version %d", c.Version)).
		AddValidator(validation.NewPositiveValidator("token.key_update_interval", c.Token.KeyUpdateInterval)).
		AddValidator(validation.NewPositiveValidator("token.max_lifetime", c.Token.MaxLifetime)).
		AddValidator(validation.NewPositiveValidator("token.renew_interval", c.Token.RenewInterval)).
		AddValidator(validation.NewPositiveValidator("token.remover_scan_interval", c.Token.RemoverScanInterval)).
		AddValidator(validation.NewPositiveValidator("client.timeout", c.Client.Timeout)).
		AddAssertion(c.Client.Transport == TransportRPC || c.Client.Transport == TransportREST,
			fmt.Sprintf("unsupported client.transport %q", c.Client.Transport)).
		AddAssertion(log.ParseLevel(c.Coordinator.LogLevel) != log.InvalidLevel,
			fmt.Sprintf("unsupported coordinator.log_level %q", c.Coordinator.LogLevel))

	if c.Coordinator.BindAddress != "" {
		chain.AddValidator(validation.NewAddressValidator(c.Coordinator.BindAddress))
	}

	if _, err := c.Mapper(); err != nil {
		chain.AddAssertion(false, err.Error())
	}

	for name, endpoints := range c.Nameservices {
		chain.AddAssertion(len(endpoints) > 0, fmt.Sprintf("nameservice %s has no endpoint", name))

		seen := mapset.NewThreadUnsafeSet[string]()
		for _, endpoint := range endpoints {
			chain.AddValidator(validation.NewAddressValidator(endpoint))
			chain.AddAssertion(seen.Add(endpoint), fmt.Sprintf("nameservice %s lists %s twice", name, endpoint))
		}
	}

	switch c.Store.Type {
	case StoreMemory:
	case StoreBolt:
		chain.AddValidator(validation.NewEmptyStringValidator("store.path", c.Store.Path))
	case StoreEtcd:
		chain.AddValidator(c.etcdConfig())
	default:
		chain.AddAssertion(false, fmt.Sprintf("unsupported store.type %q", c.Store.Type))
	}
	return chain.Validate()
}

// UseIP reports the token service addressing mode
func (c *Config) UseIP() bool {
	return c.Security.TokenServiceUseIP == nil || *c.Security.TokenServiceUseIP
}

// Mapper builds the principal mapper
func (c *Config) Mapper() (*principal.Mapper, error) {
	return principal.NewMapper(c.Security.AuthToLocal, c.Security.DefaultRealm)
}

// Resolver builds the endpoint resolver of the configured nameservices
func (c *Config) Resolver(opts ...resolver.Option) *resolver.Resolver {
	return resolver.New(c.Nameservices, opts...)
}

// Logger builds the coordinator logger
func (c *Config) Logger() log.Logger {
	return log.NewZap(log.ParseLevel(c.Coordinator.LogLevel), os.Stdout)
}

// ManagerOptions returns the secret manager options the configuration sets
func (c *Config) ManagerOptions() ([]secretmanager.Option, error) {
	mapper, err := c.Mapper()
	if err != nil {
		return nil, err
	}

	return []secretmanager.Option{
		secretmanager.WithKeyUpdateInterval(c.Token.KeyUpdateInterval),
		secretmanager.WithMaxLifetime(c.Token.MaxLifetime),
		secretmanager.WithRenewInterval(c.Token.RenewInterval),
		secretmanager.WithRemoverScanInterval(c.Token.RemoverScanInterval),
		secretmanager.WithMapper(mapper),
	}, nil
}

// OpenStore opens the configured secret store
func (c *Config) OpenStore(ctx context.Context) (secretmanager.Store, error) {
	switch c.Store.Type {
	case StoreBolt:
		return secretmanager.NewBoltStore(c.Store.Path)
	case StoreEtcd:
		return secretmanager.NewEtcdStore(ctx, c.etcdConfig())
	case StoreMemory:
		return secretmanager.NewMemoryStore(), nil
	default:
		return nil, gerrors.NewErrInvalidConfig(fmt.Errorf("unsupported store.type %q", c.Store.Type))
	}
}

// ClientOptions returns the client options the configuration sets
func (c *Config) ClientOptions() []client.Option {
	var transport client.Transport
	switch c.Client.Transport {
	case TransportREST:
		transport = client.NewRESTTransport(c.Client.Timeout)
	default:
		transport = client.NewRPCTransport(c.Client.Timeout)
	}

	return []client.Option{
		client.WithTimeout(c.Client.Timeout),
		client.WithUseIP(c.UseIP()),
		client.WithTransport(transport),
	}
}

func (c *Config) etcdConfig() *secretmanager.EtcdConfig {
	return &secretmanager.EtcdConfig{
		Endpoints:   c.Store.Etcd.Endpoints,
		Prefix:      c.Store.Etcd.Prefix,
		DialTimeout: c.Store.Etcd.DialTimeout,
		Timeout:     c.Store.Etcd.Timeout,
		Username:    c.Store.Etcd.Username,
		Password:    c.Store.Etcd.Password,
	}
}
