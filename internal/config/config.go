package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/sunnyswag/RTCStartupDemo/internal/negotiation"
	"github.com/sunnyswag/RTCStartupDemo/internal/protocol"
	"github.com/sunnyswag/RTCStartupDemo/internal/room"
)

// Default configuration values
const (
	DefaultServer       = "ws://localhost:8080/ws"
	DefaultSTUN         = "stun:stun.l.google.com:19302"
	DefaultCodec        = protocol.CodecJSON
	DefaultGlare        = "none"
	DefaultCapabilities = "recvonly"
	DefaultListen       = ":8080"
)

// Config holds application configuration
type Config struct {
	// ServerURL is the rendezvous websocket endpoint
	ServerURL string
	Room      string
	Identity  string

	// ICE servers for WebRTC
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string
	ForceRelay bool

	Codec        string
	Glare        string
	Capabilities string

	// Listen is the address `serve` binds to
	Listen string
}

// Options carries CLI flag values. Empty strings and nil pointers mean
// "not set on the command line".
type Options struct {
	ConfigFile   string
	ServerURL    string
	Room         string
	Identity     string
	STUNServer   string
	TURNServer   string
	TURNUser     string
	TURNPass     string
	ForceRelay   *bool
	Codec        string
	Glare        string
	Capabilities string
	Listen       string
}

// fileConfig mirrors Config in the YAML file.
type fileConfig struct {
	Server       string `yaml:"server"`
	Room         string `yaml:"room"`
	Identity     string `yaml:"identity"`
	STUNServer   string `yaml:"stun_server"`
	TURNServer   string `yaml:"turn_server"`
	TURNUser     string `yaml:"turn_username"`
	TURNPass     string `yaml:"turn_password"`
	ForceRelay   *bool  `yaml:"force_relay"`
	Codec        string `yaml:"codec"`
	Glare        string `yaml:"glare"`
	Capabilities string `yaml:"capabilities"`
	Listen       string `yaml:"listen"`
}

// Load reads configuration with the following priority:
// 1. CLI flags (passed via Options) - highest priority
// 2. Environment variables
// 3. YAML file (Options.ConfigFile or RTCDEMO_CONFIG)
// 4. Hardcoded defaults - lowest priority
func Load(opts Options) (*Config, error) {
	path := first(opts.ConfigFile, os.Getenv("RTCDEMO_CONFIG"))
	var file fileConfig
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	forceRelay, err := loadBool(opts.ForceRelay, "RTCDEMO_FORCE_RELAY", file.ForceRelay)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		ServerURL:    first(opts.ServerURL, os.Getenv("RTCDEMO_SERVER"), file.Server, DefaultServer),
		Room:         first(opts.Room, os.Getenv("RTCDEMO_ROOM"), file.Room),
		Identity:     first(opts.Identity, os.Getenv("RTCDEMO_ID"), file.Identity),
		STUNServer:   first(opts.STUNServer, os.Getenv("STUN_SERVER"), file.STUNServer, DefaultSTUN),
		TURNServer:   first(opts.TURNServer, os.Getenv("TURN_SERVER"), file.TURNServer),
		TURNUser:     first(opts.TURNUser, os.Getenv("TURN_USERNAME"), file.TURNUser),
		TURNPass:     first(opts.TURNPass, os.Getenv("TURN_PASSWORD"), file.TURNPass),
		ForceRelay:   forceRelay,
		Codec:        first(opts.Codec, os.Getenv("RTCDEMO_CODEC"), file.Codec, DefaultCodec),
		Glare:        first(opts.Glare, os.Getenv("RTCDEMO_GLARE"), file.Glare, DefaultGlare),
		Capabilities: first(opts.Capabilities, os.Getenv("RTCDEMO_CAPABILITIES"), file.Capabilities, DefaultCapabilities),
		Listen:       first(opts.Listen, os.Getenv("RTCDEMO_LISTEN"), file.Listen, DefaultListen),
	}
	if cfg.Identity == "" {
		cfg.Identity = room.NewIdentity()
	}
	return cfg, nil
}

// Validate rejects values the rest of the program cannot use.
func (c *Config) Validate() error {
	var errs []error
	if c.ServerURL == "" {
		errs = append(errs, errors.New("server url is empty"))
	}
	if _, err := protocol.CodecByName(c.Codec); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.GlarePolicy(); err != nil {
		errs = append(errs, err)
	}
	switch c.Capabilities {
	case "recvonly", "none":
	default:
		errs = append(errs, fmt.Errorf("unknown capabilities %q (want recvonly or none)", c.Capabilities))
	}
	if c.ForceRelay && c.TURNServer == "" {
		errs = append(errs, errors.New("force relay needs a TURN server"))
	}
	return errors.Join(errs...)
}

func (c *Config) GlarePolicy() (negotiation.GlarePolicy, error) {
	return negotiation.ParseGlarePolicy(c.Glare)
}

// GetSTUNServers returns STUN server URLs as strings
func (c *Config) GetSTUNServers() []string {
	if c.STUNServer == "" {
		return nil
	}
	return []string{c.STUNServer}
}

// GetTURNServers returns TURN server URLs if configured. A bare host expands
// to the usual UDP, TCP and TLS endpoints.
func (c *Config) GetTURNServers() []string {
	if c.TURNServer == "" {
		return nil
	}
	if strings.HasPrefix(c.TURNServer, "turn:") || strings.HasPrefix(c.TURNServer, "turns:") {
		return []string{c.TURNServer}
	}
	return []string{
		fmt.Sprintf("turn:%s:3478?transport=udp", c.TURNServer),
		fmt.Sprintf("turn:%s:3478?transport=tcp", c.TURNServer),
		fmt.Sprintf("turns:%s:5349?transport=tcp", c.TURNServer),
	}
}

// GetTURNCredentials returns TURN username and password
func (c *Config) GetTURNCredentials() (string, string) {
	return c.TURNUser, c.TURNPass
}

func first(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func loadBool(flag *bool, env string, file *bool) (bool, error) {
	if flag != nil {
		return *flag, nil
	}
	if v := os.Getenv(env); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return false, fmt.Errorf("%s: %w", env, err)
		}
		return b, nil
	}
	if file != nil {
		return *file, nil
	}
	return false, nil
}
