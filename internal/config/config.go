package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/convergectl/internal/actor"
	"github.com/danmuck/convergectl/internal/scenario"
	"gopkg.in/yaml.v3"
)

var ErrInvalidConfig = errors.New("config: invalid")

const (
	TransportSSH      = "ssh"
	TransportLocal    = "local"
	TransportTerminal = "terminal"
)

// Duration decodes "100ms"-style strings from TOML and YAML.
type Duration time.Duration

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(b)))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	return d.UnmarshalText([]byte(node.Value))
}

// Scenario is a fully resolved scenario file.
type Scenario struct {
	Params scenario.Params
	Actors []ActorConfig
	Status StatusConfig
}

// StatusConfig controls the optional progress HTTP endpoint.
type StatusConfig struct {
	Addr        string
	CorsOrigins []string
}

// ActorConfig describes how to reach one actor.
type ActorConfig struct {
	Name      string
	Transport string

	Host            string
	Port            string
	SSHUser         string
	KeyPath         string
	KnownHostsPath  string
	InsecureHostKey bool
	DialTimeout     time.Duration

	Display      string
	DisplayProbe string
	WaitTimeout  time.Duration
	PollInterval time.Duration

	Shell string
	Env   []string
}

// scenario file key mapping; pointer fields distinguish unset from zero.
type fileConfig struct {
	DocumentPath   *string   `toml:"document_path" yaml:"document_path"`
	User           *string   `toml:"user" yaml:"user"`
	Template       *string   `toml:"template" yaml:"template"`
	InsertPrefix   *string   `toml:"insert_prefix" yaml:"insert_prefix"`
	ModeExitKey    *string   `toml:"mode_exit_key" yaml:"mode_exit_key"`
	SaveCommand    *string   `toml:"save_command" yaml:"save_command"`
	TypingDelay    *Duration `toml:"typing_delay" yaml:"typing_delay"`
	RecorderWarmup *Duration `toml:"recorder_warmup" yaml:"recorder_warmup"`
	EditorSettle   *Duration `toml:"editor_settle" yaml:"editor_settle"`
	InputSettle    *Duration `toml:"input_settle" yaml:"input_settle"`
	SaveSettle     *Duration `toml:"save_settle" yaml:"save_settle"`
	WaitTimeout    *Duration `toml:"wait_timeout" yaml:"wait_timeout"`
	EditorCommand  *string   `toml:"editor_command" yaml:"editor_command"`
	EditorProcess  *string   `toml:"editor_process" yaml:"editor_process"`
	OutputDir      *string   `toml:"output_dir" yaml:"output_dir"`

	Recorder struct {
		Launch string `toml:"launch" yaml:"launch"`
		Start  string `toml:"start" yaml:"start"`
		Stop   string `toml:"stop" yaml:"stop"`
	} `toml:"recorder" yaml:"recorder"`

	Status struct {
		Addr        string   `toml:"addr" yaml:"addr"`
		CorsOrigins []string `toml:"cors_origins" yaml:"cors_origins"`
	} `toml:"status" yaml:"status"`

	Actors []actorFileConfig `toml:"actors" yaml:"actors"`
}

type actorFileConfig struct {
	Name            string   `toml:"name" yaml:"name"`
	Transport       string   `toml:"transport" yaml:"transport"`
	Host            string   `toml:"host" yaml:"host"`
	Port            string   `toml:"port" yaml:"port"`
	SSHUser         string   `toml:"ssh_user" yaml:"ssh_user"`
	KeyPath         string   `toml:"key_path" yaml:"key_path"`
	KnownHostsPath  string   `toml:"known_hosts_path" yaml:"known_hosts_path"`
	InsecureHostKey bool     `toml:"insecure_skip_host_key_check" yaml:"insecure_skip_host_key_check"`
	DialTimeout     Duration `toml:"dial_timeout" yaml:"dial_timeout"`
	Display         string   `toml:"display" yaml:"display"`
	DisplayProbe    string   `toml:"display_probe" yaml:"display_probe"`
	WaitTimeout     Duration `toml:"wait_timeout" yaml:"wait_timeout"`
	PollInterval    Duration `toml:"poll_interval" yaml:"poll_interval"`
	Shell           string   `toml:"shell" yaml:"shell"`
	Env             []string `toml:"env" yaml:"env"`
}

// LoadScenario reads a scenario file (.toml, or .yaml/.yml) and overlays
// it onto scenario.DefaultParams.
func LoadScenario(path string) (Scenario, error) {
	raw, err := decodeFile(path)
	if err != nil {
		return Scenario{}, err
	}
	cfg := Scenario{Params: scenario.DefaultParams()}
	applyParams(&cfg.Params, raw)
	cfg.Params.Recorder.Launch = pick(raw.Recorder.Launch, cfg.Params.Recorder.Launch)
	cfg.Params.Recorder.Start = pick(raw.Recorder.Start, cfg.Params.Recorder.Start)
	cfg.Params.Recorder.Stop = pick(raw.Recorder.Stop, cfg.Params.Recorder.Stop)
	if out := cfg.Params.OutputDir; !filepath.IsAbs(out) && raw.OutputDir != nil {
		cfg.Params.OutputDir = filepath.Join(filepath.Dir(path), out)
	}

	cfg.Status = StatusConfig{
		Addr:        strings.TrimSpace(raw.Status.Addr),
		CorsOrigins: raw.Status.CorsOrigins,
	}
	for _, entry := range raw.Actors {
		cfg.Actors = append(cfg.Actors, resolveActor(path, entry))
	}

	if err := Validate(cfg); err != nil {
		return Scenario{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func decodeFile(path string) (fileConfig, error) {
	var raw fileConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return raw, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&raw); err != nil {
			return raw, fmt.Errorf("config parse failed (%s): %w", path, err)
		}
	default:
		meta, err := toml.Decode(string(data), &raw)
		if err != nil {
			return raw, fmt.Errorf("config parse failed (%s): %w", path, err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, 0, len(undecoded))
			for _, key := range undecoded {
				keys = append(keys, key.String())
			}
			return raw, fmt.Errorf("config parse failed (%s): unknown keys %s", path, strings.Join(keys, ", "))
		}
	}
	return raw, nil
}

func applyParams(p *scenario.Params, raw fileConfig) {
	setString(&p.DocumentPath, raw.DocumentPath)
	setString(&p.User, raw.User)
	setString(&p.Template, raw.Template)
	setString(&p.InsertPrefix, raw.InsertPrefix)
	setString(&p.ModeExitKey, raw.ModeExitKey)
	setString(&p.SaveCommand, raw.SaveCommand)
	setString(&p.EditorCommand, raw.EditorCommand)
	setString(&p.EditorProcess, raw.EditorProcess)
	setString(&p.OutputDir, raw.OutputDir)
	setDuration(&p.TypingDelay, raw.TypingDelay)
	setDuration(&p.RecorderWarmup, raw.RecorderWarmup)
	setDuration(&p.EditorSettle, raw.EditorSettle)
	setDuration(&p.InputSettle, raw.InputSettle)
	setDuration(&p.SaveSettle, raw.SaveSettle)
	setDuration(&p.WaitTimeout, raw.WaitTimeout)
}

func resolveActor(configPath string, entry actorFileConfig) ActorConfig {
	out := ActorConfig{
		Name:            strings.TrimSpace(entry.Name),
		Transport:       strings.ToLower(strings.TrimSpace(entry.Transport)),
		Host:            strings.TrimSpace(entry.Host),
		Port:            strings.TrimSpace(entry.Port),
		SSHUser:         pick(entry.SSHUser, "root"),
		KeyPath:         resolvePath(configPath, entry.KeyPath),
		KnownHostsPath:  resolvePath(configPath, entry.KnownHostsPath),
		InsecureHostKey: entry.InsecureHostKey,
		DialTimeout:     time.Duration(entry.DialTimeout),
		Display:         strings.TrimSpace(entry.Display),
		DisplayProbe:    strings.TrimSpace(entry.DisplayProbe),
		WaitTimeout:     time.Duration(entry.WaitTimeout),
		PollInterval:    time.Duration(entry.PollInterval),
		Shell:           strings.TrimSpace(entry.Shell),
		Env:             entry.Env,
	}
	if out.Transport == "" {
		out.Transport = TransportSSH
	}
	if out.DialTimeout <= 0 {
		out.DialTimeout = 10 * time.Second
	}
	return out
}

// Validate checks params and actor entries.
func Validate(cfg Scenario) error {
	if err := cfg.Params.Validate(); err != nil {
		return err
	}
	if _, err := actor.LookupKey(cfg.Params.ModeExitKey); err != nil {
		return fmt.Errorf("%w: mode_exit_key: %v", ErrInvalidConfig, err)
	}
	if len(cfg.Actors) == 0 {
		return fmt.Errorf("%w: at least one [[actors]] entry is required", ErrInvalidConfig)
	}
	seen := make(map[string]struct{}, len(cfg.Actors))
	for i, a := range cfg.Actors {
		if err := ValidateActor(a); err != nil {
			return fmt.Errorf("actors[%d]: %w", i, err)
		}
		if _, dup := seen[a.Name]; dup {
			return fmt.Errorf("%w: actors[%d]: duplicate name %q", ErrInvalidConfig, i, a.Name)
		}
		seen[a.Name] = struct{}{}
	}
	return nil
}

func ValidateActor(a ActorConfig) error {
	if err := actor.ValidateName(a.Name); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	switch a.Transport {
	case TransportSSH:
		if a.Host == "" {
			return fmt.Errorf("%w: host is required for ssh transport", ErrInvalidConfig)
		}
		if a.KeyPath == "" {
			return fmt.Errorf("%w: key_path is required for ssh transport", ErrInvalidConfig)
		}
	case TransportLocal, TransportTerminal:
	default:
		return fmt.Errorf("%w: unsupported transport %q (expected ssh, local or terminal)", ErrInvalidConfig, a.Transport)
	}
	if a.WaitTimeout < 0 || a.PollInterval < 0 {
		return fmt.Errorf("%w: wait_timeout and poll_interval must not be negative", ErrInvalidConfig)
	}
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v *Duration) {
	if v != nil {
		*dst = time.Duration(*v)
	}
}

func pick(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return strings.TrimSpace(value)
}

func resolvePath(configPath, p string) string {
	p = strings.TrimSpace(p)
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	if strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, p[2:])
		}
	}
	return filepath.Join(filepath.Dir(configPath), p)
}
