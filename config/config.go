package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Assistant AssistantConfig           `yaml:"assistant"`
	Audio     AudioConfig               `yaml:"audio"`
	Cues      CuesConfig                `yaml:"cues"`
	OpenAI    OpenAIConfig              `yaml:"openai"`
	Webhook   WebhookConfig             `yaml:"webhook"`
	Server    ServerConfig              `yaml:"server"`
	Events    map[string][]ActionConfig `yaml:"events"`
	Log       LogConfig                 `yaml:"log"`
}

type AssistantConfig struct {
	WakeWord       string   `yaml:"wake_word"`
	StopPhrases    []string `yaml:"stop_phrases"`
	ClientID       string   `yaml:"client_id"`
	CommandTimeout string   `yaml:"command_timeout"`
	PhraseTimeout  string   `yaml:"phrase_timeout"`
}

type AudioConfig struct {
	Source     string `yaml:"source"`
	SampleRate int    `yaml:"sample_rate"`
	FileDir    string `yaml:"file_dir"`
}

type CuesConfig struct {
	Enabled bool       `yaml:"enabled"`
	Volume  float64    `yaml:"volume"`
	Tone    ToneConfig `yaml:"tone"`
	Files   CueFiles   `yaml:"files"`
}

type ToneConfig struct {
	Frequency  int `yaml:"frequency"`
	DurationMS int `yaml:"duration_ms"`
}

type CueFiles struct {
	Startup    string `yaml:"startup"`
	WakeAck    string `yaml:"wake_ack"`
	CommandAck string `yaml:"command_ack"`
	StopAck    string `yaml:"stop_ack"`
}

type OpenAIConfig struct {
	APIKey   string `yaml:"api_key"`
	Language string `yaml:"language"`
}

type WebhookConfig struct {
	URL       string `yaml:"url"`
	Timeout   string `yaml:"timeout"`
	QueueSize int    `yaml:"queue_size"`
}

type ServerConfig struct {
	Addr            string `yaml:"addr"`
	AuthToken       string `yaml:"auth_token"`
	WaitForResponse bool   `yaml:"wait_for_response"`
}

// ActionConfig binds one event-router action: type "webhook" with a URL, or
// type "script" with an executable path and optional timeout.
type ActionConfig struct {
	Type    string `yaml:"type"`
	URL     string `yaml:"url"`
	Path    string `yaml:"path"`
	Timeout string `yaml:"timeout"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	// Defaults whose zero value is meaningful (false, muted) are seeded
	// before decoding; absent keys keep the seed, explicit values override.
	cfg := Config{
		Cues:   CuesConfig{Enabled: true, Volume: 0.5},
		Server: ServerConfig{WaitForResponse: true},
	}
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.setDefaults()

	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.Assistant.WakeWord == "" {
		c.Assistant.WakeWord = "jarvis"
	}
	if len(c.Assistant.StopPhrases) == 0 {
		c.Assistant.StopPhrases = []string{"stop listening", "goodbye", "exit"}
	}
	if c.Assistant.ClientID == "" {
		c.Assistant.ClientID = "voice_assistant"
	}
	if c.Assistant.CommandTimeout == "" {
		c.Assistant.CommandTimeout = "5s"
	}
	if c.Assistant.PhraseTimeout == "" {
		c.Assistant.PhraseTimeout = "3s"
	}
	if c.Audio.Source == "" {
		c.Audio.Source = "microphone"
	}
	if c.Audio.SampleRate == 0 {
		c.Audio.SampleRate = 16000
	}
	if c.Audio.FileDir == "" {
		c.Audio.FileDir = "./audio"
	}
	if c.Cues.Tone.Frequency == 0 {
		c.Cues.Tone.Frequency = 800
	}
	if c.Cues.Tone.DurationMS == 0 {
		c.Cues.Tone.DurationMS = 200
	}
	if c.OpenAI.Language == "" {
		c.OpenAI.Language = "en"
	}
	if c.Webhook.Timeout == "" {
		c.Webhook.Timeout = "10s"
	}
	if c.Webhook.QueueSize == 0 {
		c.Webhook.QueueSize = 32
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":5000"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}

	// With no explicit event map, the single configured webhook receives the
	// startup and transcript events.
	if len(c.Events) == 0 && c.Webhook.URL != "" {
		c.Events = map[string][]ActionConfig{
			"startup":    {{Type: "webhook", URL: c.Webhook.URL}},
			"transcript": {{Type: "webhook", URL: c.Webhook.URL}},
		}
	}
}
