// Package config provides configuration management for voicepilot
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Audio AudioConfig `mapstructure:"audio"`
	STT   STTConfig   `mapstructure:"stt"`
	TTS   TTSConfig   `mapstructure:"tts"`
	Feed  FeedConfig  `mapstructure:"feed"`
}

// AudioConfig configures capture, level monitoring, and VAD
type AudioConfig struct {
	InputDevice     string        `mapstructure:"input_device"`
	SampleRate      int           `mapstructure:"sample_rate"`
	Channels        int           `mapstructure:"channels"`
	SpectrumBins    int           `mapstructure:"spectrum_bins"`    // level monitor buffer size
	SampleInterval  time.Duration `mapstructure:"sample_interval"`  // level sampling cadence
	SpeechThreshold float64       `mapstructure:"speech_threshold"` // loudness units, 0-255 scale
	SilenceDuration time.Duration `mapstructure:"silence_duration"` // silence before speech-end
	MinSegmentBytes int           `mapstructure:"min_segment_bytes"`
}

// STTConfig configures speech-to-text
type STTConfig struct {
	Provider   string        `mapstructure:"provider"` // backend, whisper
	BackendURL string        `mapstructure:"backend_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
	Language   string        `mapstructure:"language"`
	// Whisper provider (OpenAI API)
	OpenAIAPIKey string `mapstructure:"openai_api_key"`
	WhisperModel string `mapstructure:"whisper_model"`
}

// TTSConfig configures text-to-speech
type TTSConfig struct {
	Provider    string        `mapstructure:"provider"` // backend, elevenlabs
	BackendURL  string        `mapstructure:"backend_url"`
	Timeout     time.Duration `mapstructure:"timeout"`
	DedupWindow time.Duration `mapstructure:"dedup_window"`
	// Fallback engine voice preferences
	VoiceLanguage  string   `mapstructure:"voice_language"`
	PreferredNames []string `mapstructure:"preferred_names"`
	Rate           float64  `mapstructure:"rate"`
	// ElevenLabs provider
	ElevenLabsAPIKey  string `mapstructure:"elevenlabs_api_key"`
	ElevenLabsVoiceID string `mapstructure:"elevenlabs_voice_id"`
}

// FeedConfig configures the websocket status feed
type FeedConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() *Config {
	return &Config{
		Audio: AudioConfig{
			InputDevice:     "",
			SampleRate:      16000,
			Channels:        1,
			SpectrumBins:    256,
			SampleInterval:  16 * time.Millisecond,
			SpeechThreshold: 5,
			SilenceDuration: 1500 * time.Millisecond,
			MinSegmentBytes: 100,
		},
		STT: STTConfig{
			Provider:     "backend",
			BackendURL:   "http://localhost:5000",
			Timeout:      30 * time.Second,
			Language:     "en",
			WhisperModel: "whisper-1",
		},
		TTS: TTSConfig{
			Provider:          "backend",
			BackendURL:        "http://localhost:5000",
			Timeout:           30 * time.Second,
			DedupWindow:       2 * time.Second,
			VoiceLanguage:     "en",
			PreferredNames:    []string{"Google", "Samantha", "Natural"},
			Rate:              1.0,
			ElevenLabsVoiceID: "21m00Tcm4TlvDq8ikWAM",
		},
		Feed: FeedConfig{
			Enabled: true,
			Addr:    "127.0.0.1:8931",
		},
	}
}

// Load reads configuration from file and environment
func Load() (*Config, error) {
	cfg := DefaultConfig()

	configDir, err := GetConfigDir()
	if err != nil {
		return cfg, err
	}
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return cfg, err
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	// Environment variable overrides
	viper.SetEnvPrefix("VOICEPILOT")
	viper.AutomaticEnv()

	// Read config file if it exists
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return cfg, err
		}
		// Config file not found, use defaults and create one
		if err := Save(cfg); err != nil {
			return cfg, err
		}
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// LoadFile reads configuration from an explicit path, applying defaults
func LoadFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return cfg, err
	}
	if err := v.Unmarshal(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Save writes the configuration to file
func Save(cfg *Config) error {
	configDir, err := GetConfigDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return err
	}

	viper.Set("audio", cfg.Audio)
	viper.Set("stt", cfg.STT)
	viper.Set("tts", cfg.TTS)
	viper.Set("feed", cfg.Feed)

	configPath := filepath.Join(configDir, "config.yaml")
	return viper.WriteConfigAs(configPath)
}

// GetConfigDir returns the configuration directory path
func GetConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".voicepilot"), nil
}
