// voicepilot - hands-free voice capture and transcription agent
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/normanking/voicepilot/internal/audio"
	"github.com/normanking/voicepilot/internal/bus"
	"github.com/normanking/voicepilot/internal/config"
	"github.com/normanking/voicepilot/internal/feed"
	"github.com/normanking/voicepilot/internal/logging"
	"github.com/normanking/voicepilot/internal/session"
	"github.com/normanking/voicepilot/internal/stt"
	"github.com/normanking/voicepilot/internal/tts"
)

func main() {
	loadEnv()

	cfg, err := config.Load()
	if err != nil {
		log.Printf("config load failed, using defaults: %v", err)
	}

	logger, err := logging.New(nil)
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer logger.Close()

	zl := logger.Zerolog()
	zl.Info().
		Str("stt", cfg.STT.Provider).
		Str("tts", cfg.TTS.Provider).
		Float64("threshold", cfg.Audio.SpeechThreshold).
		Msg("Starting voicepilot")

	b := bus.NewEventBus()
	transcriber := buildTranscriber(cfg.STT, zl)
	speaker := buildSpeaker(cfg.TTS, b, zl)

	opener := func() (session.Device, error) {
		mic, err := audio.OpenMic(audio.MicConfig{
			InputDevice: cfg.Audio.InputDevice,
			SampleRate:  cfg.Audio.SampleRate,
			Channels:    cfg.Audio.Channels,
		}, zl)
		if err != nil {
			return nil, err
		}
		return mic, nil
	}

	sess := session.NewSession(cfg.Audio, opener, transcriber, speaker, b, zl)

	b.Subscribe(bus.EventTypeTranscript, func(e bus.Event) {
		zl.Info().Str("text", fmt.Sprint(e.Data["text"])).Msg("Transcript")
	})

	var feedSrv *feed.Server
	if cfg.Feed.Enabled {
		feedSrv = feed.NewServer(feed.Config{Addr: cfg.Feed.Addr}, sess, b, zl)
		if err := feedSrv.Start(); err != nil {
			zl.Error().Err(err).Msg("Could not start status feed")
			feedSrv = nil
		}
	}

	watcher := watchConfig(sess, zl)
	if watcher != nil {
		defer watcher.Close()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := sess.StartListening(ctx); err != nil {
		// Keep running; the feed stays up and reports the error state.
		zl.Error().Err(err).Msg("Could not start listening")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zl.Info().Msg("Shutting down")
	sess.StopListening()
	speaker.Stop()
	if feedSrv != nil {
		shCtx, shCancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := feedSrv.Shutdown(shCtx); err != nil {
			zl.Warn().Err(err).Msg("Feed shutdown failed")
		}
		shCancel()
	}
}

// loadEnv pulls API keys from .env files into the process environment.
// The working directory copy wins over the shared one in the config dir.
func loadEnv() {
	godotenv.Load()
	if dir, err := config.GetConfigDir(); err == nil {
		godotenv.Load(filepath.Join(dir, ".env"))
	}
}

func buildTranscriber(cfg config.STTConfig, logger zerolog.Logger) stt.Transcriber {
	switch cfg.Provider {
	case "whisper":
		return stt.NewWhisperClient(stt.WhisperConfig{
			APIKey:   cfg.OpenAIAPIKey,
			Model:    cfg.WhisperModel,
			Language: cfg.Language,
		}, logger)
	default:
		return stt.NewClient(stt.ClientConfig{
			BaseURL: cfg.BackendURL,
			Timeout: cfg.Timeout,
		}, logger)
	}
}

func buildSpeaker(cfg config.TTSConfig, b *bus.EventBus, logger zerolog.Logger) *tts.Speaker {
	var synth tts.Synthesizer
	switch cfg.Provider {
	case "elevenlabs":
		el := tts.NewElevenLabsClient(tts.ElevenLabsConfig{
			APIKey:  cfg.ElevenLabsAPIKey,
			VoiceID: cfg.ElevenLabsVoiceID,
			Timeout: cfg.Timeout,
		}, logger)
		if el.IsAvailable() {
			synth = el
		} else {
			logger.Warn().Msg("ElevenLabs selected but no API key; using local engine only")
		}
	case "none":
	default:
		synth = tts.NewClient(tts.ClientConfig{
			BaseURL: cfg.BackendURL,
			Timeout: cfg.Timeout,
		}, logger)
	}

	var player tts.Player
	if synth != nil {
		player = tts.NewCmdPlayer("", logger)
	}

	var engine tts.Engine
	say := tts.NewSayEngine(logger)
	if say.IsAvailable() {
		engine = say
	} else if synth == nil {
		logger.Warn().Msg("No speech output available; spoken feedback disabled")
	}

	return tts.NewSpeaker(tts.SpeakerConfig{
		DedupWindow:    cfg.DedupWindow,
		VoiceLanguage:  cfg.VoiceLanguage,
		PreferredNames: cfg.PreferredNames,
		Rate:           cfg.Rate,
	}, synth, player, engine, b, logger)
}

// watchConfig hot-reloads VAD tuning when the config file changes
func watchConfig(sess *session.Session, logger zerolog.Logger) *config.Watcher {
	dir, err := config.GetConfigDir()
	if err != nil {
		return nil
	}
	path := filepath.Join(dir, "config.yaml")

	watcher, err := config.Watch(path, logger, func(updated *config.Config) {
		sess.SetDetectorConfig(audio.DetectorConfig{
			SpeechThreshold: updated.Audio.SpeechThreshold,
			SilenceDuration: updated.Audio.SilenceDuration,
		})
	})
	if err != nil {
		logger.Warn().Err(err).Msg("Config watcher unavailable")
		return nil
	}
	return watcher
}
