package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/teslashibe/kitchen-buddy/internal/config"
	"github.com/teslashibe/kitchen-buddy/pkg/inference"
	"github.com/teslashibe/kitchen-buddy/pkg/stt"
	"github.com/teslashibe/kitchen-buddy/pkg/tts"
	"github.com/teslashibe/kitchen-buddy/pkg/voice"
	"github.com/teslashibe/kitchen-buddy/pkg/worker"
)

// services owns the provider chains and any worker processes behind them.
type services struct {
	voice.Services

	stt    *stt.Chain
	llm    *inference.Chain
	tts    *tts.Chain
	coqui  *worker.Worker
	logger *slog.Logger
}

// Close releases providers, then stops the Coqui worker if one was started.
func (s *services) Close() error {
	var errs []error
	if s.stt != nil {
		errs = append(errs, s.stt.Close())
	}
	if s.llm != nil {
		errs = append(errs, s.llm.Close())
	}
	if s.tts != nil {
		errs = append(errs, s.tts.Close())
	}
	if s.coqui != nil {
		errs = append(errs, s.coqui.Close())
	}
	return errors.Join(errs...)
}

func buildServices(ctx context.Context, cfg config.Config, logger *slog.Logger) (*services, error) {
	s := &services{logger: logger}

	sttChain, err := buildSTT(cfg, logger)
	if err != nil {
		return nil, err
	}
	s.stt = sttChain

	llmChain, err := buildLLM(ctx, cfg, logger)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.llm = llmChain

	if err := s.buildTTS(cfg); err != nil {
		s.Close()
		return nil, err
	}

	s.Services = voice.Services{STT: s.stt, LLM: s.llm, TTS: s.tts}
	return s, nil
}

func buildSTT(cfg config.Config, logger *slog.Logger) (*stt.Chain, error) {
	var providers []stt.Provider
	for _, name := range cfg.STT.Providers {
		var (
			p   stt.Provider
			err error
		)
		switch name {
		case "whisper":
			p, err = stt.NewWhisper(
				stt.WithPython(cfg.STT.Python),
				stt.WithModel(cfg.STT.Model),
				stt.WithDevice(cfg.STT.Device, cfg.STT.ComputeType),
				stt.WithTempDir(cfg.Voice.TempDir),
				stt.WithTimeout(cfg.Voice.TranscribeTimeout),
				stt.WithLogger(logger),
			)
		case "openai":
			p, err = stt.NewOpenAI(
				stt.WithAPIKey(cfg.OpenAIKey),
				stt.WithModel(cfg.STT.OpenAIModel),
				stt.WithTimeout(cfg.Voice.TranscribeTimeout),
				stt.WithLogger(logger),
			)
		default:
			err = fmt.Errorf("unknown stt provider %q", name)
		}
		if err != nil {
			return nil, fmt.Errorf("stt %s: %w", name, err)
		}
		providers = append(providers, p)
	}
	return stt.NewChain(logger, providers...)
}

func buildLLM(ctx context.Context, cfg config.Config, logger *slog.Logger) (*inference.Chain, error) {
	var providers []inference.Provider
	for _, name := range cfg.LLM.Providers {
		var (
			p   inference.Provider
			err error
		)
		common := []inference.Option{
			inference.WithMaxTokens(cfg.LLM.MaxTokens),
			inference.WithTemperature(cfg.LLM.Temperature),
			inference.WithTimeout(cfg.Voice.GenerateTimeout),
			inference.WithLogger(logger),
		}
		if cfg.LLM.BaseURL != "" {
			common = append(common, inference.WithBaseURL(cfg.LLM.BaseURL))
		}
		switch name {
		case "gemini":
			p, err = inference.NewGemini(ctx, append(common,
				inference.WithAPIKey(cfg.GeminiKey),
				inference.WithModel(cfg.LLM.GeminiModel),
				inference.WithSystemInstruction(cfg.LLM.SystemInstruction),
			)...)
		case "openai":
			p, err = inference.NewOpenAI(append(common,
				inference.WithAPIKey(cfg.OpenAIKey),
				inference.WithModel(cfg.LLM.OpenAIModel),
			)...)
		default:
			err = fmt.Errorf("unknown llm provider %q", name)
		}
		if err != nil {
			return nil, fmt.Errorf("llm %s: %w", name, err)
		}
		providers = append(providers, p)
	}
	return inference.NewChain(logger, providers...)
}

func (s *services) buildTTS(cfg config.Config) error {
	var providers []tts.Provider
	for _, name := range cfg.TTS.Providers {
		var (
			p   tts.Provider
			err error
		)
		switch name {
		case "piper":
			p, err = tts.NewPiper(
				tts.WithPython(cfg.TTS.Python),
				tts.WithScript(cfg.TTS.PiperScript),
				tts.WithModelPath(cfg.TTS.PiperModel),
				tts.WithTempDir(cfg.Voice.TempDir),
				tts.WithTimeout(cfg.Voice.SynthesizeTimeout),
				tts.WithLogger(s.logger),
			)
		case "coqui":
			if s.coqui == nil {
				s.coqui, err = tts.StartCoquiWorker(cfg.TTS.Python, cfg.TTS.CoquiScript, s.logger)
				if err != nil {
					break
				}
			}
			p, err = tts.NewCoqui(
				tts.WithWorker(s.coqui),
				tts.WithTimeout(cfg.Voice.SynthesizeTimeout),
				tts.WithLogger(s.logger),
			)
		case "openai":
			p, err = tts.NewOpenAI(
				tts.WithAPIKey(cfg.OpenAIKey),
				tts.WithVoice(cfg.TTS.OpenAIVoice),
				tts.WithModel(cfg.TTS.OpenAIModel),
				tts.WithTimeout(cfg.Voice.SynthesizeTimeout),
				tts.WithLogger(s.logger),
			)
		default:
			err = fmt.Errorf("unknown tts provider %q", name)
		}
		if err != nil {
			return fmt.Errorf("tts %s: %w", name, err)
		}
		providers = append(providers, p)
	}

	chain, err := tts.NewChain(s.logger, providers...)
	if err != nil {
		return err
	}
	s.tts = chain
	return nil
}

// voiceConfig maps the loaded configuration onto the session pipeline.
func voiceConfig(cfg config.Config) voice.Config {
	vc := voice.DefaultConfig().
		WithPreamble(cfg.Voice.Preamble).
		WithTimeouts(cfg.Voice.TranscribeTimeout, cfg.Voice.GenerateTimeout, cfg.Voice.SynthesizeTimeout).
		WithMaxQueuedSegments(cfg.Voice.MaxQueuedSegments)
	if cfg.Voice.Segmentation == config.SegmentationServer {
		vc = vc.WithServerSegmentation(cfg.Voice.SilenceThreshold, cfg.Voice.SilenceWindow)
	}
	if cfg.Voice.MaxSegmentBytes > 0 {
		vc.MaxSegmentBytes = cfg.Voice.MaxSegmentBytes
	}
	return vc
}
