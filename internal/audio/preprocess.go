package audio

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// PreprocessResult names the audio file to transcribe. When every filter
// chain failed, Path is the original input and Modified is false.
type PreprocessResult struct {
	Path      string
	Modified  bool
	Candidate int
	Gain      GainDecision
}

// Preprocessor drives the filter engine through ranked chain candidates.
type Preprocessor struct {
	engine         FilterEngine
	noiseReduction bool
	gainDefaults   GainPolicy
	logger         *zap.SugaredLogger

	analyzePeak func(path string) (float64, error)
	rename      func(oldpath, newpath string) error
	remove      func(path string) error
}

// NewPreprocessor constructs a preprocessor with the process-wide noise
// reduction switch and auto-gain defaults.
func NewPreprocessor(engine FilterEngine, noiseReduction bool, gainDefaults GainPolicy, logger *zap.SugaredLogger) *Preprocessor {
	return &Preprocessor{
		engine:         engine,
		noiseReduction: noiseReduction,
		gainDefaults:   gainDefaults,
		logger:         logger,
		analyzePeak:    AnalyzePeakDBFS,
		rename:         os.Rename,
		remove:         os.Remove,
	}
}

// ProcessedPaths returns the filtered output path and the scratch path used
// while applying gain.
func ProcessedPaths(inputPath string) (output, gained string) {
	base := strings.TrimSuffix(inputPath, filepath.Ext(inputPath))
	return base + "_processed.wav", base + "_processed_gain.wav"
}

// Process conditions inputPath. It never fails: when no chain succeeds the
// original file is returned so transcription can still proceed.
func (p *Preprocessor) Process(ctx context.Context, inputPath string, overrides GainOverrides) PreprocessResult {
	outputPath, gainPath := ProcessedPaths(inputPath)
	policy := ResolveGainPolicy(p.gainDefaults, overrides)

	p.logger.Infow("Preprocessing audio", "input", inputPath, "output", outputPath)

	for _, candidate := range BuildFilterChainCandidates(p.noiseReduction) {
		chain := candidate.String()
		if candidate.Rank == 1 {
			p.logger.Infow("Audio preprocess filter chain", "chain", chain)
		} else {
			p.logger.Infow("Retry preprocess with fallback filter chain", "rank", candidate.Rank, "chain", chain)
		}

		if err := p.engine.Apply(ctx, inputPath, outputPath, chain); err != nil {
			p.logger.Warnw("Preprocessing failed, trying next filter chain",
				"rank", candidate.Rank,
				"error", err,
			)
			continue
		}

		result := PreprocessResult{Path: outputPath, Modified: true, Candidate: candidate.Rank}
		if policy.Enabled {
			result.Gain = p.applyAutoGain(ctx, outputPath, gainPath, policy)
		}
		p.logger.Infow("Audio preprocessing completed", "output", outputPath, "rank", candidate.Rank)
		return result
	}

	p.logger.Warnw("All preprocessing filter chains failed, using original audio", "input", inputPath)
	p.discard(outputPath)
	return PreprocessResult{Path: inputPath}
}

// applyAutoGain boosts weak audio in place. Failures keep the filtered,
// un-boosted file.
func (p *Preprocessor) applyAutoGain(ctx context.Context, outputPath, gainPath string, policy GainPolicy) GainDecision {
	peak, err := p.analyzePeak(outputPath)
	if err != nil {
		p.logger.Warnw("Auto gain analysis failed, keeping preprocessed audio", "error", err)
		return GainDecision{}
	}

	decision := GainDecision{PeakDBFS: peak}
	gain := DetermineGain(peak, policy)
	p.logger.Infow("Auto gain analysis", "peak_dbfs", peak, "gain_db", gain)
	if gain <= 0 {
		p.logger.Infow("Auto gain skipped: input level is sufficient")
		return decision
	}

	if err := p.engine.Apply(ctx, outputPath, gainPath, GainFilterChain(gain)); err != nil {
		p.logger.Warnw("Auto gain failed, keeping preprocessed audio", "gain_db", gain, "error", err)
		p.discard(gainPath)
		return decision
	}
	if err := p.rename(gainPath, outputPath); err != nil {
		p.logger.Warnw("Auto gain replace failed, keeping preprocessed audio", "error", err)
		p.discard(gainPath)
		return decision
	}

	decision.AppliedGainDB = gain
	p.logger.Infow("Applied automatic gain for weak input", "gain_db", gain)
	return decision
}

func (p *Preprocessor) discard(path string) {
	if err := p.remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		p.logger.Warnw("Failed to remove temporary audio", "path", path, "error", err)
	}
}
