// Package pipeline runs the five label analysis stages: extract, profile,
// research, risk and narrative. Each stage reads the state built so far and
// returns a delta the driver merges before the next stage starts.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/label-copilot/internal/config"
	"github.com/sells-group/label-copilot/internal/imagestore"
	"github.com/sells-group/label-copilot/internal/model"
	"github.com/sells-group/label-copilot/internal/ocr"
	"github.com/sells-group/label-copilot/internal/reasoning"
)

// ErrInvalidInput is returned before any stage runs when the input is unusable.
var ErrInvalidInput = eris.New("pipeline: invalid input")

// StageError is returned when a stage fails and its policy is to abort.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("pipeline: stage %s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// stageFunc computes a stage's delta from the state built so far.
type stageFunc func(ctx context.Context, s model.State) (model.Delta, error)

// stage pairs a stage with its failure policy. A nil fallback aborts the
// run on error; otherwise the fallback delta is merged and the run goes on.
type stage struct {
	name     string
	run      stageFunc
	fallback func() model.Delta
}

// Pipeline orchestrates the five stages for one label at a time. A Pipeline
// holds no per-run state and is safe for concurrent runs.
type Pipeline struct {
	cfg        *config.Config
	svc        reasoning.Service
	tables     *Tables
	extractor  *LabelExtractor
	researcher *EvidenceResearcher
	categories *CategoryDetector
	composer   *NarrativeComposer
}

// New creates a Pipeline. ocrExt is only needed for the ocr extractor
// strategy and lookups may be nil to run without enrichment.
func New(
	cfg *config.Config,
	svc reasoning.Service,
	images imagestore.Store,
	ocrExt ocr.Extractor,
	lookups *Lookups,
) (*Pipeline, error) {
	tables, err := DefaultTables()
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		cfg:        cfg,
		svc:        svc,
		tables:     tables,
		extractor:  NewLabelExtractor(cfg.Extractor.Strategy, images, svc, ocrExt),
		researcher: NewEvidenceResearcher(svc, lookups, cfg.Research.MaxConcurrency),
		categories: NewCategoryDetector(tables, lookups, time.Duration(cfg.Category.LookupTimeoutMs)*time.Millisecond),
		composer:   NewNarrativeComposer(svc, tables),
	}, nil
}

func (p *Pipeline) stages() []stage {
	profile := stage{name: model.StageProfile, run: p.profile}
	if p.cfg.Pipeline.ProfileFallback {
		profile.fallback = func() model.Delta {
			return model.Delta{
				ClinicalProfile: model.StringPtr(ProfileUnavailable),
				Flags:           []model.QualityFlag{model.FlagProfileUnavailable},
			}
		}
	}
	risk := stage{name: model.StageRisk, run: p.risk}
	if p.cfg.Pipeline.RiskFallback {
		risk.fallback = func() model.Delta {
			return model.Delta{
				RiskAnalysis: model.StringPtr(RiskUnavailable),
				Flags:        []model.QualityFlag{model.FlagRiskUnavailable},
			}
		}
	}
	return []stage{
		{name: model.StageExtract, run: p.extract},
		profile,
		{name: model.StageResearch, run: p.research},
		risk,
		{name: model.StageNarrative, run: p.narrative},
	}
}

// Run executes every stage in order. On a stage abort the partial result is
// returned together with a *StageError.
func (p *Pipeline) Run(ctx context.Context, in model.Input) (*model.Result, error) {
	if strings.TrimSpace(in.ImagePath) == "" {
		return nil, eris.Wrap(ErrInvalidInput, "pipeline: image_path is required")
	}

	result := &model.Result{
		RunID:  uuid.New().String(),
		Phases: make([]model.PhaseResult, 0, len(model.StageOrder)),
	}
	log := zap.L().With(zap.String("run_id", result.RunID), zap.String("image_path", in.ImagePath))
	log.Info("pipeline: starting run")

	state := model.NewState(in)
	for _, st := range p.stages() {
		start := time.Now()
		delta, err := st.run(reasoning.WithPhase(ctx, st.name), state)
		phase := model.PhaseResult{Name: st.name}

		if err != nil {
			if st.fallback == nil {
				phase.Status = model.PhaseStatusFailed
				phase.Error = err.Error()
				phase.Duration = time.Since(start).Milliseconds()
				result.Phases = append(result.Phases, phase)
				result.State = state
				log.Error("pipeline: phase failed",
					zap.String("phase", st.name),
					zap.Int64("duration_ms", phase.Duration),
					zap.Error(err),
				)
				return result, &StageError{Stage: st.name, Err: err}
			}
			log.Warn("pipeline: phase failed, substituting fallback",
				zap.String("phase", st.name),
				zap.Error(err),
			)
			phase.Error = err.Error()
			delta = st.fallback()
		}

		next, err := state.Apply(delta)
		if err != nil {
			result.State = state
			return result, &StageError{Stage: st.name, Err: err}
		}
		state = next

		phase.Duration = time.Since(start).Milliseconds()
		phase.Status = model.PhaseStatusComplete
		if len(delta.Flags) > 0 {
			phase.Status = model.PhaseStatusDegraded
		}
		phase.Metadata = phaseMetadata(st.name, state, delta)
		result.Phases = append(result.Phases, phase)

		log.Info("pipeline: phase complete",
			zap.String("phase", st.name),
			zap.String("status", string(phase.Status)),
			zap.Int64("duration_ms", phase.Duration),
		)
	}

	result.State = state
	result.Sections = ParseNarrative(state.FinalInsight)
	log.Info("pipeline: run complete",
		zap.String("brand", state.BrandName),
		zap.Strings("quality_flags", flagStrings(state.QualityFlags)),
	)
	return result, nil
}

func (p *Pipeline) extract(ctx context.Context, s model.State) (model.Delta, error) {
	return p.extractor.Extract(ctx, s.ImagePath).Delta(), nil
}

func (p *Pipeline) profile(ctx context.Context, s model.State) (model.Delta, error) {
	text, err := ProfileHealth(ctx, p.svc, s.UserRawHealth)
	if err != nil {
		return model.Delta{}, err
	}
	return model.Delta{ClinicalProfile: model.StringPtr(text)}, nil
}

// research builds the evidence collection and the alternatives concurrently;
// neither reads the other's output.
func (p *Pipeline) research(ctx context.Context, s model.State) (model.Delta, error) {
	var (
		kb         []model.IngredientProfile
		kbFallback bool
		category   model.Category
		alts       []string
		generic    bool
	)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		kb, kbFallback = p.researcher.Research(gCtx, s.Ingredients)
		return nil
	})
	g.Go(func() error {
		category = p.categories.Detect(gCtx, s.BrandName)
		alts, generic = SuggestAlternatives(gCtx, p.svc, p.tables, AlternativesRequest{
			Brand:       s.BrandName,
			Category:    category.Label,
			Ingredients: s.Ingredients,
			Constraints: ExtractConstraints(s.UserRawHealth),
		})
		return nil
	})
	_ = g.Wait()

	var flags []model.QualityFlag
	if kbFallback {
		flags = append(flags, model.FlagEvidenceFallback)
	}
	if category.Method == model.CategoryMethodFallback {
		flags = append(flags, model.FlagCategoryFallback)
	}
	if generic {
		flags = append(flags, model.FlagAlternativesGeneric)
	}

	return model.Delta{
		KnowledgeBase:   kb,
		SetKnowledge:    true,
		Alternatives:    alts,
		SetAlternatives: true,
		Category:        &category,
		Flags:           flags,
	}, nil
}

func (p *Pipeline) risk(ctx context.Context, s model.State) (model.Delta, error) {
	text, err := AnalyzeRisk(ctx, p.svc, s.ClinicalProfile, s.KnowledgeBase)
	if err != nil {
		return model.Delta{}, err
	}
	return model.Delta{RiskAnalysis: model.StringPtr(text)}, nil
}

func (p *Pipeline) narrative(ctx context.Context, s model.State) (model.Delta, error) {
	res, err := p.composer.Compose(ctx, NarrativeInput{
		Brand:        s.BrandName,
		Ingredients:  s.Ingredients,
		Nutrition:    s.Nutrition,
		Profile:      s.ClinicalProfile,
		Risk:         s.RiskAnalysis,
		Evidence:     s.KnowledgeBase,
		Alternatives: s.Alternatives,
		Constraints:  ExtractConstraints(s.UserRawHealth),
	})
	if err != nil {
		return model.Delta{}, err
	}
	return model.Delta{FinalInsight: model.StringPtr(res.Text), Flags: res.Flags}, nil
}

func phaseMetadata(name string, s model.State, d model.Delta) map[string]any {
	md := map[string]any{}
	switch name {
	case model.StageExtract:
		md["brand"] = s.BrandName
		md["ingredients"] = len(s.Ingredients)
		md["has_nutrition"] = s.Nutrition != nil
	case model.StageResearch:
		md["profiles"] = len(s.KnowledgeBase)
		md["alternatives"] = len(s.Alternatives)
		if s.Category != nil {
			md["category"] = s.Category.Label
			md["category_method"] = string(s.Category.Method)
		}
	}
	if len(d.Flags) > 0 {
		md["flags"] = flagStrings(d.Flags)
	}
	if len(md) == 0 {
		return nil
	}
	return md
}

func flagStrings(flags []model.QualityFlag) []string {
	out := make([]string, len(flags))
	for i, f := range flags {
		out[i] = string(f)
	}
	return out
}
