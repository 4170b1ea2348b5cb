package documentprocess

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/docquiz-backend/internal/domain"
	"github.com/yungbote/docquiz-backend/internal/ingestion"
	jobrt "github.com/yungbote/docquiz-backend/internal/jobs/runtime"
	"github.com/yungbote/docquiz-backend/internal/modules/learning/chunking"
	"github.com/yungbote/docquiz-backend/internal/modules/learning/prompts"
	"github.com/yungbote/docquiz-backend/internal/modules/learning/segment"
	"github.com/yungbote/docquiz-backend/internal/platform/dbctx"
	"github.com/yungbote/docquiz-backend/internal/platform/logger"
)

type modulePlan struct {
	span    segment.Span
	text    string
	windows []chunking.Window
}

// extractText reads every page, reporting progress per page.
func (p *Pipeline) extractText(jc *jobrt.Context) (string, error) {
	if err := jc.Progress(domain.DocumentStatusExtracting, 0, 0); err != nil {
		return "", err
	}
	var pages *ingestion.PageIterator
	err := p.withRetry(jc.Ctx, "extract", func(ctx context.Context) error {
		it, err := p.storage.Open(ctx, jc.Document.StoragePath)
		if err != nil {
			return err
		}
		pages = it
		return nil
	})
	if err != nil {
		return "", err
	}

	total := pages.Total()
	var b strings.Builder
	for done := 1; ; done++ {
		page, ok := pages.Next()
		if !ok {
			break
		}
		if page != "" {
			if b.Len() > 0 {
				b.WriteString("\n\n")
			}
			b.WriteString(page)
		}
		if err := jc.Progress(domain.DocumentStatusExtracting, done, total); err != nil {
			return "", err
		}
	}
	if err := jc.Annotate(map[string]interface{}{"page_count": total}); err != nil {
		p.log.Warn("could not record page count", "document_id", jc.DocumentID(), "error", err)
	}
	return b.String(), nil
}

// planModules segments the text and splits every module into embedding
// windows, reporting one unit per module chunked.
func (p *Pipeline) planModules(jc *jobrt.Context, text string) ([]modulePlan, error) {
	if err := jc.Progress(domain.DocumentStatusChunking, 0, 0); err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, terminal(ErrEmptyText)
	}

	var spans []segment.Span
	err := p.withRetry(jc.Ctx, "segment", func(ctx context.Context) error {
		out, err := p.segmenter.Segment(ctx, text)
		if err != nil {
			return err
		}
		spans = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(spans) == 0 {
		return nil, terminal(ErrEmptyText)
	}

	plans := make([]modulePlan, 0, len(spans))
	for i, sp := range spans {
		body := segment.Text(text, sp)
		plans = append(plans, modulePlan{
			span:    sp,
			text:    body,
			windows: chunking.Split(body, p.cfg.ChunkWords, p.cfg.ChunkOverlap),
		})
		if err := jc.Progress(domain.DocumentStatusChunking, i+1, len(spans)); err != nil {
			return nil, err
		}
	}
	return plans, nil
}

// buildModules persists modules in order with their chunks and embeddings,
// then tries a quiz for each. A quiz failure never fails the document.
func (p *Pipeline) buildModules(jc *jobrt.Context, plans []modulePlan, log *logger.Logger) error {
	total := len(plans)
	if err := jc.Progress(domain.DocumentStatusGeneratingModules, 0, total); err != nil {
		return err
	}
	existing, err := p.reusableModules(jc, plans)
	if err != nil {
		return err
	}

	for i, plan := range plans {
		order := i + 1
		var mod *domain.Module
		err := p.withRetry(jc.Ctx, "module", func(ctx context.Context) error {
			m, err := p.persistModule(ctx, jc.Document.ID, order, plan, existing[order])
			if m != nil {
				existing[order] = m
			}
			mod = m
			return err
		})
		if err != nil {
			return err
		}
		p.ensureQuiz(jc.Ctx, mod, log)
		if err := jc.Progress(domain.DocumentStatusGeneratingModules, order, total); err != nil {
			return err
		}
	}
	return nil
}

// reusableModules keeps modules from an earlier attempt when they match the
// new plan span for span. Anything else is cleared so module_order starts
// again from 1.
func (p *Pipeline) reusableModules(jc *jobrt.Context, plans []modulePlan) (map[int]*domain.Module, error) {
	dbc := dbctx.Context{Ctx: jc.Ctx}
	out := make(map[int]*domain.Module, len(plans))
	prior, err := p.repos.Modules.ListByDocument(dbc, jc.Document.ID)
	if err != nil {
		return nil, err
	}
	if len(prior) == 0 {
		return out, nil
	}
	if len(prior) == len(plans) {
		match := true
		for i, m := range prior {
			sp := plans[i].span
			if m.ModuleOrder != i+1 || m.StartOffset != sp.StartOffset || m.EndOffset != sp.EndOffset {
				match = false
				break
			}
		}
		if match {
			for _, m := range prior {
				out[m.ModuleOrder] = m
			}
			p.log.Info("resuming with existing modules", "document_id", jc.Document.ID, "modules", len(prior))
			return out, nil
		}
	}
	p.log.Info("discarding modules from earlier attempt", "document_id", jc.Document.ID, "modules", len(prior))
	// A different plan drops every prior module along with its chunks,
	// embeddings and quiz. Partial reuse would leave module_order gaps, so a
	// retry after re-segmentation pays for the whole document again.
	if err := p.repos.Modules.DeleteByDocument(dbc, jc.Document.ID); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *Pipeline) persistModule(ctx context.Context, documentID uuid.UUID, order int, plan modulePlan, mod *domain.Module) (*domain.Module, error) {
	dbc := dbctx.Context{Ctx: ctx}
	if mod == nil {
		summary := strings.TrimSpace(plan.span.Summary)
		if summary == "" {
			summary = p.summarize(ctx, plan.text)
		}
		mod = &domain.Module{
			DocumentID:  documentID,
			ModuleOrder: order,
			Title:       plan.span.Title,
			Content:     plan.text,
			Summary:     summary,
			StartOffset: plan.span.StartOffset,
			EndOffset:   plan.span.EndOffset,
			WordCount:   plan.span.WordCount,
		}
		if err := p.repos.Modules.Create(dbc, mod); err != nil {
			return nil, err
		}
	}

	// Chunks are written in one transaction, so any chunk means all of them.
	n, err := p.repos.ModuleChunks.CountByModule(dbc, mod.ID)
	if err != nil {
		return mod, err
	}
	if n > 0 {
		mod.TotalChunks = int(n)
		return mod, nil
	}

	texts := make([]string, len(plan.windows))
	for i, w := range plan.windows {
		texts[i] = w.Text
	}
	vecs, err := p.embedder.Embed(ctx, texts)
	if err != nil {
		return mod, err
	}
	chunks := make([]*domain.ModuleChunk, len(plan.windows))
	for i, w := range plan.windows {
		chunks[i] = &domain.ModuleChunk{
			ChunkOrder: i + 1,
			Content:    w.Text,
			WordCount:  w.WordCount(),
			Embedding:  vecs[i],
		}
	}
	if err := p.repos.ModuleChunks.CreateBatch(dbc, mod.ID, chunks); err != nil {
		return mod, err
	}
	mod.TotalChunks = len(chunks)
	return mod, nil
}

// summarize never fails: without a usable model answer it falls back to the
// opening characters of the module.
func (p *Pipeline) summarize(ctx context.Context, text string) string {
	fallback := strings.TrimSpace(firstRunes(text, p.cfg.SummaryFallbackChar))
	if p.summaries == nil {
		return fallback
	}
	pr, err := prompts.Build(prompts.PromptModuleSummary, prompts.Input{
		ModuleText: firstRunes(text, p.cfg.SummaryCharCap),
	})
	if err != nil {
		return fallback
	}
	out, err := p.summaries.Complete(ctx, pr.Text(), p.cfg.SummaryTemperature, p.cfg.SummaryMaxTokens)
	if err != nil {
		p.log.Warn("module summary failed; using excerpt", "error", err)
		return fallback
	}
	if out = strings.TrimSpace(out); out == "" {
		return fallback
	}
	return out
}

func (p *Pipeline) ensureQuiz(ctx context.Context, mod *domain.Module, log *logger.Logger) {
	if p.quizzes == nil || mod == nil || mod.IsQuizReady {
		return
	}
	if _, err := p.quizzes.GenerateForModule(ctx, mod.ID); err != nil {
		log.Warn("quiz generation failed; module can be retried later",
			"module_id", mod.ID,
			"module_order", mod.ModuleOrder,
			"error", err,
		)
	}
}

func firstRunes(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	return string(r[:n])
}
