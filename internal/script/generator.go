// Package script produces meditation scripts and cuts them into spoken
// segments and pauses.
package script

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tahcohcat/gocalm-web/config"
	"github.com/tahcohcat/gocalm-web/internal/llm"
	"github.com/tahcohcat/gocalm-web/internal/logger"
)

// Script is sanitized narration text. Fallback is set when the model could
// not be used and the built-in template was returned instead; FallbackCause
// records why.
type Script struct {
	Text          string
	Fallback      bool
	FallbackCause error
}

var errNoContent = errors.New("model returned no usable text")

const promptTemplate = `Create a %d-minute guided meditation script for someone feeling anxious about '%s'.
Keep it calm, positive, and soothing. Include a short intro, breathing exercises, visualization,
and a gentle closing. Aim for about %d-%d words (roughly %d minutes when spoken).
Naturally incorporate the exact phrase '%s' here and there throughout
the script to indicate pauses, using it at least %d-%d times in appropriate spots.
Do not use Markdown, asterisks (*), bullet points, or any special formatting characters, just plain text.`

// fallbackTemplate takes the pause marker as its only argument.
const fallbackTemplate = `Welcome. Find a comfortable position, let your shoulders soften, and allow your eyes to close if that feels right.
Whatever brought you here today, you do not need to solve it right now. For the next few minutes there is nothing to fix and nowhere else to be. %[1]s.

Let's begin with the breath. Breathe in slowly through your nose for a count of four. Hold gently for a moment. Now breathe out through your mouth for a count of six.
Again, in for four, and out for six. Notice how each exhale lets a little more tension leave your body. %[1]s.

Bring your attention to your body. Start at the top of your head and move slowly downward. Relax your forehead, your jaw, your neck.
Let your arms grow heavy. Let your chest rise and fall on its own. Feel the support beneath you, holding you steady. %[1]s.

Now picture a quiet place where you feel completely safe. Perhaps a shoreline at dawn, a forest path, or a warm room with soft light.
Notice the colors, the sounds, the temperature of the air. With every breath, this place becomes a little clearer and a little calmer. %[1]s.

Whatever you are carrying can wait outside this moment. You have handled difficult things before, and you can meet what comes next with patience and kindness toward yourself.
Take one more slow, deep breath. When you are ready, gently wiggle your fingers and toes, and open your eyes, bringing this calm with you into the rest of your day.`

// Generator asks a language model for a meditation script and degrades to
// a fixed template when the model fails.
type Generator struct {
	llm    llm.LLM
	cfg    config.ScriptConfig
	logger *logger.Log
}

func NewGenerator(model llm.LLM, cfg config.ScriptConfig) *Generator {
	if cfg.TargetMinutes <= 0 {
		cfg.TargetMinutes = 10
	}
	if cfg.MinMarkers <= 0 {
		cfg.MinMarkers = 3
	}
	if cfg.MaxMarkers < cfg.MinMarkers {
		cfg.MaxMarkers = cfg.MinMarkers
	}
	return &Generator{llm: model, cfg: cfg, logger: logger.New()}
}

// Prompt builds the instruction sent to the model for situation.
func (g *Generator) Prompt(situation string) string {
	minutes := g.cfg.TargetMinutes
	return fmt.Sprintf(promptTemplate,
		minutes, strings.TrimSpace(situation),
		minutes*80, minutes*100, minutes,
		g.cfg.Marker,
		g.cfg.MinMarkers, g.cfg.MaxMarkers,
	)
}

// Generate always returns a usable script. The only error it reports is
// the context's own, when ctx is done before or during the model call.
func (g *Generator) Generate(ctx context.Context, situation string) (*Script, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var cause error
	if g.llm == nil {
		cause = errors.New("no language model configured")
	} else {
		raw, err := g.llm.GenerateResponse(ctx, g.Prompt(situation))
		switch {
		case err != nil:
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			cause = err
		default:
			text := Sanitize(raw, g.cfg.Marker)
			if SpokenText(NewSplitter(g.cfg.Marker).Split(text)) != "" {
				return &Script{Text: text}, nil
			}
			cause = errNoContent
		}
	}

	g.logger.WithError(cause).Warn("Script generation failed, using fallback template")
	return Fallback(g.cfg.Marker, cause), nil
}

// Fallback returns the built-in template sanitized exactly like model
// output.
func Fallback(marker string, cause error) *Script {
	return &Script{
		Text:          Sanitize(fmt.Sprintf(fallbackTemplate, marker), marker),
		Fallback:      true,
		FallbackCause: cause,
	}
}
