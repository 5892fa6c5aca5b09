package ai

import (
	"context"
	"strings"
)

const basePrompt = `You are a personal activity companion. The user works at their computer while
screenshots of their screen are periodically captured and summarized into the
activity timeline below. Answer questions about what the user has been doing,
help them recall details, and keep replies short and conversational. When the
timeline does not cover the question, say so instead of guessing.`

// buildSystemPrompt grounds the assistant in the session's recorded activity.
func (s *Service) buildSystemPrompt(ctx context.Context, sessionID string) (string, error) {
	var builder strings.Builder
	builder.WriteString(basePrompt)

	rendered, err := s.timeline.Render(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if rendered == "" {
		builder.WriteString("\n\nNo activity has been recorded for this session yet.")
		return builder.String(), nil
	}

	builder.WriteString("\n\nActivity timeline:\n")
	builder.WriteString(rendered)

	sessionCtx, err := s.timeline.Context(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if len(sessionCtx.Snapshots) > 0 {
		builder.WriteString("\n\nMost recent screen summaries (newest first):")
		for _, snap := range sessionCtx.Snapshots {
			builder.WriteString("\n- ")
			builder.WriteString(snap.Caption)
			if snap.FullDescription != "" {
				builder.WriteString(": ")
				builder.WriteString(snap.FullDescription)
			}
			for _, fact := range snap.Facts {
				builder.WriteString("\n  fact: ")
				builder.WriteString(fact)
			}
		}
	}

	return builder.String(), nil
}
