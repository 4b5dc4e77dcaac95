package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"

	"github.com/aretw0/voicesurvey"
	"github.com/aretw0/voicesurvey/internal/config"
	"github.com/aretw0/voicesurvey/pkg/adapters/catalog"
	"github.com/aretw0/voicesurvey/pkg/domain"
)

// OpenEngine wires an engine over the configured store without the HTTP surface.
// The caller closes the returned backends.
func OpenEngine(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*voicesurvey.Engine, *Backends, error) {
	questions, err := catalog.LoadFile(ctx, cfg.Survey.Questions)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load questions: %w", err)
	}

	backends, err := OpenBackends(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	engine, err := createEngine(cfg, questions, backends, domain.LifecycleHooks{}, logger)
	if err != nil {
		_ = backends.Close()
		return nil, nil, err
	}
	return engine, backends, nil
}

// PrintParticipants writes one row per participant.
func PrintParticipants(w io.Writer, total int, views []domain.ParticipantView) error {
	if len(views) == 0 {
		_, err := fmt.Fprintln(w, "No participants found.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CALL ID\tDESTINATION\tANSWERS\tSTATUS")
	for _, v := range views {
		fmt.Fprintf(tw, "%s\t%s\t%d/%d\t%s\n",
			v.Participant.CallID,
			v.Participant.Destination,
			v.Participant.Answered(),
			total,
			v.Status,
		)
	}
	return tw.Flush()
}

// PrintQuestions writes the numbered catalog.
func PrintQuestions(w io.Writer, c *domain.Catalog) error {
	for i := 0; i < c.Len(); i++ {
		if _, err := fmt.Fprintf(w, "%d. %s\n", i+1, c.At(i).Text); err != nil {
			return err
		}
	}
	return nil
}
