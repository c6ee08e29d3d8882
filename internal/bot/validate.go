package bot

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/everylotbot/everylot/internal/caption"
	"github.com/everylotbot/everylot/internal/everylot"
)

// errStopSweep ends a limited sweep early. Never escapes Validate.
var errStopSweep = errors.New("sweep limit reached")

// Offender is a lot whose caption exceeds the length budget.
type Offender struct {
	LotID   int64  `json:"lot_id"`
	Address string `json:"address"`
	Length  int    `json:"length"`
	Caption string `json:"caption"`
}

// ValidationReport summarizes a caption sweep over the dataset.
type ValidationReport struct {
	Checked   int        `json:"checked"`
	MaxLength int        `json:"max_length"`
	Offenders []Offender `json:"offenders"`
}

// Clean reports whether every checked caption fits the budget.
func (r ValidationReport) Clean() bool {
	return len(r.Offenders) == 0
}

// Validate renders the caption of every lot in id order and reports the
// ones that would blow the feed service's length budget. The dataset is
// ASCII, so the rune count matches the service's grapheme count. A
// positive limit stops the sweep after that many lots.
func (c *Controller) Validate(ctx context.Context, limit int) (ValidationReport, error) {
	report := ValidationReport{MaxLength: c.cfg.CaptionMaxLength}

	err := c.store.ForEachLot(ctx, func(lot everylot.Lot) error {
		if limit > 0 && report.Checked >= limit {
			return errStopSweep
		}
		report.Checked++

		text := caption.Format(lot)
		if n := utf8.RuneCountInString(text); n > report.MaxLength {
			report.Offenders = append(report.Offenders, Offender{
				LotID:   lot.ID,
				Address: lot.Address,
				Length:  n,
				Caption: text,
			})
		}
		return nil
	})
	if err != nil && !errors.Is(err, errStopSweep) {
		return report, fmt.Errorf("sweep lots: %w", err)
	}
	return report, nil
}
