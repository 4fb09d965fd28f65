package proposal

import (
	"context"
	"fmt"
	"time"

	"procurement/internal/clock"

	"github.com/google/uuid"
)

// IsSessionOpen сообщает, началась ли сессия: момент открытия задан и
// now уже не раньше него.
func IsSessionOpen(opening *time.Time, now time.Time) bool {
	return opening != nil && !now.Before(*opening)
}

// SessionGate запрещает изменения предложений после открытия сессии.
type SessionGate struct {
	tenders TenderLineItemProvider
	clock   clock.Clock
}

func NewSessionGate(tenders TenderLineItemProvider, clk clock.Clock) *SessionGate {
	return &SessionGate{tenders: tenders, clock: clk}
}

// AssertMutable возвращает SessionClosed, если по тендеру tenderID
// изменения уже запрещены.
func (g *SessionGate) AssertMutable(ctx context.Context, tenderID uuid.UUID) error {
	opening, err := g.tenders.SessionOpeningTime(ctx, tenderID)
	if err != nil {
		return translateLookup(err, "tender", tenderID)
	}
	if IsSessionOpen(opening, g.clock.Now()) {
		return &Error{
			Kind:        KindSessionClosed,
			Message:     fmt.Sprintf("session opened at %s", opening.UTC().Format(time.RFC3339)),
			TenderID:    tenderID,
			OpeningTime: opening,
		}
	}
	return nil
}
