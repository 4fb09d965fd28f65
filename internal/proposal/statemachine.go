package proposal

import (
	"fmt"

	"procurement/models"
)

// Action описывает действие над предложением, меняющее его статус.
type Action string

const (
	ActionSubmit      Action = "submit"
	ActionCancel      Action = "cancel"
	ActionReceive     Action = "receive"
	ActionStartReview Action = "startReview"
	ActionQualify     Action = "qualify"
	ActionDisqualify  Action = "disqualify"
	ActionAward       Action = "award"
)

type transitionKey struct {
	from   models.ProposalStatus
	action Action
}

// Все разрешённые переходы. Всё, чего нет в таблице, запрещено.
var transitions = map[transitionKey]models.ProposalStatus{
	{models.StatusDraft, ActionSubmit}: models.StatusSubmitted,
	{models.StatusDraft, ActionCancel}: models.StatusCancelled,

	{models.StatusSubmitted, ActionReceive}: models.StatusReceived,

	{models.StatusSubmitted, ActionStartReview}: models.StatusUnderReview,
	{models.StatusReceived, ActionStartReview}:  models.StatusUnderReview,

	{models.StatusSubmitted, ActionQualify}:   models.StatusQualified,
	{models.StatusReceived, ActionQualify}:    models.StatusQualified,
	{models.StatusUnderReview, ActionQualify}: models.StatusQualified,

	{models.StatusSubmitted, ActionDisqualify}:   models.StatusDisqualified,
	{models.StatusReceived, ActionDisqualify}:    models.StatusDisqualified,
	{models.StatusUnderReview, ActionDisqualify}: models.StatusDisqualified,
	{models.StatusQualified, ActionDisqualify}:   models.StatusDisqualified,

	{models.StatusQualified, ActionAward}: models.StatusAwarded,
}

// Next возвращает статус после действия или InvalidTransition.
func Next(from models.ProposalStatus, action Action) (models.ProposalStatus, error) {
	to, ok := transitions[transitionKey{from, action}]
	if !ok {
		return from, &Error{
			Kind:    KindInvalidTransition,
			Message: transitionMessage(from, action),
			Status:  from,
			Action:  action,
		}
	}
	return to, nil
}

func transitionMessage(from models.ProposalStatus, action Action) string {
	switch {
	case action == ActionSubmit && from != models.StatusDraft:
		return fmt.Sprintf("proposal already submitted (status %s)", from)
	case action == ActionCancel:
		return fmt.Sprintf("only draft proposals can be cancelled (status %s)", from)
	case action == ActionAward:
		return fmt.Sprintf("only qualified proposals can be awarded (status %s)", from)
	default:
		return fmt.Sprintf("cannot %s a proposal in status %s", action, from)
	}
}
