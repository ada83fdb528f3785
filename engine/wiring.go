package engine

import (
	"encoding/json"

	"taskadmin/messaging"
)

// wireEventHandlers turns successful writes into audit rows and outbox
// messages. Called from Start with lifeMu held.
func (e *Engine) wireEventHandlers() {
	if e.journal == nil {
		return
	}

	e.handlers = append(e.handlers, e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(LabelChangedEvent)
		oldValue := ""
		if ev.Old != nil {
			oldValue = mustJSON(ev.Old)
		}
		newValue := ""
		if ev.Action != "deleted" {
			newValue = mustJSON(ev.Label)
		}
		if err := e.journal.AppendAudit("label", ev.Label.ID, ev.Action, oldValue, newValue, ev.Actor); err != nil {
			e.log.Warnf("audit label %s: %v", ev.Label.ID, err)
		}
		e.enqueue(labelMsgType(ev.Action), messaging.LabelEvent{
			LabelID: ev.Label.ID,
			Title:   ev.Label.Title,
			Color:   ev.Label.Color,
			Actor:   ev.Actor,
		})
	}, EventLabelChanged))

	e.handlers = append(e.handlers, e.Events.SubscribeTypes(func(evt Event) {
		ev := evt.Payload.(UserStatusChangedEvent)
		if err := e.journal.AppendAudit("user", ev.UserID, "status", string(ev.OldStatus), string(ev.NewStatus), ev.Actor); err != nil {
			e.log.Warnf("audit user %s: %v", ev.UserID, err)
		}
		e.enqueue(messaging.TypeUserStatusChanged, messaging.UserStatusEvent{
			UserID:    ev.UserID,
			OldStatus: string(ev.OldStatus),
			NewStatus: string(ev.NewStatus),
			Actor:     ev.Actor,
		})
	}, EventUserStatusChanged))
}

func (e *Engine) enqueue(msgType string, payload any) {
	if e.cfg.Messaging.Backend == "none" {
		return
	}
	env := messaging.NewEnvelope(msgType, payload)
	data, err := env.Encode()
	if err != nil {
		e.log.Warnf("encode %s: %v", msgType, err)
		return
	}
	if err := e.journal.EnqueueOutbox(e.cfg.Messaging.EventsTopic, data, msgType, env.MsgID); err != nil {
		e.log.Warnf("outbox %s: %v", msgType, err)
	}
}

func labelMsgType(action string) string {
	switch action {
	case "created":
		return messaging.TypeLabelCreated
	case "deleted":
		return messaging.TypeLabelDeleted
	default:
		return messaging.TypeLabelUpdated
	}
}

func mustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}
