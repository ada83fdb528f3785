package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"taskadmin/docstore"
	"taskadmin/model"
)

var (
	ErrInvalidLabel  = errors.New("invalid label")
	ErrInvalidStatus = errors.New("invalid user status")
	ErrNotFound      = docstore.ErrNotFound
)

const MaxLabelName = 50

type LabelInput struct {
	Name  string `validate:"required,max=50"`
	Color string `validate:"required,hexcolor"`
}

// normalize trims the input and checks it. Name length is counted in runes.
func (e *Engine) normalizeLabel(in LabelInput) (LabelInput, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Color = strings.TrimSpace(in.Color)
	err := e.validate.Struct(in)
	if err == nil {
		return in, nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return in, fmt.Errorf("%w: %v", ErrInvalidLabel, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Field() + "." + fe.Tag() {
		case "Name.required":
			msgs = append(msgs, "name is required")
		case "Name.max":
			msgs = append(msgs, fmt.Sprintf("name must be at most %d characters", MaxLabelName))
		case "Color.required":
			msgs = append(msgs, "color is required")
		default:
			msgs = append(msgs, "color must be a hex color such as #1e88e5")
		}
	}
	return in, fmt.Errorf("%w: %s", ErrInvalidLabel, strings.Join(msgs, "; "))
}

func (e *Engine) CreateLabel(ctx context.Context, in LabelInput, actor string) (model.Category, error) {
	in, err := e.normalizeLabel(in)
	if err != nil {
		return model.Category{}, err
	}
	id, err := e.docs.Insert(ctx, e.cfg.Collections.Categories, model.Document{
		"title":     in.Name,
		"color":     in.Color,
		"createdAt": e.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return model.Category{}, fmt.Errorf("create label: %w", err)
	}
	label := model.Category{ID: id, Title: in.Name, Color: in.Color}
	e.log.Infof("label %s %q created by %s", id, in.Name, actor)
	e.Events.Emit(Event{Type: EventLabelChanged, Payload: LabelChangedEvent{Action: "created", Label: label, Actor: actor}})
	return label, nil
}

func (e *Engine) UpdateLabel(ctx context.Context, id string, in LabelInput, actor string) (model.Category, error) {
	in, err := e.normalizeLabel(in)
	if err != nil {
		return model.Category{}, err
	}
	var old *model.Category
	if c, ok := e.category(id); ok {
		old = &c
	}
	err = e.docs.Update(ctx, e.cfg.Collections.Categories, id, model.Document{
		"title":     in.Name,
		"color":     in.Color,
		"updatedAt": e.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return model.Category{}, fmt.Errorf("update label %s: %w", id, err)
	}
	label := model.Category{ID: id, Title: in.Name, Color: in.Color}
	e.log.Infof("label %s updated by %s", id, actor)
	e.Events.Emit(Event{Type: EventLabelChanged, Payload: LabelChangedEvent{Action: "updated", Label: label, Old: old, Actor: actor}})
	return label, nil
}

// DeleteLabel removes the category document. Tasks still pointing at it
// fall into Uncategorized on the next rebuild.
func (e *Engine) DeleteLabel(ctx context.Context, id, actor string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("delete label: %w", ErrNotFound)
	}
	label := model.Category{ID: id}
	var old *model.Category
	if c, ok := e.category(id); ok {
		label, old = c, &c
	}
	if err := e.docs.Delete(ctx, e.cfg.Collections.Categories, id); err != nil {
		return fmt.Errorf("delete label %s: %w", id, err)
	}
	e.log.Infof("label %s deleted by %s", id, actor)
	e.Events.Emit(Event{Type: EventLabelChanged, Payload: LabelChangedEvent{Action: "deleted", Label: label, Old: old, Actor: actor}})
	return nil
}

func (e *Engine) SetUserStatus(ctx context.Context, id string, status model.UserStatus, actor string) (model.User, error) {
	if !status.Valid() {
		return model.User{}, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	u, ok := e.user(id)
	if !ok {
		u = model.User{ID: id, Status: model.StatusActive}
	}
	old := u.Status
	if err := e.docs.Update(ctx, e.cfg.Collections.Users, id, model.Document{"status": string(status)}); err != nil {
		return model.User{}, fmt.Errorf("set status of user %s: %w", id, err)
	}
	u.Status = status
	e.log.Infof("user %s status %s -> %s by %s", id, old, status, actor)
	e.Events.Emit(Event{Type: EventUserStatusChanged, Payload: UserStatusChangedEvent{
		UserID: id, OldStatus: old, NewStatus: status, Actor: actor,
	}})
	return u, nil
}

// ToggleUserStatus flips Active and Banned based on the current snapshot.
func (e *Engine) ToggleUserStatus(ctx context.Context, id, actor string) (model.User, error) {
	u, ok := e.user(id)
	if !ok {
		return model.User{}, fmt.Errorf("toggle user %s: %w", id, ErrNotFound)
	}
	return e.SetUserStatus(ctx, id, u.Status.Toggle(), actor)
}
