package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/gpyt/internal/models"
	"github.com/desertthunder/gpyt/internal/shared"
	"github.com/desertthunder/gpyt/internal/tasks"
)

var _ tasks.TargetProvider = (*Prompter)(nil)

type targetReply struct {
	target models.UploadTarget
	err    error
}

// targetRequest is one item waiting on the form.
type targetRequest struct {
	item     models.MediaItem
	defaults models.UploadTarget
	reply    chan targetReply
}

// Prompter is a [tasks.TargetProvider] that asks the user for every item, starting from the
// metadata defaults would pick. It blocks the calling worker until the form is answered.
type Prompter struct {
	defaults tasks.TargetProvider
	requests chan *targetRequest
}

func NewPrompter(defaults tasks.TargetProvider) *Prompter {
	if defaults == nil {
		defaults = tasks.DefaultTargets{}
	}
	return &Prompter{defaults: defaults, requests: make(chan *targetRequest)}
}

// Target implements [tasks.TargetProvider].
func (p *Prompter) Target(ctx context.Context, item models.MediaItem) (models.UploadTarget, error) {
	defaults, err := p.defaults.Target(ctx, item)
	if err != nil {
		return models.UploadTarget{}, err
	}

	req := &targetRequest{item: item, defaults: defaults, reply: make(chan targetReply, 1)}
	select {
	case p.requests <- req:
	case <-ctx.Done():
		return models.UploadTarget{}, ctx.Err()
	}

	select {
	case r := <-req.reply:
		return r.target, r.err
	case <-ctx.Done():
		return models.UploadTarget{}, ctx.Err()
	}
}

const (
	fieldTitle = iota
	fieldDescription
	fieldTags
	fieldVisibility
	fieldCount
)

var fieldLabels = [fieldCount]string{"Title", "Description", "Tags", "Visibility"}

// form edits the upload target of a single item.
type form struct {
	req         *targetRequest
	title       textinput.Model
	description textarea.Model
	tags        textinput.Model
	visibility  models.Visibility
	focus       int
	err         error
}

func newForm(req *targetRequest, width int) *form {
	title := textinput.New()
	title.CharLimit = 100
	title.SetValue(req.defaults.Title)

	description := textarea.New()
	description.ShowLineNumbers = false
	description.SetHeight(5)
	description.SetValue(req.defaults.Description)

	tags := textinput.New()
	tags.Placeholder = "comma,separated"
	tags.SetValue(strings.Join(req.defaults.Tags, ", "))

	if width > 20 {
		title.Width = width - 20
		tags.Width = width - 20
		description.SetWidth(width - 18)
	}

	f := &form{
		req:         req,
		title:       title,
		description: description,
		tags:        tags,
		visibility:  req.defaults.Visibility,
	}
	if f.visibility == "" {
		f.visibility = models.VisibilityPrivate
	}
	f.setFocus(fieldTitle)
	return f
}

func (f *form) setFocus(field int) {
	f.focus = (field + fieldCount) % fieldCount
	f.title.Blur()
	f.description.Blur()
	f.tags.Blur()

	switch f.focus {
	case fieldTitle:
		f.title.Focus()
	case fieldDescription:
		f.description.Focus()
	case fieldTags:
		f.tags.Focus()
	}
}

// target assembles the edited metadata.
func (f *form) target() (models.UploadTarget, error) {
	target := models.UploadTarget{
		Title:       strings.TrimSpace(f.title.Value()),
		Description: f.description.Value(),
		Tags:        models.ParseTags(f.tags.Value()),
		Visibility:  f.visibility,
	}
	return target, target.Validate()
}

// answer sends reply to the waiting worker. The reply channel is buffered so this never blocks.
func (f *form) answer(target models.UploadTarget, err error) {
	f.req.reply <- targetReply{target: target, err: err}
}

// update handles a key press. It reports true once the form has been answered.
func (f *form) update(msg tea.KeyMsg, keys keyMap) (bool, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.save):
		return f.submit(), nil
	case key.Matches(msg, keys.skip):
		f.answer(models.UploadTarget{}, fmt.Errorf("%w: %s", shared.ErrSkipItem, f.req.item.Key()))
		return true, nil
	case key.Matches(msg, keys.next):
		f.setFocus(f.focus + 1)
		return false, nil
	case key.Matches(msg, keys.prev):
		f.setFocus(f.focus - 1)
		return false, nil
	}

	switch f.focus {
	case fieldVisibility:
		switch {
		case key.Matches(msg, keys.cycle):
			f.visibility = f.visibility.Next()
		case key.Matches(msg, keys.submit):
			return f.submit(), nil
		case msg.String() == "up":
			f.setFocus(f.focus - 1)
		}
		return false, nil

	case fieldDescription:
		var cmd tea.Cmd
		f.description, cmd = f.description.Update(msg)
		return false, cmd

	default:
		if key.Matches(msg, keys.submit) || msg.String() == "down" {
			f.setFocus(f.focus + 1)
			return false, nil
		}
		if msg.String() == "up" {
			f.setFocus(f.focus - 1)
			return false, nil
		}
		var cmd tea.Cmd
		if f.focus == fieldTitle {
			f.title, cmd = f.title.Update(msg)
		} else {
			f.tags, cmd = f.tags.Update(msg)
		}
		return false, cmd
	}
}

func (f *form) submit() bool {
	target, err := f.target()
	if err != nil {
		f.err = err
		return false
	}
	f.answer(target, nil)
	return true
}

func (f *form) view() string {
	var b strings.Builder
	item := f.req.item

	b.WriteString(styles.title.Render("Upload " + item.Filename))
	b.WriteString("\n")
	if !item.CreationTime.IsZero() {
		fmt.Fprintf(&b, "%s\n", styles.help.Render("created "+item.CreationTime.Local().Format("2006-01-02 15:04")))
	}
	b.WriteString("\n")

	fields := [fieldCount]string{
		f.title.View(),
		f.description.View(),
		f.tags.View(),
		f.visibility.String(),
	}
	for i, field := range fields {
		label := styles.label.Render(fieldLabels[i])
		if i == f.focus {
			label = styles.focused.Render(fieldLabels[i])
		}
		if i == fieldVisibility && i == f.focus {
			field = "‹ " + field + " ›"
		}
		fmt.Fprintf(&b, "%s %s\n", label, field)
	}

	if f.err != nil {
		fmt.Fprintf(&b, "\n%s\n", styles.err.Render(f.err.Error()))
	}
	return b.String()
}
