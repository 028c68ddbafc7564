// Copyright (C) 2020  Lukas Dietrich <lukas@lukasdietrich.com>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package review implements the interactive approval loop. The loop is a pure state machine
// (Transition) driven by a terminal, store access happens only through the returned effects.
package review

import (
	"fmt"
	"strings"

	"github.com/lukasdietrich/newsletter/internal/models"
)

// Mode is the state of the review loop.
type Mode int

const (
	Browse Mode = iota
	Confirm
	Help
	Search
	Shutdown
)

// Filter restricts the visible subscribers by status.
type Filter int

const (
	FilterAll Filter = iota
	FilterPending
	FilterApproved
	FilterDeclined
)

var filterNames = [...]string{"All", "Pending", "Approved", "Declined"}

func (f Filter) String() string {
	if f < 0 || int(f) >= len(filterNames) {
		return fmt.Sprintf("filter(%d)", int(f))
	}

	return filterNames[f]
}

func (f Filter) matches(status models.SubscriberStatus) bool {
	switch f {
	case FilterPending:
		return status == models.StatusPending
	case FilterApproved:
		return status == models.StatusApproved
	case FilterDeclined:
		return status == models.StatusDeclined
	default:
		return true
	}
}

// Action is a bulk operation on the selected subscribers.
type Action int

const (
	NoAction Action = iota
	Approve
	Decline
	Delete
)

func (a Action) String() string {
	switch a {
	case Approve:
		return "approve"
	case Decline:
		return "decline"
	case Delete:
		return "delete"
	default:
		return "none"
	}
}

func (a Action) past() string {
	switch a {
	case Approve:
		return "Approved"
	case Decline:
		return "Declined"
	case Delete:
		return "Deleted"
	default:
		return "Changed"
	}
}

// Status returns the status an action transitions to. Delete has none.
func (a Action) Status() (models.SubscriberStatus, bool) {
	switch a {
	case Approve:
		return models.StatusApproved, true
	case Decline:
		return models.StatusDeclined, true
	default:
		return "", false
	}
}

// State is the complete state of the review loop. It is treated as a value, Transition never
// modifies the state it is given.
type State struct {
	Mode        Mode
	Filter      Filter
	Query       string
	Subscribers []models.SubscriberEntity
	// Visible holds indices into Subscribers matching Filter and Query.
	Visible []int
	// Cursor is an index into Visible or -1 if nothing is visible.
	Cursor   int
	PageSize int
	Selected map[int64]bool
	Pending  Action
	Message  string
}

// Page returns the zero based page of the cursor.
func (s State) Page() int {
	if s.Cursor < 0 {
		return 0
	}

	return s.Cursor / s.PageSize
}

// Pages returns the number of pages of the visible list. It is at least one.
func (s State) Pages() int {
	if len(s.Visible) == 0 {
		return 1
	}

	return (len(s.Visible) + s.PageSize - 1) / s.PageSize
}

// Current returns the subscriber under the cursor.
func (s State) Current() (models.SubscriberEntity, bool) {
	if s.Cursor < 0 || s.Cursor >= len(s.Visible) {
		return models.SubscriberEntity{}, false
	}

	return s.Subscribers[s.Visible[s.Cursor]], true
}

// Targets returns the selected subscribers in list order.
func (s State) Targets() []models.SubscriberEntity {
	var targets []models.SubscriberEntity

	for _, subscriber := range s.Subscribers {
		if s.Selected[subscriber.ID] {
			targets = append(targets, subscriber)
		}
	}

	return targets
}

// Key identifies a key press.
type Key int

const (
	KeyRune Key = iota
	KeyUp
	KeyDown
	KeyPageUp
	KeyPageDown
	KeyHome
	KeyEnd
	KeyEnter
	KeyEsc
	KeyBackspace
	KeyDelete
	KeyCtrlC
	KeyF1
	KeyF5
)

// Event is an input of the state machine.
type Event interface {
	event()
}

// KeyPress is a decoded key. Rune is set for KeyRune, Ctrl marks control combinations.
type KeyPress struct {
	Key  Key
	Rune rune
	Ctrl bool
}

// Reloaded carries the result of a reload effect.
type Reloaded struct {
	Subscribers []models.SubscriberEntity
	Err         error
}

// Applied carries the result of an apply effect.
type Applied struct {
	Action Action
	Count  int
	Err    error
}

func (KeyPress) event() {}
func (Reloaded) event() {}
func (Applied) event()  {}

// EffectKind tells the driver what to do next.
type EffectKind int

const (
	None EffectKind = iota
	Reload
	Apply
	Quit
)

// Effect is a side effect requested by the state machine.
type Effect struct {
	Kind    EffectKind
	Action  Action
	Targets []models.SubscriberEntity
}

// Init returns the initial state. The first effect loads the subscribers.
func Init(pageSize int) (State, Effect) {
	if pageSize < 1 {
		pageSize = 1
	}

	state := State{
		Mode:     Browse,
		Cursor:   -1,
		PageSize: pageSize,
		Selected: map[int64]bool{},
	}

	return state, Effect{Kind: Reload}
}

// Transition computes the next state for an event.
func Transition(state State, event Event) (State, Effect) {
	if state.Mode == Shutdown {
		return state, Effect{Kind: Quit}
	}

	switch event := event.(type) {
	case Reloaded:
		return reloaded(state, event), Effect{}

	case Applied:
		return applied(state, event), Effect{Kind: Reload}

	case KeyPress:
		if event.Key == KeyCtrlC {
			state.Mode = Shutdown
			return state, Effect{Kind: Quit}
		}

		switch state.Mode {
		case Help:
			state.Mode = Browse
			return state, Effect{}
		case Confirm:
			return confirmKey(state, event)
		case Search:
			return searchKey(state, event), Effect{}
		default:
			return browseKey(state, event)
		}
	}

	return state, Effect{}
}

func reloaded(state State, event Reloaded) State {
	if event.Err != nil {
		state.Message = fmt.Sprintf("Could not load subscribers: %v", event.Err)
		return state
	}

	state.Subscribers = event.Subscribers

	selected := make(map[int64]bool, len(state.Selected))
	for _, subscriber := range state.Subscribers {
		if state.Selected[subscriber.ID] {
			selected[subscriber.ID] = true
		}
	}

	state.Selected = selected
	return refilter(state)
}

func applied(state State, event Applied) State {
	if event.Err != nil {
		state.Message = fmt.Sprintf("%s %d %s, then failed: %v", event.Action.past(), event.Count, plural(event.Count), event.Err)
	} else {
		state.Message = fmt.Sprintf("%s %d %s", event.Action.past(), event.Count, plural(event.Count))
	}

	return state
}

func browseKey(state State, key KeyPress) (State, Effect) {
	state.Message = ""

	switch key.Key {
	case KeyEsc:
		state.Mode = Shutdown
		return state, Effect{Kind: Quit}
	case KeyF1:
		state.Mode = Help
	case KeyF5:
		return state, Effect{Kind: Reload}
	case KeyUp:
		state = moveCursor(state, -1)
	case KeyDown:
		state = moveCursor(state, 1)
	case KeyPageUp:
		state = movePage(state, -1)
	case KeyPageDown:
		state = movePage(state, 1)
	case KeyHome:
		state = jump(state, 0)
	case KeyEnd:
		state = jump(state, len(state.Visible)-1)
	case KeyEnter:
		return request(state, Approve)
	case KeyDelete:
		return request(state, Delete)
	case KeyRune:
		return browseRune(state, key)
	}

	return state, Effect{}
}

func browseRune(state State, key KeyPress) (State, Effect) {
	if key.Ctrl {
		if key.Rune == 'a' {
			state = selectVisible(state, 0, len(state.Visible))
		}

		return state, Effect{}
	}

	switch key.Rune {
	case 'q':
		state.Mode = Shutdown
		return state, Effect{Kind: Quit}
	case 'h', '?':
		state.Mode = Help
	case 'r':
		return state, Effect{Kind: Reload}
	case '/':
		state.Mode = Search
	case 'k':
		state = moveCursor(state, -1)
	case 'j':
		state = moveCursor(state, 1)
	case 'K':
		state = movePage(state, -1)
	case 'J':
		state = movePage(state, 1)
	case 'g':
		state = jump(state, 0)
	case 'G':
		state = jump(state, len(state.Visible)-1)
	case ' ':
		state = toggle(state)
	case 'a':
		start := state.Page() * state.PageSize
		state = selectVisible(state, start, start+state.PageSize)
	case 'n', 'N':
		state.Selected = map[int64]bool{}
	case 'A':
		return request(state, Approve)
	case 'D':
		return request(state, Decline)
	case 'X':
		return request(state, Delete)
	case '1', '2', '3', '4':
		state.Filter = Filter(key.Rune - '1')
		state = refilter(state)
	}

	return state, Effect{}
}

func confirmKey(state State, key KeyPress) (State, Effect) {
	switch {
	case key.Key == KeyEnter || (key.Key == KeyRune && (key.Rune == 'y' || key.Rune == 'Y')):
		effect := Effect{
			Kind:    Apply,
			Action:  state.Pending,
			Targets: state.Targets(),
		}

		state.Mode = Browse
		state.Pending = NoAction
		state.Selected = map[int64]bool{}

		return state, effect

	case key.Key == KeyEsc || (key.Key == KeyRune && (key.Rune == 'n' || key.Rune == 'N')):
		state.Mode = Browse
		state.Pending = NoAction
		state.Selected = map[int64]bool{}
		state.Message = "Cancelled"
	}

	return state, Effect{}
}

func searchKey(state State, key KeyPress) State {
	switch key.Key {
	case KeyEnter:
		state.Mode = Browse
	case KeyEsc:
		state.Mode = Browse
		state.Query = ""
		state = refilter(state)
	case KeyBackspace:
		if runes := []rune(state.Query); len(runes) > 0 {
			state.Query = string(runes[:len(runes)-1])
			state = refilter(state)
		}
	case KeyRune:
		if !key.Ctrl {
			state.Query += string(key.Rune)
			state = refilter(state)
		}
	}

	return state
}

// request moves to Confirm. An empty selection selects the row under the cursor first.
func request(state State, action Action) (State, Effect) {
	if len(state.Selected) == 0 {
		if current, ok := state.Current(); ok {
			state.Selected = map[int64]bool{current.ID: true}
		}
	}

	if len(state.Selected) == 0 {
		state.Message = "No subscribers selected"
		return state, Effect{}
	}

	state.Mode = Confirm
	state.Pending = action
	return state, Effect{}
}

func refilter(state State) State {
	query := strings.ToLower(state.Query)
	visible := make([]int, 0, len(state.Subscribers))

	for i, subscriber := range state.Subscribers {
		if !state.Filter.matches(subscriber.Status) {
			continue
		}

		if query != "" && !strings.Contains(strings.ToLower(subscriber.Email), query) {
			continue
		}

		visible = append(visible, i)
	}

	state.Visible = visible

	switch {
	case len(visible) == 0:
		state.Cursor = -1
	case state.Cursor < 0 || state.Cursor >= len(visible):
		state.Cursor = 0
	}

	return state
}

func moveCursor(state State, delta int) State {
	n := len(state.Visible)
	if n == 0 {
		return state
	}

	state.Cursor = ((state.Cursor+delta)%n + n) % n
	return state
}

func movePage(state State, delta int) State {
	if len(state.Visible) == 0 {
		return state
	}

	page := state.Page() + delta
	if page < 0 || page >= state.Pages() {
		return state
	}

	state.Cursor = page * state.PageSize
	return state
}

func jump(state State, cursor int) State {
	if len(state.Visible) > 0 {
		state.Cursor = cursor
	}

	return state
}

func toggle(state State) State {
	current, ok := state.Current()
	if !ok {
		return state
	}

	selected := copySelection(state.Selected)

	if selected[current.ID] {
		delete(selected, current.ID)
	} else {
		selected[current.ID] = true
	}

	state.Selected = selected
	return state
}

func selectVisible(state State, from, to int) State {
	if to > len(state.Visible) {
		to = len(state.Visible)
	}

	selected := copySelection(state.Selected)
	for _, index := range state.Visible[from:to] {
		selected[state.Subscribers[index].ID] = true
	}

	state.Selected = selected
	return state
}

func copySelection(selection map[int64]bool) map[int64]bool {
	selected := make(map[int64]bool, len(selection)+1)
	for id := range selection {
		selected[id] = true
	}

	return selected
}

func plural(n int) string {
	if n == 1 {
		return "subscriber"
	}

	return "subscribers"
}
