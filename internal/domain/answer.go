package domain

import (
	"encoding/json"
	"fmt"
	"sort"
)

// AnswerKind tells which shape an Answer holds.
type AnswerKind string

const (
	AnswerNone      AnswerKind = "none"
	AnswerChoice    AnswerKind = "choice"
	AnswerSelection AnswerKind = "selection"
	AnswerText      AnswerKind = "text"
)

// Answer is the value held in one answer slot. The zero value is the
// unanswered sentinel, so Choice(0) is never confused with "no answer".
type Answer struct {
	kind      AnswerKind
	choice    int
	selection []int
	text      string
}

// Unanswered returns the sentinel every slot starts with.
func Unanswered() Answer { return Answer{} }

// Choice selects one option of a single-choice or true-false question.
func Choice(index int) Answer {
	return Answer{kind: AnswerChoice, choice: index}
}

// Selection picks a set of options of a multi-select question.
// Duplicates are dropped and order is irrelevant.
func Selection(indices ...int) Answer {
	seen := make(map[int]struct{}, len(indices))
	set := make([]int, 0, len(indices))
	for _, i := range indices {
		if _, ok := seen[i]; ok {
			continue
		}
		seen[i] = struct{}{}
		set = append(set, i)
	}
	sort.Ints(set)
	return Answer{kind: AnswerSelection, selection: set}
}

// Text is an open response.
func Text(s string) Answer {
	return Answer{kind: AnswerText, text: s}
}

// Kind returns AnswerNone for the unanswered sentinel.
func (a Answer) Kind() AnswerKind {
	if a.kind == "" {
		return AnswerNone
	}
	return a.kind
}

// IsNone reports whether the slot still holds the sentinel.
func (a Answer) IsNone() bool { return a.Kind() == AnswerNone }

// ChoiceIndex returns the selected option and whether the answer is a choice.
func (a Answer) ChoiceIndex() (int, bool) {
	if a.kind != AnswerChoice {
		return 0, false
	}
	return a.choice, true
}

// SelectionSet returns a copy of the sorted selection.
func (a Answer) SelectionSet() ([]int, bool) {
	if a.kind != AnswerSelection {
		return nil, false
	}
	return append([]int(nil), a.selection...), true
}

// TextValue returns the response text and whether the answer is text.
func (a Answer) TextValue() (string, bool) {
	if a.kind != AnswerText {
		return "", false
	}
	return a.text, true
}

// Equal compares kind and value.
func (a Answer) Equal(b Answer) bool {
	if a.Kind() != b.Kind() {
		return false
	}
	switch a.Kind() {
	case AnswerChoice:
		return a.choice == b.choice
	case AnswerSelection:
		if len(a.selection) != len(b.selection) {
			return false
		}
		for i := range a.selection {
			if a.selection[i] != b.selection[i] {
				return false
			}
		}
		return true
	case AnswerText:
		return a.text == b.text
	default:
		return true
	}
}

func (a Answer) String() string {
	switch a.Kind() {
	case AnswerChoice:
		return fmt.Sprintf("choice(%d)", a.choice)
	case AnswerSelection:
		return fmt.Sprintf("selection(%v)", a.selection)
	case AnswerText:
		return fmt.Sprintf("text(%q)", a.text)
	default:
		return "unanswered"
	}
}

func (a Answer) clone() Answer {
	out := a
	if a.selection != nil {
		out.selection = append([]int(nil), a.selection...)
	}
	return out
}

type answerJSON struct {
	Kind      AnswerKind `json:"kind"`
	Choice    *int       `json:"choice,omitempty"`
	Selection []int      `json:"selection,omitempty"`
	Text      *string    `json:"text,omitempty"`
}

func (a Answer) MarshalJSON() ([]byte, error) {
	out := answerJSON{Kind: a.Kind()}
	switch out.Kind {
	case AnswerChoice:
		c := a.choice
		out.Choice = &c
	case AnswerSelection:
		out.Selection = append([]int{}, a.selection...)
	case AnswerText:
		t := a.text
		out.Text = &t
	}
	return json.Marshal(out)
}

func (a *Answer) UnmarshalJSON(data []byte) error {
	var in answerJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	switch in.Kind {
	case "", AnswerNone:
		*a = Unanswered()
	case AnswerChoice:
		if in.Choice == nil {
			return fmt.Errorf("%w: choice answer without index", ErrAnswerShape)
		}
		*a = Choice(*in.Choice)
	case AnswerSelection:
		*a = Selection(in.Selection...)
	case AnswerText:
		if in.Text == nil {
			return fmt.Errorf("%w: text answer without text", ErrAnswerShape)
		}
		*a = Text(*in.Text)
	default:
		return fmt.Errorf("%w: unknown answer kind %q", ErrAnswerShape, in.Kind)
	}
	return nil
}
