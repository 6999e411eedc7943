// Package availability validates the partial-availability window of an
// employee: the "from" and "to" dates the detail form edits one at a time.
package availability

// MaxSpanDays is the longest allowed distance between from and to.
const MaxSpanDays = 365

// Kind classifies a validation failure.
type Kind int

const (
	KindNone Kind = iota
	PastDate
	WeekendDate
	OrderViolation
	SpanTooLong
)

func (k Kind) String() string {
	switch k {
	case PastDate:
		return "past_date"
	case WeekendDate:
		return "weekend_date"
	case OrderViolation:
		return "order_violation"
	case SpanTooLong:
		return "span_too_long"
	default:
		return ""
	}
}

// Field names the bound that was edited.
type Field int

const (
	FieldFrom Field = iota
	FieldTo
)

func (f Field) String() string {
	if f == FieldTo {
		return "to"
	}
	return "from"
}

var messages = map[Field]map[Kind]string{
	FieldFrom: {
		PastDate:       "From date cannot be earlier than today.",
		WeekendDate:    "From date cannot be a Saturday or Sunday.",
		OrderViolation: "From date cannot be after To date.",
		SpanTooLong:    "Separation between From and To cannot exceed 1 year.",
	},
	FieldTo: {
		PastDate:       "To date cannot be earlier than today.",
		WeekendDate:    "To date cannot be a Saturday or Sunday.",
		OrderViolation: "To date cannot be earlier than From date.",
		SpanTooLong:    "Separation between From and To cannot exceed 1 year.",
	},
}

// Result is the outcome of validating one bound.
// The zero value is a valid result.
type Result struct {
	Kind  Kind
	Field Field
}

func (r Result) Valid() bool { return r.Kind == KindNone }

// Message returns the user-facing reason, or "" when valid.
func (r Result) Message() string {
	if r.Valid() {
		return ""
	}
	return messages[r.Field][r.Kind]
}

func invalid(field Field, kind Kind) Result {
	return Result{Kind: kind, Field: field}
}

// ValidateFrom checks a new "from" value against the current "to" value.
// Clearing the field (zero candidate) is always valid.
func ValidateFrom(candidate, currentTo, today Date) Result {
	if candidate.IsZero() {
		return Result{}
	}
	if candidate.Before(today) {
		return invalid(FieldFrom, PastDate)
	}
	if candidate.IsWeekend() {
		return invalid(FieldFrom, WeekendDate)
	}
	if !currentTo.IsZero() {
		if candidate.After(currentTo) {
			return invalid(FieldFrom, OrderViolation)
		}
		if DaysBetween(candidate, currentTo) > MaxSpanDays {
			return invalid(FieldFrom, SpanTooLong)
		}
	}
	return Result{Field: FieldFrom}
}

// ValidateTo checks a new "to" value against the current "from" value.
// Without a from date the to date alone still cannot lie in the past.
func ValidateTo(candidate, currentFrom, today Date) Result {
	if candidate.IsZero() {
		return Result{Field: FieldTo}
	}
	if candidate.IsWeekend() {
		return invalid(FieldTo, WeekendDate)
	}
	if !currentFrom.IsZero() {
		if candidate.Before(currentFrom) {
			return invalid(FieldTo, OrderViolation)
		}
		if DaysBetween(currentFrom, candidate) > MaxSpanDays {
			return invalid(FieldTo, SpanTooLong)
		}
	} else if candidate.Before(today) {
		return invalid(FieldTo, PastDate)
	}
	return Result{Field: FieldTo}
}

// Window is an availability period. Either bound may be unset.
type Window struct {
	From Date `json:"from_date"`
	To   Date `json:"to_date"`
}

// Validate checks both bounds as if the user had entered from, then to.
func (w Window) Validate(today Date) Result {
	return w.ValidateChanges(Window{}, today)
}

// ValidateChanges checks w against the stored window. A bound that differs
// from stored gets every rule; an unchanged bound skips the past-date rule,
// so a window that has already started can still be saved.
func (w Window) ValidateChanges(stored Window, today Date) Result {
	fromToday, toToday := today, today
	if w.From.Equal(stored.From) {
		fromToday = Date{}
	}
	if w.To.Equal(stored.To) {
		toToday = Date{}
	}
	if r := ValidateFrom(w.From, w.To, fromToday); !r.Valid() {
		return r
	}
	return ValidateTo(w.To, w.From, toToday)
}

// PickerBounds are the min/max hints for the two date inputs.
type PickerBounds struct {
	FromMin Date `json:"from_min"`
	ToMin   Date `json:"to_min"`
	ToMax   Date `json:"to_max"`
}

// Bounds computes the picker limits: to may not precede from (or today)
// and may not be more than one calendar year after it.
func Bounds(from, today Date) PickerBounds {
	anchor := from
	if anchor.IsZero() {
		anchor = today
	}
	return PickerBounds{
		FromMin: today,
		ToMin:   anchor,
		ToMax:   anchor.AddYears(1),
	}
}
