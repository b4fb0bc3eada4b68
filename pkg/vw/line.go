package vw

import "strings"

// Example describes one line sent to vw. Importance is only written when
// Response is set, and Base only when Importance is set. A nil Features
// adds nothing; an empty non-nil slice adds an empty anonymous namespace.
type Example struct {
	Response   *float64
	Importance *float64
	Base       *float64
	Tag        string
	Features   []Feature
	Namespaces []*Namespace
}

// labelSection renders the part of the line before the first pipe.
func (ex Example) labelSection() string {
	tokens := make([]string, 0, 4)
	if ex.Response != nil {
		tokens = append(tokens, formatFloat(*ex.Response))
		if ex.Importance != nil {
			tokens = append(tokens, formatFloat(*ex.Importance))
			if ex.Base != nil {
				tokens = append(tokens, formatFloat(*ex.Base))
			}
		}
	}
	if ex.Tag != "" {
		// The quote prefix keeps a tag from being read as a label.
		tokens = append(tokens, "'"+Escape(ex.Tag))
	} else {
		tokens = append(tokens, "")
	}
	return strings.Join(tokens, " ")
}

// buildLine assembles the label section and drains every queued namespace
// into the line.
func buildLine(ex Example, queue *PendingQueue) (string, error) {
	var anon *Namespace
	if ex.Features != nil {
		var err error
		if anon, err = NewNamespace("", 0, ex.Features); err != nil {
			return "", err
		}
	}
	queue.Push(ex.Namespaces...)
	queue.Push(anon)

	substrings := []string{ex.labelSection()}
	namespaces := queue.Drain()
	if len(namespaces) == 0 {
		substrings = append(substrings, "")
	}
	for _, ns := range namespaces {
		substrings = append(substrings, ns.String())
	}
	return strings.Join(substrings, "|"), nil
}
