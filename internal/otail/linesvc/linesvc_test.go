package linesvc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewSubscriberIDIsUnique(t *testing.T) {
	a := NewSubscriberID()
	b := NewSubscriberID()
	assert.NotEqual(t, a, b)
}

func TestEventSumTypeMembers(t *testing.T) {
	var events []Event = []Event{
		Tail{Line: 1, Text: "x"},
		Truncated{},
		FilterReset{},
		Error{Err: assertErr{}},
	}
	assert.Len(t, events, 4)
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }
