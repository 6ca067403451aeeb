package warden

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geoffjay/plantd-mapper/internal/envelope"
	"github.com/geoffjay/plantd-mapper/internal/mdperr"
)

// TestNewJob_Scenario1 implements spec scenario S1 (single-target reply).
func TestNewJob_Scenario1(t *testing.T) {
	w := New()
	var completed map[envelope.Identity][]byte

	job, err := w.NewJob("tok-1", []envelope.Identity{"A"}, func(results map[envelope.Identity][]byte) {
		completed = results
	})
	require.NoError(t, err)
	assert.Equal(t, StatePending, job.State)

	w.Process(envelope.Reply{Token: "tok-1", From: "A", Payload: []byte("3")})

	assert.Equal(t, []byte("3"), completed["A"])
	_, exists := w.Job("tok-1")
	assert.False(t, exists, "completed job should be removed from the table")
}

func TestNewJob_DuplicateToken(t *testing.T) {
	w := New()
	_, err := w.NewJob("tok-1", []envelope.Identity{"A"}, nil)
	require.NoError(t, err)

	_, err = w.NewJob("tok-1", []envelope.Identity{"B"}, nil)

	require.Error(t, err)
	assert.True(t, errors.Is(err, mdperr.ErrDuplicateToken))
}

// TestProcess_Scenario6 implements spec scenario S6 (unknown-token drop).
func TestProcess_Scenario6(t *testing.T) {
	w := New()

	assert.NotPanics(t, func() {
		w.Process(envelope.Reply{Token: "xyz", From: "A", Payload: []byte("p")})
	})
	assert.Equal(t, 0, w.Len())
}

func TestProcess_PartialCompletion(t *testing.T) {
	w := New()
	var callbackCount int
	var finalResults map[envelope.Identity][]byte

	_, err := w.NewJob("tok-1", []envelope.Identity{"A", "B"}, func(results map[envelope.Identity][]byte) {
		callbackCount++
		finalResults = results
	})
	require.NoError(t, err)

	w.Process(envelope.Reply{Token: "tok-1", From: "A", Payload: []byte("1")})
	job, ok := w.Job("tok-1")
	require.True(t, ok, "job should still be pending after partial reply")
	assert.Equal(t, StatePending, job.State)
	assert.Equal(t, 0, callbackCount)

	w.Process(envelope.Reply{Token: "tok-1", From: "B", Payload: []byte("2")})

	assert.Equal(t, 1, callbackCount, "completion callback fires exactly once")
	assert.Equal(t, []byte("1"), finalResults["A"])
	assert.Equal(t, []byte("2"), finalResults["B"])
}

func TestProcess_DuplicateReplyIsNoOp(t *testing.T) {
	w := New()
	var callbackCount int

	_, err := w.NewJob("tok-1", []envelope.Identity{"A", "B"}, func(map[envelope.Identity][]byte) {
		callbackCount++
	})
	require.NoError(t, err)

	w.Process(envelope.Reply{Token: "tok-1", From: "A", Payload: []byte("1")})
	w.Process(envelope.Reply{Token: "tok-1", From: "A", Payload: []byte("1-again")})

	job, _ := w.Job("tok-1")
	assert.Equal(t, []byte("1-again"), job.Results["A"], "duplicate reply overwrites prior result")
	assert.Equal(t, 0, callbackCount, "duplicate reply does not decrement pending further")
}

func TestCancel_InvokesCallbackWithPartialResults(t *testing.T) {
	w := New()
	var callbackCount int
	var finalResults map[envelope.Identity][]byte

	_, err := w.NewJob("tok-1", []envelope.Identity{"A", "B"}, func(results map[envelope.Identity][]byte) {
		callbackCount++
		finalResults = results
	})
	require.NoError(t, err)

	w.Process(envelope.Reply{Token: "tok-1", From: "A", Payload: []byte("1")})

	ok := w.Cancel("tok-1")

	assert.True(t, ok)
	assert.Equal(t, 1, callbackCount)
	assert.Equal(t, []byte("1"), finalResults["A"])

	t.Run("replies after cancel are dropped", func(t *testing.T) {
		w.Process(envelope.Reply{Token: "tok-1", From: "B", Payload: []byte("2")})
		assert.Equal(t, 1, callbackCount, "no second invocation")
	})
}

func TestCancel_UnknownTokenIsNoOp(t *testing.T) {
	w := New()
	assert.False(t, w.Cancel("nope"))
}

func TestExpire_CancelsOldJobs(t *testing.T) {
	w := New()
	var cancelled []string

	job, err := w.NewJob("tok-1", []envelope.Identity{"A"}, func(map[envelope.Identity][]byte) {
		cancelled = append(cancelled, "tok-1")
	})
	require.NoError(t, err)
	job.CreatedAt = time.Now().Add(-time.Hour)

	expired := w.Expire(time.Now(), 5*time.Minute)

	assert.Equal(t, []string{"tok-1"}, expired)
	assert.Equal(t, []string{"tok-1"}, cancelled)
}

func TestJobLen(t *testing.T) {
	w := New()
	assert.Equal(t, 0, w.Len())
	_, err := w.NewJob("tok-1", []envelope.Identity{"A"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, w.Len())
}
