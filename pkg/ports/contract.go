package ports

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/voicesurvey/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunParticipantStoreContract runs a suite of tests to verify that a ParticipantStore
// implementation adheres to the defined interface contract.
func RunParticipantStoreContract(t *testing.T, store ParticipantStore) {
	ctx := context.Background()
	prefix := "contract-" + time.Now().Format("20060102150405.000000000")

	t.Run("Find Non-Existent", func(t *testing.T) {
		_, err := store.Find(ctx, prefix+"-missing")
		assert.ErrorIs(t, err, domain.ErrParticipantNotFound)
	})

	t.Run("Create and Find", func(t *testing.T) {
		callID := prefix + "-create"
		require.NoError(t, store.Create(ctx, callID, "555"))

		p, err := store.Find(ctx, callID)
		require.NoError(t, err)
		assert.Equal(t, callID, p.CallID)
		assert.Equal(t, "555", p.Destination)
		assert.Empty(t, p.Answers)
	})

	t.Run("Create Is Insert If Absent", func(t *testing.T) {
		callID := prefix + "-recreate"
		require.NoError(t, store.Create(ctx, callID, "555"))
		_, err := store.AppendAnswer(ctx, callID, domain.Answer{LegID: "L1", RecordingRef: "R1"}, 5)
		require.NoError(t, err)

		require.NoError(t, store.Create(ctx, callID, "999"), "second create should be a no-op")

		p, err := store.Find(ctx, callID)
		require.NoError(t, err)
		assert.Equal(t, "555", p.Destination, "destination must never be mutated")
		assert.Len(t, p.Answers, 1, "answers must survive a repeated create")
	})

	t.Run("Append Preserves Arrival Order", func(t *testing.T) {
		callID := prefix + "-order"
		require.NoError(t, store.Create(ctx, callID, "555"))

		for i := 0; i < 3; i++ {
			n, err := store.AppendAnswer(ctx, callID, domain.Answer{
				LegID:        fmt.Sprintf("L%d", i),
				RecordingRef: fmt.Sprintf("R%d", i),
			}, 3)
			require.NoError(t, err)
			assert.Equal(t, i+1, n)
		}

		p, err := store.Find(ctx, callID)
		require.NoError(t, err)
		require.Len(t, p.Answers, 3)
		for i, a := range p.Answers {
			assert.Equal(t, fmt.Sprintf("L%d", i), a.LegID)
			assert.Equal(t, fmt.Sprintf("R%d", i), a.RecordingRef)
		}
	})

	t.Run("Append Duplicate Is No-Op", func(t *testing.T) {
		callID := prefix + "-dup"
		require.NoError(t, store.Create(ctx, callID, "555"))
		answer := domain.Answer{LegID: "L1", RecordingRef: "R1"}

		n, err := store.AppendAnswer(ctx, callID, answer, 5)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		n, err = store.AppendAnswer(ctx, callID, answer, 5)
		require.NoError(t, err)
		assert.Equal(t, 1, n, "redelivered answer must not be appended twice")
	})

	t.Run("Append Stops At Limit", func(t *testing.T) {
		callID := prefix + "-limit"
		require.NoError(t, store.Create(ctx, callID, "555"))

		for i := 0; i < 4; i++ {
			n, err := store.AppendAnswer(ctx, callID, domain.Answer{
				LegID:        "L",
				RecordingRef: fmt.Sprintf("R%d", i),
			}, 2)
			require.NoError(t, err)
			assert.LessOrEqual(t, n, 2)
		}

		p, err := store.Find(ctx, callID)
		require.NoError(t, err)
		assert.Len(t, p.Answers, 2)
		assert.Equal(t, "R0", p.Answers[0].RecordingRef)
		assert.Equal(t, "R1", p.Answers[1].RecordingRef)
	})

	t.Run("Append Unknown Call", func(t *testing.T) {
		_, err := store.AppendAnswer(ctx, prefix+"-ghost", domain.Answer{LegID: "L", RecordingRef: "R"}, 2)
		assert.ErrorIs(t, err, domain.ErrParticipantNotFound)

		_, err = store.Find(ctx, prefix+"-ghost")
		assert.ErrorIs(t, err, domain.ErrParticipantNotFound, "append must not create participants")
	})

	t.Run("Concurrent Appends", func(t *testing.T) {
		callID := prefix + "-concurrent"
		require.NoError(t, store.Create(ctx, callID, "555"))

		const writers = 8
		var wg sync.WaitGroup
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := store.AppendAnswer(ctx, callID, domain.Answer{
					LegID:        "L",
					RecordingRef: fmt.Sprintf("R%d", i),
				}, writers)
				assert.NoError(t, err)
			}(i)
		}
		wg.Wait()

		p, err := store.Find(ctx, callID)
		require.NoError(t, err)
		assert.Len(t, p.Answers, writers, "no append may be lost")

		seen := make(map[string]bool)
		for _, a := range p.Answers {
			assert.False(t, seen[a.RecordingRef], "duplicate %s", a.RecordingRef)
			seen[a.RecordingRef] = true
		}
	})

	t.Run("Concurrent Appends Respect Limit", func(t *testing.T) {
		callID := prefix + "-concurrent-limit"
		require.NoError(t, store.Create(ctx, callID, "555"))

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, _ = store.AppendAnswer(ctx, callID, domain.Answer{
					LegID:        "L",
					RecordingRef: fmt.Sprintf("R%d", i),
				}, 3)
			}(i)
		}
		wg.Wait()

		p, err := store.Find(ctx, callID)
		require.NoError(t, err)
		assert.Len(t, p.Answers, 3)
	})

	t.Run("List", func(t *testing.T) {
		id1 := prefix + "-list-1"
		id2 := prefix + "-list-2"
		require.NoError(t, store.Create(ctx, id1, "111"))
		require.NoError(t, store.Create(ctx, id2, "222"))

		participants, err := store.List(ctx)
		require.NoError(t, err)

		byID := make(map[string]*domain.Participant)
		for _, p := range participants {
			byID[p.CallID] = p
		}
		require.Contains(t, byID, id1)
		require.Contains(t, byID, id2)
		assert.Equal(t, "222", byID[id2].Destination)
	})
}
