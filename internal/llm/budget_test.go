package llm

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/citation-integrity-service/internal/domain"
)

func TestBudget_Spend(t *testing.T) {
	t.Parallel()

	t.Run("spends up to the limit then denies", func(t *testing.T) {
		t.Parallel()
		b := NewBudget(2)

		require.NoError(t, b.Spend("match"))
		require.NoError(t, b.Spend("resolve"))

		err := b.Spend("resolve")
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrBudgetExhausted)

		var exhausted *domain.BudgetExhaustedError
		require.ErrorAs(t, err, &exhausted)
		assert.Equal(t, "resolve", exhausted.Stage)
		assert.Equal(t, 2, exhausted.Limit)

		assert.Equal(t, 2, b.Spent())
		assert.True(t, b.Exhausted())
	})

	t.Run("zero limit denies immediately", func(t *testing.T) {
		t.Parallel()
		b := NewBudget(0)
		assert.ErrorIs(t, b.Spend("match"), domain.ErrBudgetExhausted)
		assert.True(t, b.Exhausted())
	})

	t.Run("nil budget denies and reports exhausted", func(t *testing.T) {
		t.Parallel()
		var b *Budget
		assert.ErrorIs(t, b.Spend("match"), domain.ErrBudgetExhausted)
		assert.True(t, b.Exhausted())
		assert.Equal(t, 0, b.Spent())
	})

	t.Run("unlimited never denies", func(t *testing.T) {
		t.Parallel()
		b := Unlimited()
		for i := 0; i < 100; i++ {
			require.NoError(t, b.Spend("deep"))
		}
		assert.False(t, b.Exhausted())
		assert.Equal(t, 100, b.Spent())
	})

	t.Run("concurrent spends never exceed the limit", func(t *testing.T) {
		t.Parallel()
		const limit = 50
		b := NewBudget(limit)

		var wg sync.WaitGroup
		var mu sync.Mutex
		granted := 0
		for i := 0; i < 200; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if b.Spend("match") == nil {
					mu.Lock()
					granted++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, limit, granted)
		assert.Equal(t, limit, b.Spent())
	})
}
