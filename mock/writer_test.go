package mock_test

import (
	"testing"

	"github.com/fwojciec/listgrab"
	"github.com/fwojciec/listgrab/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestItemRecorder_ImplementsInterface(t *testing.T) {
	t.Parallel()

	var _ listgrab.ItemSink = &mock.ItemRecorder{}
}

func TestItemRecorder_WriteItems(t *testing.T) {
	t.Parallel()

	t.Run("appends items across calls", func(t *testing.T) {
		t.Parallel()

		r := &mock.ItemRecorder{}

		require.NoError(t, r.WriteItems([]*listgrab.Item{{Key: "a"}}))
		require.NoError(t, r.WriteItems([]*listgrab.Item{{Key: "b"}, {Key: "c"}}))

		assert.Equal(t, 2, r.Calls)
		require.Len(t, r.Items, 3)
		assert.Equal(t, "c", r.Items[2].Key)
	})
}
