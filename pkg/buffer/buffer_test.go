package buffer_test

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/monitor-client/pkg/buffer"
)

func rec(module string, data any) buffer.Record {
	return buffer.NewRecord(module, "client-1", time.UnixMilli(1700000000000), data)
}

func TestInsertConcurrentKeysUnique(t *testing.T) {
	b := buffer.New()

	const workers, perWorker = 16, 200
	keys := make(chan string, workers*perWorker)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				key, err := b.Insert(rec(fmt.Sprintf("m%d", w), i))
				if assert.NoError(t, err) {
					keys <- key
				}
			}
		}(w)
	}
	wg.Wait()
	close(keys)

	seen := make(map[string]struct{})
	for k := range keys {
		_, dup := seen[k]
		require.False(t, dup, "duplicate key %s", k)
		seen[k] = struct{}{}
	}
	assert.Len(t, seen, workers*perWorker)
	assert.Equal(t, workers*perWorker, b.Len())
}

func TestInsertRetriesOnCollision(t *testing.T) {
	seq := []string{"k1", "k1", "k1", "k2"}
	i := 0
	b := buffer.New(buffer.WithKeyFunc(func() string {
		k := seq[i]
		i++
		return k
	}))

	k1, err := b.Insert(rec("cpu", 1))
	require.NoError(t, err)
	k2, err := b.Insert(rec("cpu", 2))
	require.NoError(t, err)

	assert.Equal(t, "k1", k1)
	assert.Equal(t, "k2", k2)
	assert.Equal(t, 2, b.Len())
}

func TestInsertGivesUpOnDegenerateGenerator(t *testing.T) {
	b := buffer.New(buffer.WithKeyFunc(func() string { return "same" }))
	_, err := b.Insert(rec("cpu", 1))
	require.NoError(t, err)
	_, err = b.Insert(rec("cpu", 2))
	assert.Error(t, err)
	assert.Equal(t, 1, b.Len())
}

func TestPruneIdempotent(t *testing.T) {
	b := buffer.New()
	require.True(t, b.Put("k1", rec("cpu", 1)))
	require.True(t, b.Put("k2", rec("cpu", 2)))
	require.True(t, b.Put("k3", rec("cpu", 3)))

	ack := []string{"k1", "k3", "unknown"}
	assert.Equal(t, 2, b.Prune(ack))
	after := b.Snapshot()

	assert.Equal(t, 0, b.Prune(ack))
	assert.Equal(t, after, b.Snapshot())
	assert.ElementsMatch(t, []string{"k2"}, b.Keys())
}

func TestPutDoesNotOverwrite(t *testing.T) {
	b := buffer.New()
	require.True(t, b.Put("k1", rec("cpu", 1)))
	assert.False(t, b.Put("k1", rec("cpu", 2)))
	assert.Equal(t, 1, b.Snapshot()["k1"].Data)
}

func TestClear(t *testing.T) {
	b := buffer.New()
	b.Put("k1", rec("cpu", 1))
	b.Put("k2", rec("disk", 2))
	assert.Equal(t, 2, b.Clear())
	assert.True(t, b.IsEmpty())
}

func TestSerialize(t *testing.T) {
	b := buffer.New()
	payload, snap, err := b.Serialize()
	require.NoError(t, err)
	assert.Equal(t, "{}", string(payload))
	assert.Empty(t, snap)

	r := rec("cpu", 50)
	r.SnapshotData = map[string]any{"cores": 4}
	b.Put("k1", r)
	payload, snap, err = b.Serialize()
	require.NoError(t, err)
	require.Contains(t, snap, "k1")

	var decoded map[string]map[string]any
	require.NoError(t, json.Unmarshal(payload, &decoded))
	assert.Equal(t, "cpu", decoded["k1"]["moduleName"])
	assert.Equal(t, "client-1", decoded["k1"]["monitorClientId"])
	assert.EqualValues(t, 1700000000000, decoded["k1"]["date"])
	assert.EqualValues(t, 50, decoded["k1"]["data"])
	assert.Contains(t, decoded["k1"], "snapshotData")
}

func TestSerializeRejectsUnencodableData(t *testing.T) {
	b := buffer.New()
	b.Put("k1", rec("cpu", make(chan int)))
	_, _, err := b.Serialize()
	assert.Error(t, err)
}

func TestSnapshotIsolatedFromLaterInserts(t *testing.T) {
	b := buffer.New()
	b.Put("k1", rec("cpu", 1))
	snap := b.Snapshot()
	b.Put("k2", rec("cpu", 2))
	assert.Len(t, snap, 1)
	assert.Equal(t, 2, b.Len())
}
