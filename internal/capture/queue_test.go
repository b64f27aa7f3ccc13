package capture

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petems/consult-recorder/internal/audio"
)

func TestFrameQueueFIFOThenEOF(t *testing.T) {
	q := newFrameQueue()
	for i := 0; i < 5; i++ {
		q.push(audio.Frame{int16(i)})
	}
	q.close()
	q.push(audio.Frame{99}) // ignored after close

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		f, err := q.Next(ctx)
		require.NoError(t, err)
		assert.Equal(t, int16(i), f[0])
	}

	_, err := q.Next(ctx)
	assert.ErrorIs(t, err, io.EOF)
	_, err = q.Next(ctx)
	assert.ErrorIs(t, err, io.EOF, "end of stream must stay the last thing observed")
}

func TestFrameQueueNextBlocksUntilPush(t *testing.T) {
	q := newFrameQueue()
	got := make(chan audio.Frame, 1)

	go func() {
		f, err := q.Next(context.Background())
		if err == nil {
			got <- f
		}
		close(got)
	}()

	select {
	case <-got:
		t.Fatal("Next returned before any frame was pushed")
	case <-time.After(20 * time.Millisecond):
	}

	q.push(audio.Frame{7})
	select {
	case f := <-got:
		assert.Equal(t, audio.Frame{7}, f)
	case <-time.After(time.Second):
		t.Fatal("Next did not wake up")
	}
}

func TestFrameQueueCloseWakesAllConsumers(t *testing.T) {
	q := newFrameQueue()

	var wg sync.WaitGroup
	errs := make(chan error, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := q.Next(context.Background())
			errs <- err
		}()
	}

	time.Sleep(10 * time.Millisecond)
	q.close()
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.ErrorIs(t, err, io.EOF)
	}
}

func TestFrameQueueMultipleConsumersDrainEverything(t *testing.T) {
	q := newFrameQueue()

	var mu sync.Mutex
	seen := map[int16]bool{}
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				f, err := q.Next(context.Background())
				if err != nil {
					return
				}
				mu.Lock()
				seen[f[0]] = true
				mu.Unlock()
			}
		}()
	}

	for i := 0; i < 200; i++ {
		q.push(audio.Frame{int16(i)})
	}
	q.close()
	wg.Wait()

	assert.Len(t, seen, 200)
	assert.Equal(t, 0, q.Len())
}

func TestFrameQueueContextCancel(t *testing.T) {
	q := newFrameQueue()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := q.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
