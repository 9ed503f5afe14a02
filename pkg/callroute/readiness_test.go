package callroute

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haivivi/carhal/pkg/halerr"
)

func TestReadinessCompletes(t *testing.T) {
	r := NewReadiness(MicIn, HFPIn, HFPOut)
	r.Mark(HFPOut)
	r.Mark(HFPOut)
	r.Mark(MicIn)
	assert.Equal(t, []Role{HFPIn}, r.Pending())

	go func() {
		time.Sleep(10 * time.Millisecond)
		r.Mark(HFPIn)
	}()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, r.Wait(ctx))
	assert.Equal(t, []Role{HFPOut, MicIn, HFPIn}, r.Marked())
	assert.Empty(t, r.Pending())

	// Marking after completion is harmless.
	r.Mark(HFPIn)
	require.NoError(t, r.Wait(context.Background()))
}

func TestReadinessTimeout(t *testing.T) {
	r := NewReadiness(MicIn, HFPIn, HFPOut)
	r.Mark(MicIn)
	r.Mark(HFPOut)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	start := time.Now()
	err := r.Wait(ctx)
	assert.True(t, errors.Is(err, halerr.ErrTimeout), "got %v", err)
	assert.Contains(t, err.Error(), "hfp-in")
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestReadinessCanceled(t *testing.T) {
	r := NewReadiness(MicIn)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := r.Wait(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, errors.Is(err, halerr.ErrTimeout))
}

func TestReadinessIgnoresUnknownRole(t *testing.T) {
	r := NewReadiness(MicIn)
	r.Mark(HFPOut)
	assert.Empty(t, r.Marked())
	select {
	case <-r.Done():
		t.Fatal("done before MicIn")
	default:
	}

	empty := NewReadiness()
	require.NoError(t, empty.Wait(context.Background()))
}

func TestRoleString(t *testing.T) {
	assert.Equal(t, "mic-in", MicIn.String())
	assert.Equal(t, "hfp-in", HFPIn.String())
	assert.Equal(t, "hfp-out", HFPOut.String())
	assert.Equal(t, "role(9)", Role(9).String())
}
