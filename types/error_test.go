package types

import (
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
)

func TestCycleErrorMessage(t *testing.T) {
	err := NewCycleError([]string{"a", "b", "a"})
	assert.Equal(t, "dependency cycle: a -> b -> a", err.Error())
	assert.True(t, IsStructural(err))
}

func TestStructuralErrorsSurviveTracing(t *testing.T) {
	assert.True(t, IsStructural(errors.Trace(NewDuplicateTaskError("apt"))))
	assert.True(t, IsStructural(errors.Trace(NewUnknownDependencyError("build", "ghost"))))
	assert.False(t, IsStructural(errors.New("plain failure")))
	assert.False(t, IsStructural(nil))
}

func TestTimeoutErrorDistinct(t *testing.T) {
	err := NewTimeoutError("apt-get update", 30*time.Second)
	assert.Equal(t, "command timed out after 30s: apt-get update", err.Error())
	assert.True(t, IsTimeout(err))
	assert.True(t, IsTimeout(errors.Annotatef(err, "attempt 2")))

	// a plain non-zero exit is not a timeout
	assert.False(t, IsTimeout(errors.New("command failed with exit code 1")))
	assert.False(t, IsStructural(err))
}

func TestInternalError(t *testing.T) {
	err := NewInternalErrorf("deadlock in run %s", "run-1")
	assert.True(t, IsInternal(err))
	assert.Contains(t, err.Error(), "scheduler internal error")
	assert.Contains(t, err.Error(), "run-1")
	assert.False(t, IsInternal(errors.New("other")))
}
