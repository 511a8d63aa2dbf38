package flow

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"vaspflow/pkg/errors"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func constantJob(name string, output map[string]interface{}) *Job {
	return NewJob(name, func(ctx context.Context, inputs map[string]interface{}) (*Response, error) {
		return &Response{Output: output}, nil
	})
}

func TestRunLinearFlow(t *testing.T) {
	var order []string

	a := NewJob("a", func(ctx context.Context, inputs map[string]interface{}) (*Response, error) {
		order = append(order, "a")
		return &Response{Output: map[string]interface{}{"value": 1}}, nil
	})
	b := NewJob("b", func(ctx context.Context, inputs map[string]interface{}) (*Response, error) {
		order = append(order, "b")
		return &Response{Output: map[string]interface{}{"value": inputs["upstream"].(int) + 1}}, nil
	})
	b.WithInput("upstream", a.OutputRef("value"))

	// Declared out of order; dependencies decide.
	store, err := NewRunner().Run(context.Background(), NewFlow("linear").Add(b, a))
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b"}, order)
	assert.Equal(t, 2, store.Output(b.ID)["value"])
	assert.True(t, store.Completed())
}

func TestRunAfterOrdering(t *testing.T) {
	var order []string
	mk := func(name string) *Job {
		return NewJob(name, func(ctx context.Context, inputs map[string]interface{}) (*Response, error) {
			order = append(order, name)
			return nil, nil
		})
	}
	first := mk("first")
	second := mk("second")
	second.After = []string{first.ID}

	_, err := NewRunner().Run(context.Background(), NewFlow("ordered").Add(second, first))
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestRunDetectsCycle(t *testing.T) {
	a := NewJob("a", func(ctx context.Context, inputs map[string]interface{}) (*Response, error) {
		return nil, nil
	})
	b := NewJob("b", func(ctx context.Context, inputs map[string]interface{}) (*Response, error) {
		return nil, nil
	})
	a.After = []string{b.ID}
	b.After = []string{a.ID}

	_, err := NewRunner().Run(context.Background(), NewFlow("cycle").Add(a, b))
	assert.ErrorIs(t, err, errors.ErrFlowCycle)
}

func TestRunJobFailureAborts(t *testing.T) {
	boom := stderrors.New("boom")
	bad := NewJob("bad", func(ctx context.Context, inputs map[string]interface{}) (*Response, error) {
		return nil, boom
	})
	never := NewJob("never", func(ctx context.Context, inputs map[string]interface{}) (*Response, error) {
		t.Fatal("downstream job ran after a failure")
		return nil, nil
	})
	never.After = []string{bad.ID}

	store, err := NewRunner().Run(context.Background(), NewFlow("failing").Add(bad, never))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.True(t, errors.IsJobError(err))
	assert.Equal(t, StatusFailed, store.State(bad.ID))
	assert.Equal(t, StatusPending, store.State(never.ID))

	id, ok := errors.GetJobID(err)
	assert.True(t, ok)
	assert.Equal(t, bad.ID, id)
}

func TestRunDynamicExpansion(t *testing.T) {
	var ran []string
	var children []*Job

	parent := NewJob("parent", func(ctx context.Context, inputs map[string]interface{}) (*Response, error) {
		ran = append(ran, "parent")
		sub := NewFlow("children")
		for _, name := range []string{"child-1", "child-2"} {
			name := name
			child := NewJob(name, func(ctx context.Context, inputs map[string]interface{}) (*Response, error) {
				ran = append(ran, name)
				return &Response{Output: map[string]interface{}{"done": name}}, nil
			})
			children = append(children, child)
			sub.Add(child)
		}
		return &Response{Replace: sub}, nil
	})

	store, err := NewRunner().Run(context.Background(), NewFlow("dynamic").Add(parent))
	require.NoError(t, err)

	assert.Equal(t, []string{"parent", "child-1", "child-2"}, ran)
	require.Len(t, store.JobIDs(), 3)
	for _, id := range store.JobIDs() {
		assert.Equal(t, StatusCompleted, store.State(id))
	}
	require.Len(t, children, 2)
	for _, child := range children {
		assert.Equal(t, parent.ID, child.ParentID)
	}
}

func TestRunNilResponseCompletesQuietly(t *testing.T) {
	quiet := NewJob("quiet", func(ctx context.Context, inputs map[string]interface{}) (*Response, error) {
		return nil, nil
	})
	store, err := NewRunner().Run(context.Background(), NewFlow("quiet").Add(quiet))
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, store.State(quiet.ID))
	assert.Nil(t, store.Output(quiet.ID))
}

func TestRunHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	first := NewJob("first", func(ctx context.Context, inputs map[string]interface{}) (*Response, error) {
		cancel()
		return nil, nil
	})
	second := NewJob("second", func(ctx context.Context, inputs map[string]interface{}) (*Response, error) {
		t.Fatal("job ran after cancellation")
		return nil, nil
	})
	second.After = []string{first.ID}

	store, err := NewRunner().Run(ctx, NewFlow("canceled").Add(first, second))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StatusCompleted, store.State(first.ID))
	assert.Equal(t, StatusPending, store.State(second.ID))
}

func TestRunExpansionLimit(t *testing.T) {
	parent := NewJob("parent", func(ctx context.Context, inputs map[string]interface{}) (*Response, error) {
		sub := NewFlow("children")
		for i := 0; i < 10; i++ {
			sub.Add(constantJob("child", nil))
		}
		return &Response{Replace: sub}, nil
	})

	runner := NewRunner()
	runner.MaxDynamicJobs = 5
	_, err := runner.Run(context.Background(), NewFlow("limited").Add(parent))
	assert.Error(t, err)
}

func TestResolveInputsMissingKey(t *testing.T) {
	a := constantJob("a", map[string]interface{}{"value": 1})
	b := NewJob("b", func(ctx context.Context, inputs map[string]interface{}) (*Response, error) {
		return nil, nil
	})
	b.WithInput("upstream", a.OutputRef("no_such_key"))

	_, err := NewRunner().Run(context.Background(), NewFlow("missing").Add(a, b))
	assert.ErrorIs(t, err, errors.ErrOutputNotReady)
}
