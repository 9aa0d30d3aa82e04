package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunner_AllStepsSucceed(t *testing.T) {
	var order []string
	step := func(name string) Step {
		return Step{Name: name, Run: func(context.Context) error {
			order = append(order, name)
			return nil
		}}
	}

	r := NewRunner(step("ingest"), step("clean"), step("features"))
	results, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"ingest", "clean", "features"}, order)
	assert.Len(t, results, 3)
	assert.Equal(t, []string{"ingest", "clean", "features"}, r.Steps())
}

func TestRunner_FailFast(t *testing.T) {
	var ran []string
	failure := NewError(KindEmptyDataset, "clean: load interims", errors.New("no interim rows"))

	r := NewRunner(
		Step{Name: "ingest", Run: func(context.Context) error { ran = append(ran, "ingest"); return nil }},
		Step{Name: "clean", Run: func(context.Context) error { ran = append(ran, "clean"); return failure }},
		Step{Name: "features", Run: func(context.Context) error { ran = append(ran, "features"); return nil }},
	)

	results, err := r.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, []string{"ingest", "clean"}, ran)
	assert.Len(t, results, 2)
	assert.True(t, IsKind(err, KindEmptyDataset))
	assert.Equal(t, 1, ExitCode(err))
}

func TestRunner_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	r := NewRunner(Step{Name: "ingest", Run: func(context.Context) error { called = true; return nil }})
	_, err := r.Run(ctx)
	require.Error(t, err)
	assert.False(t, called)
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindUnknown},
		{"plain", errors.New("boom"), KindUnknown},
		{"direct", NewError(KindParse, "ingest: parse", errors.New("bad row")), KindParse},
		{"joined", errors.Join(errors.New("ctx"), NewError(KindUnsupported, "ingest", nil)), KindUnsupported},
		{"fmt errorf", fmt.Errorf("features stage: %w", NewError(KindMissingArtifact, "features", nil)), KindMissingArtifact},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, 0, ExitCode(Errorf(KindDiscoveryEmpty, "ingest: discover", "no supported files")))
	assert.Equal(t, 2, ExitCode(NewError(KindConfiguration, "config", errors.New("countries empty"))))
	assert.Equal(t, 1, ExitCode(errors.New("boom")))
}

func TestError_Message(t *testing.T) {
	err := Errorf(KindMissingTarget, "features: load", "no %s column", "target_value")
	assert.Equal(t, "features: load: missing_target_column: no target_value column", err.Error())
	assert.Equal(t, "features: load: empty_dataset", NewError(KindEmptyDataset, "features: load", nil).Error())
}
