package metrics_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-cms/pkg/simplecms"
	"github.com/tendant/simple-cms/pkg/simplecms/metrics"
	"github.com/tendant/simple-cms/pkg/simplecms/repo/memory"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := metrics.New(reg)

	r.ObserveFlow("page", "publish", nil, 10*time.Millisecond)
	r.ObserveFlow("page", "publish", nil, 20*time.Millisecond)
	r.ObserveFlow("page", "publish", errors.New("boom"), time.Millisecond)
	r.BulkWriteFailures("page", 3)
	r.BulkWriteFailures("page", 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.FlowsTotal.WithLabelValues("page", "publish", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.FlowsTotal.WithLabelValues("page", "publish", "error")))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.BulkFailuresTotal.WithLabelValues("page")))
	assert.Equal(t, 1, testutil.CollectAndCount(r.FlowDuration))
}

func TestRecorder_ObservesServiceFlows(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := metrics.New(reg)

	svc, err := simplecms.New(simplecms.KindBlock,
		simplecms.WithContentRepository(memory.NewContentRepository()),
		simplecms.WithVersionRepository(memory.NewVersionRepository()),
		simplecms.WithFlowObserver(r),
	)
	require.NoError(t, err)

	user := primitive.NewObjectID().Hex()
	_, err = svc.ExecuteCreateContentFlow(context.Background(), simplecms.CreateContentRequest{
		ContentType: "TextBlock",
		Language:    "en",
		UserID:      user,
		Input:       simplecms.ContentInput{Name: "teaser"},
	})
	require.NoError(t, err)

	_, err = svc.ExecuteCreateContentFlow(context.Background(), simplecms.CreateContentRequest{Language: "en", UserID: user})
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.FlowsTotal.WithLabelValues("block", "create", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.FlowsTotal.WithLabelValues("block", "create", "error")))
}
