//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"

	"github.com/couchcryptid/epicenter-detector/internal/adapter/imageseq"
	"github.com/couchcryptid/epicenter-detector/internal/adapter/kafka"
	"github.com/couchcryptid/epicenter-detector/internal/adapter/sqlite"
	"github.com/couchcryptid/epicenter-detector/internal/config"
	"github.com/couchcryptid/epicenter-detector/internal/domain"
	"github.com/couchcryptid/epicenter-detector/internal/motion"
	"github.com/couchcryptid/epicenter-detector/internal/observability"
	"github.com/couchcryptid/epicenter-detector/internal/pipeline"
	"github.com/couchcryptid/epicenter-detector/internal/synth"
)

const (
	testRequestTopic = "test-requests"
	testResultTopic  = "test-results"
	kafkaImage       = "confluentinc/confluent-local:7.5.0"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startKafka runs a single-node broker for the test and returns its address.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	ctr, err := tckafka.Run(ctx, kafkaImage, tckafka.WithClusterID("epicenter-test"))
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err, "start kafka container")

	brokers, err := ctr.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

// createTopic creates a single-partition topic through the cluster controller.
func createTopic(t *testing.T, broker, topic string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)
	ctrlConn, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer ctrlConn.Close()

	require.NoError(t, ctrlConn.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

func testConfig(broker, group string) *config.Config {
	return &config.Config{
		KafkaBrokers:       []string{broker},
		KafkaRequestTopic:  testRequestTopic,
		KafkaResultTopic:   testResultTopic,
		KafkaGroupID:       fmt.Sprintf("%s-%d", group, time.Now().UnixNano()),
		BatchFlushInterval: 5 * time.Second,
	}
}

// writeClip renders a small expanding-circle clip as PNG frames.
func writeClip(t *testing.T) string {
	t.Helper()
	scene := synth.Scene{
		Width: 64, Height: 48, Frames: 5, FPS: 10,
		CenterX: 32, CenterY: 24, BaseRadius: 4, Growth: 3, Thickness: 2,
	}
	dir := filepath.Join(t.TempDir(), "clip")
	_, err := synth.WriteFrames(dir, scene)
	require.NoError(t, err)
	return dir
}

func newTransformer(t *testing.T, metrics *observability.Metrics) *pipeline.AnalysisTransformer {
	t.Helper()
	est, err := motion.NewHornSchunck(15, 32, 2)
	require.NoError(t, err)
	analyzer, err := pipeline.NewAnalyzer(est, pipeline.DefaultSettings(), discardLogger(), metrics, nil)
	require.NoError(t, err)
	return pipeline.NewTransformer(analyzer, imageseq.NewOpener(10), discardLogger())
}

func requestMessage(t *testing.T, key string, req domain.AnalysisRequest) kafkago.Message {
	t.Helper()
	payload, err := json.Marshal(req)
	require.NoError(t, err)
	return kafkago.Message{Key: []byte(key), Value: payload}
}

// publishedResult is a result read back from the result topic.
type publishedResult struct {
	Result  domain.AnalysisResult
	Key     string
	Headers map[string]string
}

func readResult(ctx context.Context, t *testing.T, consumer *kafkago.Reader) publishedResult {
	t.Helper()
	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	msg, err := consumer.ReadMessage(readCtx)
	require.NoError(t, err, "read from result topic")

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	var result domain.AnalysisResult
	require.NoError(t, json.Unmarshal(msg.Value, &result), "unmarshal result message")
	return publishedResult{Result: result, Key: string(msg.Key), Headers: headers}
}

func newResultConsumer(broker string) *kafkago.Reader {
	return kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testResultTopic,
		GroupID:     fmt.Sprintf("test-results-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
}

// TestKafkaReaderWriter round-trips one request through the Kafka adapters
// and a real analysis.
func TestKafkaReaderWriter(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testRequestTopic)
	createTopic(t, broker, testResultTopic)
	cfg := testConfig(broker, "test-reader")

	clip := writeClip(t)
	producer := &kafkago.Writer{Addr: kafkago.TCP(broker), Topic: testRequestTopic}
	t.Cleanup(func() { _ = producer.Close() })
	msg := requestMessage(t, "clip-1", domain.AnalysisRequest{ID: "req-1", VideoPath: clip})
	require.NoError(t, producer.WriteMessages(ctx, msg))

	// The consumer group may need a rebalance before partitions are assigned.
	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })

	var batch []domain.RawEvent
	for len(batch) == 0 {
		var err error
		batch, err = reader.ExtractBatch(ctx, 1)
		require.NoError(t, err)
		if ctx.Err() != nil {
			t.Fatal("timed out waiting for request")
		}
	}
	require.Len(t, batch, 1)
	raw := batch[0]
	assert.Equal(t, []byte("clip-1"), raw.Key)
	assert.Equal(t, testRequestTopic, raw.Topic)
	require.NotNil(t, raw.Commit)
	require.NoError(t, raw.Commit(ctx))

	result, err := newTransformer(t, observability.NewMetricsForTesting()).Transform(ctx, raw)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, result.Status)

	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })
	require.NoError(t, writer.LoadBatch(ctx, []domain.AnalysisResult{result}))

	consumer := newResultConsumer(broker)
	t.Cleanup(func() { _ = consumer.Close() })

	pr := readResult(ctx, t, consumer)
	assert.Equal(t, "req-1", pr.Key)
	assert.Equal(t, domain.StatusCompleted, pr.Headers["status"])
	_, err = time.Parse(time.RFC3339, pr.Headers["analyzed_at"])
	assert.NoError(t, err, "analyzed_at should be RFC3339")
	assert.Equal(t, clip, pr.Result.VideoPath)
	assert.Equal(t, 4, pr.Result.VideoProperties.ProcessedFrames)
}

// TestPipelineEndToEnd runs the worker loop against real Kafka and a SQLite
// store: a good clip completes, a missing clip fails, and a malformed
// request is skipped.
func TestPipelineEndToEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testRequestTopic)
	createTopic(t, broker, testResultTopic)
	cfg := testConfig(broker, "test-pipeline")

	clip := writeClip(t)
	missing := filepath.Join(t.TempDir(), "missing")

	producer := &kafkago.Writer{Addr: kafkago.TCP(broker), Topic: testRequestTopic}
	t.Cleanup(func() { _ = producer.Close() })
	require.NoError(t, producer.WriteMessages(ctx,
		requestMessage(t, "good", domain.AnalysisRequest{ID: "good", VideoPath: clip}),
		kafkago.Message{Key: []byte("bad"), Value: []byte("not-json{{{")},
		requestMessage(t, "missing", domain.AnalysisRequest{ID: "missing", VideoPath: missing}),
	))

	store, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "results.db"), discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })
	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	metrics := observability.NewMetricsForTesting()
	p := pipeline.New(reader, newTransformer(t, metrics), pipeline.FanoutLoader{store, writer}, discardLogger(), metrics, 50)

	pipelineCtx, pipelineCancel := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(pipelineCtx) }()

	consumer := newResultConsumer(broker)
	t.Cleanup(func() { _ = consumer.Close() })

	got := map[string]publishedResult{}
	for len(got) < 2 {
		pr := readResult(ctx, t, consumer)
		got[pr.Key] = pr
	}

	good := got["good"]
	assert.Equal(t, domain.StatusCompleted, good.Result.Status)
	assert.Equal(t, 4, good.Result.VideoProperties.ProcessedFrames)

	failed := got["missing"]
	assert.Equal(t, domain.StatusFailed, failed.Headers["status"])
	assert.Contains(t, failed.Result.Error, "open video")
	assert.Empty(t, failed.Result.Epicenters)

	// The malformed request produced nothing.
	readCtx, readCancel := context.WithTimeout(ctx, 5*time.Second)
	_, err = consumer.ReadMessage(readCtx)
	readCancel()
	assert.Error(t, err, "expected no third result")

	pipelineCancel()
	require.NoError(t, <-errCh)
	assert.True(t, p.Ready())

	stored, err := store.List(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, stored, 2)
	fromStore, err := store.Get(ctx, "good")
	require.NoError(t, err)
	assert.Equal(t, good.Result.Epicenters, fromStore.Epicenters)
}
