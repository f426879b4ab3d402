// Package app wires the Markov chain client to document ingestion: files and
// stored objects are parsed, chunked and queued, and queue workers submit
// each chunk to the service.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"markovchain/internal/config"
	"markovchain/internal/ratelimit"
	"markovchain/internal/servicetoken"
	"markovchain/internal/util"
	"markovchain/pkg/content"
	"markovchain/pkg/ingest"
	"markovchain/pkg/markov"
	"markovchain/pkg/queue"
	"markovchain/pkg/storage"
)

const (
	defaultQueueStream = "markov:input"
	defaultQueueGroup  = "markov-ingest"
	rateLimitKey       = "input"
)

var (
	// ErrNoObjectStore is returned by IngestObject when no store is configured.
	ErrNoObjectStore = errors.New("object store not configured")
	// ErrRateLimited fails a job attempt when the submission quota is spent.
	ErrRateLimited = errors.New("rate limit exceeded")
)

// IngestResult lists the jobs created for one document.
type IngestResult struct {
	Source string   `json:"source"`
	Jobs   []string `json:"jobs"`
	Bytes  int      `json:"bytes"`
}

// App ties together the client, queue, limiter and object store.
type App struct {
	client      *markov.Client
	queue       *queue.RedisJobQueue
	limiter     *ratelimit.FixedWindowLimiter
	store       storage.ObjectStore
	submitter   *ingest.Submitter
	chunker     ingest.Chunker
	concurrency int
	logger      *slog.Logger
	redis       *redis.Client
	ownsRedis   bool
}

type options struct {
	redisClient *redis.Client
	store       storage.ObjectStore
	httpClient  *http.Client
	logger      *slog.Logger
	logOutput   io.Writer
	block       time.Duration
	retryDelay  time.Duration
}

// Option customizes New.
type Option func(*options)

// WithRedisClient reuses an existing Redis client; App.Close leaves it open.
func WithRedisClient(client *redis.Client) Option {
	return func(o *options) { o.redisClient = client }
}

// WithObjectStore overrides the MinIO store built from config.
func WithObjectStore(store storage.ObjectStore) Option {
	return func(o *options) { o.store = store }
}

// WithHTTPClient sets the transport used for the Markov chain service.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) { o.httpClient = hc }
}

// WithLogger sets the application logger, replacing the one built from
// logLevel and logFormat.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithLogOutput redirects the config-built logger; the default is stdout.
func WithLogOutput(w io.Writer) Option {
	return func(o *options) { o.logOutput = w }
}

// WithQueueTimings overrides how long workers block on an empty stream and
// how long a failed job waits before redelivery.
func WithQueueTimings(block, retryDelay time.Duration) Option {
	return func(o *options) {
		o.block = block
		o.retryDelay = retryDelay
	}
}

// New builds an App from configuration.
func New(cfg config.FileConfig, opts ...Option) (*App, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger
	if logger == nil {
		out := o.logOutput
		if out == nil {
			out = os.Stdout
		}
		logger = util.NewLogger(out, cfg.LogLevel, cfg.LogFormat)
	}

	clientOpts := []markov.Option{markov.WithLogger(logger)}
	if o.httpClient != nil {
		clientOpts = append(clientOpts, markov.WithHTTPClient(o.httpClient))
	}
	if cfg.RequestTimeoutSeconds > 0 {
		clientOpts = append(clientOpts, markov.WithTimeout(time.Duration(cfg.RequestTimeoutSeconds)*time.Second))
	}
	if strings.TrimSpace(cfg.ServiceTokenPrivateKeyPath) != "" {
		signer, err := servicetoken.NewSignerWithOptions(servicetoken.SignerOptions{
			PrivateKeyPath: cfg.ServiceTokenPrivateKeyPath,
			KeyID:          cfg.ServiceTokenKeyID,
			Issuer:         cfg.ServiceTokenIssuer,
		})
		if err != nil {
			return nil, fmt.Errorf("init service token signer: %w", err)
		}
		clientOpts = append(clientOpts, markov.WithTokenSigner(signer, cfg.ServiceTokenAudience))
	}
	client, err := markov.New(cfg.BaseURL, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("init markov client: %w", err)
	}

	redisClient := o.redisClient
	ownsRedis := false
	if redisClient == nil {
		addr := strings.TrimSpace(cfg.RedisAddr)
		if addr == "" {
			return nil, errors.New("redis addr required")
		}
		redisClient = redis.NewClient(&redis.Options{Addr: addr, Password: cfg.RedisPassword})
		ownsRedis = true
	}
	closeRedis := func() {
		if ownsRedis {
			_ = redisClient.Close()
		}
	}

	stream := strings.TrimSpace(cfg.QueueStream)
	if stream == "" {
		stream = defaultQueueStream
	}
	group := strings.TrimSpace(cfg.QueueGroup)
	if group == "" {
		group = defaultQueueGroup
	}
	retryDelay := time.Duration(cfg.QueueRetryDelaySeconds) * time.Second
	if o.retryDelay > 0 {
		retryDelay = o.retryDelay
	}
	jobQueue, err := queue.NewRedisJobQueueWithClient(redisClient, queue.RedisQueueConfig{
		Stream:     stream,
		Group:      group,
		MaxRetries: cfg.QueueMaxRetries,
		Block:      o.block,
		RetryDelay: retryDelay,
	})
	if err != nil {
		closeRedis()
		return nil, fmt.Errorf("init job queue: %w", err)
	}

	var limiter *ratelimit.FixedWindowLimiter
	if cfg.RateLimitPerWindow > 0 {
		limiter, err = ratelimit.NewFixedWindowLimiter(redisClient, stream+":ratelimit",
			cfg.RateLimitPerWindow, time.Duration(cfg.RateLimitWindowSeconds)*time.Second)
		if err != nil {
			closeRedis()
			return nil, fmt.Errorf("init rate limiter: %w", err)
		}
	}

	store := o.store
	if store == nil && strings.TrimSpace(cfg.ObjectStoreEndpoint) != "" {
		store, err = storage.NewMinioStore(context.Background(), storage.MinioConfig{
			Endpoint:  cfg.ObjectStoreEndpoint,
			AccessKey: cfg.ObjectStoreAccessKey,
			SecretKey: cfg.ObjectStoreSecretKey,
			Bucket:    cfg.ObjectStoreBucket,
			UseSSL:    cfg.ObjectStoreUseSSL,
		})
		if err != nil {
			closeRedis()
			return nil, fmt.Errorf("init object store: %w", err)
		}
	}

	chunker := ingest.Chunker{Size: cfg.ChunkSize, Overlap: cfg.ChunkOverlap}
	if chunker.Size <= 0 {
		chunker = ingest.DefaultChunker
	}
	concurrency := cfg.QueueConcurrency
	if concurrency <= 0 {
		concurrency = 2
	}
	submitter, err := ingest.NewSubmitter(client, ingest.SubmitterConfig{
		Chunker:     chunker,
		Concurrency: concurrency,
		Logger:      logger,
	})
	if err != nil {
		closeRedis()
		return nil, fmt.Errorf("init submitter: %w", err)
	}

	return &App{
		client:      client,
		queue:       jobQueue,
		limiter:     limiter,
		store:       store,
		submitter:   submitter,
		chunker:     chunker,
		concurrency: concurrency,
		logger:      logger,
		redis:       redisClient,
		ownsRedis:   ownsRedis,
	}, nil
}

// Client returns the underlying Markov chain client.
func (a *App) Client() *markov.Client { return a.client }

// IngestFile parses the document at path and queues one job per chunk.
func (a *App) IngestFile(ctx context.Context, path string) (IngestResult, error) {
	text, err := ingest.ParseFile(path)
	if err != nil {
		return IngestResult{}, err
	}
	return a.IngestText(ctx, path, text)
}

// IngestObject fetches key from the object store and queues its chunks.
func (a *App) IngestObject(ctx context.Context, key string) (IngestResult, error) {
	if a.store == nil {
		return IngestResult{}, ErrNoObjectStore
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return IngestResult{}, errors.New("object key required")
	}
	data, err := a.store.Get(ctx, key)
	if err != nil {
		return IngestResult{}, err
	}
	text, err := ingest.Parse(key, data)
	if err != nil {
		return IngestResult{}, err
	}
	return a.IngestText(ctx, key, text)
}

// IngestText chunks already extracted text and queues it under source.
func (a *App) IngestText(ctx context.Context, source, text string) (IngestResult, error) {
	chunks := a.chunker.Split(text)
	if len(chunks) == 0 {
		return IngestResult{}, ingest.ErrNoText
	}
	result := IngestResult{Source: source, Jobs: make([]string, 0, len(chunks))}
	for i, chunk := range chunks {
		job, err := a.queue.Enqueue(ctx, source, i, chunk)
		if err != nil {
			return result, fmt.Errorf("enqueue chunk %d: %w", i, err)
		}
		result.Jobs = append(result.Jobs, job.ID)
		result.Bytes += chunk.Len()
	}
	util.LoggerFromContext(ctx, a.logger).Info("ingest_queued",
		"source", source,
		"chunks", len(result.Jobs),
		"bytes", result.Bytes,
	)
	return result, nil
}

// SubmitFile parses path and submits its chunks directly, bypassing the queue.
func (a *App) SubmitFile(ctx context.Context, path string) (ingest.Report, error) {
	return a.submitter.SubmitFile(ctx, path)
}

// Start runs queue workers until ctx ends.
func (a *App) Start(ctx context.Context) {
	a.queue.Start(ctx, a.concurrency, a.handleJob)
}

func (a *App) handleJob(ctx context.Context, job queue.Job) error {
	ctx = util.ContextWithRequestID(ctx, job.ID)
	logger := util.LoggerFromContext(ctx, a.logger)
	if a.limiter != nil && !a.limiter.Allow(ctx, rateLimitKey) {
		logger.Warn("markov_input_throttled", "source", job.Source, "chunk", job.Chunk)
		return ErrRateLimited
	}
	text, err := job.Content()
	if err != nil {
		return fmt.Errorf("job %s: %w", job.ID, err)
	}
	if err := a.client.SubmitInput(ctx, markov.InputPayload{Input: text}); err != nil {
		logger.Warn("markov_input_failed",
			"source", job.Source,
			"chunk", job.Chunk,
			"attempt", job.Attempts,
			"kind", markov.KindOf(err).String(),
			"err", err,
		)
		return err
	}
	logger.Info("markov_input_submitted", "source", job.Source, "chunk", job.Chunk, "bytes", text.Len())
	return nil
}

// Job returns the stored state of a queued chunk.
func (a *App) Job(ctx context.Context, id string) (queue.Job, bool, error) {
	return a.queue.GetJob(ctx, id)
}

// Generate asks the service for text. An empty start and a nil maxLength are
// sent as null.
func (a *App) Generate(ctx context.Context, start string, maxLength *uint) (string, error) {
	payload := markov.GeneratePayload{MaxLength: maxLength}
	if start != "" {
		s, err := content.New(start)
		if err != nil {
			return "", err
		}
		payload = payload.WithStart(s)
	}
	return a.client.Generate(ctx, payload)
}

// Close releases the Redis connection when App created it.
func (a *App) Close() error {
	if a.ownsRedis {
		return a.redis.Close()
	}
	return nil
}
