package container

import (
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/docvault/docvault/cmd/docserver/repository"
	"github.com/docvault/docvault/cmd/docserver/service"
	"github.com/docvault/docvault/cmd/docserver/storage"
	"github.com/docvault/docvault/common/bootstrap"
	rediscommon "github.com/docvault/docvault/common/redis"
)

// Container holds all initialized services and repositories (singleton pattern)
type Container struct {
	// Components
	Components *bootstrap.Components
	Redis      *rediscommon.Client
	RedisRaw   *redis.Client

	// Repositories
	BlobRepo  *repository.BlobRepository
	NodeRepo  *repository.NodeRepository
	RightRepo *repository.RightRepository

	// Storage
	DiskStore *storage.DiskStore

	// Services
	BlobStore        *service.BlobStore
	TreeService      *service.TreeService
	RightService     *service.RightService
	AccessChecker    service.AccessChecker
	Reaper           *service.Reaper
	Scheduler        *service.Scheduler
	TicketService    *service.TicketService
	ThumbnailService *service.ThumbnailService
	ArchiveService   *service.ArchiveService
}

// Option customizes container wiring
type Option func(*settings)

type settings struct {
	roster  service.Roster
	flusher service.ExternalFlusher
}

// WithRoster plugs in the external group roster that group-root
// containers reconcile against. Without it reconciliation is a no-op.
func WithRoster(r service.Roster) Option {
	return func(s *settings) { s.roster = r }
}

// WithExternalFlusher plugs in the co-editing flush hook consulted
// before external-document content is read
func WithExternalFlusher(f service.ExternalFlusher) Option {
	return func(s *settings) { s.flusher = f }
}

// NewContainer initializes all services and repositories once
func NewContainer(components *bootstrap.Components, opts ...Option) (*Container, error) {
	cfg := components.Config

	var set settings
	for _, opt := range opts {
		opt(&set)
	}

	redisRaw := createRedisClient(components)
	redisClient := rediscommon.NewClient(redisRaw, components.Logger)

	// Initialize repositories
	blobRepo := repository.NewBlobRepository(components.DB)
	nodeRepo := repository.NewNodeRepository(components.DB)
	rightRepo := repository.NewRightRepository(components.DB)

	// Durable payload store on local disk
	diskStore, err := storage.NewDiskStore(cfg.Storage.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize disk store: %w", err)
	}

	// Initialize services (bottom-up: dependencies first)
	blobStore := service.NewBlobStore(blobRepo, diskStore, components.Logger)
	treeService := service.NewTreeService(nodeRepo, blobStore, set.roster, set.flusher, components.Logger)
	rightService := service.NewRightService(rightRepo, components.Logger)
	accessChecker := service.NewDefaultAccessChecker(treeService, rightRepo, components.Cache, components.Logger)

	reaper := service.NewReaper(blobRepo, diskStore, cfg.Reaper.Interval, cfg.Reaper.Grace, components.Logger)

	runner := service.NewFFmpegRunner(cfg.Transcode, components.Logger)
	scheduler := service.NewScheduler(
		blobStore,
		treeService,
		runner,
		cfg.Transcode.ScratchDir,
		cfg.Transcode.PublicBaseURL,
		components.Logger,
	)

	ticketService := service.NewTicketService(redisClient, cfg.Thumbnail.TicketTTL, components.Logger)

	sampler := service.NewFFmpegSampler(cfg.Transcode, components.Logger)
	thumbnailService := service.NewThumbnailService(
		blobStore,
		treeService,
		ticketService,
		sampler,
		nil, // default HTTP client
		cfg.Thumbnail,
		cfg.Transcode.PublicBaseURL,
		cfg.Transcode.ScratchDir,
		components.Logger,
	)

	archiveService := service.NewArchiveService(treeService, blobStore, accessChecker, components.Logger)

	return &Container{
		Components:       components,
		Redis:            redisClient,
		RedisRaw:         redisRaw,
		BlobRepo:         blobRepo,
		NodeRepo:         nodeRepo,
		RightRepo:        rightRepo,
		DiskStore:        diskStore,
		BlobStore:        blobStore,
		TreeService:      treeService,
		RightService:     rightService,
		AccessChecker:    accessChecker,
		Reaper:           reaper,
		Scheduler:        scheduler,
		TicketService:    ticketService,
		ThumbnailService: thumbnailService,
		ArchiveService:   archiveService,
	}, nil
}

// createRedisClient creates a Redis client from the loaded configuration
func createRedisClient(components *bootstrap.Components) *redis.Client {
	cfg := components.Config

	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}
