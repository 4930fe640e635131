package di

import (
	"fmt"

	"github.com/aihub/classroom-rag/internal/config"
	"github.com/aihub/classroom-rag/internal/knowledge"
	"github.com/aihub/classroom-rag/internal/llm"
	"github.com/aihub/classroom-rag/internal/repository"
	"github.com/aihub/classroom-rag/internal/services"
	"github.com/aihub/classroom-rag/internal/storage"
	"go.uber.org/dig"
	"gorm.io/gorm"
)

// Infrastructure bootstrap 打开的外部资源，可选项为空时服务使用本地默认实现
type Infrastructure struct {
	Config   *config.Config
	DB       *gorm.DB
	Blobs    storage.BlobStore
	Embedder knowledge.Embedder
	Index    knowledge.VectorIndex
	Backend  llm.Backend
	Metrics  *services.Metrics

	Locker services.DocumentLocker
	Status services.StatusCache
	Events services.EventPublisher
}

// Services 容器构建出的业务服务
type Services struct {
	dig.In

	Classrooms *services.ClassroomService
	Ingestion  *services.IngestionService
	Retriever  *services.Retriever
	Lessons    *services.LessonService
	Syllabus   *services.SyllabusService
	Questions  *services.QuestionService
	Users      repository.UserRepository
	Metrics    *services.Metrics
}

// RegisterProviders 注册仓库与服务的构造函数
func RegisterProviders(container *dig.Container, infra *Infrastructure) error {
	if infra == nil || infra.Config == nil {
		return fmt.Errorf("infrastructure not initialised")
	}
	cfg := infra.Config

	providers := []interface{}{
		func() *Infrastructure { return infra },
		func() *config.Config { return cfg },
		func() *services.Metrics { return infra.Metrics },

		// 仓库
		func() *gorm.DB { return infra.DB },
		repository.NewDocumentRepository,
		repository.NewClassroomRepository,
		repository.NewLessonRepository,
		repository.NewUserRepository,
		repository.NewQuestionRepository,

		func() (*knowledge.Chunker, error) {
			return knowledge.NewChunker(cfg.Ingestion.ChunkSize, cfg.Ingestion.ChunkOverlap)
		},

		services.NewClassroomService,

		func(docs repository.DocumentRepository, classrooms repository.ClassroomRepository, chunker *knowledge.Chunker) *services.IngestionService {
			return services.NewIngestionService(services.IngestionDeps{
				Documents:     docs,
				Classrooms:    classrooms,
				Blobs:         infra.Blobs,
				Chunker:       chunker,
				Embedder:      infra.Embedder,
				Index:         infra.Index,
				Locker:        infra.Locker,
				Status:        infra.Status,
				Events:        infra.Events,
				Metrics:       infra.Metrics,
				EmbedBatch:    cfg.Ingestion.EmbedBatch,
				EmbedParallel: cfg.Ingestion.EmbedParallel,
				MaxUploadSize: cfg.Ingestion.MaxUploadSize,
			})
		},

		func() *services.Retriever {
			return services.NewRetriever(infra.Embedder, infra.Index, cfg.Retrieval.TopK, infra.Metrics)
		},

		func() *services.Synthesizer {
			return services.NewSynthesizer(infra.Backend, float32(cfg.Generation.Temperature), infra.Metrics)
		},

		func(docs repository.DocumentRepository, lessons repository.LessonRepository, classrooms repository.ClassroomRepository,
			retriever *services.Retriever, synth *services.Synthesizer) *services.LessonService {
			return services.NewLessonService(docs, lessons, classrooms, retriever, infra.Index, synth)
		},

		func(docs repository.DocumentRepository, classrooms repository.ClassroomRepository) *services.SyllabusService {
			return services.NewSyllabusService(docs, classrooms, infra.Index, infra.Backend,
				cfg.Generation.ValidatorAttempts, infra.Metrics)
		},

		func(docs repository.DocumentRepository, questions repository.QuestionRepository,
			classrooms repository.ClassroomRepository, chunker *knowledge.Chunker) *services.QuestionService {
			return services.NewQuestionService(docs, questions, classrooms, infra.Index, infra.Backend,
				chunker.Overlap(), float32(cfg.Generation.Temperature), cfg.Generation.ValidatorAttempts, infra.Metrics)
		},
	}

	for _, p := range providers {
		if err := container.Provide(p); err != nil {
			return fmt.Errorf("register provider: %w", err)
		}
	}
	return nil
}

// Build 注册并解析全部服务
func Build(infra *Infrastructure) (*Services, error) {
	container := dig.New()
	if err := RegisterProviders(container, infra); err != nil {
		return nil, err
	}
	var out *Services
	err := container.Invoke(func(s Services) {
		out = &s
	})
	if err != nil {
		return nil, fmt.Errorf("resolve services: %w", err)
	}
	return out, nil
}
