package handler

import (
	"log/slog"

	"github.com/cuongbtq/gigmarket-be/internal/api/service"
	"github.com/cuongbtq/gigmarket-be/internal/filestore"
)

// DefaultMaxUploadSize bounds a multipart upload request when the server
// config leaves it unset.
const DefaultMaxUploadSize int64 = 32 << 20

// MaxUploadFiles is the number of files accepted by one upload request.
const MaxUploadFiles = 5

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger        *slog.Logger
	Services      *service.Services
	Uploader      *filestore.Uploader
	MaxUploadSize int64
}

// JobHandler handles job and escrow HTTP requests
type JobHandler struct {
	logger  *slog.Logger
	jobs    *service.JobService
	escrows *service.EscrowService
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{
		logger:  deps.Logger,
		jobs:    deps.Services.Jobs,
		escrows: deps.Services.Escrows,
	}
}

// ApplicationHandler handles application HTTP requests
type ApplicationHandler struct {
	logger       *slog.Logger
	applications *service.ApplicationService
}

func NewApplicationHandler(deps *Dependencies) *ApplicationHandler {
	return &ApplicationHandler{
		logger:       deps.Logger,
		applications: deps.Services.Applications,
	}
}

// SubmissionHandler handles work submission HTTP requests
type SubmissionHandler struct {
	logger      *slog.Logger
	submissions *service.SubmissionService
}

func NewSubmissionHandler(deps *Dependencies) *SubmissionHandler {
	return &SubmissionHandler{
		logger:      deps.Logger,
		submissions: deps.Services.Submissions,
	}
}

// MessageHandler handles job message HTTP requests
type MessageHandler struct {
	logger   *slog.Logger
	messages *service.MessageService
}

func NewMessageHandler(deps *Dependencies) *MessageHandler {
	return &MessageHandler{
		logger:   deps.Logger,
		messages: deps.Services.Messages,
	}
}

// UserHandler handles the caller's profile
type UserHandler struct {
	logger *slog.Logger
	users  *service.UserService
}

func NewUserHandler(deps *Dependencies) *UserHandler {
	return &UserHandler{
		logger: deps.Logger,
		users:  deps.Services.Users,
	}
}

// UploadHandler stores submission attachments
type UploadHandler struct {
	logger   *slog.Logger
	uploader *filestore.Uploader
	maxSize  int64
}

func NewUploadHandler(deps *Dependencies) *UploadHandler {
	maxSize := deps.MaxUploadSize
	if maxSize <= 0 {
		maxSize = DefaultMaxUploadSize
	}
	return &UploadHandler{
		logger:   deps.Logger,
		uploader: deps.Uploader,
		maxSize:  maxSize,
	}
}
