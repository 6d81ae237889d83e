package service

import (
	"context"
	"encoding/json"
	"time"

	"generation-service/internal/biz"
	genErrors "generation-service/internal/errors"

	"github.com/go-kratos/kratos/v2/log"
)

// 提供商模型标识
const (
	ModelTextToImage  = "fal-ai/wan-25-preview/text-to-image"
	ModelImageToImage = "fal-ai/wan-25-preview/image-to-image"
	ModelTextToVideo  = "fal-ai/wan-25-preview/text-to-video"
	ModelImageToVideo = "fal-ai/wan-25-preview/image-to-video"
)

// TextToImageRequest 文生图请求
type TextToImageRequest struct {
	Prompt string `json:"prompt"`
}

// ImageToImageRequest 图生图请求
type ImageToImageRequest struct {
	Prompt   string `json:"prompt"`
	ImageURL string `json:"image_url"`
}

// TextToVideoRequest 文生视频请求，时长仅支持 5/10 秒
type TextToVideoRequest struct {
	Prompt   string `json:"prompt"`
	Duration int    `json:"duration"`
}

// ImageToVideoRequest 图生视频请求
type ImageToVideoRequest struct {
	Prompt   string `json:"prompt"`
	ImageURL string `json:"image_url"`
	Duration int    `json:"duration"`
}

// JobReply 任务视图
type JobReply struct {
	GenerationJobID string          `json:"generation_job_id"`
	Kind            string          `json:"kind"`
	ModelID         string          `json:"model_id"`
	Status          string          `json:"status"`
	CostTokens      int64           `json:"cost_tokens"`
	Result          json.RawMessage `json:"result,omitempty"`
	ErrorMessage    string          `json:"error_message,omitempty"`
	CreatedAt       string          `json:"created_at"`
	UpdatedAt       string          `json:"updated_at"`
}

// ListJobsReply 任务分页响应
type ListJobsReply struct {
	Jobs []*JobReply `json:"jobs"`
}

// GenerationService 生成任务服务
type GenerationService struct {
	uc         *biz.GenerationUseCase
	dispatcher *biz.Dispatcher
	log        *log.Helper
}

// NewGenerationService 创建 GenerationService
func NewGenerationService(uc *biz.GenerationUseCase, dispatcher *biz.Dispatcher, logger log.Logger) *GenerationService {
	return &GenerationService{
		uc:         uc,
		dispatcher: dispatcher,
		log:        log.NewHelper(logger),
	}
}

// CreateTextToImage 创建文生图任务
func (s *GenerationService) CreateTextToImage(ctx context.Context, req *TextToImageRequest) (*JobReply, error) {
	if req.Prompt == "" {
		return nil, genErrors.ErrorInvalidArgument("prompt is required")
	}
	return s.create(ctx, biz.KindTextToImage, ModelTextToImage, req, 0)
}

// CreateImageToImage 创建图生图任务
func (s *GenerationService) CreateImageToImage(ctx context.Context, req *ImageToImageRequest) (*JobReply, error) {
	if req.Prompt == "" {
		return nil, genErrors.ErrorInvalidArgument("prompt is required")
	}
	if req.ImageURL == "" {
		return nil, genErrors.ErrorInvalidArgument("image_url is required")
	}
	return s.create(ctx, biz.KindImageToImage, ModelImageToImage, req, 0)
}

// CreateTextToVideo 创建文生视频任务
func (s *GenerationService) CreateTextToVideo(ctx context.Context, req *TextToVideoRequest) (*JobReply, error) {
	if req.Prompt == "" {
		return nil, genErrors.ErrorInvalidArgument("prompt is required")
	}
	duration, err := normalizeDuration(req.Duration)
	if err != nil {
		return nil, err
	}
	req.Duration = duration
	return s.create(ctx, biz.KindTextToVideo, ModelTextToVideo, req, duration)
}

// CreateImageToVideo 创建图生视频任务
func (s *GenerationService) CreateImageToVideo(ctx context.Context, req *ImageToVideoRequest) (*JobReply, error) {
	if req.Prompt == "" {
		return nil, genErrors.ErrorInvalidArgument("prompt is required")
	}
	if req.ImageURL == "" {
		return nil, genErrors.ErrorInvalidArgument("image_url is required")
	}
	duration, err := normalizeDuration(req.Duration)
	if err != nil {
		return nil, err
	}
	req.Duration = duration
	return s.create(ctx, biz.KindImageToVideo, ModelImageToVideo, req, duration)
}

// GetJob 查询任务
func (s *GenerationService) GetJob(ctx context.Context, jobID string) (*JobReply, error) {
	account := AccountFromContext(ctx)
	if account == nil {
		return nil, genErrors.ErrorUnauthorized("unauthorized")
	}

	job, err := s.uc.GetJob(ctx, jobID, account)
	if err != nil {
		s.log.Errorf("GetJob failed: job_id=%s, error=%v", jobID, err)
		return nil, err
	}
	if job == nil {
		return nil, genErrors.ErrorJobNotFound("job not found: %s", jobID)
	}
	return toJobReply(job), nil
}

// ListJobs 查询当前账户的任务列表
func (s *GenerationService) ListJobs(ctx context.Context, limit, offset int) (*ListJobsReply, error) {
	account := AccountFromContext(ctx)
	if account == nil {
		return nil, genErrors.ErrorUnauthorized("unauthorized")
	}

	jobs, err := s.uc.ListJobs(ctx, account, limit, offset)
	if err != nil {
		s.log.Errorf("ListJobs failed: %v", err)
		return nil, err
	}

	reply := &ListJobsReply{Jobs: make([]*JobReply, 0, len(jobs))}
	for _, job := range jobs {
		reply.Jobs = append(reply.Jobs, toJobReply(job))
	}
	return reply, nil
}

// CancelJob 取消任务
func (s *GenerationService) CancelJob(ctx context.Context, jobID string) (*JobReply, error) {
	account := AccountFromContext(ctx)
	if account == nil {
		return nil, genErrors.ErrorUnauthorized("unauthorized")
	}

	job, err := s.uc.CancelJob(ctx, jobID, account)
	if err != nil {
		s.log.Errorf("CancelJob failed: job_id=%s, error=%v", jobID, err)
		return nil, err
	}
	return toJobReply(job), nil
}

// create 扣费建任务并调度后台执行，返回 QUEUED 态任务
func (s *GenerationService) create(ctx context.Context, kind, modelID string, payload interface{}, duration int) (*JobReply, error) {
	account := AccountFromContext(ctx)
	if account == nil {
		return nil, genErrors.ErrorUnauthorized("unauthorized")
	}

	input, err := json.Marshal(payload)
	if err != nil {
		return nil, genErrors.ErrorInvalidArgument("invalid request payload: %v", err)
	}

	job, err := s.uc.CreateJob(ctx, account, kind, modelID, input, duration)
	if err != nil {
		s.log.Errorf("CreateJob failed: kind=%s, error=%v", kind, err)
		return nil, err
	}

	s.dispatcher.Dispatch(job.GenerationJobID)
	return toJobReply(job), nil
}

func normalizeDuration(duration int) (int, error) {
	switch duration {
	case 0:
		return 5, nil
	case 5, 10:
		return duration, nil
	}
	return 0, genErrors.ErrorInvalidArgument("duration must be 5 or 10 seconds")
}

func toJobReply(job *biz.GenerationJob) *JobReply {
	return &JobReply{
		GenerationJobID: job.GenerationJobID,
		Kind:            job.Kind,
		ModelID:         job.ModelID,
		Status:          job.Status,
		CostTokens:      job.CostTokens,
		Result:          job.ResultJSON,
		ErrorMessage:    job.ErrorMessage,
		CreatedAt:       job.CreatedAt.Format(time.RFC3339),
		UpdatedAt:       job.UpdatedAt.Format(time.RFC3339),
	}
}
