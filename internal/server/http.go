package server

import (
	"strconv"
	"time"

	"generation-service/internal/biz"
	"generation-service/internal/conf"
	"generation-service/internal/constants"
	"generation-service/internal/service"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/middleware/recovery"
	"github.com/go-kratos/kratos/v2/transport/http"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewHTTPServer 创建 HTTP 服务器
func NewHTTPServer(
	c *conf.Bootstrap,
	accounts *biz.AccountUseCase,
	accountSvc *service.AccountService,
	generationSvc *service.GenerationService,
	webhookSvc *service.WebhookService,
	logger log.Logger,
) *http.Server {
	var opts = []http.ServerOption{
		http.Middleware(
			recovery.Recovery(),
		),
	}
	if c.Server != nil && c.Server.Http != nil {
		if c.Server.Http.Network != "" {
			opts = append(opts, http.Network(c.Server.Http.Network))
		}
		if c.Server.Http.Addr != "" {
			opts = append(opts, http.Address(c.Server.Http.Addr))
		}
		if c.Server.Http.TimeoutSeconds > 0 {
			opts = append(opts, http.Timeout(time.Duration(c.Server.Http.TimeoutSeconds)*time.Second))
		}
	}
	srv := http.NewServer(opts...)
	srv.Handle("/metrics", promhttp.Handler())

	h := &httpHandlers{
		accounts:      accounts,
		accountSvc:    accountSvc,
		generationSvc: generationSvc,
		webhookSvc:    webhookSvc,
		log:           log.NewHelper(logger),
	}
	h.register(srv)
	return srv
}

// httpHandlers HTTP 路由处理
type httpHandlers struct {
	accounts      *biz.AccountUseCase
	accountSvc    *service.AccountService
	generationSvc *service.GenerationService
	webhookSvc    *service.WebhookService
	log           *log.Helper
}

func (h *httpHandlers) register(srv *http.Server) {
	r := srv.Route("/v1")

	// 账户
	r.POST("/accounts/register", h.registerAccount)
	r.GET("/balance", h.getBalance)
	r.GET("/ledger", h.listLedger)

	// 生成任务
	r.POST("/generations/text-to-image", h.createTextToImage)
	r.POST("/generations/image-to-image", h.createImageToImage)
	r.POST("/generations/text-to-video", h.createTextToVideo)
	r.POST("/generations/image-to-video", h.createImageToVideo)
	r.GET("/generations", h.listJobs)
	r.GET("/generations/{id}", h.getJob)
	r.POST("/generations/{id}/cancel", h.cancelJob)

	// 支付回调
	r.POST("/webhooks/topup", h.handleTopup)
}

// authenticate 校验 X-API-Key 并将账户写入上下文
func (h *httpHandlers) authenticate(ctx http.Context) (http.Context, error) {
	apiKey := ctx.Header().Get(constants.HeaderAPIKey)
	account, err := h.accounts.Authenticate(ctx, apiKey)
	if err != nil {
		return nil, err
	}
	ctx.Reset(ctx.Response(), ctx.Request().WithContext(
		service.NewContextWithAccount(ctx.Request().Context(), account)))
	return ctx, nil
}

func (h *httpHandlers) registerAccount(ctx http.Context) error {
	var req service.RegisterRequest
	if err := ctx.Bind(&req); err != nil {
		return err
	}
	reply, err := h.accountSvc.Register(ctx, &req)
	if err != nil {
		return err
	}
	return ctx.Result(201, reply)
}

func (h *httpHandlers) getBalance(ctx http.Context) error {
	ctx, err := h.authenticate(ctx)
	if err != nil {
		return err
	}
	reply, err := h.accountSvc.GetBalance(ctx.Request().Context())
	if err != nil {
		return err
	}
	return ctx.Result(200, reply)
}

func (h *httpHandlers) listLedger(ctx http.Context) error {
	ctx, err := h.authenticate(ctx)
	if err != nil {
		return err
	}
	limit, offset := pageParams(ctx)
	reply, err := h.accountSvc.ListLedger(ctx.Request().Context(), limit, offset)
	if err != nil {
		return err
	}
	return ctx.Result(200, reply)
}

func (h *httpHandlers) createTextToImage(ctx http.Context) error {
	ctx, err := h.authenticate(ctx)
	if err != nil {
		return err
	}
	var req service.TextToImageRequest
	if err := ctx.Bind(&req); err != nil {
		return err
	}
	reply, err := h.generationSvc.CreateTextToImage(ctx.Request().Context(), &req)
	if err != nil {
		return err
	}
	return ctx.Result(202, reply)
}

func (h *httpHandlers) createImageToImage(ctx http.Context) error {
	ctx, err := h.authenticate(ctx)
	if err != nil {
		return err
	}
	var req service.ImageToImageRequest
	if err := ctx.Bind(&req); err != nil {
		return err
	}
	reply, err := h.generationSvc.CreateImageToImage(ctx.Request().Context(), &req)
	if err != nil {
		return err
	}
	return ctx.Result(202, reply)
}

func (h *httpHandlers) createTextToVideo(ctx http.Context) error {
	ctx, err := h.authenticate(ctx)
	if err != nil {
		return err
	}
	var req service.TextToVideoRequest
	if err := ctx.Bind(&req); err != nil {
		return err
	}
	reply, err := h.generationSvc.CreateTextToVideo(ctx.Request().Context(), &req)
	if err != nil {
		return err
	}
	return ctx.Result(202, reply)
}

func (h *httpHandlers) createImageToVideo(ctx http.Context) error {
	ctx, err := h.authenticate(ctx)
	if err != nil {
		return err
	}
	var req service.ImageToVideoRequest
	if err := ctx.Bind(&req); err != nil {
		return err
	}
	reply, err := h.generationSvc.CreateImageToVideo(ctx.Request().Context(), &req)
	if err != nil {
		return err
	}
	return ctx.Result(202, reply)
}

func (h *httpHandlers) listJobs(ctx http.Context) error {
	ctx, err := h.authenticate(ctx)
	if err != nil {
		return err
	}
	limit, offset := pageParams(ctx)
	reply, err := h.generationSvc.ListJobs(ctx.Request().Context(), limit, offset)
	if err != nil {
		return err
	}
	return ctx.Result(200, reply)
}

func (h *httpHandlers) getJob(ctx http.Context) error {
	ctx, err := h.authenticate(ctx)
	if err != nil {
		return err
	}
	reply, err := h.generationSvc.GetJob(ctx.Request().Context(), pathParam(ctx, "id"))
	if err != nil {
		return err
	}
	return ctx.Result(200, reply)
}

func (h *httpHandlers) cancelJob(ctx http.Context) error {
	ctx, err := h.authenticate(ctx)
	if err != nil {
		return err
	}
	reply, err := h.generationSvc.CancelJob(ctx.Request().Context(), pathParam(ctx, "id"))
	if err != nil {
		return err
	}
	return ctx.Result(200, reply)
}

func (h *httpHandlers) handleTopup(ctx http.Context) error {
	var req service.TopupRequest
	if err := ctx.Bind(&req); err != nil {
		return err
	}
	req.Secret = ctx.Header().Get(constants.HeaderWebhookSecret)
	req.EventID = ctx.Header().Get(constants.HeaderEventID)

	reply, err := h.webhookSvc.HandleTopup(ctx.Request().Context(), &req)
	if err != nil {
		return err
	}
	return ctx.Result(200, reply)
}

func pageParams(ctx http.Context) (limit, offset int) {
	limit, _ = strconv.Atoi(ctx.Query().Get("limit"))
	offset, _ = strconv.Atoi(ctx.Query().Get("offset"))
	return limit, offset
}

func pathParam(ctx http.Context, name string) string {
	raw := ctx.Vars().Get(name)
	return raw
}
