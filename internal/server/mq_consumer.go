package server

import (
	"context"
	"encoding/json"

	"generation-service/internal/biz"
	"generation-service/internal/conf"

	"github.com/apache/rocketmq-client-go/v2"
	"github.com/apache/rocketmq-client-go/v2/consumer"
	"github.com/apache/rocketmq-client-go/v2/primitive"
	"github.com/go-kratos/kratos/v2/log"
)

// TopupEvent 支付系统投递的充值事件
// EventID 为幂等去重键，与回调接口共用同一结算入口
type TopupEvent struct {
	ExternalUserID string `json:"external_user_id"`
	Amount         int64  `json:"amount"`
	EventID        string `json:"event_id"`
}

// MQConsumerServer consumes topup events from RocketMQ
type MQConsumerServer struct {
	c          rocketmq.PushConsumer
	settlement *biz.SettlementUseCase
	conf       *conf.Data
	log        *log.Helper
	enabled    bool
}

// NewMQConsumerServer creates a RocketMQ consumer server
func NewMQConsumerServer(c *conf.Bootstrap, settlement *biz.SettlementUseCase, logger log.Logger) *MQConsumerServer {
	if c.Data == nil || c.Data.Rocketmq == nil || !c.Data.Rocketmq.Enabled {
		return &MQConsumerServer{enabled: false}
	}

	r, err := rocketmq.NewPushConsumer(
		consumer.WithNsResolver(primitive.NewPassthroughResolver(c.Data.Rocketmq.NameServers)),
		consumer.WithGroupName(c.Data.Rocketmq.GroupName),
		consumer.WithRetry(int(c.Data.Rocketmq.RetryTimes)),
	)
	if err != nil {
		log.NewHelper(logger).Errorf("init consumer error: %v", err)
		return &MQConsumerServer{enabled: false}
	}

	return &MQConsumerServer{
		c:          r,
		settlement: settlement,
		conf:       c.Data,
		log:        log.NewHelper(logger),
		enabled:    true,
	}
}

// Start starts the consumer
func (s *MQConsumerServer) Start(ctx context.Context) error {
	if !s.enabled || s.c == nil {
		s.log.Infof("MQConsumerServer is disabled, skipping startup")
		return nil
	}

	s.log.Infof("Starting MQConsumerServer, topic: %s", s.conf.Rocketmq.Topic)

	err := s.c.Subscribe(s.conf.Rocketmq.Topic, consumer.MessageSelector{}, s.handler)
	if err != nil {
		s.log.Errorf("Failed to subscribe to topic %s: %v", s.conf.Rocketmq.Topic, err)
		// 不返回错误，避免 MQ 不可用时拖垮整个应用启动
		return nil
	}

	if err := s.c.Start(); err != nil {
		s.log.Errorf("Failed to start RocketMQ consumer: %v", err)
		return nil
	}

	return nil
}

// Stop stops the consumer
func (s *MQConsumerServer) Stop(ctx context.Context) error {
	if !s.enabled || s.c == nil {
		return nil
	}
	s.log.Info("Stopping MQConsumerServer")
	return s.c.Shutdown()
}

func (s *MQConsumerServer) handler(ctx context.Context, msgs ...*primitive.MessageExt) (consumer.ConsumeResult, error) {
	for _, msg := range msgs {
		var event TopupEvent
		if err := json.Unmarshal(msg.Body, &event); err != nil {
			s.log.Errorf("Unmarshal message failed: %v, body: %s", err, string(msg.Body))
			continue
		}
		if event.ExternalUserID == "" || event.Amount <= 0 {
			s.log.Warnf("Invalid topup event, body: %s", string(msg.Body))
			continue
		}

		// 结算内部按事件号去重，消费重试安全
		if _, err := s.settlement.HandleTopup(ctx, event.ExternalUserID, event.Amount, event.EventID); err != nil {
			s.log.Errorf("HandleTopup from MQ failed: event_id=%s, error=%v", event.EventID, err)
			return consumer.ConsumeRetryLater, nil
		}
	}
	return consumer.ConsumeSuccess, nil
}
