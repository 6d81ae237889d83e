package biz

import (
	"fmt"

	"generation-service/internal/conf"
)

// 内置默认价格表（代币），可被外部配置覆盖
var defaultTokenPrices = map[string]int64{
	"text_to_image":      5,
	"image_to_image":     6,
	"text_to_video_5s":   30,
	"text_to_video_10s":  55,
	"image_to_video_5s":  35,
	"image_to_video_10s": 65,
}

// PricingConfig 价格配置
type PricingConfig struct {
	TokenPrices map[string]int64
}

// NewPricingConfig 从配置创建价格表：默认值打底，配置项覆盖
func NewPricingConfig(c *conf.Bootstrap) *PricingConfig {
	prices := make(map[string]int64, len(defaultTokenPrices))
	for k, v := range defaultTokenPrices {
		prices[k] = v
	}
	if c != nil && c.Billing != nil {
		for k, v := range c.Billing.TokenPrices {
			prices[k] = v
		}
	}
	return &PricingConfig{TokenPrices: prices}
}

// Cost 按类型与视频时长档位取价
// 视频只有 5s 和 10s 两档，非 10 一律按 5s 档计
func (p *PricingConfig) Cost(kind string, duration int) (int64, error) {
	switch kind {
	case KindTextToImage:
		return p.TokenPrices["text_to_image"], nil
	case KindImageToImage:
		return p.TokenPrices["image_to_image"], nil
	case KindTextToVideo:
		if duration == 10 {
			return p.TokenPrices["text_to_video_10s"], nil
		}
		return p.TokenPrices["text_to_video_5s"], nil
	case KindImageToVideo:
		if duration == 10 {
			return p.TokenPrices["image_to_video_10s"], nil
		}
		return p.TokenPrices["image_to_video_5s"], nil
	}
	return 0, fmt.Errorf("unknown generation kind: %s", kind)
}
