package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
	log "github.com/sirupsen/logrus"
)

const (
	Channel     = "tos:analysis_progress"
	MessageType = "analysis_progress"
)

// 分析进度阶段
const (
	StepPreprocessing = "preprocessing"
	StepAnalyzing     = "analyzing"
	StepRetrying      = "retrying"
	StepParsing       = "parsing"
	StepDone          = "done"
	StepFailed        = "failed"
)

// 用户可见的文案，不能出现具体模型或服务商名称
var steps = map[string]struct {
	progress int
	message  string
}{
	StepPreprocessing: {10, "Preparing document"},
	StepAnalyzing:     {30, "Analyzing document"},
	StepRetrying:      {50, "Still working, trying another route"},
	StepParsing:       {80, "Building report"},
	StepDone:          {100, "Analysis complete"},
	StepFailed:        {100, "Analysis failed"},
}

// ProgressMessage 推送给前端的进度
type ProgressMessage struct {
	Type       string `json:"type"`
	UserID     int64  `json:"user_id"`
	AnalysisID int64  `json:"analysis_id"`
	Status     string `json:"status"`
	Step       string `json:"step"`
	Progress   int    `json:"progress"`
	Message    string `json:"message,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Fill 按阶段补全类型、百分比和文案，已设置的字段不覆盖
func Fill(msg *ProgressMessage) {
	msg.Type = MessageType
	s, ok := steps[msg.Step]
	if !ok {
		return
	}
	if msg.Progress == 0 {
		msg.Progress = s.progress
	}
	if msg.Message == "" {
		msg.Message = s.message
	}
}

// Publisher 多实例部署时经 Redis 广播进度
type Publisher struct {
	client *redis.Client
}

func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client}
}

func (p *Publisher) PublishProgress(ctx context.Context, msg *ProgressMessage) error {
	Fill(msg)
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}
	return p.client.Publish(ctx, Channel, data).Err()
}

type Subscriber struct {
	client *redis.Client
}

func NewSubscriber(client *redis.Client) *Subscriber {
	return &Subscriber{client: client}
}

// Subscribe 阻塞直到 ctx 结束或连接关闭
func (s *Subscriber) Subscribe(ctx context.Context, handle func(*ProgressMessage)) error {
	ps := s.client.Subscribe(ctx, Channel)
	defer ps.Close()

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			var msg ProgressMessage
			if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
				log.WithError(err).Warn("pubsub: dropping malformed progress message")
				continue
			}
			handle(&msg)
		}
	}
}
