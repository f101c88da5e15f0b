package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/IBM/sarama"

	"video-essay-pipeline/config"
	"video-essay-pipeline/types"
)

// KafkaIntake turns generation requests published on a topic into jobs.
type KafkaIntake struct {
	group   sarama.ConsumerGroup
	topic   string
	handler *intakeHandler
	log     *slog.Logger
}

func NewKafkaIntake(cfg config.KafkaConfig, d *Dispatcher, logger *slog.Logger) (*KafkaIntake, error) {
	if logger == nil {
		logger = slog.Default()
	}
	sc := sarama.NewConfig()
	sc.Version = sarama.V3_6_0_0
	sc.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	sc.Consumer.Offsets.Initial = sarama.OffsetNewest
	sc.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, sc)
	if err != nil {
		return nil, err
	}
	log := logger.With("component", "kafka")
	return &KafkaIntake{
		group:   group,
		topic:   cfg.Topic,
		handler: &intakeHandler{d: d, log: log},
		log:     log,
	}, nil
}

// Run consumes until ctx is done.
func (k *KafkaIntake) Run(ctx context.Context) error {
	go func() {
		for err := range k.group.Errors() {
			k.log.Error("consumer error", "error", err)
		}
	}()

	k.log.Info("kafka intake started", "topic", k.topic)
	for {
		if err := k.group.Consume(ctx, []string{k.topic}, k.handler); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) || errors.Is(err, context.Canceled) {
				return nil
			}
			k.log.Error("consume failed", "error", err)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (k *KafkaIntake) Close() error {
	return k.group.Close()
}

type intakeHandler struct {
	d   *Dispatcher
	log *slog.Logger
}

func (h *intakeHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *intakeHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *intakeHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if h.handle(session.Context(), msg.Value) {
				session.MarkMessage(msg, "")
			}
		case <-session.Context().Done():
			return nil
		}
	}
}

// handle reports whether the message is done with. Malformed and invalid
// requests are consumed and dropped; store failures leave the offset so
// the message is redelivered.
func (h *intakeHandler) handle(ctx context.Context, value []byte) bool {
	var req types.GenerationRequest
	if err := json.Unmarshal(value, &req); err != nil {
		h.log.Warn("dropping malformed request", "error", err)
		return true
	}
	st, err := h.d.Submit(ctx, req)
	if errors.Is(err, types.ErrInvalidRequest) {
		h.log.Warn("dropping invalid request", "title", req.Title, "error", err)
		return true
	}
	if err != nil {
		h.log.Error("submit failed", "title", req.Title, "error", err)
		return false
	}
	h.log.Info("request accepted", "job", st.ID)
	return true
}
