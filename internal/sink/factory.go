package sink

import (
	"fmt"
	"strings"

	"serverstats/internal/config"
	"serverstats/internal/logger"
)

// New creates the Publisher selected by cfg.Type.
func New(cfg config.SinkConfig, meta Meta) (Publisher, error) {
	sinkType := strings.ToLower(cfg.Type)
	if sinkType == "" {
		sinkType = "file"
	}

	log := logger.WithComponent("sink-factory")
	log.Info().
		Str("sink_type", sinkType).
		Str("agent_id", meta.AgentID).
		Msg("Creating sink")

	var (
		p   Publisher
		err error
	)
	switch sinkType {
	case "file":
		p, err = NewFileSink(cfg.File, meta)
	case "kafka":
		p, err = NewKafkaSink(cfg.Kafka, cfg.SOCKSProxy, meta)
	case "redis":
		p, err = NewRedisSink(cfg.Redis, cfg.SOCKSProxy, meta)
	default:
		return nil, fmt.Errorf("unknown sink type: %s (supported: file, kafka, redis)", sinkType)
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}
