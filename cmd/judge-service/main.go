package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"

	_ "github.com/go-sql-driver/mysql"
	"github.com/zeromicro/go-zero/core/conf"
	"github.com/zeromicro/go-zero/core/stores/sqlx"
	"github.com/zeromicro/go-zero/rest"
	"go.uber.org/zap"

	cachex "gavel/internal/common/cache"
	"gavel/internal/common/mq"
	"gavel/internal/common/storage"
	"gavel/internal/contest"
	"gavel/internal/dispatch"
	"gavel/internal/handler"
	"gavel/internal/judge/language"
	"gavel/internal/judge/sandbox"
	"gavel/internal/judge/service"
	"gavel/internal/leaderboard"
	"gavel/internal/notify"
	"gavel/internal/submission"
	"gavel/pkg/logger"
)

var configFile = flag.String("f", "etc/judge-service.yaml", "config file")

func main() {
	flag.Parse()

	var c Config
	conf.MustLoad(*configFile, &c)
	c.applyDefaults()
	if err := c.validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	zl, err := logger.New(c.Log)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	conn := sqlx.NewMysql(c.MySQL.DataSource)
	subs := submission.NewSQLStore(conn)
	contests := contest.NewSQLStore(conn)

	attachments, err := storage.NewMinIOStore(storage.MinIOConfig{
		Endpoint:  c.MinIO.Endpoint,
		AccessKey: c.MinIO.AccessKey,
		SecretKey: c.MinIO.SecretKey,
		UseSSL:    c.MinIO.UseSSL,
		Bucket:    c.MinIO.Bucket,
	})
	if err != nil {
		zl.Fatal("init object storage", zap.Error(err))
	}

	var cache cachex.Cache
	if c.Redis.Addr != "" {
		redisCfg := cachex.DefaultRedisConfig()
		redisCfg.Addr = c.Redis.Addr
		redisCfg.Password = c.Redis.Password
		redisCfg.DB = c.Redis.DB
		redisCache, err := cachex.NewRedisCacheWithConfig(redisCfg)
		if err != nil {
			zl.Fatal("init redis cache", zap.Error(err))
		}
		defer redisCache.Close()
		cache = redisCache
	} else {
		zl.Warn("redis not configured, leaderboard cache disabled")
	}

	queue, err := mq.NewKafkaQueue(mq.KafkaConfig{
		Brokers:  c.Kafka.Brokers,
		ClientID: c.Kafka.ClientID,
	})
	if err != nil {
		zl.Fatal("init kafka", zap.Error(err))
	}
	defer queue.Close()

	specs := append(language.DefaultSpecs(), c.Languages...)
	registry, err := language.NewRegistry(specs)
	if err != nil {
		zl.Fatal("init language registry", zap.Error(err))
	}

	engine := sandbox.NewDockerEngine(sandbox.DockerConfig{
		Binary:               c.Sandbox.Binary,
		ContainerWorkDir:     c.Sandbox.ContainerWorkDir,
		MaxOutputBytes:       c.Sandbox.MaxOutputBytes,
		DefaultMemoryLimitMB: c.Sandbox.DefaultMemoryLimitMB,
		PidsLimit:            c.Sandbox.PidsLimit,
	}, zl)
	runner := sandbox.NewRunner(engine, sandbox.RunnerOptions{ExactMatch: c.Judge.ExactMatch}, zl)

	policy := dispatch.NewPolicy(queue, c.Kafka.JudgeTopic, zl)
	sink := notify.NewKafkaSink(queue, c.Kafka.EventTopic, zl)

	svc, err := service.NewService(service.Config{
		PoolSize:     c.Judge.PoolSize,
		WorkDirRoot:  c.Judge.WorkDirRoot,
		OutputBucket: c.MinIO.OutputBucket,
	}, subs, contests, attachments, registry, runner, policy, sink, zl)
	if err != nil {
		zl.Fatal("init judge service", zap.Error(err))
	}

	boards := leaderboard.NewService(contests, subs, cache, zl)

	ctx := context.Background()
	err = queue.Subscribe(ctx, c.Kafka.JudgeTopic, svc.HandleMessage, &mq.SubscribeOptions{
		ConsumerGroup:   c.Kafka.ConsumerGroup,
		Concurrency:     c.Judge.PoolSize,
		MaxRetries:      c.Kafka.MaxRetries,
		DeadLetterTopic: c.Kafka.FailedTopic,
	})
	if err != nil {
		zl.Fatal("subscribe judge topic", zap.Error(err))
	}
	err = queue.Subscribe(ctx, c.Kafka.FailedTopic, svc.HandleFailedMessage, &mq.SubscribeOptions{
		ConsumerGroup: c.Kafka.ConsumerGroup + "-failed",
	})
	if err != nil {
		zl.Fatal("subscribe failed topic", zap.Error(err))
	}
	err = queue.Subscribe(ctx, c.Kafka.EventTopic, invalidateOnUpdate(boards, zl), &mq.SubscribeOptions{
		ConsumerGroup: c.Kafka.ConsumerGroup + "-events",
	})
	if err != nil {
		zl.Fatal("subscribe event topic", zap.Error(err))
	}
	if err := queue.Start(); err != nil {
		zl.Fatal("start consumers", zap.Error(err))
	}
	defer func() { _ = queue.Stop() }()

	server := rest.MustNewServer(c.RestConf)
	defer server.Stop()
	handler.RegisterHandlers(server, subs, boards)

	zl.Info("judge service starting",
		zap.String("addr", c.Host), zap.Int("port", c.Port),
		zap.Strings("brokers", c.Kafka.Brokers),
		zap.Int("pool_size", c.Judge.PoolSize))
	server.Start()
}

// invalidateOnUpdate drops the cached leaderboard whenever a submission
// verdict changes, so public reads rebuild on the next request.
func invalidateOnUpdate(boards *leaderboard.Service, zl *zap.Logger) mq.HandlerFunc {
	return func(ctx context.Context, msg *mq.Message) error {
		var event notify.Event
		if err := json.Unmarshal(msg.Body, &event); err != nil {
			zl.Warn("dropping malformed contest event", zap.Error(err))
			return nil
		}
		if event.Type == notify.EventSubmissionUpdated {
			boards.Invalidate(ctx, event.ContestID)
		}
		return nil
	}
}
