package main

import (
	"os"

	"github.com/zeromicro/go-zero/rest"

	"gavel/internal/judge/language"
	"gavel/pkg/errors"
	"gavel/pkg/logger"
)

type MySQLConf struct {
	DataSource string
}

type RedisConf struct {
	Addr     string `json:",optional"`
	Password string `json:",optional"`
	DB       int    `json:",optional"`
}

type KafkaConf struct {
	Brokers       []string
	ClientID      string `json:",optional"`
	ConsumerGroup string `json:",optional"`
	JudgeTopic    string `json:",optional"`
	FailedTopic   string `json:",optional"`
	EventTopic    string `json:",optional"`
	MaxRetries    int    `json:",optional"`
}

type MinIOConf struct {
	Endpoint     string
	AccessKey    string
	SecretKey    string
	UseSSL       bool   `json:",optional"`
	Bucket       string `json:",optional"`
	OutputBucket string `json:",optional"`
}

type SandboxConf struct {
	Binary               string `json:",optional"`
	ContainerWorkDir     string `json:",optional"`
	MaxOutputBytes       int64  `json:",optional"`
	DefaultMemoryLimitMB int64  `json:",optional"`
	PidsLimit            int    `json:",optional"`
}

type JudgeConf struct {
	PoolSize    int    `json:",optional"`
	WorkDirRoot string `json:",optional"`
	ExactMatch  bool   `json:",optional"`
}

type Config struct {
	rest.RestConf

	Log       logger.Config `json:",optional"`
	MySQL     MySQLConf
	Redis     RedisConf `json:",optional"`
	Kafka     KafkaConf
	MinIO     MinIOConf
	Sandbox   SandboxConf     `json:",optional"`
	Judge     JudgeConf       `json:",optional"`
	Languages []language.Spec `json:",optional"`
}

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Kafka.ClientID == "" {
		c.Kafka.ClientID = "judge-service"
	}
	if c.Kafka.ConsumerGroup == "" {
		c.Kafka.ConsumerGroup = "judge-service"
	}
	if c.Kafka.JudgeTopic == "" {
		c.Kafka.JudgeTopic = "judge.tasks"
	}
	if c.Kafka.FailedTopic == "" {
		c.Kafka.FailedTopic = "judge.tasks.failed"
	}
	if c.Kafka.EventTopic == "" {
		c.Kafka.EventTopic = "contest.events"
	}
	if c.Kafka.MaxRetries <= 0 {
		c.Kafka.MaxRetries = 3
	}
	if c.Judge.PoolSize <= 0 {
		c.Judge.PoolSize = 4
	}
	if c.Judge.WorkDirRoot == "" {
		c.Judge.WorkDirRoot = os.TempDir()
	}
}

func (c *Config) validate() error {
	if c.MySQL.DataSource == "" {
		return errors.ValidationError("mysql.dataSource", "must not be empty")
	}
	if len(c.Kafka.Brokers) == 0 {
		return errors.ValidationError("kafka.brokers", "must not be empty")
	}
	if c.MinIO.Endpoint == "" {
		return errors.ValidationError("minio.endpoint", "must not be empty")
	}
	if c.Kafka.JudgeTopic == c.Kafka.FailedTopic {
		return errors.ValidationError("kafka.failedTopic", "must differ from the judge topic")
	}
	return nil
}
