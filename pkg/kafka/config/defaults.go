package kafka_config

import "time"

const (
	DefaultEnabled      = false
	DefaultKafkaBrokers = "localhost:9092"
	DefaultGroupID      = "racereg-participants"

	DefaultTopicPaymentConfirmed = "payment.confirmed"
	DefaultTopicBibAssigned      = "bib.assigned"
	DefaultTopicBibRepaired      = "bib.repaired"
	DefaultTopicDLQ              = "payment.confirmed.dlq"

	DefaultProducerMaxAttempts  = 3
	DefaultProducerBatchTimeout = 10 * time.Millisecond
	DefaultProducerRequireAcks  = -1
	DefaultProducerCompression  = "snappy"

	DefaultConsumerStartOffset       = -2
	DefaultConsumerMinBytes          = 1
	DefaultConsumerMaxBytes          = 10 * 1024 * 1024 // 10MB
	DefaultConsumerMaxWait           = 500 * time.Millisecond
	DefaultConsumerCommitInterval    = 1 * time.Second
	DefaultConsumerHeartbeatInterval = 3 * time.Second
	DefaultConsumerSessionTimeout    = 10 * time.Second
	DefaultConsumerRebalanceTimeout  = 60 * time.Second
	DefaultConsumerMaxRetries        = 3
	DefaultConsumerRetryBackoff      = 500 * time.Millisecond
)
