package kafka_config

import "time"

const (
	DefaultKafkaBrokers = "localhost:9092"

	DefaultEventTopic = "slotcore.events"
	DefaultDLQTopic   = "slotcore.events.dlq"

	DefaultProducerMaxAttempts  = 3
	DefaultProducerBatchTimeout = 10 * time.Millisecond
	DefaultProducerRequireAcks  = -1 // all
	DefaultProducerCompression  = "snappy"
	DefaultProducerAsync        = false

	DefaultKafkaEnabled = true
)
