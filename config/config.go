package config

import "time"

// Version is set via -ldflags at build time.
var Version string

// DefaultExternalTool is the subprocess contract binary described in §6.1.
const DefaultExternalTool = "../scripts/popy.py"

// DefaultPresignTTL is the TTL used for S3 presigned URLs (§4.1).
const DefaultPresignTTL = 3600 * time.Second

// DefaultConsumerPrefetch is the worker's AMQP QoS prefetch count (§4.5).
const DefaultConsumerPrefetch = 1

// TasksQueueName is the broker queue workers consume from.
const TasksQueueName = "tasks"

// WebsocketsExchangeName is the fanout exchange used for cross-instance
// notification delivery (§4.4).
const WebsocketsExchangeName = "websockets"

// MaxSocketHealthCheckIterations bounds the non-blocking read-ready loop
// used to detect a dead local websocket connection (§4.4).
const MaxSocketHealthCheckIterations = 50

// MaxConcurrentSubprocessTasks is the default size of the process-wide
// counting semaphore bounding concurrent external-subprocess tasks (§5).
var MaxConcurrentSubprocessTasks = 4
