package internal

import "time"

type Config struct {
	Host string `env:"HOST,default=0.0.0.0"`
	Port int    `env:"PORT,default=8080"`

	BadgerFilepath string `env:"BADGER_FILEPATH,required=true"`
	BlugeFilepath  string `env:"BLUGE_FILEPATH,required=true"`

	JWTSecret         string        `env:"JWT_SECRET,required=true"`
	AuthTokenDuration time.Duration `env:"AUTH_TOKEN_DURATION,default=24h"`

	// Chat runtime sizing. SessionBufferSize bounds each session's delivery
	// channel; RoomBufferSize bounds each room's command queue.
	SessionBufferSize int           `env:"SESSION_BUFFER_SIZE,default=256"`
	RoomBufferSize    int           `env:"ROOM_BUFFER_SIZE,default=512"`
	DeliverTimeout    time.Duration `env:"DELIVER_TIMEOUT,default=50ms"`
	RestartInterval   time.Duration `env:"RESTART_INTERVAL,default=200ms"`

	MetricInterval time.Duration `env:"METRIC_INTERVAL,default=2s"`

	LogLevel  string `env:"LOG_LEVEL,default=INFO"`
	DebugPort int    `env:"DEBUG_PORT,default=8081"`
}
