package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const defaultPath = "internal/config/local.yaml"

// Config структура конфига
type Config struct {
	Postgres struct {
		DSN string `yaml:"dsn" env:"DATABASE_DSN"`
	} `yaml:"postgres"`

	Minio struct {
		Endpoint  string `yaml:"endpoint" env:"MINIO_ENDPOINT"`
		AccessKey string `yaml:"access_key" env:"MINIO_ACCESS_KEY"`
		SecretKey string `yaml:"secret_key" env:"MINIO_SECRET_KEY"`
		Bucket    string `yaml:"bucket" env:"MINIO_BUCKET"`
		Secure    bool   `yaml:"secure" env:"MINIO_SECURE"`
	} `yaml:"minio"`

	Kafka struct {
		Brokers        []string `yaml:"brokers" env:"KAFKA_BROKERS" envSeparator:","`
		GroupID        string   `yaml:"group_id" env:"KAFKA_GROUP_ID"`
		CommandTopic   string   `yaml:"command_topic" env:"COMMAND_TOPIC"`
		HeartbeatTopic string   `yaml:"heartbeat_topic" env:"HEARTBEAT_TOPIC"`
	} `yaml:"kafka"`

	HTTP struct {
		Addr            string        `yaml:"addr" env:"HTTP_ADDR"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"HTTP_SHUTDOWN_TIMEOUT"`
	} `yaml:"http"`

	Log struct {
		Level  string `yaml:"level" env:"LOG_LEVEL" validate:"omitempty,oneof=trace debug info warn error disabled"`
		Format string `yaml:"format" env:"LOG_FORMAT" validate:"omitempty,oneof=json console"`
	} `yaml:"log"`

	Simulator Simulator `yaml:"simulator"`
}

// Simulator holds the numeric knobs that differed between the demo variants.
type Simulator struct {
	DetectionProbability       float64 `yaml:"detection_probability" env:"SIM_DETECTION_PROBABILITY" validate:"gte=0,lte=1"`
	SecondDetectionProbability float64 `yaml:"second_detection_probability" env:"SIM_SECOND_DETECTION_PROBABILITY" validate:"gte=0,lte=1"`
	HighConfidenceThreshold    float64 `yaml:"high_confidence_threshold" env:"SIM_HIGH_CONFIDENCE_THRESHOLD" validate:"gte=0,lte=1"`
	DangerZoneFraction         float64 `yaml:"danger_zone_fraction" env:"SIM_DANGER_ZONE_FRACTION" validate:"gte=0,lte=1"`
	ConfidenceMin              float64 `yaml:"confidence_min" env:"SIM_CONFIDENCE_MIN" validate:"gte=0,lte=1"`
	ConfidenceMax              float64 `yaml:"confidence_max" env:"SIM_CONFIDENCE_MAX" validate:"gte=0,lte=1,gtefield=ConfidenceMin"`
	ModelConfidenceThreshold   float64 `yaml:"model_confidence_threshold" env:"SIM_MODEL_CONFIDENCE_THRESHOLD" validate:"gte=0,lte=1"`
	ZoneGateEnabled            *bool   `yaml:"zone_gate_enabled" env:"SIM_ZONE_GATE_ENABLED"`

	FrameWidth   float64 `yaml:"frame_width" env:"SIM_FRAME_WIDTH" validate:"gt=0"`
	FrameHeight  float64 `yaml:"frame_height" env:"SIM_FRAME_HEIGHT" validate:"gt=0"`
	BoxWidthMin  float64 `yaml:"box_width_min" env:"SIM_BOX_WIDTH_MIN" validate:"gt=0"`
	BoxWidthMax  float64 `yaml:"box_width_max" env:"SIM_BOX_WIDTH_MAX" validate:"gtefield=BoxWidthMin"`
	BoxHeightMin float64 `yaml:"box_height_min" env:"SIM_BOX_HEIGHT_MIN" validate:"gt=0"`
	BoxHeightMax float64 `yaml:"box_height_max" env:"SIM_BOX_HEIGHT_MAX" validate:"gtefield=BoxHeightMin"`

	FrameRate         int           `yaml:"frame_rate" env:"SIM_FRAME_RATE" validate:"gt=0,lte=240"`
	HistoryLimit      int           `yaml:"history_limit" env:"SIM_HISTORY_LIMIT" validate:"gte=0"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval" env:"SIM_HEARTBEAT_INTERVAL" validate:"gt=0"`
}

// ZoneGate reports whether dispatch requires a zone-positive detection. Default: true.
func (s Simulator) ZoneGate() bool {
	return s.ZoneGateEnabled == nil || *s.ZoneGateEnabled
}

// LoadConfig reads the YAML file over the defaults, overlays environment
// variables and validates the result. Keys present in the file win over
// defaults even when set to zero. An empty filename means local.yaml.
func LoadConfig(filename string) (*Config, error) {
	cfg := Default()

	if filename == "" {
		filename = defaultPath
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", filename, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", filename, err)
	}

	// переменные окружения имеют приоритет над файлом
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a config with every default applied and no file read.
func Default() *Config {
	cfg := &Config{Simulator: DefaultSimulator()}
	cfg.Minio.Bucket = "detections"
	cfg.Kafka.GroupID = "animal-detection-group"
	cfg.Kafka.CommandTopic = "detection-commands"
	cfg.Kafka.HeartbeatTopic = "detection-heartbeats"
	cfg.HTTP.Addr = ":8003"
	cfg.HTTP.ShutdownTimeout = 10 * time.Second
	cfg.Log.Level = "info"
	cfg.Log.Format = "json"
	return cfg
}

// DefaultSimulator returns the built-in simulator knobs.
func DefaultSimulator() Simulator {
	return Simulator{
		DetectionProbability:       0.15,
		SecondDetectionProbability: 0.3,
		HighConfidenceThreshold:    0.9,
		DangerZoneFraction:         0.7,
		ConfidenceMin:              0.6,
		ConfidenceMax:              1.0,
		ModelConfidenceThreshold:   0.5,
		FrameWidth:                 800,
		FrameHeight:                600,
		BoxWidthMin:                80,
		BoxWidthMax:                180,
		BoxHeightMin:               60,
		BoxHeightMax:               140,
		FrameRate:                  30,
		HeartbeatInterval:          5 * time.Second,
	}
}

// Validate checks struct tags and the cross-field rules tags cannot express.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	s := c.Simulator
	if s.BoxWidthMax >= s.FrameWidth || s.BoxHeightMax >= s.FrameHeight {
		return fmt.Errorf("invalid config: box size %.0fx%.0f does not fit frame %.0fx%.0f",
			s.BoxWidthMax, s.BoxHeightMax, s.FrameWidth, s.FrameHeight)
	}
	return nil
}
