package log

// Defaults applied when a LoggerConfig leaves fields empty.
const (
	DefaultPattern = "%time [%level] %field %msg%n"
	DefaultTime    = "2006-01-02 15:04:05.000"
	DefaultLevel   = "info"
)

// LoggerConfig configures the process logger.
type LoggerConfig struct {
	Level     string           `mapstructure:"level" yaml:"level"`
	Pattern   string           `mapstructure:"pattern" yaml:"pattern"`
	Time      string           `mapstructure:"time" yaml:"time"`
	Appenders []AppenderConfig `mapstructure:"appenders" yaml:"appenders"`
}

// AppenderConfig selects one output. Type is "console" or "file".
type AppenderConfig struct {
	Type string          `mapstructure:"type" yaml:"type"`
	File FileAppenderOpt `mapstructure:"file" yaml:"file"`
}

func (c *LoggerConfig) applyDefaults() {
	if c.Level == "" {
		c.Level = DefaultLevel
	}
	if c.Pattern == "" {
		c.Pattern = DefaultPattern
	}
	if c.Time == "" {
		c.Time = DefaultTime
	}
	if len(c.Appenders) == 0 {
		c.Appenders = []AppenderConfig{{Type: "console"}}
	}
}
